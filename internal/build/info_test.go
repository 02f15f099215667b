package build

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()

	assert.NotEmpty(t, info.Version)
	assert.Equal(t, Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)
	assert.NotEmpty(t, info.Platform)

	s := info.String()
	assert.Contains(t, s, "Version: "+info.Version)
	assert.Contains(t, s, "Platform: "+info.Platform)
}
