package cache

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchParams(t *testing.T) {
	base := QueryOptions{
		Token:       "secret",
		Datacenter:  "dc1",
		Near:        "_agent",
		Consistency: ConsistencyStale,
		Tags:        []string{"primary", "v2"},
	}

	t.Run("no cursor returns base unmodified", func(t *testing.T) {
		out, err := WatchParams(nil, 10, base)
		require.NoError(t, err)
		assert.Empty(t, cmp.Diff(base, out))
	})

	t.Run("cursor merges index and wait, preserves caller fields", func(t *testing.T) {
		cursor := Cursor(1234)

		out, err := WatchParams(&cursor, 30, base)
		require.NoError(t, err)

		require.NotNil(t, out.Index)
		assert.Equal(t, Cursor(1234), *out.Index)
		assert.Equal(t, 30*time.Second, out.Wait)

		assert.Equal(t, "secret", out.Token)
		assert.Equal(t, "dc1", out.Datacenter)
		assert.Equal(t, "_agent", out.Near)
		assert.Equal(t, ConsistencyStale, out.Consistency)
		assert.Equal(t, []string{"primary", "v2"}, out.Tags)

		// The base options are not touched.
		assert.Nil(t, base.Index)
		assert.Zero(t, base.Wait)
	})

	t.Run("tags are cloned", func(t *testing.T) {
		cursor := Cursor(1)

		out, err := WatchParams(&cursor, 10, base)
		require.NoError(t, err)

		out.Tags[0] = "mutated"
		assert.Equal(t, "primary", base.Tags[0])
	})

	t.Run("caller-set index rejected", func(t *testing.T) {
		bad := base
		bad.Index = Cursor(7).Ptr()

		_, err := WatchParams(nil, 10, bad)
		require.Error(t, err)
		assert.True(t, IsConfigError(err))
	})

	t.Run("caller-set wait rejected", func(t *testing.T) {
		bad := base
		bad.Wait = time.Minute

		cursor := Cursor(7)

		_, err := WatchParams(&cursor, 10, bad)
		require.Error(t, err)
		assert.True(t, IsConfigError(err))
	})
}

func TestParseCursor(t *testing.T) {
	cursor, err := ParseCursor("8472")
	require.NoError(t, err)
	assert.Equal(t, Cursor(8472), cursor)
	assert.Equal(t, "8472", cursor.String())

	_, err = ParseCursor("not-a-cursor")
	require.Error(t, err)

	_, err = ParseCursor("-1")
	require.Error(t, err)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "latent", StateLatent.String())
	assert.Equal(t, "starting", StateStarting.String())
	assert.Equal(t, "started", StateStarted.String())
	assert.Equal(t, "stopped", StateStopped.String())
}
