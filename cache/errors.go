package cache

import (
	"errors"
	"fmt"
)

// ErrNoLeader indicates the registry reported no elected leader for the
// response; the data cannot be trusted and the poll is retried like any
// transport failure.
var ErrNoLeader = errors.New("registry cluster has no elected leader")

// InvalidTransitionError is returned when a caller attempts an illegal
// lifecycle transition, e.g. Start on an already started cache.
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition from state %s to %s", e.From, e.To)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var e *InvalidTransitionError
	return errors.As(err, &e)
}

// ConfigError is returned when caller-supplied options collide with
// cache-managed fields. No request is issued.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "cache config: " + e.Reason
}

// IsConfigError reports whether err is a ConfigError.
func IsConfigError(err error) bool {
	var e *ConfigError
	return errors.As(err, &e)
}
