package cache

import (
	"slices"
	"time"
)

// ConsistencyMode selects the registry read consistency.
type ConsistencyMode string

const (
	// ConsistencyDefault lets the registry pick (leader read, possibly stale
	// across a leader change).
	ConsistencyDefault ConsistencyMode = ""
	// ConsistencyConsistent forces a quorum read.
	ConsistencyConsistent ConsistencyMode = "consistent"
	// ConsistencyStale allows any server to answer.
	ConsistencyStale ConsistencyMode = "stale"
)

// QueryOptions are the caller-controlled request parameters passed through to
// every poll. Index and Wait are cache-managed: the cache merges in the
// current cursor and block duration on each request, and rejects options that
// set them up front.
type QueryOptions struct {
	Token       string          `conf:"token" yaml:"token" json:"token"`
	Datacenter  string          `conf:"datacenter" yaml:"datacenter" json:"datacenter"`
	Near        string          `conf:"near" yaml:"near" json:"near"`
	Consistency ConsistencyMode `conf:"consistency" yaml:"consistency" json:"consistency"`
	Tags        []string        `conf:"tags" yaml:"tags" json:"tags"`

	// Index and Wait form the blocking-query pair. They are owned by the
	// cache; see WatchParams.
	Index *Cursor       `conf:"-" yaml:"-" json:"-"`
	Wait  time.Duration `conf:"-" yaml:"-" json:"-"`
}

// WatchParams merges the current cursor and block duration into the caller's
// base options.
//
// With no cursor the base options are returned unmodified: the first read is
// non-blocking and returns current state immediately. With a cursor the
// request blocks server-side for up to blockSeconds waiting for a change past
// that cursor.
func WatchParams(cursor *Cursor, blockSeconds int, opts QueryOptions) (QueryOptions, error) {
	if opts.Index != nil || opts.Wait != 0 {
		return QueryOptions{}, &ConfigError{Reason: "index and wait cannot be overridden"}
	}

	if cursor == nil {
		return opts, nil
	}

	out := opts
	out.Tags = slices.Clone(opts.Tags)
	out.Index = cursor.Ptr()
	out.Wait = time.Duration(blockSeconds) * time.Second

	return out, nil
}
