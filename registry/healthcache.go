package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/quorumhq/regcache/cache"
)

// ServiceCache is a watch cache over the health of one service.
type ServiceCache = cache.Cache[ServiceKey, ServiceEntry]

// ServiceCacheOptions configures a service health cache.
type ServiceCacheOptions struct {
	// Service is the service name to watch. Required.
	Service string

	// Passing restricts the watch to instances whose checks all pass.
	Passing bool

	// BlockSeconds is the server-side wait per blocking query.
	BlockSeconds int

	// Backoff is the retry delay after a failed poll.
	Backoff time.Duration

	// Query is the caller-controlled base request parameters (token,
	// datacenter, tags, ...). Index and Wait must be unset.
	Query cache.QueryOptions

	// KeyFunc overrides the default ServiceEntryKey projection.
	KeyFunc cache.KeyFunc[ServiceKey, ServiceEntry]

	// Executor optionally shares a scheduler across caches.
	Executor cache.Scheduler
}

// NewServiceHealthCache creates a watch cache that keeps an up-to-date map of
// the instances of one service, keyed by advertised address. The cache is not
// started.
func NewServiceHealthCache(client *Client, opts ServiceCacheOptions) (*ServiceCache, error) {
	if opts.Service == "" {
		return nil, fmt.Errorf("registry: service name is required")
	}

	keyFn := opts.KeyFunc
	if keyFn == nil {
		keyFn = ServiceEntryKey
	}

	poller := func(ctx context.Context, q cache.QueryOptions) (*cache.Response[ServiceEntry], error) {
		entries, meta, err := client.Health().Service(ctx, opts.Service, opts.Passing, q)
		if err != nil {
			return nil, err
		}

		return &cache.Response[ServiceEntry]{
			Values:      entries,
			Cursor:      meta.Index,
			LastContact: meta.LastContact,
			KnownLeader: meta.KnownLeader,
		}, nil
	}

	return cache.New(cache.Options[ServiceKey, ServiceEntry]{
		Name:         "health/" + opts.Service,
		Poller:       poller,
		KeyFunc:      keyFn,
		Query:        opts.Query,
		BlockSeconds: opts.BlockSeconds,
		Backoff:      opts.Backoff,
		Executor:     opts.Executor,
	})
}
