package registry

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quorumhq/regcache/cache"
	"github.com/quorumhq/regcache/internal/log"
)

// WatchConfig configures the set of watched services.
type WatchConfig struct {
	// BlockSeconds is the server-side wait per blocking query.
	BlockSeconds int `conf:"block_seconds" yaml:"block_seconds" json:"block_seconds"`

	// Backoff is the retry delay after a failed poll.
	Backoff time.Duration `conf:"backoff" yaml:"backoff" json:"backoff"`

	// InitTimeout bounds how long Start waits for every cache to publish its
	// first snapshot. Defaults to 30s.
	InitTimeout time.Duration `conf:"init_timeout" yaml:"init_timeout" json:"init_timeout"`

	// Services are the services to watch.
	Services []ServiceWatch `conf:"services" yaml:"services" json:"services"`
}

// ServiceWatch selects one service to watch.
type ServiceWatch struct {
	Name    string   `conf:"name" yaml:"name" json:"name"`
	Passing bool     `conf:"passing" yaml:"passing" json:"passing"`
	Tags    []string `conf:"tags" yaml:"tags" json:"tags"`
}

// Set manages one health cache per configured service.
type Set struct {
	config WatchConfig
	caches map[string]*ServiceCache
	order  []string
}

// NewSet builds the caches for every configured service without starting
// them, so callers can attach listeners before the first snapshot.
func NewSet(client *Client, cfg WatchConfig) (*Set, error) {
	s := &Set{
		config: cfg,
		caches: make(map[string]*ServiceCache, len(cfg.Services)),
	}

	for _, watch := range cfg.Services {
		if _, dup := s.caches[watch.Name]; dup {
			return nil, fmt.Errorf("registry: duplicate watched service %q", watch.Name)
		}

		c, err := NewServiceHealthCache(client, ServiceCacheOptions{
			Service:      watch.Name,
			Passing:      watch.Passing,
			BlockSeconds: cfg.BlockSeconds,
			Backoff:      cfg.Backoff,
			Query:        cache.QueryOptions{Tags: watch.Tags},
		})
		if err != nil {
			return nil, err
		}

		s.caches[watch.Name] = c
		s.order = append(s.order, watch.Name)
	}

	return s, nil
}

// Cache returns the cache watching the named service.
func (s *Set) Cache(service string) (*ServiceCache, bool) {
	c, ok := s.caches[service]
	return c, ok
}

// Services returns the watched service names in configuration order.
func (s *Set) Services() []string {
	return append([]string{}, s.order...)
}

// Start starts every cache and waits until each has published its first
// snapshot. On timeout or context cancellation all caches are stopped.
func (s *Set) Start(ctx context.Context) error {
	initTimeout := s.config.InitTimeout
	if initTimeout <= 0 {
		initTimeout = 30 * time.Second
	}

	for name, c := range s.caches {
		if err := c.Start(); err != nil {
			s.Stop()
			return fmt.Errorf("start watch for %q: %w", name, err)
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()

	g, waitCtx := errgroup.WithContext(waitCtx)

	for name, c := range s.caches {
		g.Go(func() error {
			select {
			case <-c.Initialized():
				log.Info(waitCtx, "service watch initialized",
					log.String("service", name),
					log.Int("instances", len(c.Map())),
				)

				return nil
			case <-waitCtx.Done():
				return fmt.Errorf("service %q not initialized: %w", name, waitCtx.Err())
			}
		})
	}

	if err := g.Wait(); err != nil {
		s.Stop()
		return err
	}

	return nil
}

// Stop stops every cache. Idempotent.
func (s *Set) Stop() {
	for _, c := range s.caches {
		c.Stop()
	}
}
