// Package registry provides the HTTP transport for a Consul-compatible
// registry agent and the service-health specialization of the watch cache.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/quorumhq/regcache/cache"
	"github.com/quorumhq/regcache/internal/pkg/httpclient"
	"github.com/quorumhq/regcache/internal/tracing"
)

const DefaultAddress = "http://127.0.0.1:8500"

// Config is the registry client configuration.
type Config struct {
	// Address is the agent base URL.
	Address string `conf:"address" yaml:"address" json:"address"`

	// Token is the default auth token, overridable per query.
	Token string `conf:"token" yaml:"token" json:"token"`

	// Datacenter is the default datacenter, overridable per query.
	Datacenter string `conf:"datacenter" yaml:"datacenter" json:"datacenter"`
}

// QueryMeta is the response metadata of one registry read, decoded from the
// X-Consul-* headers.
type QueryMeta struct {
	// Index is the watch cursor for the result set, nil if the response did
	// not carry one.
	Index *cache.Cursor

	// LastContact is how long ago the answering server heard from the leader.
	LastContact time.Duration

	// KnownLeader reports whether the cluster had an elected leader.
	KnownLeader bool

	// RequestTime is the client-observed duration of the request, including
	// any server-side blocking.
	RequestTime time.Duration
}

// Client talks to one registry agent.
type Client struct {
	config Config
	base   *url.URL
	http   *http.Client
}

// NewClient creates a registry client. The underlying HTTP client carries no
// global timeout; blocking queries are bounded by their wait duration plus
// the request context.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Address == "" {
		cfg.Address = DefaultAddress
	}

	base, err := url.Parse(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("invalid registry address %q: %w", cfg.Address, err)
	}

	return &Client{
		config: cfg,
		base:   base,
		http:   httpclient.New(),
	}, nil
}

// Health returns the health endpoint client.
func (c *Client) Health() *HealthClient {
	return &HealthClient{client: c}
}

// Agent returns the agent endpoint client.
func (c *Client) Agent() *AgentClient {
	return &AgentClient{client: c}
}

// query performs one GET against path, encoding the blocking-query pair and
// pass-through options, and decodes the JSON body into out.
func (c *Client) query(ctx context.Context, path string, q cache.QueryOptions, extra url.Values, out any) (QueryMeta, error) {
	u := *c.base
	u.Path = path

	params := url.Values{}
	for key, values := range extra {
		params[key] = values
	}

	dc := q.Datacenter
	if dc == "" {
		dc = c.config.Datacenter
	}

	if dc != "" {
		params.Set("dc", dc)
	}

	if q.Near != "" {
		params.Set("near", q.Near)
	}

	switch q.Consistency {
	case cache.ConsistencyConsistent:
		params.Set("consistent", "")
	case cache.ConsistencyStale:
		params.Set("stale", "")
	case cache.ConsistencyDefault:
	}

	for _, tag := range q.Tags {
		params.Add("tag", tag)
	}

	if q.Index != nil {
		params.Set("index", q.Index.String())
	}

	if q.Wait != 0 {
		params.Set("wait", q.Wait.String())
	}

	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return QueryMeta{}, fmt.Errorf("build registry request: %w", err)
	}

	token := q.Token
	if token == "" {
		token = c.config.Token
	}

	if token != "" {
		req.Header.Set("X-Consul-Token", token)
	}

	requestID, ok := tracing.GetRequestID(ctx)
	if !ok {
		requestID = tracing.GenerateRequestID()
	}

	req.Header.Set("X-Request-Id", requestID)

	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		return QueryMeta{}, fmt.Errorf("registry query %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))

		return QueryMeta{}, &httpclient.Error{
			Method:     http.MethodGet,
			URL:        u.String(),
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       body,
		}
	}

	meta, err := parseQueryMeta(resp.Header)
	if err != nil {
		return QueryMeta{}, err
	}

	meta.RequestTime = time.Since(start)

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return QueryMeta{}, fmt.Errorf("decode registry response %s: %w", path, err)
		}
	}

	return meta, nil
}

func parseQueryMeta(header http.Header) (QueryMeta, error) {
	var meta QueryMeta

	if raw := header.Get("X-Consul-Index"); raw != "" {
		cursor, err := cache.ParseCursor(raw)
		if err != nil {
			return QueryMeta{}, fmt.Errorf("parse X-Consul-Index: %w", err)
		}

		meta.Index = cursor.Ptr()
	}

	if raw := header.Get("X-Consul-LastContact"); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return QueryMeta{}, fmt.Errorf("parse X-Consul-LastContact: %w", err)
		}

		meta.LastContact = time.Duration(ms) * time.Millisecond
	}

	meta.KnownLeader = header.Get("X-Consul-KnownLeader") == "true"

	return meta, nil
}

// HealthClient queries the health endpoints.
type HealthClient struct {
	client *Client
}

// Service lists the instances of a service with their health. With passing
// set, only instances whose checks all pass are returned. Supports blocking
// via the cache-managed Index/Wait pair in q.
func (hc *HealthClient) Service(ctx context.Context, service string, passing bool, q cache.QueryOptions) ([]ServiceEntry, QueryMeta, error) {
	if service == "" {
		return nil, QueryMeta{}, fmt.Errorf("service name is required")
	}

	extra := url.Values{}
	if passing {
		extra.Set("passing", "1")
	}

	var entries []ServiceEntry

	meta, err := hc.client.query(ctx, "/v1/health/service/"+service, q, extra, &entries)
	if err != nil {
		return nil, QueryMeta{}, err
	}

	return entries, meta, nil
}
