package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/quorumhq/regcache/internal/pkg/httpclient"
)

// AgentInfo is the short identity of the agent the client is connected to.
type AgentInfo struct {
	NodeName   string `json:"node_name"`
	Datacenter string `json:"datacenter"`
	Version    string `json:"version"`
}

// AgentClient queries the agent endpoints.
type AgentClient struct {
	client *Client
}

// Self returns the agent's identity. The /v1/agent/self payload is large and
// mostly undocumented; only the few stable fields are extracted.
func (ac *AgentClient) Self(ctx context.Context) (AgentInfo, error) {
	u := *ac.client.base
	u.Path = "/v1/agent/self"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return AgentInfo{}, fmt.Errorf("build agent request: %w", err)
	}

	if ac.client.config.Token != "" {
		req.Header.Set("X-Consul-Token", ac.client.config.Token)
	}

	resp, err := ac.client.http.Do(req)
	if err != nil {
		return AgentInfo{}, fmt.Errorf("agent self: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return AgentInfo{}, fmt.Errorf("read agent self response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return AgentInfo{}, &httpclient.Error{
			Method:     http.MethodGet,
			URL:        u.String(),
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       body,
		}
	}

	return AgentInfo{
		NodeName:   gjson.GetBytes(body, "Config.NodeName").String(),
		Datacenter: gjson.GetBytes(body, "Config.Datacenter").String(),
		Version:    gjson.GetBytes(body, "Config.Version").String(),
	}, nil
}
