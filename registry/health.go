package registry

import (
	"fmt"

	"github.com/samber/lo"
)

// Check statuses as reported by the registry.
const (
	StatusPassing     = "passing"
	StatusWarning     = "warning"
	StatusCritical    = "critical"
	StatusMaintenance = "maintenance"
)

// Node is the agent node an instance runs on.
type Node struct {
	Name       string            `json:"Node"`
	Address    string            `json:"Address"`
	Datacenter string            `json:"Datacenter"`
	Meta       map[string]string `json:"Meta"`
}

// AgentService is one registered service instance.
type AgentService struct {
	ID      string            `json:"ID"`
	Service string            `json:"Service"`
	Tags    []string          `json:"Tags"`
	Address string            `json:"Address"`
	Port    int               `json:"Port"`
	Meta    map[string]string `json:"Meta"`
}

// HealthCheck is one check attached to a node or service.
type HealthCheck struct {
	Node        string `json:"Node"`
	CheckID     string `json:"CheckID"`
	Name        string `json:"Name"`
	Status      string `json:"Status"`
	Output      string `json:"Output"`
	ServiceID   string `json:"ServiceID"`
	ServiceName string `json:"ServiceName"`
}

// ServiceEntry is one instance of a service together with its node and the
// checks that apply to it, as returned by the health endpoint.
type ServiceEntry struct {
	Node    Node          `json:"Node"`
	Service AgentService  `json:"Service"`
	Checks  []HealthCheck `json:"Checks"`
}

// AggregatedStatus reduces the entry's checks to a single status: the worst
// one wins. An entry without checks is considered passing.
func (e ServiceEntry) AggregatedStatus() string {
	statuses := lo.Map(e.Checks, func(check HealthCheck, _ int) string {
		return check.Status
	})

	switch {
	case lo.Contains(statuses, StatusMaintenance):
		return StatusMaintenance
	case lo.Contains(statuses, StatusCritical):
		return StatusCritical
	case lo.Contains(statuses, StatusWarning):
		return StatusWarning
	default:
		return StatusPassing
	}
}

// ServiceKey identifies one service instance by its advertised address.
type ServiceKey struct {
	Host string
	Port int
}

func (k ServiceKey) String() string {
	return fmt.Sprintf("%s:%d", k.Host, k.Port)
}

// ServiceEntryKey is the default key projection for service health caches.
// The service address wins over the node address; an entry with neither has
// no key and is dropped from the snapshot.
func ServiceEntryKey(e ServiceEntry) (ServiceKey, bool) {
	host := e.Service.Address
	if host == "" {
		host = e.Node.Address
	}

	if host == "" {
		return ServiceKey{}, false
	}

	return ServiceKey{Host: host, Port: e.Service.Port}, true
}
