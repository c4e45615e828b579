package platform

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound means the service does not exist on the platform.
	ErrNotFound = errors.New("service not found")
	// ErrUnavailable means the platform control API could not be reached
	// or answered with a server-side failure.
	ErrUnavailable = errors.New("platform unavailable")
)

// ServiceDescriptor is the declarative spec handed to the platform. It is
// rebuilt from the tenant record on every deploy, never mutated in place.
type ServiceDescriptor struct {
	Name          string            `json:"name"`
	Image         string            `json:"image"`
	Replicas      uint64            `json:"replicas"`
	Env           []string          `json:"env"`
	Labels        map[string]string `json:"labels"`
	Networks      []string          `json:"networks"`
	Mounts        []Mount           `json:"mounts"`
	Resources     Resources         `json:"resources"`
	RestartPolicy RestartPolicy     `json:"restart_policy"`
}

type Mount struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}

type Resources struct {
	LimitCPU           float64 `json:"limit_cpu,omitempty"`
	LimitMemoryBytes   int64   `json:"limit_memory_bytes,omitempty"`
	ReserveCPU         float64 `json:"reserve_cpu,omitempty"`
	ReserveMemoryBytes int64   `json:"reserve_memory_bytes,omitempty"`
}

type RestartPolicy struct {
	Condition string        `json:"condition"`
	Delay     time.Duration `json:"delay"`
}

// ServiceSnapshot is a point-in-time read of a running service. RunningReplicas
// counts only tasks observed in the running state, which is what health
// verification and rollback decisions are based on.
type ServiceSnapshot struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Image           string            `json:"image"`
	DesiredReplicas uint64            `json:"desired_replicas"`
	RunningReplicas uint64            `json:"running_replicas"`
	Labels          map[string]string `json:"labels"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// UpdateSpec carries the mutable parts of a service update. Nil fields are
// left as currently declared on the platform.
type UpdateSpec struct {
	Image       *string
	Replicas    *uint64
	ForceUpdate bool
}

type LogOptions struct {
	Tail int
}

// Gateway abstracts the container platform's control API. Callers own
// idempotency: creating an existing name fails, and delete paths treat
// ErrNotFound as success.
type Gateway interface {
	CreateService(ctx context.Context, desc ServiceDescriptor) (string, error)
	GetService(ctx context.Context, name string) (*ServiceSnapshot, error)
	ListServices(ctx context.Context, labelFilter map[string]string) ([]*ServiceSnapshot, error)
	UpdateService(ctx context.Context, name string, spec UpdateSpec) error
	ScaleService(ctx context.Context, name string, replicas uint64) error
	RemoveService(ctx context.Context, name string) error
	ServiceLogs(ctx context.Context, name string, opts LogOptions) (string, error)
}
