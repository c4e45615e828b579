package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/siteharbor/siteharbor/internal/config"
)

// Client talks to the platform's HTTP control API. Requests are throttled by
// a shared rate limiter so fleet-wide sweeps don't overwhelm the manager node.
type Client struct {
	endpoint string
	http     *http.Client
	limiter  *rate.Limiter
	logger   *zap.Logger
}

func NewClient(cfg config.PlatformConfig, logger *zap.Logger) *Client {
	return &Client{
		endpoint: cfg.Endpoint,
		http:     &http.Client{Timeout: cfg.RequestTimeout},
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		logger:   logger,
	}
}

// Wire types for the platform API. Only the fields this control plane reads
// or writes are declared.

type wireService struct {
	ID      string `json:"ID"`
	Version struct {
		Index uint64 `json:"Index"`
	} `json:"Version"`
	CreatedAt time.Time       `json:"CreatedAt"`
	UpdatedAt time.Time       `json:"UpdatedAt"`
	Spec      wireServiceSpec `json:"Spec"`
}

type wireServiceSpec struct {
	Name         string            `json:"Name"`
	Labels       map[string]string `json:"Labels,omitempty"`
	TaskTemplate struct {
		ContainerSpec struct {
			Image  string      `json:"Image"`
			Env    []string    `json:"Env,omitempty"`
			Mounts []wireMount `json:"Mounts,omitempty"`
		} `json:"ContainerSpec"`
		Resources *struct {
			Limits       *wireResources `json:"Limits,omitempty"`
			Reservations *wireResources `json:"Reservations,omitempty"`
		} `json:"Resources,omitempty"`
		RestartPolicy *struct {
			Condition string `json:"Condition,omitempty"`
			Delay     int64  `json:"Delay,omitempty"`
		} `json:"RestartPolicy,omitempty"`
		ForceUpdate uint64 `json:"ForceUpdate,omitempty"`
		Networks    []struct {
			Target string `json:"Target"`
		} `json:"Networks,omitempty"`
	} `json:"TaskTemplate"`
	Mode struct {
		Replicated *struct {
			Replicas uint64 `json:"Replicas"`
		} `json:"Replicated,omitempty"`
	} `json:"Mode"`
}

type wireMount struct {
	Type   string `json:"Type"`
	Source string `json:"Source"`
	Target string `json:"Target"`
}

type wireResources struct {
	NanoCPUs    int64 `json:"NanoCPUs,omitempty"`
	MemoryBytes int64 `json:"MemoryBytes,omitempty"`
}

type wireTask struct {
	ServiceID string `json:"ServiceID"`
	Status    struct {
		State string `json:"State"`
	} `json:"Status"`
}

const taskStateRunning = "running"

func specFromDescriptor(desc ServiceDescriptor) wireServiceSpec {
	var spec wireServiceSpec
	spec.Name = desc.Name
	spec.Labels = desc.Labels
	spec.TaskTemplate.ContainerSpec.Image = desc.Image
	spec.TaskTemplate.ContainerSpec.Env = desc.Env
	for _, m := range desc.Mounts {
		mt := m.Type
		if mt == "" {
			mt = "bind"
		}
		spec.TaskTemplate.ContainerSpec.Mounts = append(spec.TaskTemplate.ContainerSpec.Mounts, wireMount{
			Type:   mt,
			Source: m.Source,
			Target: m.Target,
		})
	}
	for _, n := range desc.Networks {
		spec.TaskTemplate.Networks = append(spec.TaskTemplate.Networks, struct {
			Target string `json:"Target"`
		}{Target: n})
	}
	if desc.Resources != (Resources{}) {
		spec.TaskTemplate.Resources = &struct {
			Limits       *wireResources `json:"Limits,omitempty"`
			Reservations *wireResources `json:"Reservations,omitempty"`
		}{}
		if desc.Resources.LimitCPU > 0 || desc.Resources.LimitMemoryBytes > 0 {
			spec.TaskTemplate.Resources.Limits = &wireResources{
				NanoCPUs:    int64(desc.Resources.LimitCPU * 1e9),
				MemoryBytes: desc.Resources.LimitMemoryBytes,
			}
		}
		if desc.Resources.ReserveCPU > 0 || desc.Resources.ReserveMemoryBytes > 0 {
			spec.TaskTemplate.Resources.Reservations = &wireResources{
				NanoCPUs:    int64(desc.Resources.ReserveCPU * 1e9),
				MemoryBytes: desc.Resources.ReserveMemoryBytes,
			}
		}
	}
	if desc.RestartPolicy.Condition != "" {
		spec.TaskTemplate.RestartPolicy = &struct {
			Condition string `json:"Condition,omitempty"`
			Delay     int64  `json:"Delay,omitempty"`
		}{
			Condition: desc.RestartPolicy.Condition,
			Delay:     int64(desc.RestartPolicy.Delay),
		}
	}
	spec.Mode.Replicated = &struct {
		Replicas uint64 `json:"Replicas"`
	}{Replicas: desc.Replicas}
	return spec
}

func (c *Client) CreateService(ctx context.Context, desc ServiceDescriptor) (string, error) {
	spec := specFromDescriptor(desc)

	var created struct {
		ID string `json:"ID"`
	}
	if err := c.do(ctx, http.MethodPost, "/services/create", nil, spec, &created); err != nil {
		return "", err
	}

	c.logger.Info("Service created",
		zap.String("service_name", desc.Name),
		zap.String("service_id", created.ID),
		zap.String("image", desc.Image),
		zap.Uint64("replicas", desc.Replicas),
	)
	return created.ID, nil
}

func (c *Client) GetService(ctx context.Context, name string) (*ServiceSnapshot, error) {
	svc, err := c.inspectService(ctx, name)
	if err != nil {
		return nil, err
	}

	running, err := c.countRunningTasks(ctx, name)
	if err != nil {
		return nil, err
	}

	return snapshotFromWire(svc, running), nil
}

func (c *Client) ListServices(ctx context.Context, labelFilter map[string]string) ([]*ServiceSnapshot, error) {
	filters := map[string][]string{}
	for k, v := range labelFilter {
		filters["label"] = append(filters["label"], fmt.Sprintf("%s=%s", k, v))
	}
	q := url.Values{}
	if len(filters) > 0 {
		raw, err := json.Marshal(filters)
		if err != nil {
			return nil, err
		}
		q.Set("filters", string(raw))
	}

	var services []wireService
	if err := c.do(ctx, http.MethodGet, "/services", q, nil, &services); err != nil {
		return nil, err
	}

	snapshots := make([]*ServiceSnapshot, 0, len(services))
	for i := range services {
		running, err := c.countRunningTasks(ctx, services[i].Spec.Name)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snapshotFromWire(&services[i], running))
	}
	return snapshots, nil
}

func (c *Client) UpdateService(ctx context.Context, name string, update UpdateSpec) error {
	svc, err := c.inspectService(ctx, name)
	if err != nil {
		return err
	}

	spec := svc.Spec
	if update.Image != nil {
		spec.TaskTemplate.ContainerSpec.Image = *update.Image
	}
	if update.Replicas != nil {
		spec.Mode.Replicated = &struct {
			Replicas uint64 `json:"Replicas"`
		}{Replicas: *update.Replicas}
	}
	if update.ForceUpdate {
		spec.TaskTemplate.ForceUpdate++
	}

	q := url.Values{}
	q.Set("version", fmt.Sprintf("%d", svc.Version.Index))

	if err := c.do(ctx, http.MethodPost, "/services/"+svc.ID+"/update", q, spec, nil); err != nil {
		return err
	}

	c.logger.Info("Service updated",
		zap.String("service_name", name),
		zap.String("image", spec.TaskTemplate.ContainerSpec.Image),
		zap.Bool("force", update.ForceUpdate),
	)
	return nil
}

func (c *Client) ScaleService(ctx context.Context, name string, replicas uint64) error {
	return c.UpdateService(ctx, name, UpdateSpec{Replicas: &replicas})
}

func (c *Client) RemoveService(ctx context.Context, name string) error {
	err := c.do(ctx, http.MethodDelete, "/services/"+name, nil, nil, nil)
	if err != nil {
		return err
	}
	c.logger.Info("Service removed", zap.String("service_name", name))
	return nil
}

func (c *Client) ServiceLogs(ctx context.Context, name string, opts LogOptions) (string, error) {
	q := url.Values{}
	q.Set("stdout", "1")
	q.Set("stderr", "1")
	if opts.Tail > 0 {
		q.Set("tail", fmt.Sprintf("%d", opts.Tail))
	}

	resp, err := c.request(ctx, http.MethodGet, "/services/"+name+"/logs", q, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp); err != nil {
		return "", err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: reading logs: %v", ErrUnavailable, err)
	}
	return string(body), nil
}

func (c *Client) inspectService(ctx context.Context, name string) (*wireService, error) {
	var svc wireService
	if err := c.do(ctx, http.MethodGet, "/services/"+name, nil, nil, &svc); err != nil {
		return nil, err
	}
	return &svc, nil
}

func (c *Client) countRunningTasks(ctx context.Context, serviceName string) (uint64, error) {
	filters := map[string][]string{"service": {serviceName}}
	raw, err := json.Marshal(filters)
	if err != nil {
		return 0, err
	}
	q := url.Values{}
	q.Set("filters", string(raw))

	var tasks []wireTask
	if err := c.do(ctx, http.MethodGet, "/tasks", q, nil, &tasks); err != nil {
		return 0, err
	}

	var running uint64
	for _, t := range tasks {
		if t.Status.State == taskStateRunning {
			running++
		}
	}
	return running, nil
}

func snapshotFromWire(svc *wireService, running uint64) *ServiceSnapshot {
	var desired uint64
	if svc.Spec.Mode.Replicated != nil {
		desired = svc.Spec.Mode.Replicated.Replicas
	}
	return &ServiceSnapshot{
		ID:              svc.ID,
		Name:            svc.Spec.Name,
		Image:           svc.Spec.TaskTemplate.ContainerSpec.Image,
		DesiredReplicas: desired,
		RunningReplicas: running,
		Labels:          svc.Spec.Labels,
		CreatedAt:       svc.CreatedAt,
		UpdatedAt:       svc.UpdatedAt,
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, dest interface{}) error {
	resp, err := c.request(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp); err != nil {
		return err
	}

	if dest != nil {
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return fmt.Errorf("%w: decoding response: %v", ErrUnavailable, err)
		}
	}
	return nil
}

func (c *Client) request(ctx context.Context, method, path string, query url.Values, body interface{}) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	target := c.endpoint + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return resp, nil
}

func (c *Client) checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("platform request failed: status %d: %s", resp.StatusCode, string(body))
	}
}
