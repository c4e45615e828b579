package platform

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/siteharbor/siteharbor/internal/config"
)

func newTestClient(endpoint string) *Client {
	return NewClient(config.PlatformConfig{
		Endpoint:       endpoint,
		RequestTimeout: 2 * time.Second,
		RateLimit:      1000,
		RateBurst:      1000,
	}, zap.NewNop())
}

func serviceJSON(id, name, image string, version, replicas uint64) wireService {
	var svc wireService
	svc.ID = id
	svc.Version.Index = version
	svc.Spec.Name = name
	svc.Spec.TaskTemplate.ContainerSpec.Image = image
	svc.Spec.Mode.Replicated = &struct {
		Replicas uint64 `json:"Replicas"`
	}{Replicas: replicas}
	return svc
}

func TestGetServiceCountsOnlyRunningTasks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/services/site-blog":
			json.NewEncoder(w).Encode(serviceJSON("abc123", "site-blog", "app:2.0", 7, 3))
		case "/tasks":
			tasks := []wireTask{{}, {}, {}, {}}
			tasks[0].Status.State = "running"
			tasks[1].Status.State = "running"
			tasks[2].Status.State = "failed"
			tasks[3].Status.State = "shutdown"
			json.NewEncoder(w).Encode(tasks)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	snap, err := newTestClient(srv.URL).GetService(context.Background(), "site-blog")
	if err != nil {
		t.Fatalf("GetService() error = %v", err)
	}
	if snap.Name != "site-blog" || snap.Image != "app:2.0" {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.DesiredReplicas != 3 {
		t.Errorf("DesiredReplicas = %d, want 3", snap.DesiredReplicas)
	}
	if snap.RunningReplicas != 2 {
		t.Errorf("RunningReplicas = %d, want 2 (non-running task states must not count)", snap.RunningReplicas)
	}
}

func TestGetServiceNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).GetService(context.Background(), "site-gone")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestGetServiceWrapsServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).GetService(context.Background(), "site-blog")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
}

func TestUpdateServiceUsesVersionIndexAndForceCounter(t *testing.T) {
	var gotVersion string
	var gotSpec wireServiceSpec

	current := serviceJSON("abc123", "site-blog", "app:1.0", 42, 3)
	current.Spec.TaskTemplate.ForceUpdate = 5

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/services/site-blog":
			json.NewEncoder(w).Encode(current)
		case r.Method == http.MethodPost && r.URL.Path == "/services/abc123/update":
			gotVersion = r.URL.Query().Get("version")
			if err := json.NewDecoder(r.Body).Decode(&gotSpec); err != nil {
				t.Errorf("decoding update spec: %v", err)
			}
			w.WriteHeader(http.StatusOK)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	image := "app:2.0"
	err := newTestClient(srv.URL).UpdateService(context.Background(), "site-blog", UpdateSpec{
		Image:       &image,
		ForceUpdate: true,
	})
	if err != nil {
		t.Fatalf("UpdateService() error = %v", err)
	}

	if gotVersion != "42" {
		t.Errorf("version = %q, want the inspected index 42", gotVersion)
	}
	if gotSpec.TaskTemplate.ContainerSpec.Image != "app:2.0" {
		t.Errorf("submitted image = %q", gotSpec.TaskTemplate.ContainerSpec.Image)
	}
	if gotSpec.TaskTemplate.ForceUpdate != 6 {
		t.Errorf("ForceUpdate = %d, want the incremented counter 6", gotSpec.TaskTemplate.ForceUpdate)
	}
	if gotSpec.Mode.Replicated == nil || gotSpec.Mode.Replicated.Replicas != 3 {
		t.Error("update must preserve the current replica count when not scaling")
	}
}

func TestScaleServiceSubmitsReplicas(t *testing.T) {
	var gotSpec wireServiceSpec

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			json.NewEncoder(w).Encode(serviceJSON("abc123", "site-blog", "app:1.0", 9, 3))
		case r.Method == http.MethodPost:
			json.NewDecoder(r.Body).Decode(&gotSpec)
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	if err := newTestClient(srv.URL).ScaleService(context.Background(), "site-blog", 0); err != nil {
		t.Fatalf("ScaleService() error = %v", err)
	}
	if gotSpec.Mode.Replicated == nil || gotSpec.Mode.Replicated.Replicas != 0 {
		t.Errorf("replicas = %+v, want 0", gotSpec.Mode.Replicated)
	}
	if gotSpec.TaskTemplate.ContainerSpec.Image != "app:1.0" {
		t.Error("scaling must not change the image")
	}
}

func TestCreateServiceSubmitsDescriptor(t *testing.T) {
	var gotSpec wireServiceSpec

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/services/create" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotSpec)
		json.NewEncoder(w).Encode(map[string]string{"ID": "new123"})
	}))
	defer srv.Close()

	id, err := newTestClient(srv.URL).CreateService(context.Background(), ServiceDescriptor{
		Name:     "site-blog",
		Image:    "app:2.0",
		Replicas: 2,
		Env:      []string{"SITE_SLUG=blog"},
		Labels:   map[string]string{"siteharbor.managed": "true"},
		Networks: []string{"siteharbor-net"},
		Mounts:   []Mount{{Source: "/srv/sites/blog", Target: "/var/www/site"}},
	})
	if err != nil {
		t.Fatalf("CreateService() error = %v", err)
	}
	if id != "new123" {
		t.Errorf("id = %q", id)
	}
	if gotSpec.Name != "site-blog" || gotSpec.TaskTemplate.ContainerSpec.Image != "app:2.0" {
		t.Errorf("spec = %+v", gotSpec)
	}
	if gotSpec.Mode.Replicated == nil || gotSpec.Mode.Replicated.Replicas != 2 {
		t.Error("replicated mode missing")
	}
	if len(gotSpec.TaskTemplate.ContainerSpec.Mounts) != 1 || gotSpec.TaskTemplate.ContainerSpec.Mounts[0].Type != "bind" {
		t.Errorf("mounts = %+v, want one bind mount", gotSpec.TaskTemplate.ContainerSpec.Mounts)
	}
	if len(gotSpec.TaskTemplate.Networks) != 1 || gotSpec.TaskTemplate.Networks[0].Target != "siteharbor-net" {
		t.Errorf("networks = %+v", gotSpec.TaskTemplate.Networks)
	}
}

func TestListServicesFiltersByLabel(t *testing.T) {
	var gotFilters string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/services":
			gotFilters = r.URL.Query().Get("filters")
			json.NewEncoder(w).Encode([]wireService{serviceJSON("a", "site-a", "app:1.0", 1, 1)})
		case "/tasks":
			json.NewEncoder(w).Encode([]wireTask{})
		}
	}))
	defer srv.Close()

	snaps, err := newTestClient(srv.URL).ListServices(context.Background(), map[string]string{"siteharbor.managed": "true"})
	if err != nil {
		t.Fatalf("ListServices() error = %v", err)
	}
	if len(snaps) != 1 || snaps[0].Name != "site-a" {
		t.Errorf("snapshots = %+v", snaps)
	}

	var filters map[string][]string
	if err := json.Unmarshal([]byte(gotFilters), &filters); err != nil {
		t.Fatalf("filters not JSON: %q", gotFilters)
	}
	if len(filters["label"]) != 1 || filters["label"][0] != "siteharbor.managed=true" {
		t.Errorf("label filter = %v", filters["label"])
	}
}

func TestRemoveService(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := newTestClient(srv.URL).RemoveService(context.Background(), "site-blog"); err != nil {
		t.Fatalf("RemoveService() error = %v", err)
	}
	if gotMethod != http.MethodDelete || gotPath != "/services/site-blog" {
		t.Errorf("request = %s %s", gotMethod, gotPath)
	}
}
