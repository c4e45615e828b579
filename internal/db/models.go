package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type TenantStatus string

const (
	TenantCreating TenantStatus = "creating"
	TenantRunning  TenantStatus = "running"
	TenantStopped  TenantStatus = "stopped"
	TenantError    TenantStatus = "error"
	TenantDeleted  TenantStatus = "deleted"
)

// Tenant is one customer's isolated site deployment. The slug is globally
// unique and immutable once assigned; it keys the service name, the database
// name, the storage namespace and the routing rule.
type Tenant struct {
	ID            string       `json:"id" db:"id"`
	UserID        string       `json:"user_id" db:"user_id"`
	Name          string       `json:"name" db:"name"`
	Slug          string       `json:"slug" db:"slug"`
	Plan          string       `json:"plan" db:"plan"`
	Replicas      int          `json:"replicas" db:"replicas"`
	Status        TenantStatus `json:"status" db:"status"`
	DBName        string       `json:"-" db:"db_name"`
	DBUser        string       `json:"-" db:"db_user"`
	DBPassword    string       `json:"-" db:"db_password"`
	StoragePath   string       `json:"-" db:"storage_path"`
	AdminUser     string       `json:"admin_user,omitempty" db:"admin_user"`
	AdminPassword string       `json:"-" db:"admin_password"`
	CreatedAt     time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at" db:"updated_at"`
}

type MaintenanceStatus string

const (
	MaintenancePending    MaintenanceStatus = "pending"
	MaintenanceInProgress MaintenanceStatus = "in_progress"
	MaintenanceCompleted  MaintenanceStatus = "completed"
	MaintenanceFailed     MaintenanceStatus = "failed"
	MaintenanceCancelled  MaintenanceStatus = "cancelled"
)

// IsTerminal reports whether the status is final. Terminal tasks are
// immutable.
func (s MaintenanceStatus) IsTerminal() bool {
	return s == MaintenanceCompleted || s == MaintenanceFailed || s == MaintenanceCancelled
}

// MaintenanceTask is a scheduled fleet-wide image rollout.
type MaintenanceTask struct {
	ID              string            `json:"id" db:"id"`
	TargetImage     string            `json:"target_image" db:"target_image"`
	ForceUpdate     bool              `json:"force_update" db:"force_update"`
	Status          MaintenanceStatus `json:"status" db:"status"`
	ScheduledAt     time.Time         `json:"scheduled_at" db:"scheduled_at"`
	StartedAt       *time.Time        `json:"started_at,omitempty" db:"started_at"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty" db:"completed_at"`
	ServicesUpdated StringSlice       `json:"services_updated" db:"services_updated"`
	Errors          StringSlice       `json:"errors" db:"errors"`
	CreatedBy       string            `json:"created_by" db:"created_by"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
}

type Announcement struct {
	ID        string    `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	Body      string    `json:"body" db:"body"`
	Published bool      `json:"published" db:"published"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// StringSlice stores a []string as JSONB.
type StringSlice []string

func (s StringSlice) Value() (driver.Value, error) {
	if s == nil {
		s = StringSlice{}
	}
	return json.Marshal(s)
}

func (s *StringSlice) Scan(value interface{}) error {
	if value == nil {
		*s = StringSlice{}
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into StringSlice", value)
	}
	return json.Unmarshal(b, s)
}
