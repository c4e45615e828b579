package db

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/siteharbor/siteharbor/internal/config"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("record not found")

type Repository struct {
	db *sqlx.DB
}

func NewConnection(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.URL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Tenant operations

func (r *Repository) CreateTenant(t *Tenant) error {
	query := `
		INSERT INTO tenants (
			id, user_id, name, slug, plan, replicas, status,
			db_name, db_user, db_password, storage_path,
			admin_user, admin_password, created_at, updated_at
		) VALUES (
			:id, :user_id, :name, :slug, :plan, :replicas, :status,
			:db_name, :db_user, :db_password, :storage_path,
			:admin_user, :admin_password, :created_at, :updated_at
		)`

	_, err := r.db.NamedExec(query, t)
	return err
}

func (r *Repository) GetTenant(id string) (*Tenant, error) {
	var t Tenant
	query := `SELECT * FROM tenants WHERE id = $1`
	err := r.db.Get(&t, query, id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return &t, err
}

func (r *Repository) GetTenantBySlug(slug string) (*Tenant, error) {
	var t Tenant
	query := `SELECT * FROM tenants WHERE slug = $1`
	err := r.db.Get(&t, query, slug)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return &t, err
}

func (r *Repository) ListTenants(limit, offset int) ([]*Tenant, error) {
	tenants := []*Tenant{}
	query := `
		SELECT * FROM tenants
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	err := r.db.Select(&tenants, query, limit, offset)
	return tenants, err
}

func (r *Repository) ListTenantsByUser(userID string) ([]*Tenant, error) {
	tenants := []*Tenant{}
	query := `SELECT * FROM tenants WHERE user_id = $1 ORDER BY created_at DESC`
	err := r.db.Select(&tenants, query, userID)
	return tenants, err
}

func (r *Repository) CountTenantsByUser(userID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM tenants WHERE user_id = $1`
	err := r.db.Get(&count, query, userID)
	return count, err
}

func (r *Repository) UpdateTenantStatus(id string, status TenantStatus) error {
	query := `UPDATE tenants SET status = $2, updated_at = NOW() WHERE id = $1`
	_, err := r.db.Exec(query, id, status)
	return err
}

func (r *Repository) UpdateTenant(t *Tenant) error {
	query := `
		UPDATE tenants SET
			name = :name,
			plan = :plan,
			replicas = :replicas,
			status = :status,
			admin_user = :admin_user,
			admin_password = :admin_password,
			updated_at = NOW()
		WHERE id = :id`

	_, err := r.db.NamedExec(query, t)
	return err
}

func (r *Repository) DeleteTenant(id string) error {
	query := `DELETE FROM tenants WHERE id = $1`
	_, err := r.db.Exec(query, id)
	return err
}

// Maintenance task operations

func (r *Repository) CreateMaintenanceTask(t *MaintenanceTask) error {
	query := `
		INSERT INTO maintenance_tasks (
			id, target_image, force_update, status, scheduled_at,
			services_updated, errors, created_by, created_at
		) VALUES (
			:id, :target_image, :force_update, :status, :scheduled_at,
			:services_updated, :errors, :created_by, :created_at
		)`

	_, err := r.db.NamedExec(query, t)
	return err
}

func (r *Repository) GetMaintenanceTask(id string) (*MaintenanceTask, error) {
	var t MaintenanceTask
	query := `SELECT * FROM maintenance_tasks WHERE id = $1`
	err := r.db.Get(&t, query, id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return &t, err
}

func (r *Repository) ListMaintenanceTasks(limit, offset int) ([]*MaintenanceTask, error) {
	tasks := []*MaintenanceTask{}
	query := `
		SELECT * FROM maintenance_tasks
		ORDER BY scheduled_at DESC
		LIMIT $1 OFFSET $2`

	err := r.db.Select(&tasks, query, limit, offset)
	return tasks, err
}

// GetDueMaintenanceTasks returns pending tasks whose scheduled time has
// passed, oldest first.
func (r *Repository) GetDueMaintenanceTasks(now time.Time) ([]*MaintenanceTask, error) {
	tasks := []*MaintenanceTask{}
	query := `
		SELECT * FROM maintenance_tasks
		WHERE status = $1 AND scheduled_at <= $2
		ORDER BY scheduled_at ASC`

	err := r.db.Select(&tasks, query, MaintenancePending, now)
	return tasks, err
}

// MarkMaintenanceTaskStarted transitions a task from pending to in_progress.
// It returns false when the task was no longer pending, which is the
// defensive re-check against double execution.
func (r *Repository) MarkMaintenanceTaskStarted(id string, startedAt time.Time) (bool, error) {
	query := `
		UPDATE maintenance_tasks
		SET status = $2, started_at = $3
		WHERE id = $1 AND status = $4`

	res, err := r.db.Exec(query, id, MaintenanceInProgress, startedAt, MaintenancePending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *Repository) CompleteMaintenanceTask(id string, status MaintenanceStatus, servicesUpdated, errs []string, completedAt time.Time) error {
	query := `
		UPDATE maintenance_tasks
		SET status = $2, completed_at = $3, services_updated = $4, errors = $5
		WHERE id = $1 AND status = $6`

	_, err := r.db.Exec(query, id, status, completedAt,
		StringSlice(servicesUpdated), StringSlice(errs), MaintenanceInProgress)
	return err
}

// CancelMaintenanceTask cancels a task that has not started yet. Returns
// false when the task already left the pending state.
func (r *Repository) CancelMaintenanceTask(id string) (bool, error) {
	query := `
		UPDATE maintenance_tasks
		SET status = $2, completed_at = NOW()
		WHERE id = $1 AND status = $3`

	res, err := r.db.Exec(query, id, MaintenanceCancelled, MaintenancePending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ResetOrphanedMaintenanceTasks fails tasks left in_progress by a previous
// process, so a restart never leaves a window stuck open. Returns how many
// tasks were reset.
func (r *Repository) ResetOrphanedMaintenanceTasks(reason string) (int64, error) {
	query := `
		UPDATE maintenance_tasks
		SET status = $1,
		    completed_at = NOW(),
		    errors = errors || to_jsonb($2::text)
		WHERE status = $3`

	res, err := r.db.Exec(query, MaintenanceFailed, reason, MaintenanceInProgress)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Announcement operations

func (r *Repository) CreateAnnouncement(a *Announcement) error {
	query := `
		INSERT INTO announcements (id, title, body, published, created_at, updated_at)
		VALUES (:id, :title, :body, :published, :created_at, :updated_at)`

	_, err := r.db.NamedExec(query, a)
	return err
}

func (r *Repository) GetAnnouncement(id string) (*Announcement, error) {
	var a Announcement
	query := `SELECT * FROM announcements WHERE id = $1`
	err := r.db.Get(&a, query, id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return &a, err
}

func (r *Repository) ListAnnouncements(publishedOnly bool) ([]*Announcement, error) {
	announcements := []*Announcement{}
	query := `SELECT * FROM announcements ORDER BY created_at DESC`
	if publishedOnly {
		query = `SELECT * FROM announcements WHERE published = true ORDER BY created_at DESC`
	}
	err := r.db.Select(&announcements, query)
	return announcements, err
}

func (r *Repository) UpdateAnnouncement(a *Announcement) error {
	query := `
		UPDATE announcements SET
			title = :title,
			body = :body,
			published = :published,
			updated_at = NOW()
		WHERE id = :id`

	_, err := r.db.NamedExec(query, a)
	return err
}

func (r *Repository) DeleteAnnouncement(id string) error {
	query := `DELETE FROM announcements WHERE id = $1`
	_, err := r.db.Exec(query, id)
	return err
}
