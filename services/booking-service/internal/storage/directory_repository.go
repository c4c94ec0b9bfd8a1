package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/policy"
)

// DirectoryRepository owns providers, their working hours, patients and locations. Deletes follow
// policy.DeletePolicyFor.
type DirectoryRepository struct {
	db dbtx
}

func NewDirectoryRepository(pool *db.Pool) *DirectoryRepository {
	if pool == nil {
		panic("storage: db pool required")
	}
	return newDirectoryRepositoryWith(pool)
}

func newDirectoryRepositoryWith(conn dbtx) *DirectoryRepository {
	return &DirectoryRepository{db: conn}
}

type directoryStatements struct {
	exists     string
	insert     string
	softDelete string
	hardDelete string
}

var directoryTables = map[policy.Entity]directoryStatements{
	policy.EntityProvider: {
		exists:     `SELECT EXISTS (SELECT 1 FROM providers WHERE id = $1 AND status = 'active')`,
		insert:     `INSERT INTO providers (name) VALUES ($1) RETURNING id`,
		softDelete: `UPDATE providers SET status = 'deleted', updated_at = now() WHERE id = $1 AND status <> 'deleted'`,
		hardDelete: `DELETE FROM providers WHERE id = $1`,
	},
	policy.EntityPatient: {
		exists:     `SELECT EXISTS (SELECT 1 FROM patients WHERE id = $1 AND status = 'active')`,
		insert:     `INSERT INTO patients (name) VALUES ($1) RETURNING id`,
		softDelete: `UPDATE patients SET status = 'deleted', updated_at = now() WHERE id = $1 AND status <> 'deleted'`,
		hardDelete: `DELETE FROM patients WHERE id = $1`,
	},
	policy.EntityLocation: {
		exists:     `SELECT EXISTS (SELECT 1 FROM locations WHERE id = $1 AND status = 'active')`,
		insert:     `INSERT INTO locations (name) VALUES ($1) RETURNING id`,
		softDelete: `UPDATE locations SET status = 'deleted', updated_at = now() WHERE id = $1 AND status <> 'deleted'`,
		hardDelete: `DELETE FROM locations WHERE id = $1`,
	},
}

func (r *DirectoryRepository) ProviderExists(ctx context.Context, id string) (bool, error) {
	return r.exists(ctx, policy.EntityProvider, id)
}

func (r *DirectoryRepository) PatientExists(ctx context.Context, id string) (bool, error) {
	return r.exists(ctx, policy.EntityPatient, id)
}

func (r *DirectoryRepository) LocationExists(ctx context.Context, id string) (bool, error) {
	return r.exists(ctx, policy.EntityLocation, id)
}

// WorkingHours returns the provider's weekly hours. Weekdays without a row are closed.
func (r *DirectoryRepository) WorkingHours(ctx context.Context, providerID string) (model.WorkingHours, error) {
	var hours model.WorkingHours
	rows, err := r.db.Query(ctx, `
		SELECT weekday, is_working, open_minute, close_minute
		FROM provider_working_hours
		WHERE provider_id = $1
	`, providerID)
	if err != nil {
		return hours, fmt.Errorf("storage: working hours for %s: %w", providerID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var weekday, open, closing int
		var working bool
		if err := rows.Scan(&weekday, &working, &open, &closing); err != nil {
			return hours, fmt.Errorf("storage: scan working hours: %w", err)
		}
		if weekday < 0 || weekday > 6 {
			continue
		}
		hours[weekday] = model.DayHours{Working: working, Open: model.Clock(open), Close: model.Clock(closing)}
	}
	if err := rows.Err(); err != nil {
		return hours, fmt.Errorf("storage: iterate working hours: %w", err)
	}
	return hours, nil
}

// CreateProvider inserts an active provider with the default Monday to Friday 09:00-17:00 hours.
func (r *DirectoryRepository) CreateProvider(ctx context.Context, name string) (string, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("storage: begin create provider: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id string
	if err := tx.QueryRow(ctx, directoryTables[policy.EntityProvider].insert, name).Scan(&id); err != nil {
		return "", fmt.Errorf("storage: insert provider: %w", err)
	}
	defaults := model.DefaultWorkingHours()
	for day := time.Sunday; day <= time.Saturday; day++ {
		h := defaults.For(day)
		if _, err := tx.Exec(ctx, upsertWorkingHoursSQL, id, int(day), h.Working, int(h.Open), int(h.Close)); err != nil {
			return "", fmt.Errorf("storage: seed working hours: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("storage: commit create provider: %w", err)
	}
	return id, nil
}

// upsertWorkingHoursSQL writes nothing for unknown or deleted providers.
const upsertWorkingHoursSQL = `
	INSERT INTO provider_working_hours (provider_id, weekday, is_working, open_minute, close_minute)
	SELECT $1, $2::smallint, $3::boolean, $4::integer, $5::integer
	WHERE EXISTS (SELECT 1 FROM providers WHERE id = $1 AND status <> 'deleted')
	ON CONFLICT (provider_id, weekday) DO UPDATE
	SET is_working = EXCLUDED.is_working,
		open_minute = EXCLUDED.open_minute,
		close_minute = EXCLUDED.close_minute`

// SetWorkingHours replaces one weekday of a provider's hours. An unknown or deleted provider is
// ErrNotFound.
func (r *DirectoryRepository) SetWorkingHours(ctx context.Context, providerID string, day time.Weekday, hours model.DayHours) error {
	tag, err := r.db.Exec(ctx, upsertWorkingHoursSQL, providerID, int(day), hours.Working, int(hours.Open), int(hours.Close))
	if err != nil {
		if IsMissingReference(err) {
			return ErrNotFound
		}
		return fmt.Errorf("storage: set working hours: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *DirectoryRepository) CreatePatient(ctx context.Context, name string) (string, error) {
	return r.insert(ctx, policy.EntityPatient, name)
}

func (r *DirectoryRepository) CreateLocation(ctx context.Context, name string) (string, error) {
	return r.insert(ctx, policy.EntityLocation, name)
}

func (r *DirectoryRepository) DeleteProvider(ctx context.Context, id string) error {
	return r.delete(ctx, policy.EntityProvider, id)
}

func (r *DirectoryRepository) DeletePatient(ctx context.Context, id string) error {
	return r.delete(ctx, policy.EntityPatient, id)
}

func (r *DirectoryRepository) DeleteLocation(ctx context.Context, id string) error {
	return r.delete(ctx, policy.EntityLocation, id)
}

func (r *DirectoryRepository) exists(ctx context.Context, entity policy.Entity, id string) (bool, error) {
	var ok bool
	if err := r.db.QueryRow(ctx, directoryTables[entity].exists, id).Scan(&ok); err != nil {
		return false, fmt.Errorf("storage: %s exists: %w", entity, err)
	}
	return ok, nil
}

func (r *DirectoryRepository) insert(ctx context.Context, entity policy.Entity, name string) (string, error) {
	var id string
	if err := r.db.QueryRow(ctx, directoryTables[entity].insert, name).Scan(&id); err != nil {
		return "", fmt.Errorf("storage: insert %s: %w", entity, err)
	}
	return id, nil
}

func (r *DirectoryRepository) delete(ctx context.Context, entity policy.Entity, id string) error {
	stmts := directoryTables[entity]
	sql := stmts.hardDelete
	if policy.DeletePolicyFor(entity) == policy.SoftDelete {
		sql = stmts.softDelete
	}
	tag, err := r.db.Exec(ctx, sql, id)
	if err != nil {
		return fmt.Errorf("storage: delete %s %s: %w", entity, id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
