package storage

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDirectory(t *testing.T) (*DirectoryRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	t.Cleanup(mock.Close)
	return newDirectoryRepositoryWith(mock), mock
}

func TestDirectoryExists(t *testing.T) {
	repo, mock := newMockDirectory(t)
	ctx := context.Background()

	mock.ExpectQuery("FROM providers").WithArgs("prov-1").WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("FROM patients").WithArgs("pt-x").WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("FROM locations").WithArgs("loc-1").WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.ProviderExists(ctx, "prov-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.PatientExists(ctx, "pt-x")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.LocationExists(ctx, "loc-1")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDirectoryWorkingHours(t *testing.T) {
	repo, mock := newMockDirectory(t)

	mock.ExpectQuery("FROM provider_working_hours").WithArgs("prov-1").WillReturnRows(
		pgxmock.NewRows([]string{"weekday", "is_working", "open_minute", "close_minute"}).
			AddRow(1, true, 540, 1020).
			AddRow(6, false, 0, 0))

	hours, err := repo.WorkingHours(context.Background(), "prov-1")
	require.NoError(t, err)
	assert.Equal(t, model.DayHours{Working: true, Open: 540, Close: 1020}, hours.For(time.Monday))
	assert.False(t, hours.For(time.Tuesday).Working)
	assert.False(t, hours.For(time.Saturday).Working)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDirectoryCreateProviderSeedsDefaultHours(t *testing.T) {
	repo, mock := newMockDirectory(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO providers").WithArgs("Dr. Rivera").WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("prov-1"))
	defaults := model.DefaultWorkingHours()
	for day := time.Sunday; day <= time.Saturday; day++ {
		h := defaults.For(day)
		mock.ExpectExec("INSERT INTO provider_working_hours").
			WithArgs("prov-1", int(day), h.Working, int(h.Open), int(h.Close)).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectCommit()

	id, err := repo.CreateProvider(context.Background(), "Dr. Rivera")
	require.NoError(t, err)
	assert.Equal(t, "prov-1", id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDirectorySetWorkingHours(t *testing.T) {
	repo, mock := newMockDirectory(t)

	mock.ExpectExec("INSERT INTO provider_working_hours").
		WithArgs("prov-1", 6, true, 600, 840).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.SetWorkingHours(context.Background(), "prov-1", time.Saturday, model.DayHours{Working: true, Open: 600, Close: 840})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDirectorySetWorkingHoursUnknownProvider(t *testing.T) {
	repo, mock := newMockDirectory(t)

	mock.ExpectExec("INSERT INTO provider_working_hours").
		WithArgs("missing", 1, false, 0, 0).
		WillReturnError(&pgconn.PgError{Code: "23503"})

	err := repo.SetWorkingHours(context.Background(), "missing", time.Monday, model.DayHours{})
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDirectorySetWorkingHoursDeletedProvider(t *testing.T) {
	repo, mock := newMockDirectory(t)

	mock.ExpectExec(`WHERE EXISTS \(SELECT 1 FROM providers WHERE id = \$1 AND status <> 'deleted'\)`).
		WithArgs("prov-gone", 2, true, 540, 600).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	err := repo.SetWorkingHours(context.Background(), "prov-gone", time.Tuesday, model.DayHours{Working: true, Open: 540, Close: 600})
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDirectoryDeleteIsSoft(t *testing.T) {
	repo, mock := newMockDirectory(t)
	ctx := context.Background()

	mock.ExpectExec("UPDATE providers SET status").WithArgs("prov-1").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE patients SET status").WithArgs("pt-1").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE locations SET status").WithArgs("loc-9").WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, repo.DeleteProvider(ctx, "prov-1"))
	require.NoError(t, repo.DeletePatient(ctx, "pt-1"))
	assert.ErrorIs(t, repo.DeleteLocation(ctx, "loc-9"), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDirectoryCreatePatientAndLocation(t *testing.T) {
	repo, mock := newMockDirectory(t)
	ctx := context.Background()

	mock.ExpectQuery("INSERT INTO patients").WithArgs("Ada").WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("pt-1"))
	mock.ExpectQuery("INSERT INTO locations").WithArgs("Main St").WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("loc-1"))

	id, err := repo.CreatePatient(ctx, "Ada")
	require.NoError(t, err)
	assert.Equal(t, "pt-1", id)

	id, err = repo.CreateLocation(ctx, "Main St")
	require.NoError(t, err)
	assert.Equal(t, "loc-1", id)
	require.NoError(t, mock.ExpectationsWereMet())
}
