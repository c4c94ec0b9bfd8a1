package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/scheduling"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2026-03-02 is a Monday.
var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

type fixture struct {
	mgr      *Manager
	store    *storage.MemoryStore
	dir      *scheduling.StaticDirectory
	provider string
	patient  string
	location string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := scheduling.NewStaticDirectory()
	f := &fixture{
		store:    storage.NewMemoryStore(),
		dir:      dir,
		provider: dir.AddProvider(model.Provider{Name: "Dr. Rivera", WorkingHours: model.DefaultWorkingHours()}),
		patient:  dir.AddPatient(model.Patient{Name: "Ada"}),
		location: dir.AddLocation(model.Location{Name: "Main St"}),
	}
	f.mgr = NewManager(Deps{
		Store:     f.store,
		Providers: dir,
		Patients:  dir,
		Locations: dir,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return f
}

func (f *fixture) request(start, end string) CreateRequest {
	s, _ := model.ParseClock(start)
	e, _ := model.ParseClock(end)
	return CreateRequest{PatientID: f.patient, ProviderID: f.provider, Date: monday, Start: s, End: e}
}

func (f *fixture) create(t *testing.T, start, end string) model.Appointment {
	t.Helper()
	appt, err := f.mgr.Create(context.Background(), f.request(start, end))
	require.NoError(t, err)
	return appt
}

func assertKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, apperr.KindOf(err), "error: %v", err)
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	req := f.request("09:00", "09:30")
	req.LocationID = f.location
	req.Notes = "annual checkup"

	appt, err := f.mgr.Create(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, appt.ID)
	assert.Equal(t, model.StatusScheduled, appt.Status)
	assert.Equal(t, 30, appt.Duration())
	assert.Equal(t, f.location, appt.LocationID)

	stored, err := f.store.Get(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, "annual checkup", stored.Notes)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string]func(r *CreateRequest){
		"missing patient":  func(r *CreateRequest) { r.PatientID = " " },
		"missing provider": func(r *CreateRequest) { r.ProviderID = "" },
		"missing date":     func(r *CreateRequest) { r.Date = time.Time{} },
		"start after end":  func(r *CreateRequest) { r.Start, r.End = r.End, r.Start },
		"zero length":      func(r *CreateRequest) { r.End = r.Start },
		"past midnight":    func(r *CreateRequest) { r.End = model.MinutesPerDay + 30 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := f.request("09:00", "09:30")
			mutate(&req)
			_, err := f.mgr.Create(ctx, req)
			assertKind(t, err, apperr.KindValidation)
		})
	}
}

func TestCreateUnknownReferences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inactive := f.dir.AddProvider(model.Provider{Status: model.EntityInactive})

	req := f.request("09:00", "09:30")
	req.PatientID = "ghost"
	_, err := f.mgr.Create(ctx, req)
	assertKind(t, err, apperr.KindNotFound)

	req = f.request("09:00", "09:30")
	req.ProviderID = inactive
	_, err = f.mgr.Create(ctx, req)
	assertKind(t, err, apperr.KindNotFound)

	req = f.request("09:00", "09:30")
	req.LocationID = "nowhere"
	_, err = f.mgr.Create(ctx, req)
	assertKind(t, err, apperr.KindNotFound)
}

func TestCreateConflictOnlyWithActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	existing := f.create(t, "09:00", "10:00")

	_, err := f.mgr.Create(ctx, f.request("09:30", "09:45"))
	assertKind(t, err, apperr.KindConflict)

	_, err = f.mgr.UpdateStatus(ctx, existing.ID, model.StatusCancelled)
	require.NoError(t, err)

	_, err = f.mgr.Create(ctx, f.request("09:00", "10:00"))
	assert.NoError(t, err, "cancelled appointment must not block the same slot")
}

func TestCreateBackToBack(t *testing.T) {
	f := newFixture(t)
	f.create(t, "09:00", "09:30")
	f.create(t, "09:30", "10:00")
}

func TestConcurrentCreateSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const workers = 24
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.mgr.Create(ctx, f.request("11:00", "11:30"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		if err == nil {
			wins++
			continue
		}
		assertKind(t, err, apperr.KindConflict)
	}
	assert.Equal(t, 1, wins)

	active, err := f.store.FindActiveByProviderAndDate(ctx, f.provider, monday)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestReschedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.create(t, "09:00", "09:30")
	f.create(t, "10:00", "10:30")

	// shifting within its own slot does not conflict with itself
	moved, err := f.mgr.Reschedule(ctx, appt.ID, RescheduleRequest{Start: 545, End: 575})
	require.NoError(t, err)
	assert.Equal(t, model.Clock(545), moved.StartTime)

	_, err = f.mgr.Reschedule(ctx, appt.ID, RescheduleRequest{Start: 590, End: 620})
	assertKind(t, err, apperr.KindConflict)

	tuesday := monday.AddDate(0, 0, 1)
	moved, err = f.mgr.Reschedule(ctx, appt.ID, RescheduleRequest{Date: &tuesday, Start: 600, End: 630})
	require.NoError(t, err)
	assert.True(t, moved.Date.Equal(tuesday))

	_, err = f.mgr.Reschedule(ctx, appt.ID, RescheduleRequest{Start: 630, End: 600})
	assertKind(t, err, apperr.KindValidation)

	_, err = f.mgr.Reschedule(ctx, appt.ID, RescheduleRequest{ProviderID: "ghost", Start: 600, End: 630})
	assertKind(t, err, apperr.KindNotFound)

	_, err = f.mgr.Reschedule(ctx, "missing", RescheduleRequest{Start: 600, End: 630})
	assertKind(t, err, apperr.KindNotFound)
}

func TestRescheduleToAnotherProvider(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := f.dir.AddProvider(model.Provider{Name: "Dr. Ng", WorkingHours: model.DefaultWorkingHours()})
	appt := f.create(t, "09:00", "09:30")

	moved, err := f.mgr.Reschedule(ctx, appt.ID, RescheduleRequest{ProviderID: other, Start: 540, End: 570})
	require.NoError(t, err)
	assert.Equal(t, other, moved.ProviderID)

	// the original provider's slot is free again
	f.create(t, "09:00", "09:30")
}

func TestRescheduleCompletedIsInvalid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.create(t, "09:00", "09:30")
	_, err := f.mgr.UpdateStatus(ctx, appt.ID, model.StatusCompleted)
	require.NoError(t, err)

	_, err = f.mgr.Reschedule(ctx, appt.ID, RescheduleRequest{Start: 600, End: 630})
	assertKind(t, err, apperr.KindInvalidState)
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.create(t, "09:00", "09:30")

	for _, st := range []model.Status{model.StatusConfirmed, model.StatusInProgress, model.StatusCompleted} {
		got, err := f.mgr.UpdateStatus(ctx, appt.ID, st)
		require.NoError(t, err)
		assert.Equal(t, st, got.Status)
	}

	_, err := f.mgr.UpdateStatus(ctx, appt.ID, model.StatusCancelled)
	assertKind(t, err, apperr.KindInvalidState)

	_, err = f.mgr.UpdateStatus(ctx, appt.ID, model.Status("archived"))
	assertKind(t, err, apperr.KindValidation)

	// permissive graph: completed may still move to no_show
	_, err = f.mgr.UpdateStatus(ctx, appt.ID, model.StatusNoShow)
	assert.NoError(t, err)
}

func TestUpdateStatusReactivationChecksConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.create(t, "09:00", "09:30")
	_, err := f.mgr.UpdateStatus(ctx, first.ID, model.StatusNoShow)
	require.NoError(t, err)
	f.create(t, "09:15", "09:45")

	_, err = f.mgr.UpdateStatus(ctx, first.ID, model.StatusScheduled)
	assertKind(t, err, apperr.KindConflict)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scheduled := f.create(t, "09:00", "09:30")
	completed := f.create(t, "10:00", "10:30")
	_, err := f.mgr.UpdateStatus(ctx, completed.ID, model.StatusCompleted)
	require.NoError(t, err)

	assertKind(t, f.mgr.Delete(ctx, completed.ID), apperr.KindInvalidState)
	require.NoError(t, f.mgr.Delete(ctx, scheduled.ID))

	_, err = f.mgr.Get(ctx, scheduled.ID)
	assertKind(t, err, apperr.KindNotFound)
	assertKind(t, f.mgr.Delete(ctx, scheduled.ID), apperr.KindNotFound)
}

// staleStore reports every appointment as scheduled, as a read that raced a completion would.
type staleStore struct {
	*storage.MemoryStore
}

func (s staleStore) Get(ctx context.Context, id string) (model.Appointment, error) {
	appt, err := s.MemoryStore.Get(ctx, id)
	appt.Status = model.StatusScheduled
	return appt, err
}

func TestCompletedBetweenReadAndWrite(t *testing.T) {
	ctx := context.Background()
	dir := scheduling.NewStaticDirectory()
	provider := dir.AddProvider(model.Provider{WorkingHours: model.DefaultWorkingHours()})
	store := storage.NewMemoryStore()
	id, err := store.Insert(ctx, &model.Appointment{
		PatientID: "pt-1", ProviderID: provider, Date: monday, StartTime: 540, EndTime: 570, Status: model.StatusCompleted,
	})
	require.NoError(t, err)

	mgr := NewManager(Deps{
		Store:     staleStore{store},
		Providers: dir,
		Patients:  dir,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	assertKind(t, mgr.Delete(ctx, id), apperr.KindInvalidState)
	_, err = mgr.UpdateStatus(ctx, id, model.StatusCancelled)
	assertKind(t, err, apperr.KindInvalidState)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
}

func TestGetAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.dir.SetWorkingHours(ctx, f.provider, time.Monday, model.DayHours{Working: true, Open: 540, Close: 600}))

	slots, err := f.mgr.GetAvailability(ctx, f.provider, monday, 30)
	require.NoError(t, err)
	assert.Equal(t, []model.TimeSlot{{Start: 540, End: 570, Duration: 30}, {Start: 570, End: 600, Duration: 30}}, slots)

	f.create(t, "09:00", "09:30")
	slots, err = f.mgr.GetAvailability(ctx, f.provider, monday, 30)
	require.NoError(t, err)
	assert.Equal(t, []model.TimeSlot{{Start: 570, End: 600, Duration: 30}}, slots)

	sunday := monday.AddDate(0, 0, -1)
	slots, err = f.mgr.GetAvailability(ctx, f.provider, sunday, 30)
	require.NoError(t, err)
	assert.Empty(t, slots)

	_, err = f.mgr.GetAvailability(ctx, f.provider, monday, 0)
	assertKind(t, err, apperr.KindValidation)
	_, err = f.mgr.GetAvailability(ctx, "ghost", monday, 30)
	assertKind(t, err, apperr.KindNotFound)
}

func TestList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "09:00", "09:30")
	f.create(t, "09:30", "10:00")

	appts, total, err := f.mgr.List(ctx, model.ListFilter{ProviderID: f.provider, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, appts, 1)

	_, _, err = f.mgr.List(ctx, model.ListFilter{Status: "bogus"})
	assertKind(t, err, apperr.KindValidation)
	_, _, err = f.mgr.List(ctx, model.ListFilter{From: monday, To: monday.AddDate(0, 0, -1)})
	assertKind(t, err, apperr.KindValidation)
}

type failingStore struct {
	*storage.MemoryStore
}

func (failingStore) FindActiveByProviderAndDate(context.Context, string, time.Time) ([]model.Appointment, error) {
	return nil, errors.New("connection refused")
}

type recordingMetrics struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *recordingMetrics) ObserveOperation(op, outcome string, _ float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, op+":"+outcome)
}

func (r *recordingMetrics) ObserveSlots(int) {}

func TestStoreFailureIsStorageError(t *testing.T) {
	dir := scheduling.NewStaticDirectory()
	provider := dir.AddProvider(model.Provider{WorkingHours: model.DefaultWorkingHours()})
	patient := dir.AddPatient(model.Patient{})
	rec := &recordingMetrics{}
	mgr := NewManager(Deps{
		Store:     failingStore{storage.NewMemoryStore()},
		Providers: dir,
		Patients:  dir,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:   rec,
	})

	_, err := mgr.Create(context.Background(), CreateRequest{PatientID: patient, ProviderID: provider, Date: monday, Start: 540, End: 570})
	assertKind(t, err, apperr.KindStorage)
	assert.Equal(t, []string{"create:StorageError"}, rec.outcomes)
}
