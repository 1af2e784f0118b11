package schedule

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldvine/fieldvine/pkg/audit"
	"github.com/fieldvine/fieldvine/pkg/jobs"
	"github.com/fieldvine/fieldvine/pkg/subscriptions"
)

// stubJobStore records created jobs without touching a database
type stubJobStore struct {
	created    []*jobs.Job
	number     string
	numbers    []string // consumed in order when set, ahead of number
	createErrs []error  // consumed in order; nil entries mean success
}

func (s *stubJobStore) Create(ctx context.Context, tx *sql.Tx, job *jobs.Job) error {
	if len(s.createErrs) > 0 {
		err := s.createErrs[0]
		s.createErrs = s.createErrs[1:]
		if err != nil {
			return err
		}
	}
	job.ID = int64(len(s.created) + 1)
	s.created = append(s.created, job)
	return nil
}

func (s *stubJobStore) Get(ctx context.Context, id int64) (*jobs.Job, error) {
	return nil, fmt.Errorf("job not found")
}

func (s *stubJobStore) NextNumber(ctx context.Context, tx *sql.Tx, businessID int64) (string, error) {
	if len(s.numbers) > 0 {
		n := s.numbers[0]
		s.numbers = s.numbers[1:]
		return n, nil
	}
	if s.number == "" {
		return "JOB-00001", nil
	}
	return s.number, nil
}

func newTestExecutor(t *testing.T) (*Executor, *stubJobStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := &stubJobStore{}
	return NewExecutor(db, store, nil, nil, nil), store, mock
}

func staffActor() audit.Actor {
	id := int64(7)
	return audit.Actor{Type: audit.ActorStaff, ID: &id}
}

func customerActor() audit.Actor {
	id := int64(20)
	return audit.Actor{Type: audit.ActorCustomer, ID: &id}
}

func skipLockRow(date time.Time, status EntryStatus, version int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"subscription_id", "business_id", "customer_id", "scheduled_date", "status", "version",
	}).AddRow(1, 10, 20, date, string(status), version)
}

func TestSkip_Success(t *testing.T) {
	exec, _, mock := newTestExecutor(t)

	future := time.Now().UTC().AddDate(0, 0, 10)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT e.subscription_id, e.business_id, s.customer_id").
		WithArgs(int64(5)).
		WillReturnRows(skipLockRow(future, EntryPending, 1))
	mock.ExpectExec("UPDATE schedule_entries").
		WithArgs(int64(5), "customer request").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE subscriptions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := exec.Skip(context.Background(), 5, "customer request", staffActor(), nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSkip_VersionConflictCheckedFirst(t *testing.T) {
	exec, _, mock := newTestExecutor(t)

	// Entry already materialized AND the caller's version is stale: the
	// version conflict wins so the client refetches before acting.
	scheduled := time.Now().UTC().AddDate(0, 0, 3)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT e.subscription_id, e.business_id, s.customer_id").
		WithArgs(int64(5)).
		WillReturnRows(skipLockRow(scheduled, EntryJobCreated, 4))
	mock.ExpectRollback()

	stale := int64(2)
	err := exec.Skip(context.Background(), 5, "never mind", staffActor(), &stale)
	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSkip_MatchingVersionProceedsToStatusCheck(t *testing.T) {
	exec, _, mock := newTestExecutor(t)

	future := time.Now().UTC().AddDate(0, 0, 10)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT e.subscription_id, e.business_id, s.customer_id").
		WithArgs(int64(5)).
		WillReturnRows(skipLockRow(future, EntryJobCreated, 4))
	mock.ExpectRollback()

	current := int64(4)
	err := exec.Skip(context.Background(), 5, "never mind", staffActor(), &current)
	assert.ErrorIs(t, err, ErrNotPending)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSkip_RejectsPastDates(t *testing.T) {
	exec, _, mock := newTestExecutor(t)

	past := time.Now().UTC().AddDate(0, 0, -1)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT e.subscription_id, e.business_id, s.customer_id").
		WithArgs(int64(5)).
		WillReturnRows(skipLockRow(past, EntryPending, 1))
	mock.ExpectRollback()

	err := exec.Skip(context.Background(), 5, "too late", staffActor(), nil)
	assert.ErrorIs(t, err, ErrPastDate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSkip_CustomerLeadTime(t *testing.T) {
	t.Run("inside the lead window", func(t *testing.T) {
		exec, _, mock := newTestExecutor(t)

		soon := time.Now().UTC().Add(12 * time.Hour)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT e.subscription_id, e.business_id, s.customer_id").
			WithArgs(int64(5)).
			WillReturnRows(skipLockRow(soon, EntryPending, 1))
		mock.ExpectRollback()

		err := exec.Skip(context.Background(), 5, "away", customerActor(), nil)
		assert.ErrorIs(t, err, ErrTooLate)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("staff may skip inside the lead window", func(t *testing.T) {
		exec, _, mock := newTestExecutor(t)

		soon := time.Now().UTC().Add(12 * time.Hour)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT e.subscription_id, e.business_id, s.customer_id").
			WithArgs(int64(5)).
			WillReturnRows(skipLockRow(soon, EntryPending, 1))
		mock.ExpectExec("UPDATE schedule_entries").
			WithArgs(int64(5), "rained out").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE subscriptions").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := exec.Skip(context.Background(), 5, "rained out", staffActor(), nil)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("customer with enough notice", func(t *testing.T) {
		exec, _, mock := newTestExecutor(t)

		farEnough := time.Now().UTC().Add(72 * time.Hour)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT e.subscription_id, e.business_id, s.customer_id").
			WithArgs(int64(5)).
			WillReturnRows(skipLockRow(farEnough, EntryPending, 1))
		mock.ExpectExec("UPDATE schedule_entries").
			WithArgs(int64(5), "on vacation").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE subscriptions").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := exec.Skip(context.Background(), 5, "on vacation", customerActor(), nil)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSkip_NotFound(t *testing.T) {
	exec, _, mock := newTestExecutor(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT e.subscription_id, e.business_id, s.customer_id").
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{
			"subscription_id", "business_id", "customer_id", "scheduled_date", "status", "version",
		}))
	mock.ExpectRollback()

	err := exec.Skip(context.Background(), 99, "gone", staffActor(), nil)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMaterializeJob_ClaimLostIsNotAnError(t *testing.T) {
	exec, store, mock := newTestExecutor(t)

	// FOR UPDATE SKIP LOCKED returns no row when another worker holds the
	// claim or the entry left pending.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT subscription_id, business_id, scheduled_date").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{
			"subscription_id", "business_id", "scheduled_date", "window_start", "window_end",
		}))
	mock.ExpectRollback()

	job, err := exec.MaterializeJob(context.Background(), 5)
	require.NoError(t, err)
	assert.Nil(t, job)
	assert.Empty(t, store.created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMaterializeJob_CreatesJobAndMarksEntry(t *testing.T) {
	exec, store, mock := newTestExecutor(t)
	store.number = "JOB-00042"

	scheduled := time.Date(2024, time.June, 10, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT subscription_id, business_id, scheduled_date").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{
			"subscription_id", "business_id", "scheduled_date", "window_start", "window_end",
		}).AddRow(1, 10, scheduled, "09:00", "12:00"))
	mock.ExpectQuery("SELECT customer_id, status, timezone").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{
			"customer_id", "status", "timezone", "preferred_start", "preferred_end",
		}).AddRow(20, "active", "UTC", nil, nil))
	mock.ExpectQuery("SELECT COALESCE").
		WithArgs(int64(20)).
		WillReturnRows(sqlmock.NewRows([]string{
			"address_line1", "address_line2", "city", "region", "postal_code",
		}).AddRow("12 Elm St", "", "Springfield", "OR", "97477"))
	mock.ExpectExec("UPDATE schedule_entries").
		WithArgs(int64(5), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE subscriptions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	job, err := exec.MaterializeJob(context.Background(), 5)
	require.NoError(t, err)
	require.NotNil(t, job)

	assert.Equal(t, "JOB-00042", job.JobNumber)
	assert.Equal(t, int64(5), job.ScheduleEntryID)
	assert.Equal(t, "12 Elm St", job.AddressLine1)
	assert.Equal(t, time.Date(2024, time.June, 10, 9, 0, 0, 0, time.UTC), job.ScheduledStart)
	assert.Equal(t, time.Date(2024, time.June, 10, 12, 0, 0, 0, time.UTC), job.ScheduledEnd)
	require.Len(t, store.created, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMaterializeJob_RetriesLostNumberRace(t *testing.T) {
	exec, store, mock := newTestExecutor(t)

	// Two materializations for a business with no jobs yet both derive
	// JOB-00001; the loser's insert trips the (business_id, job_number)
	// constraint and must retry with a fresh number read.
	store.numbers = []string{"JOB-00001", "JOB-00002"}
	store.createErrs = []error{&pq.Error{
		Code:       "23505",
		Constraint: "jobs_business_id_job_number_key",
	}}

	scheduled := time.Date(2024, time.June, 10, 0, 0, 0, 0, time.UTC)
	claimRow := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{
			"subscription_id", "business_id", "scheduled_date", "window_start", "window_end",
		}).AddRow(1, 10, scheduled, nil, nil)
	}
	subRow := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{
			"customer_id", "status", "timezone", "preferred_start", "preferred_end",
		}).AddRow(20, "active", "UTC", nil, nil)
	}
	addressRow := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{
			"address_line1", "address_line2", "city", "region", "postal_code",
		}).AddRow("12 Elm St", "", "Springfield", "OR", "97477")
	}

	// First attempt rolls back on the number conflict.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT subscription_id, business_id, scheduled_date").
		WithArgs(int64(5)).WillReturnRows(claimRow())
	mock.ExpectQuery("SELECT customer_id, status, timezone").
		WithArgs(int64(1)).WillReturnRows(subRow())
	mock.ExpectQuery("SELECT COALESCE").
		WithArgs(int64(20)).WillReturnRows(addressRow())
	mock.ExpectRollback()

	// Second attempt sees the committed competitor and takes the next number.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT subscription_id, business_id, scheduled_date").
		WithArgs(int64(5)).WillReturnRows(claimRow())
	mock.ExpectQuery("SELECT customer_id, status, timezone").
		WithArgs(int64(1)).WillReturnRows(subRow())
	mock.ExpectQuery("SELECT COALESCE").
		WithArgs(int64(20)).WillReturnRows(addressRow())
	mock.ExpectExec("UPDATE schedule_entries").
		WithArgs(int64(5), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE subscriptions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	job, err := exec.MaterializeJob(context.Background(), 5)
	require.NoError(t, err)
	require.NotNil(t, job)

	assert.Equal(t, "JOB-00002", job.JobNumber)
	require.Len(t, store.created, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMaterializeJob_NonConflictCreateErrorDoesNotRetry(t *testing.T) {
	exec, store, mock := newTestExecutor(t)
	store.createErrs = []error{fmt.Errorf("connection reset")}

	scheduled := time.Date(2024, time.June, 10, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT subscription_id, business_id, scheduled_date").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{
			"subscription_id", "business_id", "scheduled_date", "window_start", "window_end",
		}).AddRow(1, 10, scheduled, nil, nil))
	mock.ExpectQuery("SELECT customer_id, status, timezone").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{
			"customer_id", "status", "timezone", "preferred_start", "preferred_end",
		}).AddRow(20, "active", "UTC", nil, nil))
	mock.ExpectQuery("SELECT COALESCE").
		WithArgs(int64(20)).
		WillReturnRows(sqlmock.NewRows([]string{
			"address_line1", "address_line2", "city", "region", "postal_code",
		}).AddRow("12 Elm St", "", "Springfield", "OR", "97477"))
	mock.ExpectRollback()

	_, err := exec.MaterializeJob(context.Background(), 5)
	require.Error(t, err)
	assert.Empty(t, store.created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMaterializeJob_InactiveSubscription(t *testing.T) {
	exec, store, mock := newTestExecutor(t)

	scheduled := time.Now().UTC().AddDate(0, 0, 2)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT subscription_id, business_id, scheduled_date").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{
			"subscription_id", "business_id", "scheduled_date", "window_start", "window_end",
		}).AddRow(1, 10, scheduled, nil, nil))
	mock.ExpectQuery("SELECT customer_id, status, timezone").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{
			"customer_id", "status", "timezone", "preferred_start", "preferred_end",
		}).AddRow(20, "paused", "UTC", nil, nil))
	mock.ExpectRollback()

	_, err := exec.MaterializeJob(context.Background(), 5)
	assert.ErrorIs(t, err, subscriptions.ErrNotActive)
	assert.Empty(t, store.created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDueEntries(t *testing.T) {
	exec, _, mock := newTestExecutor(t)

	mock.ExpectQuery("SELECT e.id").
		WithArgs(3, int64(0), 100).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11).AddRow(12).AddRow(13))

	ids, err := exec.DueEntries(context.Background(), 0, 3, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{11, 12, 13}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}
