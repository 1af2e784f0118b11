package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldvine/fieldvine/pkg/jobs"
	"github.com/fieldvine/fieldvine/pkg/schedule"
)

type unusedJobStore struct{}

func (unusedJobStore) Create(context.Context, *sql.Tx, *jobs.Job) error {
	return fmt.Errorf("unexpected Create call")
}

func (unusedJobStore) Get(context.Context, int64) (*jobs.Job, error) {
	return nil, fmt.Errorf("unexpected Get call")
}

func (unusedJobStore) NextNumber(context.Context, *sql.Tx, int64) (string, error) {
	return "", fmt.Errorf("unexpected NextNumber call")
}

func newScheduleRouter(t *testing.T) (*mux.Router, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	executor := schedule.NewExecutor(db, unusedJobStore{}, nil, nil, nil)
	router := mux.NewRouter()
	NewScheduleHandlers(executor).RegisterRoutes(router)
	return router, mock
}

func TestScheduleHandlers_Get(t *testing.T) {
	router, mock := newScheduleRouter(t)

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT id, subscription_id, business_id, scheduled_date`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "subscription_id", "business_id", "scheduled_date", "window_start", "window_end",
			"status", "version", "job_id", "skip_reason", "skipped_at", "created_at", "updated_at",
		}).AddRow(7, 1, 10, now.AddDate(0, 0, 3), nil, nil, "pending", 1, nil, nil, nil, now, now))

	req := httptest.NewRequest("GET", "/schedule-entries/7", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var got schedule.Entry
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, int64(7), got.ID)
	assert.Equal(t, schedule.EntryPending, got.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleHandlers_Get_NotFound(t *testing.T) {
	router, mock := newScheduleRouter(t)

	mock.ExpectQuery(`SELECT id, subscription_id, business_id, scheduled_date`).
		WithArgs(int64(999)).
		WillReturnError(sql.ErrNoRows)

	req := httptest.NewRequest("GET", "/schedule-entries/999", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleHandlers_Skip_VersionConflict(t *testing.T) {
	router, mock := newScheduleRouter(t)

	scheduled := time.Now().UTC().AddDate(0, 0, 7)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT e.subscription_id, e.business_id, s.customer_id`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{
			"subscription_id", "business_id", "customer_id", "scheduled_date", "status", "version",
		}).AddRow(1, 10, 20, scheduled, "pending", 4))
	mock.ExpectRollback()

	body := []byte(`{"reason": "rain", "version": 2}`)
	req := httptest.NewRequest("POST", "/schedule-entries/7/skip", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleHandlers_Skip_RequiresReason(t *testing.T) {
	router, mock := newScheduleRouter(t)

	req := httptest.NewRequest("POST", "/schedule-entries/7/skip", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet(), "the handler must reject before touching the database")
}

func TestScheduleHandlers_Materialize_ClaimLost(t *testing.T) {
	router, mock := newScheduleRouter(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT subscription_id, business_id, scheduled_date`).
		WithArgs(int64(7)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	req := httptest.NewRequest("POST", "/schedule-entries/7/materialize", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "claimed", body["status"])
	assert.NoError(t, mock.ExpectationsWereMet())
}
