package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/expatline/lifecycle-engine/internal/domain"
)

func TestClaimChangeEvents(t *testing.T) {
	st, mock := newMockStore(t)
	created := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "entity_type", "entity_id", "before", "after", "created_at"}).
		AddRow(int64(41), string(domain.EntityUser), "u-1", nil, `{"id":"u-1"}`, created).
		AddRow(int64(42), string(domain.EntityCall), "c-1", `{"status":"in_progress"}`, `{"status":"completed"}`, created)
	mock.ExpectQuery("UPDATE change_events").
		WithArgs(50).
		WillReturnRows(rows)

	events, err := st.ClaimChangeEvents(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, int64(41), events[0].ID)
	assert.Equal(t, domain.EntityUser, events[0].EntityType)
	assert.Nil(t, events[0].Before, "creation events carry no before snapshot")
	assert.JSONEq(t, `{"id":"u-1"}`, string(events[0].After))

	assert.Equal(t, "c-1", events[1].EntityID)
	assert.JSONEq(t, `{"status":"in_progress"}`, string(events[1].Before))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimChangeEventsEmptyBacklog(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery("UPDATE change_events").
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "entity_type", "entity_id", "before", "after", "created_at"}))

	events, err := st.ClaimChangeEvents(context.Background(), 50)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestAppendChangeEvent(t *testing.T) {
	st, mock := newMockStore(t)

	// A nil RawMessage reaches the driver as a nil byte slice, not as a bare
	// nil argument.
	mock.ExpectExec("INSERT INTO change_events").
		WithArgs(string(domain.EntityPayment), "pay-1", []byte(nil), []byte(`{"status":"succeeded"}`)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := st.AppendChangeEvent(context.Background(), domain.EntityPayment, "pay-1",
		nil, json.RawMessage(`{"status":"succeeded"}`))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertEmailEventGeneratesID(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO email_events").
		WillReturnResult(sqlmock.NewResult(1, 1))

	ev := &domain.EmailEvent{
		Type:       domain.EmailOpened,
		Email:      "jean@example.com",
		ReceivedAt: time.Now(),
	}
	require.NoError(t, st.InsertEmailEvent(context.Background(), ev))
	assert.NotEmpty(t, ev.ID, "missing id is filled in before insert")
}

func TestLatestCompletedCallClientSkipsNonCompleted(t *testing.T) {
	st, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"status", "client_id", "client_first_name"}).
		AddRow("no_answer", "cli-9", "Paul").
		AddRow("completed", "cli-2", "Aicha")
	mock.ExpectQuery("FROM calls").
		WithArgs("p-1").
		WillReturnRows(rows)

	name, err := st.LatestCompletedCallClient(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, "Aicha", name)
}

func TestLatestCompletedCallClientFallsBackToProfile(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery("FROM calls").
		WithArgs("p-1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "client_id", "client_first_name"}).
			AddRow("completed", "cli-2", ""))
	mock.ExpectQuery("FROM users WHERE id =").
		WithArgs("cli-2").
		WillReturnRows(addUser(sqlmock.NewRows(userCols), "cli-2", "aicha@example.com"))

	name, err := st.LatestCompletedCallClient(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, "Jean", name)
}

func TestLatestCompletedCallClientNoCalls(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery("FROM calls").
		WithArgs("p-1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "client_id", "client_first_name"}))

	_, err := st.LatestCompletedCallClient(context.Background(), "p-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPurgeExpiredRejectsUnknownTable(t *testing.T) {
	st, _ := newMockStore(t)

	_, err := st.PurgeExpired(context.Background(), "users", 100)
	assert.Error(t, err)
}

func TestPurgeExpiredLoopsUntilDrained(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM negative_reviews").
		WithArgs(500).
		WillReturnResult(sqlmock.NewResult(0, 500))
	mock.ExpectExec("DELETE FROM negative_reviews").
		WithArgs(500).
		WillReturnResult(sqlmock.NewResult(0, 120))
	mock.ExpectExec("DELETE FROM negative_reviews").
		WithArgs(500).
		WillReturnResult(sqlmock.NewResult(0, 0))

	n, err := st.PurgeExpired(context.Background(), "negative_reviews", 500)
	require.NoError(t, err)
	assert.Equal(t, int64(620), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
