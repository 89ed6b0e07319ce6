package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/expatline/lifecycle-engine/internal/domain"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

var userCols = []string{
	"id", "email", "email_status", "first_name", "last_name", "role", "language",
	"profile_completed", "kyc_status", "is_active", "is_online", "paypal_email", "payout_threshold",
	"total_calls", "total_earnings", "consecutive_missed_calls", "has_submitted_review",
	"unsubscribed", "complained", "autoresponders_stopped", "autoresponders_stopped_reasons",
	"last_login_at", "last_activity_at", "last_review_at", "last_reengagement_sent_at",
	"created_at", "updated_at",
}

func addUser(rows *sqlmock.Rows, id, email string) *sqlmock.Rows {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return rows.AddRow(
		id, email, "valid", "Jean", "Martin", string(domain.RoleProviderExpat), "fr",
		true, "verified", true, false, "jean@paypal.example", 50.0,
		12, 340.5, 0, false,
		false, false, false, "{hard_bounce}",
		now, now, nil, nil,
		now, now,
	)
}

func TestGetUser(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery("FROM users WHERE id =").
		WithArgs("u-1").
		WillReturnRows(addUser(sqlmock.NewRows(userCols), "u-1", "jean@example.com"))

	u, err := st.GetUser(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, "u-1", u.ID)
	assert.Equal(t, domain.RoleProviderExpat, u.Role)
	assert.Equal(t, 340.5, u.TotalEarnings)
	assert.Equal(t, []string{"hard_bounce"}, u.AutorespondersStoppedReasons)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserNotFound(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery("FROM users WHERE id =").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(userCols))

	_, err := st.GetUser(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindUserByEmailNormalizes(t *testing.T) {
	st, mock := newMockStore(t)

	// Input is trimmed and lowercased before it reaches the query.
	mock.ExpectQuery("FROM users WHERE LOWER").
		WithArgs("jean@example.com").
		WillReturnRows(addUser(sqlmock.NewRows(userCols), "u-1", "Jean@Example.com"))

	u, err := st.FindUserByEmail(context.Background(), "  Jean@Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, "u-1", u.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkAutorespondersStoppedUnionsReasons(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec("SET autoresponders_stopped = TRUE").
		WithArgs("u-1", pq.Array([]string{"kyc_verified", "first_call"})).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := st.MarkAutorespondersStopped(context.Background(), "u-1", []string{"kyc_verified", "first_call"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementProviderStatsReturnsTotal(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery("UPDATE users SET total_calls = total_calls").
		WithArgs("p-1").
		WillReturnRows(sqlmock.NewRows([]string{"total_calls"}).AddRow(13))

	total, err := st.IncrementProviderStats(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, 13, total)
}

func TestIncrementProviderStatsMissingProvider(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery("UPDATE users SET total_calls").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"total_calls"}))

	_, err := st.IncrementProviderStats(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListUsersCreatedSinceKeyset(t *testing.T) {
	st, mock := newMockStore(t)
	cutoff := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(userCols)
	addUser(rows, "u-10", "a@example.com")
	addUser(rows, "u-11", "b@example.com")
	mock.ExpectQuery("WHERE created_at >= (.+) AND id >").
		WithArgs(cutoff, "u-09", 2).
		WillReturnRows(rows)

	page, err := st.ListUsersCreatedSince(context.Background(), cutoff, "u-09", 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "u-10", page[0].ID)
	assert.Equal(t, "u-11", page[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListActiveUsersEmptyPageEndsScan(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery("WHERE is_active = TRUE AND id >").
		WithArgs("u-99", 100).
		WillReturnRows(sqlmock.NewRows(userCols))

	page, err := st.ListActiveUsers(context.Background(), "u-99", 100)
	require.NoError(t, err)
	assert.Empty(t, page)
}
