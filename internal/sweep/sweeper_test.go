package sweep

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/expatline/lifecycle-engine/internal/config"
	"github.com/expatline/lifecycle-engine/internal/domain"
	"github.com/expatline/lifecycle-engine/internal/mailwizz"
	"github.com/expatline/lifecycle-engine/internal/store"
	"github.com/expatline/lifecycle-engine/internal/stoprules"
)

type upsertCall struct {
	fields map[string]string
}

type sendCall struct {
	to     string
	key    string
	fields map[string]string
}

type fakeMailer struct {
	mu      sync.Mutex
	upserts []upsertCall
	sends   []sendCall
}

func (f *fakeMailer) UpsertSubscriber(_ context.Context, fields map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, upsertCall{fields: fields})
	return "sub-1", nil
}

func (f *fakeMailer) UpdateSubscriber(_ context.Context, _ string, _ map[string]string) error {
	return nil
}

func (f *fakeMailer) SendTransactional(_ context.Context, to, key string, fields map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, sendCall{to: to, key: key, fields: fields})
	return nil
}

func (f *fakeMailer) StopSequence(_ context.Context, _, _ string) error { return nil }

var userCols = []string{
	"id", "email", "email_status", "first_name", "last_name", "role", "language",
	"profile_completed", "kyc_status", "is_active", "is_online", "paypal_email", "payout_threshold",
	"total_calls", "total_earnings", "consecutive_missed_calls", "has_submitted_review",
	"unsubscribed", "complained", "autoresponders_stopped", "autoresponders_stopped_reasons",
	"last_login_at", "last_activity_at", "last_review_at", "last_reengagement_sent_at",
	"created_at", "updated_at",
}

// rowUser is the knob set a sweep row needs; everything else is fixed.
type rowUser struct {
	id               string
	email            string
	active           bool
	profileCompleted bool
	stopped          bool
	unsubscribed     bool
	lastActivity     *time.Time
	lastReengagement *time.Time
	created          time.Time
}

func addRow(rows *sqlmock.Rows, u rowUser) *sqlmock.Rows {
	created := u.created
	if created.IsZero() {
		created = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	}
	return rows.AddRow(
		u.id, u.email, "valid", "Lena", "Keller", string(domain.RoleClient), "de",
		u.profileCompleted, "pending", u.active, false, "", 0.0,
		0, 0.0, 0, false,
		u.unsubscribed, false, u.stopped, "{}",
		nil, u.lastActivity, nil, u.lastReengagement,
		created, created,
	)
}

func newTestSweeper(t *testing.T) (*Sweeper, *fakeMailer, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mailer := &fakeMailer{}
	cfg := config.SweepsConfig{
		PageSize:             10,
		OnboardingWindowDays: 30,
		InactivityDays:       30,
		ReengagementCooldown: 7,
	}
	links := config.LinksConfig{DashboardURL: "https://expatline.com/dashboard"}
	return NewSweeper(store.New(db), mailer, nil, cfg, links), mailer, mock
}

func TestStopConditionsStopsMatchedUsers(t *testing.T) {
	sw, mailer, mock := newTestSweeper(t)

	rows := sqlmock.NewRows(userCols)
	addRow(rows, rowUser{id: "u-1", email: "fresh@example.com"})
	addRow(rows, rowUser{id: "u-2", email: "done@example.com", active: true, profileCompleted: true})
	addRow(rows, rowUser{id: "u-3", email: "already@example.com", active: true, stopped: true})
	mock.ExpectQuery("WHERE created_at >= (.+) AND id >").
		WillReturnRows(rows)
	mock.ExpectExec("SET autoresponders_stopped = TRUE").
		WithArgs("u-2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	sum, err := sw.RunStopConditions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Scanned: 3, Acted: 1}, sum)

	require.Len(t, mailer.upserts, 1)
	fields := mailer.upserts[0].fields
	assert.Equal(t, "done@example.com", fields["EMAIL"])
	assert.Equal(t, "yes", fields[mailwizz.FieldAutorespondersStopped])
	assert.Equal(t, stoprules.ReasonProfileCompleted+", "+stoprules.ReasonUserActive,
		fields[mailwizz.FieldAutorespondersReason])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStopConditionsSkipsAlreadyStopped(t *testing.T) {
	sw, mailer, mock := newTestSweeper(t)

	rows := sqlmock.NewRows(userCols)
	addRow(rows, rowUser{id: "u-1", email: "a@example.com", active: true, stopped: true})
	mock.ExpectQuery("WHERE created_at >=").WillReturnRows(rows)

	sum, err := sw.RunStopConditions(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sum.Acted)
	assert.Empty(t, mailer.upserts, "stop flag is monotonic, no second platform call")
}

func TestStopConditionsCountsPerUserErrors(t *testing.T) {
	sw, mailer, mock := newTestSweeper(t)

	rows := sqlmock.NewRows(userCols)
	addRow(rows, rowUser{id: "u-1", email: "done@example.com", active: true, profileCompleted: true})
	addRow(rows, rowUser{id: "u-2", email: "also@example.com", active: true, profileCompleted: true})
	mock.ExpectQuery("WHERE created_at >= (.+) AND id >").
		WillReturnRows(rows)
	mock.ExpectExec("SET autoresponders_stopped = TRUE").
		WithArgs("u-1", sqlmock.AnyArg()).
		WillReturnError(assert.AnError)
	mock.ExpectExec("SET autoresponders_stopped = TRUE").
		WithArgs("u-2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	// One failed mark does not fail the run; it is counted and the scan
	// continues.
	sum, err := sw.RunStopConditions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Scanned: 2, Acted: 1, Errors: 1}, sum)
	require.Len(t, mailer.upserts, 1)
	assert.Equal(t, "also@example.com", mailer.upserts[0].fields["EMAIL"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStopConditionsPagesUntilShortPage(t *testing.T) {
	sw, _, mock := newTestSweeper(t)

	// Full first page, then a short second page that ends the scan.
	first := sqlmock.NewRows(userCols)
	for _, id := range []string{"u-01", "u-02", "u-03", "u-04", "u-05", "u-06", "u-07", "u-08", "u-09", "u-10"} {
		addRow(first, rowUser{id: id, email: id + "@example.com"})
	}
	mock.ExpectQuery("WHERE created_at >= (.+) AND id >").
		WithArgs(sqlmock.AnyArg(), "", 10).
		WillReturnRows(first)
	mock.ExpectQuery("WHERE created_at >= (.+) AND id >").
		WithArgs(sqlmock.AnyArg(), "u-10", 10).
		WillReturnRows(sqlmock.NewRows(userCols))

	_, err := sw.RunStopConditions(context.Background())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInactivitySendsReengagement(t *testing.T) {
	sw, mailer, mock := newTestSweeper(t)
	old := time.Now().Add(-45 * 24 * time.Hour)
	recent := time.Now().Add(-2 * 24 * time.Hour)

	rows := sqlmock.NewRows(userCols)
	addRow(rows, rowUser{id: "u-1", email: "idle@example.com", active: true, lastActivity: &old})
	addRow(rows, rowUser{id: "u-2", email: "busy@example.com", active: true, lastActivity: &recent})
	mock.ExpectQuery("WHERE is_active = TRUE").WillReturnRows(rows)
	mock.ExpectExec("UPDATE users SET last_reengagement_sent_at").
		WithArgs("u-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	sum, err := sw.RunInactivity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Scanned: 2, Acted: 1}, sum)

	require.Len(t, mailer.sends, 1)
	assert.Equal(t, "idle@example.com", mailer.sends[0].to)
	assert.Equal(t, "TR_CLI_reengagement_DE", mailer.sends[0].key)

	// The send refreshes the platform's activity fields too.
	require.Len(t, mailer.upserts, 1)
	assert.Equal(t, "idle@example.com", mailer.upserts[0].fields["EMAIL"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInactivityHonorsCooldown(t *testing.T) {
	sw, mailer, mock := newTestSweeper(t)
	old := time.Now().Add(-45 * 24 * time.Hour)
	stamped := time.Now().Add(-3 * 24 * time.Hour) // inside the 7 day cooldown

	rows := sqlmock.NewRows(userCols)
	addRow(rows, rowUser{id: "u-1", email: "idle@example.com", active: true, lastActivity: &old, lastReengagement: &stamped})
	mock.ExpectQuery("WHERE is_active = TRUE").WillReturnRows(rows)

	sum, err := sw.RunInactivity(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sum.Acted)
	assert.Empty(t, mailer.sends)
}

func TestInactivitySkipsUnmailable(t *testing.T) {
	sw, mailer, mock := newTestSweeper(t)
	old := time.Now().Add(-45 * 24 * time.Hour)

	rows := sqlmock.NewRows(userCols)
	addRow(rows, rowUser{id: "u-1", email: "gone@example.com", active: true, lastActivity: &old, unsubscribed: true})
	mock.ExpectQuery("WHERE is_active = TRUE").WillReturnRows(rows)

	sum, err := sw.RunInactivity(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sum.Acted)
	assert.Empty(t, mailer.sends)
}

func TestInactivityNeverLoggedInCountsFromSignup(t *testing.T) {
	sw, mailer, mock := newTestSweeper(t)

	rows := sqlmock.NewRows(userCols)
	addRow(rows, rowUser{
		id: "u-1", email: "silent@example.com", active: true,
		created: time.Now().Add(-60 * 24 * time.Hour),
	})
	mock.ExpectQuery("WHERE is_active = TRUE").WillReturnRows(rows)
	mock.ExpectExec("UPDATE users SET last_reengagement_sent_at").
		WillReturnResult(sqlmock.NewResult(0, 1))

	sum, err := sw.RunInactivity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Acted)
	require.Len(t, mailer.sends, 1)
}

func TestSchedulerDue(t *testing.T) {
	s := NewScheduler(nil, nil, nil, config.SweepsConfig{})
	daily := job{name: "stop_conditions", kind: jobDaily,
		sched: config.ScheduleConfig{Enabled: true, Hour: 8, Minute: 0}}
	weekly := job{name: "weekly_stats", kind: jobWeekly,
		sched: config.ScheduleConfig{Enabled: true, Hour: 9, Minute: 0, Weekday: 1}}
	monthly := job{name: "monthly_stats", kind: jobMonthly,
		sched: config.ScheduleConfig{Enabled: true, Hour: 10, Minute: 0, MonthDay: 1}}

	monday := time.Date(2025, 6, 2, 8, 0, 12, 0, time.UTC)

	assert.True(t, s.due(daily, monday))
	assert.False(t, s.due(daily, monday.Add(time.Minute)), "outside the fire minute")
	assert.False(t, s.due(job{name: "off", kind: jobDaily,
		sched: config.ScheduleConfig{Hour: 8}}, monday), "disabled job never fires")

	assert.True(t, s.due(weekly, monday.Add(time.Hour)))
	assert.False(t, s.due(weekly, monday.Add(25*time.Hour)), "tuesday is not the configured weekday")

	assert.False(t, s.due(monthly, monday.Add(2*time.Hour)), "june 2nd is not month day 1")
	assert.True(t, s.due(monthly, time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)))

	// Marking a run suppresses re-fires for the rest of the local day.
	s.lastRun["stop_conditions"] = monday.Format("2006-01-02")
	assert.False(t, s.due(daily, monday))
	assert.True(t, s.due(daily, monday.Add(24*time.Hour)))
}
