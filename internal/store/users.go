package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/expatline/lifecycle-engine/internal/domain"
)

// ErrNotFound is returned when a referenced entity does not exist.
var ErrNotFound = errors.New("store: not found")

const userColumns = `id, email, email_status, first_name, last_name, role, language,
	profile_completed, kyc_status, is_active, is_online, paypal_email, payout_threshold,
	total_calls, total_earnings, consecutive_missed_calls, has_submitted_review,
	unsubscribed, complained, autoresponders_stopped, autoresponders_stopped_reasons,
	last_login_at, last_activity_at, last_review_at, last_reengagement_sent_at,
	created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*domain.UserProfile, error) {
	var u domain.UserProfile
	var reasons pq.StringArray
	err := row.Scan(
		&u.ID, &u.Email, &u.EmailStatus, &u.FirstName, &u.LastName, &u.Role, &u.Language,
		&u.ProfileCompleted, &u.KYCStatus, &u.IsActive, &u.IsOnline, &u.PayPalEmail, &u.PayoutThreshold,
		&u.TotalCalls, &u.TotalEarnings, &u.ConsecutiveMissedCalls, &u.HasSubmittedReview,
		&u.Unsubscribed, &u.Complained, &u.AutorespondersStopped, &reasons,
		&u.LastLoginAt, &u.LastActivityAt, &u.LastReviewAt, &u.LastReengagementSentAt,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.AutorespondersStoppedReasons = []string(reasons)
	return &u, nil
}

// GetUser fetches a user profile by id.
func (s *Store) GetUser(ctx context.Context, id string) (*domain.UserProfile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching user %s: %w", id, err)
	}
	return u, nil
}

// FindUserByEmail resolves a user by email equality; first match wins.
// Emails are near-unique, enforced only at registration.
func (s *Store) FindUserByEmail(ctx context.Context, email string) (*domain.UserProfile, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE LOWER(email) = $1 ORDER BY created_at LIMIT 1`, email)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching user by email: %w", err)
	}
	return u, nil
}

// MarkAutorespondersStopped records the stop decision: flag plus the union of
// reasons. The flag is monotonic; reasons accumulate and never shrink. The
// conditional WHERE keeps a concurrent double-stop harmless.
func (s *Store) MarkAutorespondersStopped(ctx context.Context, userID string, reasons []string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET autoresponders_stopped = TRUE,
		    autoresponders_stopped_reasons = (
		        SELECT ARRAY(SELECT DISTINCT unnest(autoresponders_stopped_reasons || $2::text[]))
		    ),
		    updated_at = NOW()
		WHERE id = $1
	`, userID, pq.Array(reasons))
	if err != nil {
		return fmt.Errorf("marking autoresponders stopped for %s: %w", userID, err)
	}
	return nil
}

// MarkEmailInvalid flags a hard-bounced address.
func (s *Store) MarkEmailInvalid(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET email_status = 'invalid', updated_at = NOW() WHERE id = $1`, userID)
	return err
}

// MarkUnsubscribed flags the user as unsubscribed from marketing email.
func (s *Store) MarkUnsubscribed(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET unsubscribed = TRUE, updated_at = NOW() WHERE id = $1`, userID)
	return err
}

// MarkComplained flags a spam complaint.
func (s *Store) MarkComplained(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET complained = TRUE, updated_at = NOW() WHERE id = $1`, userID)
	return err
}

// IncrementProviderStats bumps the provider's call counter after a completed
// call and returns the new total.
func (s *Store) IncrementProviderStats(ctx context.Context, providerID string) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `
		UPDATE users SET total_calls = total_calls + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING total_calls
	`, providerID).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("incrementing provider stats: %w", err)
	}
	return total, nil
}

// SetReviewSubmitted stamps the client's review status after a review lands.
func (s *Store) SetReviewSubmitted(ctx context.Context, clientID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET has_submitted_review = TRUE, last_review_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`, clientID)
	return err
}

// SetReengagementSent stamps the re-engagement cooldown timestamp.
func (s *Store) SetReengagementSent(ctx context.Context, userID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET last_reengagement_sent_at = $2, updated_at = NOW() WHERE id = $1
	`, userID, at)
	return err
}

// ListUsersCreatedSince returns one keyset page of users created after the
// cutoff, ordered by id. afterID is the last id of the previous page (empty
// for the first page); an empty result terminates the scan.
func (s *Store) ListUsersCreatedSince(ctx context.Context, cutoff time.Time, afterID string, limit int) ([]*domain.UserProfile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE created_at >= $1 AND id > $2
		ORDER BY id
		LIMIT $3
	`, cutoff, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing recent users: %w", err)
	}
	defer rows.Close()
	return collectUsers(rows)
}

// ListActiveUsers returns one keyset page of account-active users.
func (s *Store) ListActiveUsers(ctx context.Context, afterID string, limit int) ([]*domain.UserProfile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE is_active = TRUE AND id > $1
		ORDER BY id
		LIMIT $2
	`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing active users: %w", err)
	}
	defer rows.Close()
	return collectUsers(rows)
}

// ListUsersCreatedBetween returns users whose created_at falls inside the
// given window, one keyset page at a time. Used by the anniversary mailer
// with a symmetric window around "exactly N years ago". Single-field range
// only; role/email filtering happens in memory at the caller.
func (s *Store) ListUsersCreatedBetween(ctx context.Context, from, to time.Time, afterID string, limit int) ([]*domain.UserProfile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE created_at >= $1 AND created_at < $2 AND id > $3
		ORDER BY id
		LIMIT $4
	`, from, to, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing users by created range: %w", err)
	}
	defer rows.Close()
	return collectUsers(rows)
}

func collectUsers(rows *sql.Rows) ([]*domain.UserProfile, error) {
	var users []*domain.UserProfile
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user row: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
