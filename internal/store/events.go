package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/expatline/lifecycle-engine/internal/domain"
)

// AppendChangeEvent writes a before/after snapshot into the change-event
// outbox. Owning subsystems call this in the same transaction as the entity
// write; the lifecycle consumer claims rows asynchronously.
func (s *Store) AppendChangeEvent(ctx context.Context, entityType domain.EntityType, entityID string, before, after json.RawMessage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO change_events (entity_type, entity_id, before, after)
		VALUES ($1, $2, $3, $4)
	`, entityType, entityID, before, after)
	if err != nil {
		return fmt.Errorf("appending change event: %w", err)
	}
	return nil
}

// ClaimChangeEvents atomically claims up to limit unprocessed outbox rows.
// SKIP LOCKED lets multiple consumer instances share the backlog without
// double-claiming inside one poll; redelivery after a crash is still
// possible, so handlers stay idempotent.
func (s *Store) ClaimChangeEvents(ctx context.Context, limit int) ([]domain.ChangeEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE change_events
		SET processed = TRUE, processed_at = NOW()
		WHERE id IN (
			SELECT id FROM change_events
			WHERE processed = FALSE
			ORDER BY id
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, entity_type, entity_id, before, after, created_at
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("claiming change events: %w", err)
	}
	defer rows.Close()

	var events []domain.ChangeEvent
	for rows.Next() {
		var ev domain.ChangeEvent
		var before, after sql.NullString
		if err := rows.Scan(&ev.ID, &ev.EntityType, &ev.EntityID, &before, &after, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning change event: %w", err)
		}
		if before.Valid {
			ev.Before = json.RawMessage(before.String)
		}
		if after.Valid {
			ev.After = json.RawMessage(after.String)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// InsertEmailEvent appends one normalized inbound ESP event. Write-once.
func (s *Store) InsertEmailEvent(ctx context.Context, ev *domain.EmailEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO email_events (id, type, subscriber_uid, campaign_uid, email, url, bounce_type, payload, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, ev.ID, ev.Type, ev.SubscriberUID, ev.CampaignUID, ev.Email, ev.URL, ev.BounceType, []byte(ev.Payload), ev.ReceivedAt)
	if err != nil {
		return fmt.Errorf("inserting email event: %w", err)
	}
	return nil
}

// InsertNegativeReview stores a low-rating review for support follow-up.
func (s *Store) InsertNegativeReview(ctx context.Context, nr *domain.NegativeReview) error {
	if nr.ID == "" {
		nr.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO negative_reviews (id, client_id, provider_id, call_id, rating, text, expire_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, nr.ID, nr.ClientID, nr.ProviderID, nr.CallID, nr.Rating, nr.Text, nr.ExpireAt)
	if err != nil {
		return fmt.Errorf("inserting negative review: %w", err)
	}
	return nil
}

// InsertSupportAlert opens a support alert for a very low rating.
func (s *Store) InsertSupportAlert(ctx context.Context, a *domain.SupportAlert) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO support_alerts (id, type, severity, status, client_id, provider_id, call_id, rating, text, expire_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, a.ID, a.Type, a.Severity, a.Status, a.ClientID, a.ProviderID, a.CallID, a.Rating, a.Text, a.ExpireAt)
	if err != nil {
		return fmt.Errorf("inserting support alert: %w", err)
	}
	return nil
}

// LatestCompletedCallClient returns the client's first name for the
// provider's most recent completed call. Queries on the single-field
// provider index and filters status in memory so no composite index is
// required. Best-effort: ErrNotFound when nothing matches.
func (s *Store) LatestCompletedCallClient(ctx context.Context, providerID string) (string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, client_id, client_first_name FROM calls
		WHERE provider_id = $1
		ORDER BY created_at DESC
		LIMIT 5
	`, providerID)
	if err != nil {
		return "", fmt.Errorf("listing recent calls: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status, clientID, firstName string
		if err := rows.Scan(&status, &clientID, &firstName); err != nil {
			return "", err
		}
		if domain.CallStatus(status) != domain.CallCompleted {
			continue
		}
		if firstName != "" {
			return firstName, nil
		}
		if u, err := s.GetUser(ctx, clientID); err == nil {
			return u.FirstName, nil
		}
		return "", nil
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return "", ErrNotFound
}

// PurgeExpired deletes rows past their expire_at in bounded batches,
// returning the number removed. Used by the retention cleanup for
// negative_reviews (90d) and support_alerts (30d).
func (s *Store) PurgeExpired(ctx context.Context, table string, batchSize int) (int64, error) {
	if table != "negative_reviews" && table != "support_alerts" {
		return 0, fmt.Errorf("purge not allowed for table %q", table)
	}

	var total int64
	for {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
			DELETE FROM %s WHERE id IN (
				SELECT id FROM %s WHERE expire_at < NOW() LIMIT $1
			)
		`, table, table), batchSize)
		if err != nil {
			return total, fmt.Errorf("purging %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return total, nil
		}
		total += n
		time.Sleep(50 * time.Millisecond)
	}
}
