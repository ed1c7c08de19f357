package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mariogargano/week-chain-TM-sub006/internal/domain"
)

type WebhookRepository struct {
	pool *pgxpool.Pool
}

func NewWebhookRepository(pool *pgxpool.Pool) *WebhookRepository {
	return &WebhookRepository{pool: pool}
}

func (r *WebhookRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

// InsertWebhook logs a delivery keyed by (source, provider_event_id). On a
// redelivery the insert is a no-op and the original record comes back so the
// caller can report the earlier outcome.
func (r *WebhookRepository) InsertWebhook(ctx context.Context, rec domain.WebhookRecord) (bool, domain.WebhookRecord, error) {
	const stmt = `
INSERT INTO webhook_events (id, source, provider_event_id, event_type, payload, status, error, received_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (source, provider_event_id) DO NOTHING`

	tag, err := db(ctx, r.pool).Exec(ctx, stmt,
		rec.ID, rec.Source, rec.ProviderEventID, rec.EventType, rec.Payload, rec.Status, rec.Error, rec.ReceivedAt)
	if err != nil {
		return false, domain.WebhookRecord{}, fmt.Errorf("insert webhook: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, rec, nil
	}

	existing, err := r.getBySourceEvent(ctx, rec.Source, rec.ProviderEventID)
	if err != nil {
		return false, domain.WebhookRecord{}, err
	}
	return false, existing, nil
}

func (r *WebhookRepository) getBySourceEvent(ctx context.Context, source, providerEventID string) (domain.WebhookRecord, error) {
	const query = `
SELECT id, source, provider_event_id, event_type, payload, status, error, received_at, processed_at
FROM webhook_events
WHERE source = $1 AND provider_event_id = $2`

	var rec domain.WebhookRecord
	err := db(ctx, r.pool).QueryRow(ctx, query, source, providerEventID).Scan(
		&rec.ID, &rec.Source, &rec.ProviderEventID, &rec.EventType, &rec.Payload,
		&rec.Status, &rec.Error, &rec.ReceivedAt, &rec.ProcessedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.WebhookRecord{}, domain.ErrWebhookNotFound
		}
		return domain.WebhookRecord{}, fmt.Errorf("get webhook: %w", err)
	}
	return rec, nil
}

func (r *WebhookRepository) MarkProcessed(ctx context.Context, id string) error {
	tag, err := db(ctx, r.pool).Exec(ctx,
		`UPDATE webhook_events SET status = 'processed', processed_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark webhook processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrWebhookNotFound
	}
	return nil
}

func (r *WebhookRepository) MarkFailed(ctx context.Context, id, message string) error {
	tag, err := db(ctx, r.pool).Exec(ctx,
		`UPDATE webhook_events SET status = 'failed', error = $2, processed_at = NOW() WHERE id = $1`, id, message)
	if err != nil {
		return fmt.Errorf("mark webhook failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrWebhookNotFound
	}
	return nil
}

func (r *WebhookRepository) CreatePaymentGroup(ctx context.Context, group domain.PaymentGroup, members []domain.PaymentGroupMember) error {
	return withTx(ctx, r.pool, func(ctx context.Context) error {
		const groupStmt = `
INSERT INTO payment_groups (id, user_id, tier, max_party_size, order_ref, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

		_, err := db(ctx, r.pool).Exec(ctx, groupStmt,
			group.ID, group.UserID, group.Tier, group.MaxPartySize, group.OrderRef, group.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrDuplicateDelivery
			}
			return fmt.Errorf("create payment group: %w", err)
		}

		const memberStmt = `
INSERT INTO payment_group_members (group_id, sequence, amount_mxn, status, updated_at)
VALUES ($1, $2, $3, $4, $5)`

		for _, m := range members {
			if _, err := db(ctx, r.pool).Exec(ctx, memberStmt,
				m.GroupID, m.Sequence, m.AmountMXN, m.Status, m.UpdatedAt); err != nil {
				return fmt.Errorf("create payment group member %d: %w", m.Sequence, err)
			}
		}
		return nil
	})
}

func (r *WebhookRepository) UpdateGroupMemberStatus(ctx context.Context, groupID string, sequence int, status domain.PaymentStatus) error {
	tag, err := db(ctx, r.pool).Exec(ctx, `
UPDATE payment_group_members
SET status = $3, updated_at = NOW()
WHERE group_id = $1 AND sequence = $2`, groupID, sequence, status)
	if err != nil {
		return fmt.Errorf("update group member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrWebhookNotFound
	}
	return nil
}

// ClaimGroupCompletion marks the group complete when every member is paid.
// The WHERE clause makes the claim exclusive: a second concurrent delivery
// matches zero rows and gets nil back, so only one caller issues.
func (r *WebhookRepository) ClaimGroupCompletion(ctx context.Context, groupID string) (*domain.PaymentGroup, error) {
	const stmt = `
UPDATE payment_groups
SET completed_at = NOW()
WHERE id = $1
  AND completed_at IS NULL
  AND NOT EXISTS (
	SELECT 1 FROM payment_group_members
	WHERE group_id = $1 AND status <> 'paid'
  )
RETURNING id, user_id, tier, max_party_size, order_ref, completed_at, created_at`

	var g domain.PaymentGroup
	err := db(ctx, r.pool).QueryRow(ctx, stmt, groupID).Scan(
		&g.ID, &g.UserID, &g.Tier, &g.MaxPartySize, &g.OrderRef, &g.CompletedAt, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim group completion: %w", err)
	}
	return &g, nil
}
