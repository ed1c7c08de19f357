package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mariogargano/week-chain-TM-sub006/internal/domain"
)

type EvidenceRepository struct {
	pool *pgxpool.Pool
}

func NewEvidenceRepository(pool *pgxpool.Pool) *EvidenceRepository {
	return &EvidenceRepository{pool: pool}
}

// AppendEvent inserts the event with its prev_hash resolved from the latest
// event for the same entity, inside one transaction so two concurrent appends
// cannot both link to the same predecessor undetected.
func (r *EvidenceRepository) AppendEvent(ctx context.Context, event domain.EvidenceEvent) error {
	return withTx(ctx, r.pool, func(ctx context.Context) error {
		var prev string
		err := db(ctx, r.pool).QueryRow(ctx, `
SELECT payload_hash
FROM evidence_events
WHERE entity_type = $1 AND entity_id = $2
ORDER BY seq DESC
LIMIT 1
FOR UPDATE`, event.EntityType, event.EntityID).Scan(&prev)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("resolve prev hash: %w", err)
		}

		const stmt = `
INSERT INTO evidence_events (id, event_type, entity_type, entity_id, actor_role, payload, payload_hash, prev_hash, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

		_, err = db(ctx, r.pool).Exec(ctx, stmt,
			event.ID, event.EventType, event.EntityType, event.EntityID, event.ActorRole,
			event.Payload, event.PayloadHash, prev, event.RecordedAt)
		if err != nil {
			return fmt.Errorf("append evidence event: %w", err)
		}
		return nil
	})
}

func (r *EvidenceRepository) ListByEntity(ctx context.Context, entityType, entityID string) ([]domain.EvidenceEvent, error) {
	const query = `
SELECT id, event_type, entity_type, entity_id, actor_role, payload, payload_hash, prev_hash, recorded_at
FROM evidence_events
WHERE entity_type = $1 AND entity_id = $2
ORDER BY seq ASC`

	rows, err := db(ctx, r.pool).Query(ctx, query, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("list evidence events: %w", err)
	}
	defer rows.Close()

	var events []domain.EvidenceEvent
	for rows.Next() {
		var ev domain.EvidenceEvent
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.EntityType, &ev.EntityID, &ev.ActorRole,
			&ev.Payload, &ev.PayloadHash, &ev.PrevHash, &ev.RecordedAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
