package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mariogargano/week-chain-TM-sub006/internal/domain"
	"github.com/mariogargano/week-chain-TM-sub006/internal/testutil"
)

func TestEvidenceRepository(t *testing.T) {
	pool := testutil.NewTestPool(t)
	repo := NewEvidenceRepository(pool)
	testutil.ApplyMigrations(t, context.Background(), pool)

	event := func(eventType, entityID, hash string) domain.EvidenceEvent {
		return domain.EvidenceEvent{
			ID:          uuid.NewString(),
			EventType:   eventType,
			EntityType:  "reservation_request",
			EntityID:    entityID,
			ActorRole:   "user",
			Payload:     map[string]any{"event_type": eventType},
			PayloadHash: hash,
			RecordedAt:  time.Now().UTC(),
		}
	}

	t.Run("AppendEvent links each event to its predecessor", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		if err := repo.AppendEvent(ctx, event("reservation_requested", "req-1", "hash-a")); err != nil {
			t.Fatalf("append first: %v", err)
		}
		if err := repo.AppendEvent(ctx, event("offer_made", "req-1", "hash-b")); err != nil {
			t.Fatalf("append second: %v", err)
		}
		if err := repo.AppendEvent(ctx, event("reservation_confirmed", "req-1", "hash-c")); err != nil {
			t.Fatalf("append third: %v", err)
		}

		events, err := repo.ListByEntity(ctx, "reservation_request", "req-1")
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(events) != 3 {
			t.Fatalf("expected 3 events, got %d", len(events))
		}
		if events[0].PrevHash != "" {
			t.Fatalf("expected empty prev on genesis, got %q", events[0].PrevHash)
		}
		if events[1].PrevHash != "hash-a" || events[2].PrevHash != "hash-b" {
			t.Fatalf("expected chained prev hashes, got %q %q", events[1].PrevHash, events[2].PrevHash)
		}
		if events[0].EventType != "reservation_requested" {
			t.Fatalf("expected seq order, got %q first", events[0].EventType)
		}
	})

	t.Run("chains are scoped per entity", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		if err := repo.AppendEvent(ctx, event("reservation_requested", "req-1", "hash-a")); err != nil {
			t.Fatalf("append req-1: %v", err)
		}
		if err := repo.AppendEvent(ctx, event("reservation_requested", "req-2", "hash-x")); err != nil {
			t.Fatalf("append req-2: %v", err)
		}

		other, err := repo.ListByEntity(ctx, "reservation_request", "req-2")
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(other) != 1 || other[0].PrevHash != "" {
			t.Fatalf("expected an independent genesis for req-2, got %+v", other)
		}
	})

	t.Run("payload round-trips through jsonb", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		ev := event("reservation_requested", "req-1", "hash-a")
		ev.Payload = map[string]any{"party_size": "4", "certificate_id": "cert-1"}
		if err := repo.AppendEvent(ctx, ev); err != nil {
			t.Fatalf("append: %v", err)
		}

		events, err := repo.ListByEntity(ctx, "reservation_request", "req-1")
		if err != nil || len(events) != 1 {
			t.Fatalf("list: %v (%d events)", err, len(events))
		}
		if events[0].Payload["party_size"] != "4" {
			t.Fatalf("expected payload round-trip, got %v", events[0].Payload)
		}
	})
}
