package app

import (
	"context"
	"testing"
	"time"

	"github.com/mariogargano/week-chain-TM-sub006/internal/clock"
)

func TestEvidenceService_VerifyEntity(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC)

	record := func(t *testing.T, svc *EvidenceService, eventType string, payload map[string]any) string {
		t.Helper()
		id := svc.Record(context.Background(), RecordInput{
			EventType:  eventType,
			EntityType: "reservation_request",
			EntityID:   "req-1",
			ActorRole:  "user",
			Payload:    payload,
		})
		if id == "" {
			t.Fatalf("expected event id")
		}
		return id
	}

	t.Run("intact chain verifies", func(t *testing.T) {
		repo := &fakeEvidenceRepo{}
		svc := NewEvidenceService(repo, clock.NewManual(now), nil)

		record(t, svc, "reservation_requested", map[string]any{"party_size": 4})
		record(t, svc, "offer_made", map[string]any{"supply_unit_id": "unit-1"})
		record(t, svc, "reservation_confirmed", map[string]any{"supply_unit_id": "unit-1"})

		result, err := svc.VerifyEntity(context.Background(), "reservation_request", "req-1")
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if !result.Valid {
			t.Fatalf("expected valid chain, got mismatched=%v broken=%v", result.Mismatched, result.BrokenLink)
		}
		if result.Events != 3 {
			t.Fatalf("expected 3 events, got %d", result.Events)
		}
	})

	t.Run("tampered payload is detected", func(t *testing.T) {
		repo := &fakeEvidenceRepo{}
		svc := NewEvidenceService(repo, clock.NewManual(now), nil)

		record(t, svc, "reservation_requested", map[string]any{"party_size": 4})
		record(t, svc, "offer_made", map[string]any{"supply_unit_id": "unit-1"})

		repo.tamper(0, "party_size", "6")

		result, err := svc.VerifyEntity(context.Background(), "reservation_request", "req-1")
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if result.Valid {
			t.Fatalf("expected invalid chain after tamper")
		}
		if len(result.Mismatched) != 1 {
			t.Fatalf("expected 1 mismatched event, got %v", result.Mismatched)
		}
	})

	t.Run("empty chain is valid", func(t *testing.T) {
		svc := NewEvidenceService(&fakeEvidenceRepo{}, clock.NewManual(now), nil)

		result, err := svc.VerifyEntity(context.Background(), "reservation_request", "req-none")
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if !result.Valid || result.Events != 0 {
			t.Fatalf("expected valid empty chain, got %+v", result)
		}
	})
}
