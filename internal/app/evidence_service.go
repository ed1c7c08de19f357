package app

import (
	"context"
	"log"

	"github.com/mariogargano/week-chain-TM-sub006/internal/clock"
	"github.com/mariogargano/week-chain-TM-sub006/internal/domain"
	"github.com/mariogargano/week-chain-TM-sub006/internal/evidence"
)

type EvidenceRepository interface {
	// AppendEvent persists the event, resolving the previous hash for the
	// entity inside the same transaction as the insert.
	AppendEvent(ctx context.Context, event domain.EvidenceEvent) error
	ListByEntity(ctx context.Context, entityType, entityID string) ([]domain.EvidenceEvent, error)
}

// EvidenceService records hash-linked audit events. Recording is best-effort:
// the triggering domain write has already committed, so failures are logged
// loudly but never propagated to the caller.
type EvidenceService struct {
	repo   EvidenceRepository
	clock  clock.Clock
	logger *log.Logger
}

func NewEvidenceService(repo EvidenceRepository, clk clock.Clock, logger *log.Logger) *EvidenceService {
	if logger == nil {
		logger = log.Default()
	}
	return &EvidenceService{repo: repo, clock: clk, logger: logger}
}

type RecordInput struct {
	EventType  string
	EntityType string
	EntityID   string
	ActorRole  string
	Payload    map[string]any
}

// Record canonicalizes and appends one event, returning its id. An empty id
// means the write failed; the domain operation that triggered it is not
// affected, but the gap is logged as critical for alerting.
func (s *EvidenceService) Record(ctx context.Context, in RecordInput) string {
	now := s.clock.Now()

	canonical, digest, err := evidence.Canonicalize(evidence.Envelope{
		EventType:  in.EventType,
		EntityType: in.EntityType,
		EntityID:   in.EntityID,
		ActorRole:  in.ActorRole,
		Timestamp:  now,
		Payload:    in.Payload,
	})
	if err != nil {
		s.logger.Printf("CRITICAL: evidence canonicalization failed event=%s entity=%s/%s err=%v",
			in.EventType, in.EntityType, in.EntityID, err)
		return ""
	}

	event := domain.EvidenceEvent{
		ID:          newID(),
		EventType:   in.EventType,
		EntityType:  in.EntityType,
		EntityID:    in.EntityID,
		ActorRole:   in.ActorRole,
		Payload:     canonical,
		PayloadHash: digest,
		RecordedAt:  now,
	}

	if err := s.repo.AppendEvent(ctx, event); err != nil {
		s.logger.Printf("CRITICAL: evidence write failed event=%s entity=%s/%s err=%v",
			in.EventType, in.EntityType, in.EntityID, err)
		return ""
	}
	return event.ID
}

// VerifyResult reports the outcome of re-hashing an entity's event chain.
type VerifyResult struct {
	EntityType string   `json:"entity_type"`
	EntityID   string   `json:"entity_id"`
	Events     int      `json:"events"`
	Valid      bool     `json:"valid"`
	Mismatched []string `json:"mismatched,omitempty"`
	BrokenLink []string `json:"broken_links,omitempty"`
}

// VerifyEntity recomputes every stored digest and link for the entity and
// reports tampering or corruption. Callers that guard legal guarantees treat
// an invalid result as fail-closed.
func (s *EvidenceService) VerifyEntity(ctx context.Context, entityType, entityID string) (VerifyResult, error) {
	events, err := s.repo.ListByEntity(ctx, entityType, entityID)
	if err != nil {
		return VerifyResult{}, err
	}

	result := VerifyResult{EntityType: entityType, EntityID: entityID, Events: len(events), Valid: true}
	prev := ""
	for _, ev := range events {
		digest, err := evidence.Hash(ev.Payload)
		if err != nil {
			return VerifyResult{}, err
		}
		if digest != ev.PayloadHash {
			result.Valid = false
			result.Mismatched = append(result.Mismatched, ev.ID)
		}
		if ev.PrevHash != prev {
			result.Valid = false
			result.BrokenLink = append(result.BrokenLink, ev.ID)
		}
		prev = ev.PayloadHash
	}
	return result, nil
}
