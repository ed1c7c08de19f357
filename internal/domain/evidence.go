package domain

import "time"

// EvidenceEvent is an immutable, hash-stamped audit record of a domain
// transition. PayloadHash digests the canonical serialization of the payload;
// PrevHash links to the previous event for the same entity, forming a
// per-entity chain that verification can walk.
type EvidenceEvent struct {
	ID          string
	EventType   string
	EntityType  string
	EntityID    string
	ActorRole   string
	Payload     map[string]any
	PayloadHash string
	PrevHash    string
	RecordedAt  time.Time
}
