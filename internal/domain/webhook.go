package domain

import "time"

type WebhookStatus string

const (
	WebhookStatusReceived  WebhookStatus = "received"
	WebhookStatusProcessed WebhookStatus = "processed"
	WebhookStatusFailed    WebhookStatus = "failed"
)

// WebhookRecord is the durable log of one inbound payment-provider event,
// keyed by the provider's own event id so redelivery is a detectable no-op.
type WebhookRecord struct {
	ID              string
	Source          string
	ProviderEventID string
	EventType       string
	Payload         map[string]any
	Status          WebhookStatus
	Error           string
	ReceivedAt      time.Time
	ProcessedAt     *time.Time
}

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// PaymentGroup tracks an installment plan for one certificate purchase. The
// group completes when every member is paid; completion is claimed exactly
// once (CompletedAt set conditionally) and issues the certificate.
type PaymentGroup struct {
	ID           string
	UserID       string
	Tier         Tier
	MaxPartySize int
	OrderRef     string
	CompletedAt  *time.Time
	CreatedAt    time.Time
}

// PaymentGroupMember is one installment of a partial-payment plan.
type PaymentGroupMember struct {
	GroupID   string
	Sequence  int
	AmountMXN int64
	Status    PaymentStatus
	UpdatedAt time.Time
}

// WaitlistEntry queues a buyer for a tier while sales are stopped. FIFO per
// tier by JoinedAt.
type WaitlistEntry struct {
	ID       string
	UserID   string
	Tier     Tier
	Status   string
	JoinedAt time.Time
}

const WaitlistStatusWaiting = "waiting"
