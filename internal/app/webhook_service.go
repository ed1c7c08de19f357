package app

import (
	"context"
	"fmt"
	"log"

	"github.com/mariogargano/week-chain-TM-sub006/internal/clock"
	"github.com/mariogargano/week-chain-TM-sub006/internal/domain"
)

type WebhookRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	// InsertWebhook durably logs the delivery keyed by (source, provider
	// event id). A redelivery reports created=false and returns the original
	// record.
	InsertWebhook(ctx context.Context, rec domain.WebhookRecord) (created bool, existing domain.WebhookRecord, err error)
	MarkProcessed(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, message string) error
	CreatePaymentGroup(ctx context.Context, group domain.PaymentGroup, members []domain.PaymentGroupMember) error
	UpdateGroupMemberStatus(ctx context.Context, groupID string, sequence int, status domain.PaymentStatus) error
	// ClaimGroupCompletion sets CompletedAt once all members are paid and the
	// group is not yet completed. Single conditional update; at most one
	// caller ever wins.
	ClaimGroupCompletion(ctx context.Context, groupID string) (*domain.PaymentGroup, error)
}

// Payment event types normalized across providers.
const (
	EventPaymentPaid    = "payment.paid"
	EventPaymentFailed  = "payment.failed"
	EventPaymentExpired = "payment.expired"
)

// WebhookService ingests asynchronous payment-provider events. Every
// delivery is logged before business logic runs; replays of the same
// (source, event id) are detected and become no-ops, so a provider retry can
// never double-issue a certificate.
type WebhookService struct {
	repo   WebhookRepository
	issuer *IssueService
	clock  clock.Clock
	logger *log.Logger
}

func NewWebhookService(repo WebhookRepository, issuer *IssueService, clk clock.Clock, logger *log.Logger) *WebhookService {
	if logger == nil {
		logger = log.Default()
	}
	return &WebhookService{repo: repo, issuer: issuer, clock: clk, logger: logger}
}

type IngestInput struct {
	Source          string
	ProviderEventID string
	EventType       string
	Payload         map[string]any
}

type IngestResult struct {
	Record    domain.WebhookRecord
	Duplicate bool
	// Issued is set when this delivery completed a purchase.
	Issued *domain.Certificate
}

// Ingest logs and processes one provider delivery.
func (s *WebhookService) Ingest(ctx context.Context, in IngestInput) (IngestResult, error) {
	if in.Source == "" || in.ProviderEventID == "" {
		return IngestResult{}, domain.ErrInvalidID
	}

	rec := domain.WebhookRecord{
		ID:              newID(),
		Source:          in.Source,
		ProviderEventID: in.ProviderEventID,
		EventType:       in.EventType,
		Payload:         in.Payload,
		Status:          domain.WebhookStatusReceived,
		ReceivedAt:      s.clock.Now(),
	}

	created, existing, err := s.repo.InsertWebhook(ctx, rec)
	if err != nil {
		return IngestResult{}, err
	}
	if !created {
		s.logger.Printf("webhook redelivery source=%s event=%s status=%s", in.Source, in.ProviderEventID, existing.Status)
		return IngestResult{Record: existing, Duplicate: true}, nil
	}

	issued, err := s.process(ctx, rec)
	if err != nil {
		if markErr := s.repo.MarkFailed(ctx, rec.ID, err.Error()); markErr != nil {
			s.logger.Printf("mark webhook failed source=%s event=%s err=%v", in.Source, in.ProviderEventID, markErr)
		}
		return IngestResult{Record: rec}, err
	}
	if err := s.repo.MarkProcessed(ctx, rec.ID); err != nil {
		s.logger.Printf("mark webhook processed source=%s event=%s err=%v", in.Source, in.ProviderEventID, err)
	}
	rec.Status = domain.WebhookStatusProcessed
	return IngestResult{Record: rec, Issued: issued}, nil
}

func (s *WebhookService) process(ctx context.Context, rec domain.WebhookRecord) (*domain.Certificate, error) {
	switch rec.EventType {
	case EventPaymentPaid:
		return s.handlePaid(ctx, rec)
	case EventPaymentFailed, EventPaymentExpired:
		return nil, s.handleNotPaid(ctx, rec)
	default:
		// Unknown types are logged and accepted; providers add types freely.
		s.logger.Printf("webhook ignored source=%s type=%s event=%s", rec.Source, rec.EventType, rec.ProviderEventID)
		return nil, nil
	}
}

func (s *WebhookService) handlePaid(ctx context.Context, rec domain.WebhookRecord) (*domain.Certificate, error) {
	groupID, _ := rec.Payload["payment_group_id"].(string)
	if groupID == "" {
		// Single-payment purchase: issue straight away. Replay protection is
		// the webhook idempotency key itself.
		return s.issueFromPayload(ctx, rec.Payload)
	}

	sequence, err := payloadInt(rec.Payload, "sequence")
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateGroupMemberStatus(ctx, groupID, sequence, domain.PaymentStatusPaid); err != nil {
		return nil, err
	}

	group, err := s.repo.ClaimGroupCompletion(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		// Not complete yet, or another delivery already claimed it.
		return nil, nil
	}

	s.logger.Printf("payment group complete group=%s user=%s tier=%s", group.ID, group.UserID, group.Tier)
	result, err := s.issuer.Issue(ctx, IssueInput{
		UserID:       group.UserID,
		Tier:         group.Tier,
		MaxPartySize: group.MaxPartySize,
		OrderRef:     group.OrderRef,
		// A completed purchase is honored even if sales closed while the
		// installments were being paid.
		Override: true,
	})
	if err != nil {
		return nil, err
	}
	return result.Certificate, nil
}

func (s *WebhookService) handleNotPaid(ctx context.Context, rec domain.WebhookRecord) error {
	groupID, _ := rec.Payload["payment_group_id"].(string)
	if groupID == "" {
		return nil
	}
	sequence, err := payloadInt(rec.Payload, "sequence")
	if err != nil {
		return err
	}
	status := domain.PaymentStatusFailed
	return s.repo.UpdateGroupMemberStatus(ctx, groupID, sequence, status)
}

func (s *WebhookService) issueFromPayload(ctx context.Context, payload map[string]any) (*domain.Certificate, error) {
	userID, _ := payload["user_id"].(string)
	tierRaw, _ := payload["tier"].(string)
	if userID == "" || tierRaw == "" {
		return nil, fmt.Errorf("payment payload missing user_id or tier")
	}
	tier := domain.Tier(tierRaw)
	if !tier.Valid() {
		return nil, domain.ErrInvalidTier
	}
	partySize := 0
	if n, err := payloadInt(payload, "max_party_size"); err == nil {
		partySize = n
	}
	orderRef, _ := payload["order_id"].(string)

	result, err := s.issuer.Issue(ctx, IssueInput{
		UserID:       userID,
		Tier:         tier,
		MaxPartySize: partySize,
		OrderRef:     orderRef,
		Override:     true,
	})
	if err != nil {
		return nil, err
	}
	return result.Certificate, nil
}

// RegisterPaymentPlan records a new installment group before the provider
// starts delivering events for it.
func (s *WebhookService) RegisterPaymentPlan(ctx context.Context, group domain.PaymentGroup, amountsMXN []int64) error {
	if group.ID == "" || group.UserID == "" {
		return domain.ErrInvalidID
	}
	if !group.Tier.Valid() {
		return domain.ErrInvalidTier
	}
	now := s.clock.Now()
	group.CreatedAt = now
	members := make([]domain.PaymentGroupMember, len(amountsMXN))
	for i, amount := range amountsMXN {
		members[i] = domain.PaymentGroupMember{
			GroupID:   group.ID,
			Sequence:  i + 1,
			AmountMXN: amount,
			Status:    domain.PaymentStatusPending,
			UpdatedAt: now,
		}
	}
	return s.repo.CreatePaymentGroup(ctx, group, members)
}

func payloadInt(payload map[string]any, key string) (int, error) {
	switch v := payload[key].(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, fmt.Errorf("payment payload missing integer %q", key)
	}
}
