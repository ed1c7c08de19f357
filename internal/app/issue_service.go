package app

import (
	"context"
	"log"

	"github.com/mariogargano/week-chain-TM-sub006/internal/clock"
	"github.com/mariogargano/week-chain-TM-sub006/internal/domain"
)

type IssueRepository interface {
	CreateCertificate(ctx context.Context, cert domain.Certificate) error
	GetCertificate(ctx context.Context, id string) (domain.Certificate, error)
	UpdateCertificateStatus(ctx context.Context, id string, status domain.CertificateStatus) error
}

// IssueService creates and revokes certificates. Every issuance is gated by
// the capacity engine and followed by a synchronous recompute so the next
// availability read sees the new count.
type IssueService struct {
	repo       IssueRepository
	capacity   *CapacityService
	evidence   *EvidenceService
	commission CommissionTrigger
	notifier   Notifier
	clock      clock.Clock
	logger     *log.Logger
}

func NewIssueService(
	repo IssueRepository,
	capacity *CapacityService,
	ev *EvidenceService,
	commission CommissionTrigger,
	notifier Notifier,
	clk clock.Clock,
	logger *log.Logger,
) *IssueService {
	if logger == nil {
		logger = log.Default()
	}
	return &IssueService{
		repo:       repo,
		capacity:   capacity,
		evidence:   ev,
		commission: commission,
		notifier:   notifier,
		clock:      clk,
		logger:     logger,
	}
}

type IssueInput struct {
	UserID       string
	Tier         domain.Tier
	MaxPartySize int
	OrderRef     string
	// Override skips the availability gate; reserved for operator issuance.
	Override bool
}

// IssueResult is either a certificate or a waitlist placement.
type IssueResult struct {
	Certificate *domain.Certificate
	Waitlisted  *domain.WaitlistEntry
	Reason      string
}

// Issue sells one certificate if the tier is open, otherwise queues the buyer
// on the tier's waitlist.
func (s *IssueService) Issue(ctx context.Context, in IssueInput) (IssueResult, error) {
	if in.UserID == "" {
		return IssueResult{}, domain.ErrInvalidID
	}
	if !in.Tier.Valid() {
		return IssueResult{}, domain.ErrInvalidTier
	}
	if in.MaxPartySize <= 0 {
		in.MaxPartySize = domain.DefaultMaxPartySize
	}

	if !in.Override {
		availability, err := s.capacity.Availability(ctx, in.Tier)
		if err != nil {
			return IssueResult{}, err
		}
		if !availability.Available {
			entry, err := s.capacity.JoinWaitlist(ctx, in.UserID, in.Tier)
			if err != nil {
				return IssueResult{}, err
			}
			s.evidence.Record(ctx, RecordInput{
				EventType: "waitlist_joined", EntityType: "waitlist_entry", EntityID: entry.ID,
				ActorRole: "system",
				Payload:   map[string]any{"tier": string(in.Tier), "reason": availability.Reason},
			})
			return IssueResult{Waitlisted: &entry, Reason: availability.Reason}, nil
		}
	}

	now := s.clock.Now()
	cert := domain.Certificate{
		ID:              newID(),
		UserID:          in.UserID,
		Tier:            in.Tier,
		MaxPartySize:    in.MaxPartySize,
		AnnualAllowance: in.Tier.AnnualAllowance(),
		AllowanceUsed:   0,
		ResetAt:         now.AddDate(1, 0, 0),
		ValidUntil:      now.AddDate(domain.ValidityYears, 0, 0),
		Status:          domain.CertificateStatusActive,
		OrderRef:        in.OrderRef,
		CreatedAt:       now,
	}
	if err := s.repo.CreateCertificate(ctx, cert); err != nil {
		return IssueResult{}, err
	}

	s.evidence.Record(ctx, RecordInput{
		EventType: "certificate_issued", EntityType: "certificate", EntityID: cert.ID,
		ActorRole: "system",
		Payload: map[string]any{
			"tier":             string(cert.Tier),
			"max_party_size":   cert.MaxPartySize,
			"annual_allowance": cert.AnnualAllowance,
			"valid_until":      cert.ValidUntil,
			"order_ref":        cert.OrderRef,
		},
	})
	s.commission.CertificateIssued(ctx, cert)
	s.notifier.Notify(ctx, cert.UserID, "certificate_issued", map[string]any{"certificate_id": cert.ID, "tier": cert.Tier})

	// Mandatory synchronous recompute: the new certificate must be in the
	// aggregate before the next sale is gated.
	if _, err := s.capacity.Recompute(ctx); err != nil {
		s.logger.Printf("recompute after issuance failed certificate=%s err=%v", cert.ID, err)
	}
	return IssueResult{Certificate: &cert}, nil
}

// Revoke deactivates a certificate and recomputes capacity.
func (s *IssueService) Revoke(ctx context.Context, certificateID string) error {
	if certificateID == "" {
		return domain.ErrInvalidID
	}
	cert, err := s.repo.GetCertificate(ctx, certificateID)
	if err != nil {
		return err
	}
	if cert.Status == domain.CertificateStatusRevoked {
		return nil
	}
	if err := s.repo.UpdateCertificateStatus(ctx, certificateID, domain.CertificateStatusRevoked); err != nil {
		return err
	}
	s.evidence.Record(ctx, RecordInput{
		EventType: "certificate_revoked", EntityType: "certificate", EntityID: certificateID,
		ActorRole: "operator",
		Payload:   map[string]any{"previous_status": string(cert.Status)},
	})
	if _, err := s.capacity.Recompute(ctx); err != nil {
		s.logger.Printf("recompute after revocation failed certificate=%s err=%v", certificateID, err)
	}
	return nil
}
