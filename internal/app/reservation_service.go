package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mariogargano/week-chain-TM-sub006/internal/clock"
	"github.com/mariogargano/week-chain-TM-sub006/internal/domain"
)

type ReservationRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetSupplyUnit(ctx context.Context, id string) (domain.SupplyUnit, error)
	GetRequestForUpdate(ctx context.Context, id string) (domain.ReservationRequest, error)
	CreateRequest(ctx context.Context, req domain.ReservationRequest) error
	UpdateRequest(ctx context.Context, req domain.ReservationRequest) error
	ListRequestsByUser(ctx context.Context, userID string) ([]domain.ReservationRequest, error)
	CountRequestsByStatus(ctx context.Context) (map[domain.RequestStatus]int, error)
	// FindConflicts returns confirmed, non-cancelled reservations on the unit
	// overlapping the range.
	FindConflicts(ctx context.Context, supplyUnitID string, rng domain.DateRange) ([]domain.ConfirmedReservation, error)
	// CreateReservation inserts the row guarded by the storage layer's overlap
	// constraint; a lost race surfaces as domain.ErrSupplyConflict.
	CreateReservation(ctx context.Context, res domain.ConfirmedReservation) error
	GetReservationByRequestID(ctx context.Context, requestID string) (*domain.ConfirmedReservation, error)
	GetReservationForUpdate(ctx context.Context, id string) (domain.ConfirmedReservation, error)
	UpdateReservationStatus(ctx context.Context, id string, status domain.ReservationStatus) error
	// ExpireOffers force-transitions offered requests whose expiry has passed,
	// returning the ids that changed.
	ExpireOffers(ctx context.Context, now time.Time) ([]string, error)
}

// SupplyConflictError carries the conflicting reservations so an operator can
// pick different supply instead of treating the failure as fatal.
type SupplyConflictError struct {
	Conflicts []domain.ConfirmedReservation
}

func (e *SupplyConflictError) Error() string {
	return fmt.Sprintf("%v (%d conflicting reservations)", domain.ErrSupplyConflict, len(e.Conflicts))
}

func (e *SupplyConflictError) Unwrap() error { return domain.ErrSupplyConflict }

const defaultOfferTTL = 48 * time.Hour

// consentAction is the consent scope checked before accepting a stay request.
const consentAction = "reservation"

// ReservationService runs the request -> offered -> confirmed state machine.
// All serialization comes from the storage layer: conflict checks and the
// allowance decrement execute inside one transaction per transition.
type ReservationService struct {
	repo     ReservationRepository
	ledger   *LedgerService
	evidence *EvidenceService
	consent  ConsentChecker
	notifier Notifier
	clock    clock.Clock
	logger   *log.Logger
	offerTTL time.Duration
}

type ReservationServiceOption func(*ReservationService)

// WithOfferTTL overrides the default offer expiry window.
func WithOfferTTL(d time.Duration) ReservationServiceOption {
	return func(s *ReservationService) {
		if d > 0 {
			s.offerTTL = d
		}
	}
}

func NewReservationService(
	repo ReservationRepository,
	ledger *LedgerService,
	ev *EvidenceService,
	consent ConsentChecker,
	notifier Notifier,
	clk clock.Clock,
	logger *log.Logger,
	opts ...ReservationServiceOption,
) *ReservationService {
	if logger == nil {
		logger = log.Default()
	}
	svc := &ReservationService{
		repo:     repo,
		ledger:   ledger,
		evidence: ev,
		consent:  consent,
		notifier: notifier,
		clock:    clk,
		logger:   logger,
		offerTTL: defaultOfferTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type SubmitInput struct {
	UserID          string
	CertificateID   string
	DesiredRange    domain.DateRange
	FlexibilityDays int
	PartySize       int
	Notes           string
}

// Submit admits a new stay request. Consent, allowance and party size are
// checked before any row is written; a policy refusal leaves no trace.
func (s *ReservationService) Submit(ctx context.Context, in SubmitInput) (domain.ReservationRequest, error) {
	if in.UserID == "" || in.CertificateID == "" {
		return domain.ReservationRequest{}, domain.ErrInvalidID
	}
	if !in.DesiredRange.Valid() {
		return domain.ReservationRequest{}, domain.ErrInvalidDateRange
	}
	if in.PartySize <= 0 {
		return domain.ReservationRequest{}, domain.ErrInvalidPartySize
	}

	consent, err := s.consent.ValidateConsent(ctx, in.UserID, consentAction)
	if err != nil {
		return domain.ReservationRequest{}, err
	}
	if !consent.Valid {
		return domain.ReservationRequest{}, domain.ErrConsentRequired
	}

	cert, err := s.ledger.Certificate(ctx, in.CertificateID)
	if err != nil {
		return domain.ReservationRequest{}, err
	}
	if cert.UserID != in.UserID {
		return domain.ReservationRequest{}, domain.ErrCertificateNotFound
	}
	if cert.Status != domain.CertificateStatusActive {
		return domain.ReservationRequest{}, domain.ErrCertificateInactive
	}
	if cert.Remaining() <= 0 {
		return domain.ReservationRequest{}, domain.ErrNoAllowanceRemaining
	}
	if in.PartySize > cert.MaxPartySize {
		return domain.ReservationRequest{}, domain.ErrPartySizeExceeded
	}

	now := s.clock.Now()
	req := domain.ReservationRequest{
		ID:              newID(),
		UserID:          in.UserID,
		CertificateID:   in.CertificateID,
		DesiredRange:    in.DesiredRange,
		FlexibilityDays: in.FlexibilityDays,
		PartySize:       in.PartySize,
		Notes:           in.Notes,
		Status:          domain.RequestStatusRequested,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.CreateRequest(ctx, req); err != nil {
		return domain.ReservationRequest{}, err
	}

	s.evidence.Record(ctx, RecordInput{
		EventType:  "reservation_requested",
		EntityType: "reservation_request",
		EntityID:   req.ID,
		ActorRole:  "user",
		Payload: map[string]any{
			"certificate_id":  cert.ID,
			"desired_start":   req.DesiredRange.Start,
			"desired_end":     req.DesiredRange.End,
			"party_size":      req.PartySize,
			"consent_version": consent.Version,
		},
	})
	return req, nil
}

type OfferInput struct {
	RequestID    string
	SupplyUnitID string
	Range        domain.DateRange
	ExpiryHours  int
	OperatorNote string
}

// MakeOffer proposes supply against a request. Valid from requested or
// offered; re-offering replaces the prior offer so a request never holds two.
func (s *ReservationService) MakeOffer(ctx context.Context, in OfferInput) (domain.ReservationRequest, error) {
	if in.RequestID == "" || in.SupplyUnitID == "" {
		return domain.ReservationRequest{}, domain.ErrInvalidID
	}
	if !in.Range.Valid() {
		return domain.ReservationRequest{}, domain.ErrInvalidDateRange
	}

	now := s.clock.Now()
	ttl := s.offerTTL
	if in.ExpiryHours > 0 {
		ttl = time.Duration(in.ExpiryHours) * time.Hour
	}

	var updated domain.ReservationRequest
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		req, err := s.repo.GetRequestForUpdate(txCtx, in.RequestID)
		if err != nil {
			return err
		}
		if req.Status != domain.RequestStatusRequested && req.Status != domain.RequestStatusOffered {
			return domain.ErrInvalidRequestState
		}

		unit, err := s.repo.GetSupplyUnit(txCtx, in.SupplyUnitID)
		if err != nil {
			return err
		}
		if unit.Status != domain.SupplyUnitStatusActive {
			return domain.ErrSupplyUnitInactive
		}

		conflicts, err := s.repo.FindConflicts(txCtx, in.SupplyUnitID, in.Range)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return &SupplyConflictError{Conflicts: conflicts}
		}

		req.Status = domain.RequestStatusOffered
		req.Offer = &domain.Offer{
			SupplyUnitID: in.SupplyUnitID,
			Range:        in.Range,
			ExpiresAt:    now.Add(ttl),
		}
		if in.OperatorNote != "" {
			req.OperatorNotes = appendNote(req.OperatorNotes, in.OperatorNote)
		}
		req.UpdatedAt = now
		if err := s.repo.UpdateRequest(txCtx, req); err != nil {
			return err
		}
		updated = req
		return nil
	})
	if err != nil {
		return domain.ReservationRequest{}, err
	}

	s.evidence.Record(ctx, RecordInput{
		EventType:  "offer_made",
		EntityType: "reservation_request",
		EntityID:   updated.ID,
		ActorRole:  "operator",
		Payload: map[string]any{
			"supply_unit_id": updated.Offer.SupplyUnitID,
			"offer_start":    updated.Offer.Range.Start,
			"offer_end":      updated.Offer.Range.End,
			"expires_at":     updated.Offer.ExpiresAt,
		},
	})
	s.notifier.Notify(ctx, updated.UserID, "offer_available", map[string]any{
		"request_id": updated.ID,
		"expires_at": updated.Offer.ExpiresAt,
	})
	return updated, nil
}

type RespondInput struct {
	RequestID string
	UserID    string
	Accept    bool
}

// RespondResult is the outcome of a respond call. RevertToRequested signals
// that the accepted offer lost a race for its supply unit and the caller
// should expect a fresh offer rather than treat the response as failed.
type RespondResult struct {
	Request           domain.ReservationRequest
	Reservation       *domain.ConfirmedReservation
	RevertToRequested bool
	Replayed          bool
}

// Respond applies the buyer's accept or decline. The conflict check from
// offer time is mandatorily re-run on accept: the window between offer and
// acceptance is unbounded and another request may have confirmed the same
// unit meanwhile.
func (s *ReservationService) Respond(ctx context.Context, in RespondInput) (RespondResult, error) {
	if in.RequestID == "" || in.UserID == "" {
		return RespondResult{}, domain.ErrInvalidID
	}

	now := s.clock.Now()
	var (
		result      RespondResult
		expired     bool
		confirmedID string
	)

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		req, err := s.repo.GetRequestForUpdate(txCtx, in.RequestID)
		if err != nil {
			return err
		}
		if req.UserID != in.UserID {
			return domain.ErrRequestNotFound
		}

		// Identical retry of a completed accept must not double-apply.
		if in.Accept && req.Status == domain.RequestStatusConfirmed {
			existing, err := s.repo.GetReservationByRequestID(txCtx, req.ID)
			if err != nil {
				return err
			}
			if existing != nil {
				result = RespondResult{Request: req, Reservation: existing, Replayed: true}
				return nil
			}
		}

		if req.Status != domain.RequestStatusOffered || req.Offer == nil {
			return domain.ErrInvalidRequestState
		}

		if !req.Offer.ExpiresAt.After(now) {
			// The expiry transition commits even though the response is
			// rejected; flag it and surface ErrOfferExpired after commit.
			req.Status = domain.RequestStatusExpired
			req.UpdatedAt = now
			if err := s.repo.UpdateRequest(txCtx, req); err != nil {
				return err
			}
			result.Request = req
			expired = true
			return nil
		}

		if !in.Accept {
			req.Status = domain.RequestStatusRequested
			req.OperatorNotes = appendNote(req.OperatorNotes, fmt.Sprintf("user declined offer at %s", now.Format(time.RFC3339)))
			req.Offer = nil
			req.UpdatedAt = now
			if err := s.repo.UpdateRequest(txCtx, req); err != nil {
				return err
			}
			result.Request = req
			return nil
		}

		// Accept: second conflict check, then guarded insert + decrement.
		conflicts, err := s.repo.FindConflicts(txCtx, req.Offer.SupplyUnitID, req.Offer.Range)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return s.revertToRequested(txCtx, req, now, &result)
		}

		res := domain.ConfirmedReservation{
			ID:            newID(),
			RequestID:     req.ID,
			CertificateID: req.CertificateID,
			UserID:        req.UserID,
			SupplyUnitID:  req.Offer.SupplyUnitID,
			Range:         req.Offer.Range,
			PartySize:     req.PartySize,
			Status:        domain.ReservationStatusConfirmed,
			ConfirmedAt:   now,
		}
		if err := s.repo.CreateReservation(txCtx, res); err != nil {
			// The exclusion constraint is the final arbiter; losing here is
			// the same race as a conflict-check hit.
			if errors.Is(err, domain.ErrSupplyConflict) {
				return s.revertToRequested(txCtx, req, now, &result)
			}
			return err
		}

		if err := s.ledger.ConsumeOne(txCtx, req.CertificateID); err != nil {
			return err
		}

		req.Status = domain.RequestStatusConfirmed
		req.ConfirmedUnitID = res.SupplyUnitID
		req.UpdatedAt = now
		if err := s.repo.UpdateRequest(txCtx, req); err != nil {
			return err
		}

		result = RespondResult{Request: req, Reservation: &res}
		confirmedID = res.ID
		return nil
	})
	if err != nil {
		return RespondResult{}, err
	}

	switch {
	case expired:
		s.evidence.Record(ctx, RecordInput{
			EventType: "offer_expired", EntityType: "reservation_request", EntityID: in.RequestID,
			ActorRole: "system",
			Payload:   map[string]any{"responded_at": now},
		})
		s.notifier.Notify(ctx, in.UserID, "offer_expired", map[string]any{"request_id": in.RequestID})
		return result, domain.ErrOfferExpired
	case result.Replayed:
		return result, nil
	case result.RevertToRequested:
		s.evidence.Record(ctx, RecordInput{
			EventType: "offer_reverted", EntityType: "reservation_request", EntityID: in.RequestID,
			ActorRole: "system",
			Payload:   map[string]any{"reason": "supply conflict on accept"},
		})
		return result, nil
	case result.Reservation != nil:
		s.evidence.Record(ctx, RecordInput{
			EventType: "reservation_confirmed", EntityType: "reservation", EntityID: confirmedID,
			ActorRole: "user",
			Payload: map[string]any{
				"request_id":     in.RequestID,
				"certificate_id": result.Request.CertificateID,
				"supply_unit_id": result.Reservation.SupplyUnitID,
				"check_in":       result.Reservation.Range.Start,
				"check_out":      result.Reservation.Range.End,
			},
		})
		s.notifier.Notify(ctx, in.UserID, "reservation_confirmed", map[string]any{"reservation_id": confirmedID})
		return result, nil
	default:
		s.evidence.Record(ctx, RecordInput{
			EventType: "offer_declined", EntityType: "reservation_request", EntityID: in.RequestID,
			ActorRole: "user",
			Payload:   map[string]any{"declined_at": now},
		})
		return result, nil
	}
}

func (s *ReservationService) revertToRequested(ctx context.Context, req domain.ReservationRequest, now time.Time, result *RespondResult) error {
	req.Status = domain.RequestStatusRequested
	req.OperatorNotes = appendNote(req.OperatorNotes, fmt.Sprintf("offer reverted after supply conflict at %s", now.Format(time.RFC3339)))
	req.Offer = nil
	req.UpdatedAt = now
	if err := s.repo.UpdateRequest(ctx, req); err != nil {
		return err
	}
	result.Request = req
	result.RevertToRequested = true
	return nil
}

// ExpireSweep force-transitions overdue offers. Safe to run on a schedule;
// Respond also enforces expiry lazily, so the sweep only tidies up.
func (s *ReservationService) ExpireSweep(ctx context.Context) (int, error) {
	ids, err := s.repo.ExpireOffers(ctx, s.clock.Now())
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.evidence.Record(ctx, RecordInput{
			EventType: "offer_expired", EntityType: "reservation_request", EntityID: id,
			ActorRole: "system",
			Payload:   map[string]any{"swept": true},
		})
	}
	return len(ids), nil
}

// CancelReservation flips a confirmed stay to cancelled and releases the
// consumed allowance back to the certificate.
func (s *ReservationService) CancelReservation(ctx context.Context, reservationID, userID string) (domain.ConfirmedReservation, error) {
	if reservationID == "" || userID == "" {
		return domain.ConfirmedReservation{}, domain.ErrInvalidID
	}

	var cancelled domain.ConfirmedReservation
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		res, err := s.repo.GetReservationForUpdate(txCtx, reservationID)
		if err != nil {
			return err
		}
		if res.UserID != userID {
			return domain.ErrReservationNotFound
		}
		if res.Status == domain.ReservationStatusCancelled {
			return domain.ErrAlreadyCancelled
		}
		if err := s.repo.UpdateReservationStatus(txCtx, reservationID, domain.ReservationStatusCancelled); err != nil {
			return err
		}
		if err := s.ledger.ReleaseOne(txCtx, res.CertificateID); err != nil {
			return err
		}
		res.Status = domain.ReservationStatusCancelled
		cancelled = res
		return nil
	})
	if err != nil {
		return domain.ConfirmedReservation{}, err
	}

	s.evidence.Record(ctx, RecordInput{
		EventType: "reservation_cancelled", EntityType: "reservation", EntityID: reservationID,
		ActorRole: "user",
		Payload:   map[string]any{"certificate_id": cancelled.CertificateID},
	})
	return cancelled, nil
}

// ListForUser returns the caller's requests, newest first.
func (s *ReservationService) ListForUser(ctx context.Context, userID string) ([]domain.ReservationRequest, error) {
	if userID == "" {
		return nil, domain.ErrInvalidID
	}
	return s.repo.ListRequestsByUser(ctx, userID)
}

// PendingCounts exposes request counts per status for the capacity status
// endpoint.
func (s *ReservationService) PendingCounts(ctx context.Context) (map[domain.RequestStatus]int, error) {
	return s.repo.CountRequestsByStatus(ctx)
}

func appendNote(existing, note string) string {
	if existing == "" {
		return note
	}
	return existing + "\n" + note
}
