package app

import (
	"context"
	"time"

	"github.com/mariogargano/week-chain-TM-sub006/internal/clock"
	"github.com/mariogargano/week-chain-TM-sub006/internal/domain"
)

type LedgerRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetCertificate(ctx context.Context, id string) (domain.Certificate, error)
	// ApplyAnnualReset zeroes allowance_used and advances reset_at by one year
	// for the certificate when its reset date has passed. Conditional update;
	// a no-op when the reset date is still ahead.
	ApplyAnnualReset(ctx context.Context, id string, now time.Time) error
	// ConsumeAllowance increments allowance_used only while the certificate is
	// active and under its annual allowance. Reports whether a row changed.
	ConsumeAllowance(ctx context.Context, id string) (bool, error)
	// ReleaseAllowance decrements allowance_used, never below zero.
	ReleaseAllowance(ctx context.Context, id string) (bool, error)
	// ExpireCertificates flips active certificates past their validity to
	// expired, returning how many changed.
	ExpireCertificates(ctx context.Context, now time.Time) (int, error)
}

// LedgerService tracks per-certificate annual usage allowances. The annual
// reset is applied lazily before any read or consume, so a stale exhausted
// allowance can never block or permit a stay incorrectly.
type LedgerService struct {
	repo  LedgerRepository
	clock clock.Clock
}

func NewLedgerService(repo LedgerRepository, clk clock.Clock) *LedgerService {
	return &LedgerService{repo: repo, clock: clk}
}

// Certificate returns the certificate with any due annual reset applied.
func (s *LedgerService) Certificate(ctx context.Context, certificateID string) (domain.Certificate, error) {
	if certificateID == "" {
		return domain.Certificate{}, domain.ErrInvalidID
	}
	now := s.clock.Now()

	var cert domain.Certificate
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.ApplyAnnualReset(txCtx, certificateID, now); err != nil {
			return err
		}
		var err error
		cert, err = s.repo.GetCertificate(txCtx, certificateID)
		return err
	})
	if err != nil {
		return domain.Certificate{}, err
	}
	return cert, nil
}

// RemainingAllowance returns the stays still available this certificate year.
func (s *LedgerService) RemainingAllowance(ctx context.Context, certificateID string) (int, error) {
	cert, err := s.Certificate(ctx, certificateID)
	if err != nil {
		return 0, err
	}
	return cert.Remaining(), nil
}

// ConsumeOne atomically takes one stay from the certificate's allowance.
// Invoked exactly once per confirmed reservation; when the surrounding
// context carries a transaction the decrement joins it. Two concurrent
// confirms against one remaining allowance cannot both succeed because the
// decrement is a single conditional update.
func (s *LedgerService) ConsumeOne(ctx context.Context, certificateID string) error {
	if certificateID == "" {
		return domain.ErrInvalidID
	}
	now := s.clock.Now()

	return s.repo.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.ApplyAnnualReset(txCtx, certificateID, now); err != nil {
			return err
		}
		consumed, err := s.repo.ConsumeAllowance(txCtx, certificateID)
		if err != nil {
			return err
		}
		if consumed {
			return nil
		}

		// Classify the refusal for the caller.
		cert, err := s.repo.GetCertificate(txCtx, certificateID)
		if err != nil {
			return err
		}
		if cert.Status != domain.CertificateStatusActive {
			return domain.ErrCertificateInactive
		}
		return domain.ErrNoAllowanceRemaining
	})
}

// ReleaseOne reverses a consumed stay after a confirmed reservation is
// cancelled.
func (s *LedgerService) ReleaseOne(ctx context.Context, certificateID string) error {
	if certificateID == "" {
		return domain.ErrInvalidID
	}
	_, err := s.repo.ReleaseAllowance(ctx, certificateID)
	return err
}

// ExpireOverdue transitions certificates past their 15-year validity to
// expired. Run from the background sweep.
func (s *LedgerService) ExpireOverdue(ctx context.Context) (int, error) {
	return s.repo.ExpireCertificates(ctx, s.clock.Now())
}
