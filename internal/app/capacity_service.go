package app

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/mariogargano/week-chain-TM-sub006/internal/clock"
	"github.com/mariogargano/week-chain-TM-sub006/internal/domain"
)

type CapacityRepository interface {
	// SupplyStats aggregates the supply directory: unit counts and the sum of
	// weeks per year across active units.
	SupplyStats(ctx context.Context) (total, active, totalWeeks int, err error)
	CountActiveCertificatesByTier(ctx context.Context) (map[domain.Tier]int, error)
	StopSaleFlags(ctx context.Context) (map[domain.Tier]bool, error)
	SetStopSaleFlag(ctx context.Context, tier domain.Tier, stopped bool) error
	WaitlistCount(ctx context.Context) (int, error)
	AddWaitlistEntry(ctx context.Context, entry domain.WaitlistEntry) error
	// InsertSnapshot appends a snapshot; ComputedAt must be unique so readers
	// have a total order.
	InsertSnapshot(ctx context.Context, snapshot domain.CapacitySnapshot) error
	LatestSnapshot(ctx context.Context) (domain.CapacitySnapshot, error)
}

// CapacityService aggregates active certificates against active supply and
// decides when new certificate sales stop or route to the waitlist.
type CapacityService struct {
	repo  CapacityRepository
	clock clock.Clock
}

func NewCapacityService(repo CapacityRepository, clk clock.Clock) *CapacityService {
	return &CapacityService{repo: repo, clock: clk}
}

// Recompute re-reads current supply and certificate aggregates and appends a
// fresh snapshot. It never mutates an existing snapshot and never trusts a
// passed-in aggregate, so concurrent invocations cannot publish stale counts.
func (s *CapacityService) Recompute(ctx context.Context) (domain.CapacitySnapshot, error) {
	totalUnits, activeUnits, totalWeeks, err := s.repo.SupplyStats(ctx)
	if err != nil {
		return domain.CapacitySnapshot{}, err
	}
	counts, err := s.repo.CountActiveCertificatesByTier(ctx)
	if err != nil {
		return domain.CapacitySnapshot{}, err
	}
	flags, err := s.repo.StopSaleFlags(ctx)
	if err != nil {
		return domain.CapacitySnapshot{}, err
	}
	waitlisted, err := s.repo.WaitlistCount(ctx)
	if err != nil {
		return domain.CapacitySnapshot{}, err
	}

	safeCapacity := decimal.NewFromInt(int64(totalWeeks)).Mul(domain.SafetyFactor).Floor()

	demand := decimal.Zero
	for tier, n := range counts {
		demand = demand.Add(tier.DemandWeight().Mul(decimal.NewFromInt(int64(n))))
	}

	utilization := decimal.Zero
	if safeCapacity.IsPositive() {
		utilization = demand.Div(safeCapacity).Mul(decimal.NewFromInt(100)).Round(2)
	}
	band := domain.BandFor(utilization)

	snapshot := domain.CapacitySnapshot{
		ID:               newID(),
		ComputedAt:       s.clock.Now(),
		TotalUnits:       totalUnits,
		ActiveUnits:      activeUnits,
		TotalSupplyWeeks: totalWeeks,
		SafeCapacity:     int(safeCapacity.IntPart()),
		CertCounts:       counts,
		ProjectedDemand:  demand,
		UtilizationPct:   utilization,
		Band:             band,
		StopSale:         flags,
		WaitlistCount:    waitlisted,
	}
	for _, tier := range domain.Tiers {
		if !snapshot.TierAvailable(tier) {
			snapshot.WaitlistEnabled = true
			break
		}
	}

	if err := s.repo.InsertSnapshot(ctx, snapshot); err != nil {
		return domain.CapacitySnapshot{}, err
	}
	return snapshot, nil
}

// Availability describes whether new sales of a tier are open right now.
type Availability struct {
	Tier             domain.Tier
	Available        bool
	Reason           string
	RemainingForTier int
	RemainingTotal   int
	WaitlistEnabled  bool
}

// Availability evaluates the latest snapshot for a tier. When no snapshot
// exists yet one is computed on the spot.
func (s *CapacityService) Availability(ctx context.Context, tier domain.Tier) (Availability, error) {
	if !tier.Valid() {
		return Availability{}, domain.ErrInvalidTier
	}

	snapshot, err := s.repo.LatestSnapshot(ctx)
	if errors.Is(err, domain.ErrSnapshotNotFound) {
		snapshot, err = s.Recompute(ctx)
	}
	if err != nil {
		return Availability{}, err
	}

	remainingTotal := decimal.NewFromInt(int64(snapshot.SafeCapacity)).Sub(snapshot.ProjectedDemand)
	if remainingTotal.IsNegative() {
		remainingTotal = decimal.Zero
	}
	remainingForTier := 0
	if weight := tier.DemandWeight(); weight.IsPositive() {
		remainingForTier = int(remainingTotal.Div(weight).Floor().IntPart())
	}

	out := Availability{
		Tier:             tier,
		Available:        snapshot.TierAvailable(tier),
		RemainingForTier: remainingForTier,
		RemainingTotal:   int(remainingTotal.Floor().IntPart()),
		WaitlistEnabled:  snapshot.WaitlistEnabled,
	}
	if !out.Available {
		out.WaitlistEnabled = true
		if snapshot.Band == domain.HealthCritical {
			out.Reason = "global capacity critical"
		} else {
			out.Reason = "tier sales stopped"
		}
	}
	return out, nil
}

// SetStopSale flips a tier's stop-sale flag and recomputes so the change is
// visible in the authoritative snapshot immediately.
func (s *CapacityService) SetStopSale(ctx context.Context, tier domain.Tier, stopped bool) (domain.CapacitySnapshot, error) {
	if !tier.Valid() {
		return domain.CapacitySnapshot{}, domain.ErrInvalidTier
	}
	if err := s.repo.SetStopSaleFlag(ctx, tier, stopped); err != nil {
		return domain.CapacitySnapshot{}, err
	}
	return s.Recompute(ctx)
}

// Latest returns the authoritative snapshot.
func (s *CapacityService) Latest(ctx context.Context) (domain.CapacitySnapshot, error) {
	return s.repo.LatestSnapshot(ctx)
}

// JoinWaitlist queues a buyer for a tier while its sales are stopped.
func (s *CapacityService) JoinWaitlist(ctx context.Context, userID string, tier domain.Tier) (domain.WaitlistEntry, error) {
	if userID == "" {
		return domain.WaitlistEntry{}, domain.ErrInvalidID
	}
	if !tier.Valid() {
		return domain.WaitlistEntry{}, domain.ErrInvalidTier
	}
	entry := domain.WaitlistEntry{
		ID:       newID(),
		UserID:   userID,
		Tier:     tier,
		Status:   domain.WaitlistStatusWaiting,
		JoinedAt: s.clock.Now(),
	}
	if err := s.repo.AddWaitlistEntry(ctx, entry); err != nil {
		return domain.WaitlistEntry{}, err
	}
	return entry, nil
}
