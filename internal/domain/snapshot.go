package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// HealthBand classifies global utilization. Bands are ordered; critical
// halts sales for every tier regardless of individual stop-sale flags.
type HealthBand string

const (
	HealthHealthy    HealthBand = "healthy"
	HealthCaution    HealthBand = "caution"
	HealthRestricted HealthBand = "restricted"
	HealthCritical   HealthBand = "critical"
)

// Utilization thresholds, in percent.
const (
	HealthyMax    = 60
	CautionMax    = 75
	RestrictedMax = 85
)

// SafetyFactor is the fraction of raw supply weeks considered safe to sell
// against, preserving a buffer for simultaneous redemption.
var SafetyFactor = decimal.RequireFromString("0.70")

// BandFor maps a utilization percentage onto its health band.
func BandFor(utilizationPct decimal.Decimal) HealthBand {
	switch {
	case utilizationPct.LessThan(decimal.NewFromInt(HealthyMax)):
		return HealthHealthy
	case utilizationPct.LessThan(decimal.NewFromInt(CautionMax)):
		return HealthCaution
	case utilizationPct.LessThan(decimal.NewFromInt(RestrictedMax)):
		return HealthRestricted
	default:
		return HealthCritical
	}
}

// CapacitySnapshot is a point-in-time aggregate of utilization used to gate
// sales. Snapshots are append-only and strictly ordered by ComputedAt; the
// latest row is authoritative.
type CapacitySnapshot struct {
	ID               string
	ComputedAt       time.Time
	TotalUnits       int
	ActiveUnits      int
	TotalSupplyWeeks int
	SafeCapacity     int
	CertCounts       map[Tier]int
	ProjectedDemand  decimal.Decimal
	UtilizationPct   decimal.Decimal
	Band             HealthBand
	StopSale         map[Tier]bool
	WaitlistEnabled  bool
	WaitlistCount    int
}

// TierAvailable reports whether new sales of the tier are open under this
// snapshot: the tier's own flag must be clear and the band not critical.
func (s CapacitySnapshot) TierAvailable(t Tier) bool {
	if s.Band == HealthCritical {
		return false
	}
	return !s.StopSale[t]
}
