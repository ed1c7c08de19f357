package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tier is an ordered certificate class. Higher tiers carry more included
// weeks and a higher expected usage rate, so they weigh more against supply.
type Tier string

const (
	TierSilver    Tier = "silver"
	TierGold      Tier = "gold"
	TierPlatinum  Tier = "platinum"
	TierSignature Tier = "signature"
)

// Tiers lists all tiers in ascending order.
var Tiers = []Tier{TierSilver, TierGold, TierPlatinum, TierSignature}

func (t Tier) Valid() bool {
	switch t {
	case TierSilver, TierGold, TierPlatinum, TierSignature:
		return true
	}
	return false
}

// tierProfile holds the capacity-relevant attributes of a tier.
type tierProfile struct {
	includedWeeks   int
	expectedUsage   string // decimal literal, fraction of included weeks redeemed in a typical year
	annualAllowance int
}

var tierProfiles = map[Tier]tierProfile{
	TierSilver:    {includedWeeks: 1, expectedUsage: "0.55", annualAllowance: 1},
	TierGold:      {includedWeeks: 1, expectedUsage: "0.70", annualAllowance: 1},
	TierPlatinum:  {includedWeeks: 2, expectedUsage: "0.80", annualAllowance: 2},
	TierSignature: {includedWeeks: 4, expectedUsage: "0.85", annualAllowance: 4},
}

// DemandWeight returns the projected supply weeks a single active certificate
// of this tier consumes per year: included weeks x expected usage rate.
func (t Tier) DemandWeight() decimal.Decimal {
	p, ok := tierProfiles[t]
	if !ok {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(p.includedWeeks)).Mul(decimal.RequireFromString(p.expectedUsage))
}

// AnnualAllowance returns the number of stays a certificate of this tier may
// confirm per certificate year.
func (t Tier) AnnualAllowance() int {
	return tierProfiles[t].annualAllowance
}

type CertificateStatus string

const (
	CertificateStatusActive  CertificateStatus = "active"
	CertificateStatusExpired CertificateStatus = "expired"
	CertificateStatusRevoked CertificateStatus = "revoked"
)

// DefaultMaxPartySize applies when a certificate is issued without an
// explicit party cap (legacy certificates carried none).
const DefaultMaxPartySize = 8

// ValidityYears is the total lifetime of a certificate from issuance.
const ValidityYears = 15

// Certificate is a long-lived entitlement to request stays. It is never
// deleted; status transitions mark expiry and revocation.
type Certificate struct {
	ID              string
	UserID          string
	Tier            Tier
	MaxPartySize    int
	AnnualAllowance int
	AllowanceUsed   int
	ResetAt         time.Time
	ValidUntil      time.Time
	Status          CertificateStatus
	OrderRef        string
	CreatedAt       time.Time
}

// Remaining returns the stays still available this certificate year.
func (c Certificate) Remaining() int {
	if r := c.AnnualAllowance - c.AllowanceUsed; r > 0 {
		return r
	}
	return 0
}
