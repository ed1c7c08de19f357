package domain

import "errors"

var (
	ErrInvalidID            = errors.New("invalid id")
	ErrInvalidDateRange     = errors.New("invalid date range")
	ErrInvalidPartySize     = errors.New("invalid party size")
	ErrInvalidTier          = errors.New("invalid tier")
	ErrConsentRequired      = errors.New("consent required")
	ErrNoAllowanceRemaining = errors.New("no allowance remaining")
	ErrPartySizeExceeded    = errors.New("party size exceeds certificate maximum")
	ErrCertificateNotFound  = errors.New("certificate not found")
	ErrCertificateInactive  = errors.New("certificate inactive")
	ErrRequestNotFound      = errors.New("reservation request not found")
	ErrInvalidRequestState  = errors.New("request not in a valid state for this transition")
	ErrSupplyUnitNotFound   = errors.New("supply unit not found")
	ErrSupplyUnitInactive   = errors.New("supply unit inactive")
	ErrSupplyConflict       = errors.New("supply unit has conflicting reservations")
	ErrOfferExpired         = errors.New("offer expired")
	ErrReservationNotFound  = errors.New("reservation not found")
	ErrAlreadyCancelled     = errors.New("reservation already cancelled")
	ErrSnapshotNotFound     = errors.New("no capacity snapshot computed yet")
	ErrTierSoldOut          = errors.New("tier sales stopped")
	ErrEvidenceMismatch     = errors.New("evidence chain mismatch")
	ErrDuplicateDelivery    = errors.New("webhook event already recorded")
	ErrWebhookNotFound      = errors.New("webhook record not found")
)
