package domain

import "time"

type RequestStatus string

const (
	RequestStatusRequested RequestStatus = "requested"
	RequestStatusOffered   RequestStatus = "offered"
	RequestStatusConfirmed RequestStatus = "confirmed"
	RequestStatusExpired   RequestStatus = "expired"
)

// DateRange is a half-open [Start, End) stay window.
type DateRange struct {
	Start time.Time
	End   time.Time
}

func (r DateRange) Valid() bool {
	return !r.Start.IsZero() && !r.End.IsZero() && r.End.After(r.Start)
}

// Overlaps reports whether two half-open ranges share at least one night.
func (r DateRange) Overlaps(other DateRange) bool {
	return r.Start.Before(other.End) && other.Start.Before(r.End)
}

// Offer is a specific supply unit and date range proposed against a request.
// A request holds at most one; re-offering replaces it.
type Offer struct {
	SupplyUnitID string
	Range        DateRange
	ExpiresAt    time.Time
}

// ReservationRequest is one buyer-initiated desire to use a certificate.
// Only the reservation workflow mutates it; rows are retained forever.
type ReservationRequest struct {
	ID              string
	UserID          string
	CertificateID   string
	DesiredRange    DateRange
	FlexibilityDays int
	PartySize       int
	Notes           string
	Status          RequestStatus
	Offer           *Offer
	ConfirmedUnitID string
	OperatorNotes   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
