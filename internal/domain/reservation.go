package domain

import "time"

type ReservationStatus string

const (
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	ReservationStatusCancelled ReservationStatus = "cancelled"
)

// ConfirmedReservation is the binding outcome of an accepted offer. For a
// given supply unit no two non-cancelled rows may overlap; the storage layer
// enforces this with an exclusion constraint.
type ConfirmedReservation struct {
	ID            string
	RequestID     string
	CertificateID string
	UserID        string
	SupplyUnitID  string
	Range         DateRange
	PartySize     int
	Status        ReservationStatus
	ConfirmedAt   time.Time
}
