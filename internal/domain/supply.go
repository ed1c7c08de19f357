package domain

type SupplyUnitStatus string

const (
	SupplyUnitStatusActive   SupplyUnitStatus = "active"
	SupplyUnitStatusInactive SupplyUnitStatus = "inactive"
)

// SupplyUnit is a bookable property slice drawn from external inventory.
// Read-only to this service apart from status checks; WeeksPerYear is the
// unit's capacity weight in the utilization math.
type SupplyUnit struct {
	ID           string
	Name         string
	Country      string
	City         string
	WeeksPerYear int
	Status       SupplyUnitStatus
}
