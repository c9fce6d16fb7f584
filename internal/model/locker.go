package model

import "time"

// Locker is a rentable unit. Lockers are seeded once and never edited by
// the booking flow.
type Locker struct {
	ID            string    `json:"id"`
	Number        string    `json:"number"`
	PricePerMonth int64     `json:"pricePerMonth"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Availability values reported by the lockers listing.
const (
	LockerAvailable = "available"
	LockerOccupied  = "occupied"
)

// LockerAvailability is a locker plus its state for a requested range.
type LockerAvailability struct {
	Locker
	Status string `json:"status"`
}
