// Package service holds the reservation lifecycle: availability checks,
// checkout and extension orchestration, webhook reconciliation and the
// expiry sweep. Stores, the payment provider and the notifier are injected.
package service

import (
	"context"
	"fmt"

	"github.com/iliyamo/locker-rental/internal/model"
)

// OverlapQuerier answers whether a locker has a reservation in one of the
// given statuses overlapping a range.
type OverlapQuerier interface {
	HasOverlap(ctx context.Context, lockerID string, rng model.DateRange, statuses []model.Status, excludeID string) (bool, error)
}

var (
	activeOnly       = []model.Status{model.StatusActive}
	activeAndPending = []model.Status{model.StatusActive, model.StatusPending}
)

// Availability decides whether a locker can be booked.
type Availability struct {
	store OverlapQuerier
}

func NewAvailability(store OverlapQuerier) *Availability {
	return &Availability{store: store}
}

// IsAvailable reports whether rng is free on lockerID. With an empty
// excludeID only active reservations block. With excludeID set, pending
// reservations block too and the excluded reservation is ignored.
func (a *Availability) IsAvailable(ctx context.Context, lockerID string, rng model.DateRange, excludeID string) (bool, error) {
	statuses := activeOnly
	if excludeID != "" {
		statuses = activeAndPending
	}
	taken, err := a.store.HasOverlap(ctx, lockerID, rng, statuses, excludeID)
	if err != nil {
		return false, fmt.Errorf("check availability: %w", err)
	}
	return !taken, nil
}
