package database

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/locker-rental/internal/config"
	"github.com/iliyamo/locker-rental/internal/model"
)

// LockerSeeder is the part of the locker repository the seeder writes to.
type LockerSeeder interface {
	SeedIfEmpty(ctx context.Context, lockers []model.Locker) (int, error)
}

// BuildLockers expands a seed into rows. Explicit entries win over Count.
// Ids are locker_<n> in listing order and generated numbers are zero padded
// to two digits.
func BuildLockers(seed config.LockerSeed) []model.Locker {
	if len(seed.Lockers) > 0 {
		out := make([]model.Locker, 0, len(seed.Lockers))
		for i, e := range seed.Lockers {
			price := e.PricePerMonth
			if price <= 0 {
				price = seed.PricePerMonth
			}
			out = append(out, model.Locker{
				ID:            fmt.Sprintf("locker_%d", i+1),
				Number:        e.Number,
				PricePerMonth: price,
			})
		}
		return out
	}
	out := make([]model.Locker, 0, seed.Count)
	for i := 1; i <= seed.Count; i++ {
		out = append(out, model.Locker{
			ID:            fmt.Sprintf("locker_%d", i),
			Number:        fmt.Sprintf("%02d", i),
			PricePerMonth: seed.PricePerMonth,
		})
	}
	return out
}

// Seed fills an empty lockers table. A populated table is left alone.
func Seed(ctx context.Context, repo LockerSeeder, seed config.LockerSeed, log logrus.FieldLogger) error {
	n, err := repo.SeedIfEmpty(ctx, BuildLockers(seed))
	if err != nil {
		return fmt.Errorf("seed lockers: %w", err)
	}
	if n > 0 {
		log.WithField("count", n).Info("seeded lockers")
	}
	return nil
}
