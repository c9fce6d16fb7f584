package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LockerSeed describes the lockers inserted into an empty database. When
// Lockers is empty, Count lockers are numbered 01..Count at PricePerMonth.
type LockerSeed struct {
	Count         int           `yaml:"count"`
	PricePerMonth int64         `yaml:"price_per_month"`
	Lockers       []LockerEntry `yaml:"lockers"`
}

// LockerEntry is one explicitly listed locker. A zero price uses the
// seed-wide PricePerMonth.
type LockerEntry struct {
	Number        string `yaml:"number"`
	PricePerMonth int64  `yaml:"price_per_month"`
}

// DefaultLockerSeed is 42 lockers at $50 a month.
func DefaultLockerSeed() LockerSeed {
	return LockerSeed{Count: 42, PricePerMonth: 5000}
}

// LoadLockerSeed reads a YAML seed file. An empty path yields the default.
func LoadLockerSeed(path string) (LockerSeed, error) {
	seed := DefaultLockerSeed()
	if path == "" {
		return seed, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return seed, fmt.Errorf("read locker seed: %w", err)
	}
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return seed, fmt.Errorf("parse locker seed %s: %w", path, err)
	}
	if seed.PricePerMonth <= 0 {
		return seed, fmt.Errorf("locker seed %s: price_per_month must be positive", path)
	}
	for i, l := range seed.Lockers {
		if l.Number == "" {
			return seed, fmt.Errorf("locker seed %s: entry %d has no number", path, i)
		}
	}
	return seed, nil
}
