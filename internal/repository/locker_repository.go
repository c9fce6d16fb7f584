package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/locker-rental/internal/model"
)

// LockerRepo reads the lockers table. Lockers are ordered by the numeric
// value of their display number.
type LockerRepo struct {
	db *sql.DB
}

// NewLockerRepo returns a LockerRepo bound to the given database.
func NewLockerRepo(db *sql.DB) *LockerRepo { return &LockerRepo{db: db} }

// GetByID returns ErrLockerNotFound when the id is unknown.
func (r *LockerRepo) GetByID(ctx context.Context, id string) (*model.Locker, error) {
	const q = `SELECT id, number, price_per_month, created_at FROM lockers WHERE id = ?`
	var l model.Locker
	err := r.db.QueryRowContext(ctx, q, id).Scan(&l.ID, &l.Number, &l.PricePerMonth, &l.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLockerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// Count returns the number of lockers.
func (r *LockerRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM lockers`).Scan(&n)
	return n, err
}

// ListWithAvailability returns every locker with its status for rng. A
// locker is occupied when an active reservation overlaps rng.
func (r *LockerRepo) ListWithAvailability(ctx context.Context, rng model.DateRange) ([]model.LockerAvailability, error) {
	const q = `SELECT l.id, l.number, l.price_per_month, l.created_at,
        EXISTS(SELECT 1 FROM reservations r
               WHERE r.locker_id = l.id AND r.status = ?
                 AND r.start_date <= ? AND r.end_date >= ?) AS occupied
        FROM lockers l
        ORDER BY CAST(l.number AS UNSIGNED)`
	rows, err := r.db.QueryContext(ctx, q, string(model.StatusActive), rng.End.String(), rng.Start.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.LockerAvailability{}
	for rows.Next() {
		var (
			la       model.LockerAvailability
			occupied bool
		)
		if err := rows.Scan(&la.ID, &la.Number, &la.PricePerMonth, &la.CreatedAt, &occupied); err != nil {
			return nil, err
		}
		la.Status = model.LockerAvailable
		if occupied {
			la.Status = model.LockerOccupied
		}
		out = append(out, la)
	}
	return out, rows.Err()
}

// SeedIfEmpty inserts lockers when the table has none and reports how many
// rows were written.
func (r *LockerRepo) SeedIfEmpty(ctx context.Context, lockers []model.Locker) (int, error) {
	if len(lockers) == 0 {
		return 0, nil
	}
	n, err := r.Count(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}
	err = withTx(ctx, r.db, func(tx *sql.Tx) error {
		values := make([]string, 0, len(lockers))
		args := make([]any, 0, len(lockers)*3)
		for _, l := range lockers {
			values = append(values, "(?, ?, ?)")
			args = append(args, l.ID, l.Number, l.PricePerMonth)
		}
		q := `INSERT INTO lockers (id, number, price_per_month) VALUES ` + strings.Join(values, ", ")
		_, err := tx.ExecContext(ctx, q, args...)
		return err
	})
	if err != nil {
		return 0, err
	}
	return len(lockers), nil
}
