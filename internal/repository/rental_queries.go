package repository

import (
	"context"
	"database/sql"
	"math"
	"time"

	"cloud.google.com/go/civil"

	"github.com/iliyamo/locker-rental/internal/model"
)

// Rental reporting only looks at primary reservations. A paid extension is
// folded into its original (end date and amount), so counting extension
// rows as well would double count them. An extension that could not be
// merged is stored with is_extension = 0 and reported on its own.
const rentalSelect = `SELECT r.id, r.locker_id, l.number, r.status, r.start_date, r.end_date,
       r.total_months, r.total_amount, r.customer_email, s.student_name, s.student_email, r.created_at
FROM reservations r
JOIN lockers l ON l.id = r.locker_id
LEFT JOIN students s ON s.id = r.student_ref
WHERE r.is_extension = 0`

func scanRental(s rowScanner) (model.RentalRecord, error) {
	var (
		rec                        model.RentalRecord
		status                     string
		start, end                 time.Time
		email, studentName, studEm sql.NullString
	)
	err := s.Scan(&rec.ID, &rec.LockerID, &rec.LockerNumber, &status, &start, &end,
		&rec.TotalMonths, &rec.TotalAmount, &email, &studentName, &studEm, &rec.CreatedAt)
	if err != nil {
		return rec, err
	}
	if rec.Status, err = model.ParseStatus(status); err != nil {
		return rec, err
	}
	rec.StartDate = civil.DateOf(start)
	rec.EndDate = civil.DateOf(end)
	rec.CustomerEmail = email.String
	rec.StudentName = studentName.String
	rec.StudentEmail = studEm.String
	return rec, nil
}

func (r *ReservationRepo) queryRentals(ctx context.Context, where string, args ...any) ([]model.RentalRecord, error) {
	rows, err := r.q.QueryContext(ctx, rentalSelect+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.RentalRecord{}
	for rows.Next() {
		rec, err := scanRental(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListRentals returns primary reservations, newest first. activeOnly limits
// the result to active rentals.
func (r *ReservationRepo) ListRentals(ctx context.Context, activeOnly bool) ([]model.RentalRecord, error) {
	if activeOnly {
		return r.queryRentals(ctx, ` AND r.status = ? ORDER BY r.end_date ASC`, string(model.StatusActive))
	}
	return r.queryRentals(ctx, ` ORDER BY r.created_at DESC`)
}

// ListActiveEndingOn returns active rentals whose last day is day.
func (r *ReservationRepo) ListActiveEndingOn(ctx context.Context, day civil.Date) ([]model.RentalRecord, error) {
	return r.queryRentals(ctx, ` AND r.status = ? AND r.end_date = ? ORDER BY l.number`,
		string(model.StatusActive), day.String())
}

// CompleteEnded flips every active rental with end_date <= today to
// completed in one transaction and returns the rentals it changed. Extension
// rows of those rentals, and any other active extension row that has ended,
// are completed with them.
func (r *ReservationRepo) CompleteEnded(ctx context.Context, today civil.Date) ([]model.RentalRecord, error) {
	var done []model.RentalRecord
	err := r.inTx(ctx, func(tx *ReservationRepo) error {
		recs, err := tx.queryRentals(ctx, ` AND r.status = ? AND r.end_date <= ? FOR UPDATE`,
			string(model.StatusActive), today.String())
		if err != nil {
			return err
		}

		q := `UPDATE reservations SET status = ?, updated_at = CURRENT_TIMESTAMP(3)
        WHERE status = ? AND ((is_extension = 1 AND end_date <= ?)`
		args := []any{string(model.StatusCompleted), string(model.StatusActive), today.String()}
		if len(recs) > 0 {
			ids := make([]any, 0, len(recs))
			for _, rec := range recs {
				ids = append(ids, rec.ID)
			}
			in := placeholders(len(ids))
			q += ` OR id IN (` + in + `) OR original_reservation_id IN (` + in + `)`
			args = append(args, ids...)
			args = append(args, ids...)
		}
		q += `)`
		if _, err := tx.q.ExecContext(ctx, q, args...); err != nil {
			return err
		}
		for i := range recs {
			recs[i].Status = model.StatusCompleted
		}
		done = recs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return done, nil
}

// Analytics aggregates revenue and occupancy over primary reservations.
// lockerCount is the denominator of the occupancy rate.
func (r *ReservationRepo) Analytics(ctx context.Context, lockerCount int) (model.Analytics, error) {
	const q = `SELECT
        COALESCE(SUM(CASE WHEN status IN (?, ?) THEN total_amount ELSE 0 END), 0),
        COUNT(DISTINCT student_ref),
        COALESCE(SUM(CASE WHEN status <> ? THEN 1 ELSE 0 END), 0),
        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
        FROM reservations WHERE is_extension = 0`
	var a model.Analytics
	err := r.q.QueryRowContext(ctx, q,
		string(model.StatusActive), string(model.StatusCompleted),
		string(model.StatusExpired), string(model.StatusActive),
	).Scan(&a.TotalRevenue, &a.UniqueStudents, &a.TotalRentals, &a.ActiveRentals)
	if err != nil {
		return a, err
	}
	a.OccupancyRate = occupancy(a.ActiveRentals, lockerCount)
	return a, nil
}

// occupancy is active/lockers as a percentage rounded to one decimal.
func occupancy(active, lockers int) float64 {
	if lockers <= 0 {
		return 0
	}
	return math.Round(float64(active)/float64(lockers)*1000) / 10
}
