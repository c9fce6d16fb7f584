package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/iliyamo/locker-rental/internal/model"
)

// WaitlistRepo stores people waiting for a locker. Emails are stored
// lower-cased; email and student id are both unique.
type WaitlistRepo struct {
	db *sql.DB
}

// NewWaitlistRepo returns a WaitlistRepo bound to the given database.
func NewWaitlistRepo(db *sql.DB) *WaitlistRepo { return &WaitlistRepo{db: db} }

// WaitlistPatch holds the optional fields of a waitlist update.
type WaitlistPatch struct {
	FullName           *string
	Email              *string
	StudentID          *string
	PotentialStartDate *civil.Date
	PotentialEndDate   *civil.Date
	Status             *model.WaitlistStatus
}

const waitlistCols = `id, full_name, email, student_id, potential_start_date, potential_end_date, status, created_at, updated_at`

func scanWaitlist(s rowScanner) (*model.WaitlistEntry, error) {
	var (
		e          model.WaitlistEntry
		start, end time.Time
		status     string
	)
	if err := s.Scan(&e.ID, &e.FullName, &e.Email, &e.StudentID, &start, &end, &status, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	st, err := model.ParseWaitlistStatus(status)
	if err != nil {
		return nil, err
	}
	e.Status = st
	e.PotentialStartDate = civil.DateOf(start)
	e.PotentialEndDate = civil.DateOf(end)
	return &e, nil
}

// List returns all entries, oldest first.
func (r *WaitlistRepo) List(ctx context.Context) ([]model.WaitlistEntry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+waitlistCols+` FROM waitlist ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.WaitlistEntry{}
	for rows.Next() {
		e, err := scanWaitlist(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// GetByID returns ErrWaitlistNotFound for unknown ids.
func (r *WaitlistRepo) GetByID(ctx context.Context, id string) (*model.WaitlistEntry, error) {
	e, err := scanWaitlist(r.db.QueryRowContext(ctx, `SELECT `+waitlistCols+` FROM waitlist WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWaitlistNotFound
	}
	return e, err
}

// Create inserts e. A duplicate email or student id fails with ErrWaitlistDuplicate.
func (r *WaitlistRepo) Create(ctx context.Context, e model.WaitlistEntry) (*model.WaitlistEntry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Status == "" {
		e.Status = model.WaitlistNone
	}
	const q = `INSERT INTO waitlist (id, full_name, email, student_id, potential_start_date, potential_end_date, status)
        VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q, e.ID, strings.TrimSpace(e.FullName), model.NormalizeEmail(e.Email),
		strings.TrimSpace(e.StudentID), e.PotentialStartDate.String(), e.PotentialEndDate.String(), string(e.Status))
	if err != nil {
		if isDuplicateKey(err) {
			return nil, ErrWaitlistDuplicate
		}
		return nil, err
	}
	return r.GetByID(ctx, e.ID)
}

// Update applies the non-nil fields of p.
func (r *WaitlistRepo) Update(ctx context.Context, id string, p WaitlistPatch) (*model.WaitlistEntry, error) {
	var (
		sets []string
		args []any
	)
	if p.FullName != nil {
		sets = append(sets, "full_name = ?")
		args = append(args, strings.TrimSpace(*p.FullName))
	}
	if p.Email != nil {
		sets = append(sets, "email = ?")
		args = append(args, model.NormalizeEmail(*p.Email))
	}
	if p.StudentID != nil {
		sets = append(sets, "student_id = ?")
		args = append(args, strings.TrimSpace(*p.StudentID))
	}
	if p.PotentialStartDate != nil {
		sets = append(sets, "potential_start_date = ?")
		args = append(args, p.PotentialStartDate.String())
	}
	if p.PotentialEndDate != nil {
		sets = append(sets, "potential_end_date = ?")
		args = append(args, p.PotentialEndDate.String())
	}
	if p.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*p.Status))
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP(3)")
	args = append(args, id)

	res, err := r.db.ExecContext(ctx, `UPDATE waitlist SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		if isDuplicateKey(err) {
			return nil, ErrWaitlistDuplicate
		}
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrWaitlistNotFound
	}
	return r.GetByID(ctx, id)
}

// Delete removes an entry by id.
func (r *WaitlistRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM waitlist WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrWaitlistNotFound
	}
	return nil
}

// RemoveByEmail deletes the entry for email and reports whether one existed.
func (r *WaitlistRepo) RemoveByEmail(ctx context.Context, email string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM waitlist WHERE email = ?`, model.NormalizeEmail(email))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Count returns the number of waitlisted people.
func (r *WaitlistRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM waitlist`).Scan(&n)
	return n, err
}
