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

// ReservationRepo stores reservations in the reservations table. Dates are
// DATE columns; timestamps are DATETIME(3) in UTC.
type ReservationRepo struct {
	db *sql.DB // nil when the repo is bound to a transaction
	q  dbtx
}

// NewReservationRepo returns a ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db, q: db} }

// ReservationStore is the reservation persistence contract used by the
// service layer. *ReservationRepo implements it.
type ReservationStore interface {
	Create(ctx context.Context, res *model.Reservation) error
	GetByID(ctx context.Context, id string) (*model.Reservation, error)
	GetBySessionID(ctx context.Context, sessionID string) (*model.Reservation, error)
	ListByLocker(ctx context.Context, lockerID string) ([]model.Reservation, error)
	Update(ctx context.Context, id string, p ReservationPatch) (*model.Reservation, error)
	LinkStudent(ctx context.Context, id, studentRef string) error
	HasOverlap(ctx context.Context, lockerID string, rng model.DateRange, statuses []model.Status, excludeID string) (bool, error)
	InTx(ctx context.Context, fn func(tx ReservationStore) error) error

	CompleteEnded(ctx context.Context, today civil.Date) ([]model.RentalRecord, error)
	ListActiveEndingOn(ctx context.Context, day civil.Date) ([]model.RentalRecord, error)
	ExpireStalePending(ctx context.Context, cutoff time.Time) (int64, error)
}

var _ ReservationStore = (*ReservationRepo)(nil)

// ReservationPatch lists the columns an Update may change. Nil fields are
// left untouched. IfStatus, when non-empty, restricts the update to rows
// currently in one of those statuses.
type ReservationPatch struct {
	Status          *model.Status
	PaymentIntentID *string
	PayerAccountID  *string
	CustomerEmail   *string
	StudentRef      *string
	EndDate         *civil.Date
	TotalAmount     *int64
	AddAmount       *int64 // added to the stored total in SQL
	IsExtension     *bool
	IfStatus        []model.Status
}

const reservationCols = `id, payment_session_id, payment_intent_id, payer_account_id, customer_email,
       locker_id, status, start_date, end_date, total_months, total_amount,
       is_extension, original_reservation_id, student_ref, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(s rowScanner) (*model.Reservation, error) {
	var (
		res                                     model.Reservation
		session, intent, payer, email, orig, sr sql.NullString
		status                                  string
		start, end                              time.Time
	)
	err := s.Scan(&res.ID, &session, &intent, &payer, &email,
		&res.LockerID, &status, &start, &end, &res.TotalMonths, &res.TotalAmount,
		&res.IsExtension, &orig, &sr, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		return nil, err
	}
	st, err := model.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	res.Status = st
	res.StartDate = civil.DateOf(start)
	res.EndDate = civil.DateOf(end)
	res.PaymentSessionID = nullable(session)
	res.PaymentIntentID = nullable(intent)
	res.PayerAccountID = nullable(payer)
	res.CustomerEmail = nullable(email)
	res.OriginalReservationID = nullable(orig)
	res.StudentRef = nullable(sr)
	return &res, nil
}

func nullable(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// InTx runs fn against a copy of the store bound to one transaction. Calls
// made on a store that is already transactional join the current transaction.
func (r *ReservationRepo) InTx(ctx context.Context, fn func(tx ReservationStore) error) error {
	return r.inTx(ctx, func(tx *ReservationRepo) error { return fn(tx) })
}

func (r *ReservationRepo) inTx(ctx context.Context, fn func(tx *ReservationRepo) error) error {
	if r.db == nil {
		return fn(r)
	}
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		return fn(&ReservationRepo{q: tx})
	})
}

// Create inserts res and reloads it to pick up timestamps. A missing ID is
// generated. A second row with the same payment session id fails with
// ErrDuplicateSession.
func (r *ReservationRepo) Create(ctx context.Context, res *model.Reservation) error {
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	const q = `INSERT INTO reservations
        (id, payment_session_id, payment_intent_id, payer_account_id, customer_email,
         locker_id, status, start_date, end_date, total_months, total_amount,
         is_extension, original_reservation_id, student_ref)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.q.ExecContext(ctx, q,
		res.ID, res.PaymentSessionID, res.PaymentIntentID, res.PayerAccountID, res.CustomerEmail,
		res.LockerID, string(res.Status), res.StartDate.String(), res.EndDate.String(),
		res.TotalMonths, res.TotalAmount, res.IsExtension, res.OriginalReservationID, res.StudentRef)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateSession
		}
		return err
	}
	saved, err := r.GetByID(ctx, res.ID)
	if err != nil {
		return err
	}
	*res = *saved
	return nil
}

// GetByID returns ErrReservationNotFound when no row matches.
func (r *ReservationRepo) GetByID(ctx context.Context, id string) (*model.Reservation, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+reservationCols+` FROM reservations WHERE id = ?`, id)
	res, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReservationNotFound
	}
	return res, err
}

// GetBySessionID looks a reservation up by its payment session id.
func (r *ReservationRepo) GetBySessionID(ctx context.Context, sessionID string) (*model.Reservation, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+reservationCols+` FROM reservations WHERE payment_session_id = ?`, sessionID)
	res, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReservationNotFound
	}
	return res, err
}

// ListByLocker returns every reservation of a locker, oldest range first.
func (r *ReservationRepo) ListByLocker(ctx context.Context, lockerID string) ([]model.Reservation, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+reservationCols+` FROM reservations WHERE locker_id = ? ORDER BY start_date, created_at`, lockerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

// Update applies the non-nil fields of p to reservation id in a single
// statement and returns the updated row.
func (r *ReservationRepo) Update(ctx context.Context, id string, p ReservationPatch) (*model.Reservation, error) {
	var (
		sets []string
		args []any
	)
	if p.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*p.Status))
	}
	if p.PaymentIntentID != nil {
		sets = append(sets, "payment_intent_id = ?")
		args = append(args, *p.PaymentIntentID)
	}
	if p.PayerAccountID != nil {
		sets = append(sets, "payer_account_id = ?")
		args = append(args, *p.PayerAccountID)
	}
	if p.CustomerEmail != nil {
		sets = append(sets, "customer_email = ?")
		args = append(args, *p.CustomerEmail)
	}
	if p.StudentRef != nil {
		sets = append(sets, "student_ref = ?")
		args = append(args, *p.StudentRef)
	}
	if p.EndDate != nil {
		sets = append(sets, "end_date = ?")
		args = append(args, p.EndDate.String())
	}
	if p.TotalAmount != nil {
		sets = append(sets, "total_amount = ?")
		args = append(args, *p.TotalAmount)
	}
	if p.AddAmount != nil {
		sets = append(sets, "total_amount = total_amount + ?")
		args = append(args, *p.AddAmount)
	}
	if p.IsExtension != nil {
		sets = append(sets, "is_extension = ?")
		args = append(args, *p.IsExtension)
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP(3)")

	q := `UPDATE reservations SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	args = append(args, id)
	if len(p.IfStatus) > 0 {
		q += ` AND status IN (` + placeholders(len(p.IfStatus)) + `)`
		for _, s := range p.IfStatus {
			args = append(args, string(s))
		}
	}

	result, err := r.q.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// Either the row is gone or the status guard did not match.
		cur, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if len(p.IfStatus) > 0 && !statusIn(cur.Status, p.IfStatus) {
			return nil, ErrStatusMismatch
		}
		return cur, nil
	}
	return r.GetByID(ctx, id)
}

func statusIn(s model.Status, set []model.Status) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// LinkStudent associates a reservation with a student record.
func (r *ReservationRepo) LinkStudent(ctx context.Context, id, studentRef string) error {
	_, err := r.Update(ctx, id, ReservationPatch{StudentRef: &studentRef})
	return err
}

// HasOverlap reports whether any reservation of lockerID in one of statuses
// overlaps rng (inclusive on both ends). excludeID, when set, is ignored.
func (r *ReservationRepo) HasOverlap(ctx context.Context, lockerID string, rng model.DateRange, statuses []model.Status, excludeID string) (bool, error) {
	if len(statuses) == 0 {
		return false, nil
	}
	q := `SELECT EXISTS(SELECT 1 FROM reservations
        WHERE locker_id = ? AND status IN (` + placeholders(len(statuses)) + `)
          AND start_date <= ? AND end_date >= ?`
	args := []any{lockerID}
	for _, s := range statuses {
		args = append(args, string(s))
	}
	args = append(args, rng.End.String(), rng.Start.String())
	if excludeID != "" {
		q += ` AND id <> ?`
		args = append(args, excludeID)
	}
	q += `)`

	var exists bool
	if err := r.q.QueryRowContext(ctx, q, args...).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// ExpireStalePending moves pending reservations created before cutoff to
// expired and returns how many rows changed.
func (r *ReservationRepo) ExpireStalePending(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `UPDATE reservations SET status = ?, updated_at = CURRENT_TIMESTAMP(3)
        WHERE status = ? AND created_at < ?`
	res, err := r.q.ExecContext(ctx, q, string(model.StatusExpired), string(model.StatusPending), cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
