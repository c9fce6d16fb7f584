package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/iliyamo/locker-rental/internal/model"
)

// StudentRepo stores renters keyed by their school student id.
type StudentRepo struct {
	db *sql.DB
}

// NewStudentRepo returns a StudentRepo bound to the given database.
func NewStudentRepo(db *sql.DB) *StudentRepo { return &StudentRepo{db: db} }

const studentCols = `id, student_name, student_id, student_email, created_at, updated_at`

func (r *StudentRepo) getOne(ctx context.Context, where string, arg any) (*model.Student, error) {
	var s model.Student
	err := r.db.QueryRowContext(ctx, `SELECT `+studentCols+` FROM students WHERE `+where, arg).
		Scan(&s.ID, &s.StudentName, &s.StudentID, &s.StudentEmail, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStudentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetByID looks a student up by internal id.
func (r *StudentRepo) GetByID(ctx context.Context, id string) (*model.Student, error) {
	return r.getOne(ctx, `id = ?`, id)
}

// GetByStudentID looks a student up by school student id.
func (r *StudentRepo) GetByStudentID(ctx context.Context, studentID string) (*model.Student, error) {
	return r.getOne(ctx, `student_id = ?`, studentID)
}

// GetByEmail looks a student up by email, case-insensitively.
func (r *StudentRepo) GetByEmail(ctx context.Context, email string) (*model.Student, error) {
	return r.getOne(ctx, `LOWER(student_email) = ?`, model.NormalizeEmail(email))
}

// Upsert creates the student or refreshes name and email when the student
// id already exists. The stored row is returned.
func (r *StudentRepo) Upsert(ctx context.Context, s model.Student) (*model.Student, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	const q = `INSERT INTO students (id, student_name, student_id, student_email)
        VALUES (?, ?, ?, ?)
        ON DUPLICATE KEY UPDATE
            student_name = VALUES(student_name),
            student_email = VALUES(student_email),
            updated_at = CURRENT_TIMESTAMP(3)`
	if _, err := r.db.ExecContext(ctx, q, s.ID, s.StudentName, s.StudentID, s.StudentEmail); err != nil {
		return nil, err
	}
	return r.GetByStudentID(ctx, s.StudentID)
}
