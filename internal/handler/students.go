package handler

import (
	"context"
	"net/http"
	"net/mail"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/locker-rental/internal/model"
)

// StudentDirectory is the student store used by the public API.
type StudentDirectory interface {
	GetByStudentID(ctx context.Context, studentID string) (*model.Student, error)
	Upsert(ctx context.Context, s model.Student) (*model.Student, error)
}

type StudentHandler struct {
	Students StudentDirectory
	Log      logrus.FieldLogger
}

type studentReq struct {
	StudentName  string `json:"studentName"`
	StudentID    string `json:"studentId"`
	StudentEmail string `json:"studentEmail"`
}

// Upsert creates a student or refreshes name and email for a known
// student id.
func (h *StudentHandler) Upsert(c echo.Context) error {
	var req studentReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	req.StudentName = strings.TrimSpace(req.StudentName)
	req.StudentID = strings.TrimSpace(req.StudentID)
	req.StudentEmail = model.NormalizeEmail(req.StudentEmail)
	if req.StudentName == "" || req.StudentID == "" || req.StudentEmail == "" {
		return badRequest(c, "studentName, studentId and studentEmail are required")
	}
	if _, err := mail.ParseAddress(req.StudentEmail); err != nil {
		return badRequest(c, "invalid studentEmail")
	}

	ctx, cancel := withTimeout(c, dbTimeout)
	defer cancel()
	s, err := h.Students.Upsert(ctx, model.Student{
		StudentName:  req.StudentName,
		StudentID:    req.StudentID,
		StudentEmail: req.StudentEmail,
	})
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, s)
}

// Validate looks a student up by school id.
func (h *StudentHandler) Validate(c echo.Context) error {
	var req struct {
		StudentID string `json:"studentId"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	id := strings.TrimSpace(req.StudentID)
	if id == "" {
		return badRequest(c, "studentId is required")
	}
	ctx, cancel := withTimeout(c, dbTimeout)
	defer cancel()
	s, err := h.Students.GetByStudentID(ctx, id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"valid": true, "student": s})
}
