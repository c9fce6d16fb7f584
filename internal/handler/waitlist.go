package handler

import (
	"context"
	"net/http"
	"net/mail"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/locker-rental/internal/model"
	"github.com/iliyamo/locker-rental/internal/repository"
)

// WaitlistStore is the admin view of the waitlist.
type WaitlistStore interface {
	List(ctx context.Context) ([]model.WaitlistEntry, error)
	Create(ctx context.Context, e model.WaitlistEntry) (*model.WaitlistEntry, error)
	Update(ctx context.Context, id string, p repository.WaitlistPatch) (*model.WaitlistEntry, error)
	Delete(ctx context.Context, id string) error
}

type WaitlistHandler struct {
	Waitlist WaitlistStore
	Log      logrus.FieldLogger
}

type waitlistReq struct {
	FullName           *string     `json:"fullName"`
	Email              *string     `json:"email"`
	StudentID          *string     `json:"studentId"`
	PotentialStartDate *civil.Date `json:"potentialStartDate"`
	PotentialEndDate   *civil.Date `json:"potentialEndDate"`
	Status             *string     `json:"status"`
}

func (r waitlistReq) validate(create bool) string {
	if create {
		if r.FullName == nil || r.Email == nil || r.StudentID == nil ||
			r.PotentialStartDate == nil || r.PotentialEndDate == nil {
			return "fullName, email, studentId, potentialStartDate and potentialEndDate are required"
		}
	}
	for name, v := range map[string]*string{"fullName": r.FullName, "studentId": r.StudentID} {
		if v != nil && strings.TrimSpace(*v) == "" {
			return name + " must not be empty"
		}
	}
	if r.Email != nil {
		if _, err := mail.ParseAddress(strings.TrimSpace(*r.Email)); err != nil {
			return "invalid email"
		}
	}
	if r.PotentialStartDate != nil && r.PotentialEndDate != nil && r.PotentialEndDate.Before(*r.PotentialStartDate) {
		return "potentialEndDate must not be before potentialStartDate"
	}
	if r.Status != nil {
		if _, err := model.ParseWaitlistStatus(*r.Status); err != nil {
			return err.Error()
		}
	}
	return ""
}

// List returns the waitlist in signup order.
func (h *WaitlistHandler) List(c echo.Context) error {
	ctx, cancel := withTimeout(c, dbTimeout)
	defer cancel()
	items, err := h.Waitlist.List(ctx)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

func (h *WaitlistHandler) Create(c echo.Context) error {
	var req waitlistReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if msg := req.validate(true); msg != "" {
		return badRequest(c, msg)
	}
	entry := model.WaitlistEntry{
		FullName:           *req.FullName,
		Email:              *req.Email,
		StudentID:          *req.StudentID,
		PotentialStartDate: *req.PotentialStartDate,
		PotentialEndDate:   *req.PotentialEndDate,
		Status:             model.WaitlistNone,
	}
	if req.Status != nil {
		entry.Status, _ = model.ParseWaitlistStatus(*req.Status)
	}

	ctx, cancel := withTimeout(c, dbTimeout)
	defer cancel()
	out, err := h.Waitlist.Create(ctx, entry)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *WaitlistHandler) Update(c echo.Context) error {
	var req waitlistReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if msg := req.validate(false); msg != "" {
		return badRequest(c, msg)
	}
	patch := repository.WaitlistPatch{
		FullName:           req.FullName,
		Email:              req.Email,
		StudentID:          req.StudentID,
		PotentialStartDate: req.PotentialStartDate,
		PotentialEndDate:   req.PotentialEndDate,
	}
	if req.Status != nil {
		st, _ := model.ParseWaitlistStatus(*req.Status)
		patch.Status = &st
	}

	ctx, cancel := withTimeout(c, dbTimeout)
	defer cancel()
	out, err := h.Waitlist.Update(ctx, c.Param("id"), patch)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *WaitlistHandler) Delete(c echo.Context) error {
	ctx, cancel := withTimeout(c, dbTimeout)
	defer cancel()
	if err := h.Waitlist.Delete(ctx, c.Param("id")); err != nil {
		return fail(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}
