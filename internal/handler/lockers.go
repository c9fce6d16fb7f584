package handler

import (
	"context"
	"net/http"
	"time"

	"cloud.google.com/go/civil"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/locker-rental/internal/model"
)

// LockerLister is the locker listing query.
type LockerLister interface {
	ListWithAvailability(ctx context.Context, rng model.DateRange) ([]model.LockerAvailability, error)
}

type LockerHandler struct {
	Lockers LockerLister
	Loc     *time.Location
	Log     logrus.FieldLogger
	now     func() time.Time
}

func NewLockerHandler(lockers LockerLister, loc *time.Location, log logrus.FieldLogger) *LockerHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &LockerHandler{Lockers: lockers, Loc: loc, Log: log, now: time.Now}
}

// List returns every locker with its status for ?startDate&endDate.
// Without a range the status is for today.
func (h *LockerHandler) List(c echo.Context) error {
	start, end := c.QueryParam("startDate"), c.QueryParam("endDate")

	var rng model.DateRange
	switch {
	case start == "" && end == "":
		today := civil.DateOf(h.now().In(h.Loc))
		rng = model.DateRange{Start: today, End: today}
	case start == "" || end == "":
		return badRequest(c, "startDate and endDate must be given together")
	default:
		s, err := civil.ParseDate(start)
		if err != nil {
			return badRequest(c, "invalid startDate")
		}
		e, err := civil.ParseDate(end)
		if err != nil {
			return badRequest(c, "invalid endDate")
		}
		if e.Before(s) {
			return badRequest(c, "endDate must not be before startDate")
		}
		rng = model.DateRange{Start: s, End: e}
	}

	ctx, cancel := withTimeout(c, dbTimeout)
	defer cancel()
	lockers, err := h.Lockers.ListWithAvailability(ctx, rng)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": lockers, "startDate": rng.Start, "endDate": rng.End})
}
