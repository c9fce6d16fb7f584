package handler

import (
	"context"
	"net/http"
	"time"

	"cloud.google.com/go/civil"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/locker-rental/internal/model"
	"github.com/iliyamo/locker-rental/internal/service"
	"github.com/iliyamo/locker-rental/internal/utils"
)

// RentalReports are the read-only admin queries.
type RentalReports interface {
	ListRentals(ctx context.Context, activeOnly bool) ([]model.RentalRecord, error)
	Analytics(ctx context.Context, lockerCount int) (model.Analytics, error)
}

// LockerCounter reports how many lockers exist.
type LockerCounter interface {
	Count(ctx context.Context) (int, error)
}

// RentalManager changes rentals on behalf of the admin.
type RentalManager interface {
	Cancel(ctx context.Context, id string) (*model.Reservation, error)
	RequestDepositRefund(ctx context.Context, id string) (bool, error)
}

// AdminAuthConfig drives login and the session cookie.
type AdminAuthConfig struct {
	JWTSecret    string
	AccessTTLMin int
	PasswordHash string
	SecureCookie bool
}

type AdminHandler struct {
	Auth       AdminAuthConfig
	Reports    RentalReports
	Lockers    LockerCounter
	Rentals    RentalManager
	Extensions ExtensionCreator
	Log        logrus.FieldLogger
}

// Login checks the admin password and issues an access token, both in the
// body and as an HTTP-only cookie.
func (h *AdminHandler) Login(c echo.Context) error {
	var req struct {
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil || req.Password == "" {
		return badRequest(c, "password required")
	}
	if !utils.VerifyPassword(h.Auth.PasswordHash, req.Password) {
		h.Log.WithField("remote_ip", c.RealIP()).Warn("admin login failed")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	tok, err := utils.NewAccessToken(h.Auth.JWTSecret, "admin", utils.RoleAdmin, h.Auth.AccessTTLMin, time.Now())
	if err != nil {
		return fail(c, h.Log, err)
	}
	c.SetCookie(h.cookie(tok.Token, tok.Exp))
	return c.JSON(http.StatusOK, echo.Map{"token": tok.Token, "expiresAt": tok.Exp})
}

// Logout clears the session cookie.
func (h *AdminHandler) Logout(c echo.Context) error {
	c.SetCookie(h.cookie("", time.Unix(0, 0)))
	return c.NoContent(http.StatusNoContent)
}

// Session reports whether the caller holds a valid admin token.
func (h *AdminHandler) Session(c echo.Context) error {
	ck, err := c.Cookie(utils.AdminCookie)
	if err != nil || ck.Value == "" {
		return c.JSON(http.StatusOK, echo.Map{"authenticated": false})
	}
	claims, err := utils.ParseAccessToken(h.Auth.JWTSecret, ck.Value)
	if err != nil || claims.Role != utils.RoleAdmin {
		return c.JSON(http.StatusOK, echo.Map{"authenticated": false})
	}
	return c.JSON(http.StatusOK, echo.Map{"authenticated": true, "expiresAt": claims.Exp})
}

func (h *AdminHandler) cookie(value string, exp time.Time) *http.Cookie {
	ck := &http.Cookie{
		Name:     utils.AdminCookie,
		Value:    value,
		Path:     "/",
		Expires:  exp,
		HttpOnly: true,
		Secure:   h.Auth.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	}
	if value == "" {
		ck.MaxAge = -1
	}
	return ck
}

// ListRentals returns every rental, newest first.
func (h *AdminHandler) ListRentals(c echo.Context) error {
	return h.list(c, false)
}

// ListActive returns active rentals only.
func (h *AdminHandler) ListActive(c echo.Context) error {
	return h.list(c, true)
}

func (h *AdminHandler) list(c echo.Context, activeOnly bool) error {
	ctx, cancel := withTimeout(c, dbTimeout)
	defer cancel()
	items, err := h.Reports.ListRentals(ctx, activeOnly)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// Analytics returns revenue and occupancy figures.
func (h *AdminHandler) Analytics(c echo.Context) error {
	ctx, cancel := withTimeout(c, dbTimeout)
	defer cancel()
	n, err := h.Lockers.Count(ctx)
	if err != nil {
		return fail(c, h.Log, err)
	}
	a, err := h.Reports.Analytics(ctx, n)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, a)
}

// Cancel cancels a pending or active rental.
func (h *AdminHandler) Cancel(c echo.Context) error {
	ctx, cancel := withTimeout(c, dbTimeout)
	defer cancel()
	res, err := h.Rentals.Cancel(ctx, c.Param("id"))
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Extend starts an extension checkout for the rental in the path.
func (h *AdminHandler) Extend(c echo.Context) error {
	var req struct {
		NewEndDate      civil.Date `json:"newEndDate"`
		ExtensionMonths int        `json:"extensionMonths"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := withTimeout(c, paymentTimeout)
	defer cancel()
	res, err := h.Extensions.CreateExtension(ctx, service.ExtensionInput{
		ReservationID:   c.Param("id"),
		NewEndDate:      req.NewEndDate,
		ExtensionMonths: req.ExtensionMonths,
	})
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, checkoutResp{SessionID: res.SessionID, URL: res.PaymentURL, ReservationID: res.Reservation.ID})
}

// RefundRequest asks the admin address to refund a rental's key deposit.
func (h *AdminHandler) RefundRequest(c echo.Context) error {
	ctx, cancel := withTimeout(c, dbTimeout)
	defer cancel()
	sent, err := h.Rentals.RequestDepositRefund(ctx, c.Param("id"))
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"emailSent": sent})
}
