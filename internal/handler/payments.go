package handler

import (
	"context"
	"net/http"

	"cloud.google.com/go/civil"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/locker-rental/internal/service"
)

// CheckoutCreator starts a new rental payment.
type CheckoutCreator interface {
	CreateCheckout(ctx context.Context, in service.CheckoutInput) (*service.CheckoutResult, error)
}

// ExtensionCreator starts a payment that extends an active rental.
type ExtensionCreator interface {
	CreateExtension(ctx context.Context, in service.ExtensionInput) (*service.CheckoutResult, error)
}

// PortalCreator opens a billing portal for a returning payer.
type PortalCreator interface {
	CreatePortalSession(ctx context.Context, customerID string) (string, error)
}

type PaymentHandler struct {
	Checkout   CheckoutCreator
	Extensions ExtensionCreator
	Portal     PortalCreator
	Log        logrus.FieldLogger
}

type checkoutReq struct {
	LockerID      string     `json:"lockerId"`
	StartDate     civil.Date `json:"startDate"`
	EndDate       civil.Date `json:"endDate"`
	TotalMonths   int        `json:"totalMonths"`
	CustomerEmail string     `json:"customerEmail"`
	CustomerName  string     `json:"customerName"`
	StudentRef    string     `json:"studentRef"`
	StudentEmail  string     `json:"studentEmail"`
}

type extensionReq struct {
	ReservationID   string     `json:"reservationId"`
	NewEndDate      civil.Date `json:"newEndDate"`
	ExtensionMonths int        `json:"extensionMonths"`
}

type portalReq struct {
	CustomerID string `json:"customerId"`
}

type checkoutResp struct {
	SessionID     string `json:"sessionId"`
	URL           string `json:"url"`
	ReservationID string `json:"reservationId"`
}

// CreateCheckout opens a hosted checkout for a new rental.
func (h *PaymentHandler) CreateCheckout(c echo.Context) error {
	var req checkoutReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := withTimeout(c, paymentTimeout)
	defer cancel()

	res, err := h.Checkout.CreateCheckout(ctx, service.CheckoutInput{
		LockerID:    req.LockerID,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		TotalMonths: req.TotalMonths,
		Customer: service.Customer{
			Email:        req.CustomerEmail,
			Name:         req.CustomerName,
			StudentRef:   req.StudentRef,
			StudentEmail: req.StudentEmail,
		},
	})
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, checkoutResp{SessionID: res.SessionID, URL: res.PaymentURL, ReservationID: res.Reservation.ID})
}

// CreateExtension opens a hosted checkout extending an active rental.
func (h *PaymentHandler) CreateExtension(c echo.Context) error {
	var req extensionReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := withTimeout(c, paymentTimeout)
	defer cancel()
	res, err := h.Extensions.CreateExtension(ctx, service.ExtensionInput{
		ReservationID:   req.ReservationID,
		NewEndDate:      req.NewEndDate,
		ExtensionMonths: req.ExtensionMonths,
	})
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, checkoutResp{SessionID: res.SessionID, URL: res.PaymentURL, ReservationID: res.Reservation.ID})
}

// CreatePortal returns a billing portal link for a payer account.
func (h *PaymentHandler) CreatePortal(c echo.Context) error {
	var req portalReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := withTimeout(c, paymentTimeout)
	defer cancel()
	url, err := h.Portal.CreatePortalSession(ctx, req.CustomerID)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"url": url})
}
