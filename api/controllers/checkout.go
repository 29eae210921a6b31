package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/vendcare-backend/api/responses"
	"github.com/angelmondragon/vendcare-backend/api/validators"
	"github.com/angelmondragon/vendcare-backend/internal/checkout"
	"github.com/angelmondragon/vendcare-backend/internal/orders"
	"github.com/angelmondragon/vendcare-backend/pkg/db/models"
	"github.com/angelmondragon/vendcare-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendcare-backend/pkg/errors"
	"github.com/angelmondragon/vendcare-backend/pkg/logger"
)

// CheckoutRunner is the orchestrator surface the API needs.
type CheckoutRunner interface {
	InitiateCheckout(ctx context.Context, session *checkout.Session) (*checkout.PaymentRedirect, error)
	GetSession(ctx context.Context, userID, sessionID uuid.UUID) (*models.CheckoutSession, error)
	Confirm(ctx context.Context, userID, sessionID uuid.UUID, outcome enums.PaymentOutcome) (*checkout.Result, error)
}

// SessionBuilder assembles a checkout session from the buyer's cart.
type SessionBuilder interface {
	Session(ctx context.Context, userID uuid.UUID, machineCode string) (*checkout.Session, error)
}

type initiateCheckoutRequest struct {
	MachineCode string `json:"machine_code" validate:"required,machinecode"`
}

type confirmCheckoutRequest struct {
	Outcome string `json:"outcome" validate:"required"`
}

type checkoutSessionResponse struct {
	ID            uuid.UUID            `json:"id"`
	OrderNumber   string               `json:"order_number"`
	MachineCode   string               `json:"machine_code"`
	Status        enums.CheckoutStatus `json:"status"`
	TotalAmount   decimal.Decimal      `json:"total_amount"`
	RedirectURL   *string              `json:"redirect_url,omitempty"`
	HoldExpiresAt time.Time            `json:"hold_expires_at"`
	OrderID       *uuid.UUID           `json:"order_id,omitempty"`
	FailureReason *string              `json:"failure_reason,omitempty"`
	Items         models.CartLines     `json:"items"`
	CreatedAt     time.Time            `json:"created_at"`
}

type checkoutResultResponse struct {
	SessionID uuid.UUID             `json:"session_id"`
	Status    checkout.ResultStatus `json:"status"`
	Message   string                `json:"message,omitempty"`
	Order     *orders.OrderDetail   `json:"order,omitempty"`
}

// CheckoutInitiate reserves stock for the buyer's cart and opens a payment session.
func CheckoutInitiate(svc CheckoutRunner, carts SessionBuilder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || carts == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body initiateCheckoutRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := carts.Session(r.Context(), userID, validators.MachineCode(body.MachineCode))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		redirect, err := svc.InitiateCheckout(r.Context(), session)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, redirect)
	}
}

// CheckoutConfirm records what the payment page returned with and reconciles the session.
func CheckoutConfirm(svc CheckoutRunner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sessionID, err := uuidParam(r, "sessionId", "session id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body confirmCheckoutRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		outcome, err := enums.ParsePaymentOutcome(body.Outcome)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid outcome").
				WithDetails(map[string]any{"outcome": "must be USER_CANCEL or CONCLUDED"}))
			return
		}

		result, err := svc.Confirm(r.Context(), userID, sessionID, outcome)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusOK
		if result.Status == checkout.ResultPending {
			status = http.StatusAccepted
		}
		responses.WriteSuccessStatus(w, status, newCheckoutResultResponse(result, time.Now().UTC()))
	}
}

func CheckoutStatus(svc CheckoutRunner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sessionID, err := uuidParam(r, "sessionId", "session id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		record, err := svc.GetSession(r.Context(), userID, sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCheckoutSessionResponse(record))
	}
}

func newCheckoutSessionResponse(record *models.CheckoutSession) checkoutSessionResponse {
	return checkoutSessionResponse{
		ID:            record.ID,
		OrderNumber:   record.OrderNumber,
		MachineCode:   record.MachineCode,
		Status:        record.Status,
		TotalAmount:   record.TotalAmount,
		RedirectURL:   record.RedirectURL,
		HoldExpiresAt: record.HoldExpiresAt,
		OrderID:       record.OrderID,
		FailureReason: record.FailureReason,
		Items:         record.Cart,
		CreatedAt:     record.CreatedAt,
	}
}

func newCheckoutResultResponse(result *checkout.Result, now time.Time) checkoutResultResponse {
	resp := checkoutResultResponse{
		SessionID: result.SessionID,
		Status:    result.Status,
		Message:   result.Message,
	}
	if result.Order != nil {
		detail := orders.ToDetail(result.Order, now)
		resp.Order = &detail
	}
	return resp
}
