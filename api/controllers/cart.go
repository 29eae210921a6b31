package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/vendcare-backend/api/responses"
	"github.com/angelmondragon/vendcare-backend/api/validators"
	"github.com/angelmondragon/vendcare-backend/internal/checkout"
	pkgerrors "github.com/angelmondragon/vendcare-backend/pkg/errors"
	"github.com/angelmondragon/vendcare-backend/pkg/logger"
)

// CartEditor is the cart surface the buyer app drives.
type CartEditor interface {
	Get(ctx context.Context, userID uuid.UUID, machineCode string) (*checkout.CartView, error)
	AddItem(ctx context.Context, userID uuid.UUID, machineCode string, productID uuid.UUID, qty int) (*checkout.CartView, error)
	UpdateItem(ctx context.Context, userID uuid.UUID, machineCode string, productID uuid.UUID, qty int) (*checkout.CartView, error)
	RemoveItem(ctx context.Context, userID uuid.UUID, machineCode string, productID uuid.UUID) (*checkout.CartView, error)
	Clear(ctx context.Context, userID uuid.UUID, machineCode string) error
}

type addCartItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"min=1,max=10"`
}

type updateCartItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"min=0,max=10"`
}

func CartGet(svc CartEditor, logg *logger.Logger) http.HandlerFunc {
	return cartHandler(svc, logg, func(_ http.ResponseWriter, r *http.Request, userID uuid.UUID, machineCode string) (int, any, error) {
		view, err := svc.Get(r.Context(), userID, machineCode)
		return http.StatusOK, view, err
	})
}

// CartAddItem adds a product or tops up its quantity.
func CartAddItem(svc CartEditor, logg *logger.Logger) http.HandlerFunc {
	return cartHandler(svc, logg, func(w http.ResponseWriter, r *http.Request, userID uuid.UUID, machineCode string) (int, any, error) {
		var body addCartItemRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			return 0, nil, err
		}
		view, err := svc.AddItem(r.Context(), userID, machineCode, uuid.MustParse(body.ProductID), body.Quantity)
		return http.StatusCreated, view, err
	})
}

// CartUpdateItem sets a line quantity. Zero removes the line.
func CartUpdateItem(svc CartEditor, logg *logger.Logger) http.HandlerFunc {
	return cartHandler(svc, logg, func(w http.ResponseWriter, r *http.Request, userID uuid.UUID, machineCode string) (int, any, error) {
		var body updateCartItemRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			return 0, nil, err
		}
		view, err := svc.UpdateItem(r.Context(), userID, machineCode, uuid.MustParse(body.ProductID), body.Quantity)
		return http.StatusOK, view, err
	})
}

// CartDelete drops one product when ?product_id is given, otherwise the whole cart.
func CartDelete(svc CartEditor, logg *logger.Logger) http.HandlerFunc {
	return cartHandler(svc, logg, func(_ http.ResponseWriter, r *http.Request, userID uuid.UUID, machineCode string) (int, any, error) {
		raw := strings.TrimSpace(r.URL.Query().Get("product_id"))
		if raw == "" {
			if err := svc.Clear(r.Context(), userID, machineCode); err != nil {
				return 0, nil, err
			}
			return http.StatusOK, map[string]any{"machine_code": machineCode, "cleared": true}, nil
		}
		productID, err := uuid.Parse(raw)
		if err != nil {
			return 0, nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id")
		}
		view, err := svc.RemoveItem(r.Context(), userID, machineCode, productID)
		return http.StatusOK, view, err
	})
}

func cartHandler(svc CartEditor, logg *logger.Logger, fn func(w http.ResponseWriter, r *http.Request, userID uuid.UUID, machineCode string) (int, any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		machineCode, err := machineCodeParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, data, err := fn(w, r, userID, machineCode)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, status, data)
	}
}
