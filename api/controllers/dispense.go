package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/vendcare-backend/api/middleware"
	"github.com/angelmondragon/vendcare-backend/api/responses"
	"github.com/angelmondragon/vendcare-backend/api/validators"
	"github.com/angelmondragon/vendcare-backend/internal/dispensing"
	pkgerrors "github.com/angelmondragon/vendcare-backend/pkg/errors"
	"github.com/angelmondragon/vendcare-backend/pkg/logger"
)

// Dispenser is the machine-side half of the dispensing lifecycle.
type Dispenser interface {
	Redeem(ctx context.Context, machineCode, rawCode string) (*dispensing.Redemption, error)
	ReportFailure(ctx context.Context, machineCode, rawCode, reason string) error
}

type dispenseRequest struct {
	Code string `json:"code" validate:"required,keypad"`
}

type dispenseFailureRequest struct {
	Code   string `json:"code" validate:"required,keypad"`
	Reason string `json:"reason" validate:"omitempty,max=120"`
}

// Dispense redeems a code typed on the machine keypad and returns the slots to drop.
func Dispense(svc Dispenser, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dispensing service unavailable"))
			return
		}
		machine := middleware.MachineFromContext(r.Context())
		if machine == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "machine context missing"))
			return
		}

		var body dispenseRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		redemption, err := svc.Redeem(r.Context(), machine.MachineCode, body.Code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, redemption)
	}
}

func DispenseFailure(svc Dispenser, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dispensing service unavailable"))
			return
		}
		machine := middleware.MachineFromContext(r.Context())
		if machine == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "machine context missing"))
			return
		}

		var body dispenseFailureRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		reason := validators.SanitizeString(body.Reason, 120)
		if err := svc.ReportFailure(r.Context(), machine.MachineCode, body.Code, reason); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"recorded": true})
	}
}
