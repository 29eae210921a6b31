package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/vendcare-backend/api/responses"
	"github.com/angelmondragon/vendcare-backend/internal/machines"
	pkgerrors "github.com/angelmondragon/vendcare-backend/pkg/errors"
	"github.com/angelmondragon/vendcare-backend/pkg/logger"
)

type machineReader interface {
	GetByCode(ctx context.Context, code string) (*machines.MachineDTO, error)
}

// MachineDetail returns the machine behind a scanned code with its sellable slots.
func MachineDetail(svc machineReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "machine service unavailable"))
			return
		}
		code, err := machineCodeParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dto, err := svc.GetByCode(r.Context(), code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

func machineCodeParam(r *http.Request) (string, error) {
	code := strings.TrimSpace(chi.URLParam(r, "machineCode"))
	if code == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "machine code is required")
	}
	return code, nil
}
