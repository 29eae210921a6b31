package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/vendcare-backend/api/responses"
	"github.com/angelmondragon/vendcare-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/vendcare-backend/pkg/errors"
	"github.com/angelmondragon/vendcare-backend/pkg/logger"
)

const MachineKeyHeader = "X-Machine-Key"

type machineAuthenticator interface {
	Authenticate(ctx context.Context, code, deviceKey string) (*models.VendingMachine, error)
}

// MachineKey authenticates a vending machine by the {machineCode} path parameter and its
// device key header.
func MachineKey(machines machineAuthenticator, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if machines == nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "machine authenticator not configured"))
				return
			}
			code := strings.TrimSpace(chi.URLParam(r, "machineCode"))
			key := strings.TrimSpace(r.Header.Get(MachineKeyHeader))
			if code == "" || key == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "machine credentials required"))
				return
			}

			machine, err := machines.Authenticate(r.Context(), code, key)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			ctx := WithMachine(r.Context(), machine)
			if logg != nil {
				ctx = logg.WithMachineCode(ctx, machine.MachineCode)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
