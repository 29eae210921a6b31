package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/vendcare-backend/api/responses"
	"github.com/angelmondragon/vendcare-backend/api/validators"
	"github.com/angelmondragon/vendcare-backend/internal/inventory"
	pkgerrors "github.com/angelmondragon/vendcare-backend/pkg/errors"
	"github.com/angelmondragon/vendcare-backend/pkg/logger"
)

type SlotUpdater interface {
	Update(ctx context.Context, machineID, productID uuid.UUID, quantityAvailable int) (*inventory.Slot, error)
}

type DeviceKeyRotator interface {
	RotateDeviceKey(ctx context.Context, machineID uuid.UUID) (string, error)
}

type restockRequest struct {
	QuantityAvailable *int `json:"quantity_available" validate:"required,min=0"`
}

type slotResponse struct {
	MachineID         uuid.UUID `json:"machine_id"`
	ProductID         uuid.UUID `json:"product_id"`
	SlotNumber        string    `json:"slot_number"`
	QuantityAvailable int       `json:"quantity_available"`
	Reserved          int       `json:"reserved"`
	Available         int       `json:"available"`
	MaxCapacity       int       `json:"max_capacity"`
}

// OperatorRestock sets a slot's stock after an operator refills it.
func OperatorRestock(store SlotUpdater, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory store unavailable"))
			return
		}
		machineID, err := uuidParam(r, "machineId", "machine id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := uuidParam(r, "productId", "product id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body restockRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		slot, err := store.Update(r.Context(), machineID, productID, *body.QuantityAvailable)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, slotResponse{
			MachineID:         slot.MachineID,
			ProductID:         slot.ProductID,
			SlotNumber:        slot.SlotNumber,
			QuantityAvailable: slot.QuantityAvailable,
			Reserved:          slot.Reserved,
			Available:         slot.Available(),
			MaxCapacity:       slot.MaxCapacity,
		})
	}
}

// OperatorRotateDeviceKey returns the new plaintext key exactly once.
func OperatorRotateDeviceKey(svc DeviceKeyRotator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "machine service unavailable"))
			return
		}
		machineID, err := uuidParam(r, "machineId", "machine id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		key, err := svc.RotateDeviceKey(r.Context(), machineID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{
			"machine_id": machineID,
			"device_key": key,
		})
	}
}
