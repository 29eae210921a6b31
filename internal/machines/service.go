package machines

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/vendcare-backend/internal/inventory"
	"github.com/angelmondragon/vendcare-backend/pkg/config"
	"github.com/angelmondragon/vendcare-backend/pkg/db/models"
	"github.com/angelmondragon/vendcare-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendcare-backend/pkg/errors"
	"github.com/angelmondragon/vendcare-backend/pkg/security"
)

type machineRepository interface {
	FindByCode(ctx context.Context, code string) (*models.VendingMachine, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.VendingMachine, error)
	UpdateAPIKeyHash(ctx context.Context, id uuid.UUID, hash string) error
}

type slotLister interface {
	ListMachineSlots(ctx context.Context, machineID uuid.UUID) ([]inventory.Slot, error)
}

// Service exposes machine lookups and device authentication.
type Service interface {
	GetByCode(ctx context.Context, code string) (*MachineDTO, error)
	Lookup(ctx context.Context, code string) (*models.VendingMachine, error)
	Authenticate(ctx context.Context, code, deviceKey string) (*models.VendingMachine, error)
	RotateDeviceKey(ctx context.Context, machineID uuid.UUID) (string, error)
}

type service struct {
	repo   machineRepository
	slots  slotLister
	keyCfg config.DeviceKeyConfig
}

func NewService(repo machineRepository, slots slotLister, keyCfg config.DeviceKeyConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("machine repository required")
	}
	if slots == nil {
		return nil, fmt.Errorf("slot lister required")
	}
	return &service{repo: repo, slots: slots, keyCfg: keyCfg}, nil
}

// Lookup returns the machine behind a code without its slots.
func (s *service) Lookup(ctx context.Context, code string) (*models.VendingMachine, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "machine code is required")
	}
	machine, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "machine not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load machine")
	}
	return machine, nil
}

func (s *service) GetByCode(ctx context.Context, code string) (*MachineDTO, error) {
	machine, err := s.Lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	slots, err := s.slots.ListMachineSlots(ctx, machine.ID)
	if err != nil {
		return nil, err
	}
	dto := toMachineDTO(machine, slots)
	return &dto, nil
}

// Authenticate resolves a machine and checks the device key it presented.
func (s *service) Authenticate(ctx context.Context, code, deviceKey string) (*models.VendingMachine, error) {
	if strings.TrimSpace(deviceKey) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "machine key required")
	}
	machine, err := s.Lookup(ctx, code)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid machine credentials")
		}
		return nil, err
	}
	if machine.APIKeyHash == nil || *machine.APIKeyHash == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid machine credentials")
	}
	ok, err := security.VerifyDeviceKey(deviceKey, *machine.APIKeyHash)
	if err != nil || !ok {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid machine credentials")
	}
	if machine.Status == enums.MachineStatusOffline {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "machine is offline")
	}
	return machine, nil
}

// RotateDeviceKey issues a new device key. Only its hash is stored; the caller hands the
// plaintext to the machine once.
func (s *service) RotateDeviceKey(ctx context.Context, machineID uuid.UUID) (string, error) {
	if _, err := s.repo.FindByID(ctx, machineID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", pkgerrors.New(pkgerrors.CodeNotFound, "machine not found")
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load machine")
	}
	key, err := security.GenerateDeviceKey(32)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate device key")
	}
	hash, err := security.HashDeviceKey(key, s.keyCfg)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash device key")
	}
	if err := s.repo.UpdateAPIKeyHash(ctx, machineID, hash); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store device key")
	}
	return key, nil
}
