package dispensing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/vendcare-backend/pkg/db/models"
	"github.com/angelmondragon/vendcare-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendcare-backend/pkg/errors"
	"github.com/angelmondragon/vendcare-backend/pkg/logger"
	"github.com/angelmondragon/vendcare-backend/pkg/metrics"
	"github.com/angelmondragon/vendcare-backend/pkg/outbox"
)

// OrderStore is the slice of the order repository the lifecycle needs.
type OrderStore interface {
	FindByDispensingCode(ctx context.Context, machineID uuid.UUID, code string) (*models.Order, error)
	GetForUser(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error)
	TransitionStatus(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, updates map[string]any) (bool, error)
	MarkItemsDispensed(ctx context.Context, orderID uuid.UUID) error
	ListExpiredPaid(ctx context.Context, now time.Time, limit int) ([]models.Order, error)
}

// OrderStoreFactory binds an OrderStore to a transaction.
type OrderStoreFactory func(tx *gorm.DB) OrderStore

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitOnce(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type machineLookup interface {
	Lookup(ctx context.Context, code string) (*models.VendingMachine, error)
}

// Redemption is what the machine needs to vend: the order and the slots to drop.
type Redemption struct {
	OrderID     uuid.UUID         `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	Status      enums.OrderStatus `json:"status"`
	DispensedAt time.Time         `json:"dispensed_at"`
	Items       []RedemptionItem  `json:"items"`
}

type RedemptionItem struct {
	ProductID  uuid.UUID `json:"product_id"`
	SlotNumber string    `json:"slot_number"`
	Quantity   int       `json:"quantity"`
}

// ServiceParams wires the dispensing lifecycle.
type ServiceParams struct {
	DB       txRunner
	Orders   OrderStoreFactory
	Machines machineLookup
	Outbox   eventEmitter
	Metrics  *metrics.CheckoutMetrics
	Logger   *logger.Logger
	Now      func() time.Time
}

// Service moves orders through paid → dispensed → completed and retires stale codes.
type Service struct {
	db       txRunner
	orders   OrderStoreFactory
	machines machineLookup
	outbox   eventEmitter
	metrics  *metrics.CheckoutMetrics
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order store factory required")
	}
	if params.Machines == nil {
		return nil, fmt.Errorf("machine lookup required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		db:       params.DB,
		orders:   params.Orders,
		machines: params.Machines,
		outbox:   params.Outbox,
		metrics:  params.Metrics,
		logg:     params.Logger,
		now:      now,
	}, nil
}

// Redeem is called by the machine once a buyer enters a code. A matching, live, paid order
// becomes dispensed. A code whose window has passed expires the order on the spot.
func (s *Service) Redeem(ctx context.Context, machineCode, rawCode string) (*Redemption, error) {
	code := NormalizeCode(rawCode)
	if !ValidCode(code) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "dispensing code must be 6 letters or digits")
	}
	machine, err := s.machines.Lookup(ctx, machineCode)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithDispensingCode(s.logg.WithMachineCode(ctx, machine.MachineCode), code)

	var (
		result      *Redemption
		codeExpired bool
	)
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		store := s.orders(tx)
		order, err := store.FindByDispensingCode(ctx, machine.ID, code)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeDispensingCodeError, "invalid dispensing code")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup dispensing code")
		}

		now := s.now().UTC()
		if IsExpired(order, now) {
			codeExpired = true
			if order.Status == enums.OrderStatusPaid {
				return s.expire(ctx, tx, store, order, now)
			}
			return nil
		}
		if err := Transition(order.Status, enums.OrderStatusDispensed); err != nil {
			return pkgerrors.New(pkgerrors.CodeDispensingCodeError, "dispensing code already used").
				WithDetails(map[string]any{"status": order.Status})
		}

		moved, err := store.TransitionStatus(ctx, order.ID, enums.OrderStatusPaid, enums.OrderStatusDispensed, map[string]any{
			"dispensed_at": now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order dispensed")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeDispensingCodeError, "dispensing code already used")
		}
		if err := store.MarkItemsDispensed(ctx, order.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark items dispensed")
		}

		redemption := &Redemption{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			Status:      enums.OrderStatusDispensed,
			DispensedAt: now,
			Items:       make([]RedemptionItem, 0, len(order.Items)),
		}
		for _, item := range order.Items {
			redemption.Items = append(redemption.Items, RedemptionItem{
				ProductID:  item.ProductID,
				SlotNumber: item.SlotNumber,
				Quantity:   item.Quantity,
			})
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderDispensed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         outbox.SystemActor("machine:" + machine.MachineCode),
			Data:          redemption,
			OccurredAt:    now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order dispensed")
		}
		result = redemption
		return nil
	})
	if err != nil {
		return nil, err
	}
	if codeExpired {
		return nil, pkgerrors.New(pkgerrors.CodeDispensingCodeError, "dispensing code expired")
	}
	s.metrics.IncOrderTransition(string(enums.OrderStatusDispensed))
	s.logg.Info(s.logg.WithOrderID(ctx, result.OrderID.String()), "order dispensed")
	return result, nil
}

// ReportFailure records that the machine could not vend a paid order.
func (s *Service) ReportFailure(ctx context.Context, machineCode, rawCode, reason string) error {
	code := NormalizeCode(rawCode)
	if !ValidCode(code) {
		return pkgerrors.New(pkgerrors.CodeValidation, "dispensing code must be 6 letters or digits")
	}
	machine, err := s.machines.Lookup(ctx, machineCode)
	if err != nil {
		return err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "machine_fault"
	}

	var orderID uuid.UUID
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		store := s.orders(tx)
		order, err := store.FindByDispensingCode(ctx, machine.ID, code)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeDispensingCodeError, "invalid dispensing code")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup dispensing code")
		}
		if err := Transition(order.Status, enums.OrderStatusFailed); err != nil {
			return err
		}
		moved, err := store.TransitionStatus(ctx, order.ID, enums.OrderStatusPaid, enums.OrderStatusFailed, nil)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order failed")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is no longer paid")
		}
		orderID = order.ID
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderFailed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         outbox.SystemActor("machine:" + machine.MachineCode),
			Data:          map[string]any{"order_id": order.ID, "reason": reason, "payment_id": order.PaymentID},
		})
	})
	if err != nil {
		return err
	}
	s.metrics.IncOrderTransition(string(enums.OrderStatusFailed))
	s.logg.Warn(s.logg.WithOrderID(ctx, orderID.String()), "machine reported dispense failure: "+reason)
	return nil
}

// Complete is the buyer confirming pickup of a dispensed order.
func (s *Service) Complete(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	var completed *models.Order
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		store := s.orders(tx)
		order, err := store.GetForUser(ctx, orderID, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if err := Transition(order.Status, enums.OrderStatusCompleted); err != nil {
			return err
		}
		now := s.now().UTC()
		moved, err := store.TransitionStatus(ctx, order.ID, enums.OrderStatusDispensed, enums.OrderStatusCompleted, map[string]any{
			"completed_at": now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete order")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently")
		}
		order.Status = enums.OrderStatusCompleted
		order.CompletedAt = &now
		completed = order
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCompleted,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         outbox.UserActor(userID, string(enums.RoleCustomer)),
			Data:          map[string]any{"order_id": order.ID, "completed_at": now},
			OccurredAt:    now,
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncOrderTransition(string(enums.OrderStatusCompleted))
	return completed, nil
}

// ExpireOverdue marks up to limit paid orders whose code window has passed as expired.
// Failures on individual orders are collected and do not stop the batch.
func (s *Service) ExpireOverdue(ctx context.Context, limit int) (int, error) {
	now := s.now().UTC()

	var overdue []models.Order
	if err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		overdue, err = s.orders(tx).ListExpiredPaid(ctx, now, limit)
		return err
	}); err != nil {
		return 0, fmt.Errorf("list overdue orders: %w", err)
	}

	expired := 0
	var errs error
	for i := range overdue {
		order := overdue[i]
		err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
			return s.expire(ctx, tx, s.orders(tx), &order, now)
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire order %s: %w", order.ID, err))
			continue
		}
		expired++
		s.metrics.IncOrderTransition(string(enums.OrderStatusExpired))
	}
	return expired, errs
}

func (s *Service) expire(ctx context.Context, tx *gorm.DB, store OrderStore, order *models.Order, now time.Time) error {
	moved, err := store.TransitionStatus(ctx, order.ID, enums.OrderStatusPaid, enums.OrderStatusExpired, nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order expired")
	}
	if !moved {
		return nil
	}
	return s.outbox.EmitOnce(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderExpired,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         outbox.SystemActor("dispensing-expiry"),
		Data: map[string]any{
			"order_id":                   order.ID,
			"payment_id":                 order.PaymentID,
			"dispensing_code_expires_at": order.DispensingCodeExpiresAt,
		},
		OccurredAt: now,
	})
}
