package checkout

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/vendcare-backend/internal/dispensing"
	"github.com/angelmondragon/vendcare-backend/internal/gateway"
	"github.com/angelmondragon/vendcare-backend/internal/inventory"
	"github.com/angelmondragon/vendcare-backend/internal/orders"
	"github.com/angelmondragon/vendcare-backend/pkg/config"
	dbpkg "github.com/angelmondragon/vendcare-backend/pkg/db"
	"github.com/angelmondragon/vendcare-backend/pkg/db/models"
	"github.com/angelmondragon/vendcare-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendcare-backend/pkg/errors"
	"github.com/angelmondragon/vendcare-backend/pkg/logger"
	"github.com/angelmondragon/vendcare-backend/pkg/metrics"
	"github.com/angelmondragon/vendcare-backend/pkg/outbox"
)

const (
	reasonInsufficientStock = "insufficient_stock"
	reasonGatewayError      = "gateway_error"
	reasonPaymentFailed     = "payment_failed"
	maxCodeAttempts         = 5
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// PaymentGateway is the broker surface checkout depends on.
type PaymentGateway interface {
	CreatePaymentSession(ctx context.Context, intent gateway.OrderIntent) (*gateway.Session, error)
	CheckPaymentStatus(ctx context.Context, merchantOrderID string) (*gateway.Status, error)
}

type holdStore interface {
	Reserve(ctx context.Context, tx *gorm.DB, sessionID, machineID uuid.UUID, lines []inventory.HoldRequest, ttl time.Duration) ([]models.InventoryHold, error)
	Commit(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]models.InventoryHold, error)
	Release(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (int64, error)
	Decrement(ctx context.Context, tx *gorm.DB, machineID, productID uuid.UUID, qty int) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitOnce(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// finalizeGuard deduplicates concurrent finalizers of one payment.
type finalizeGuard interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	FinalizeKey(paymentRef string) string
}

// PaymentRedirect tells the client where to pay.
type PaymentRedirect struct {
	SessionID       uuid.UUID       `json:"session_id"`
	OrderNumber     string          `json:"order_number"`
	MerchantOrderID string          `json:"merchant_order_id"`
	RedirectURL     string          `json:"redirect_url"`
	Amount          decimal.Decimal `json:"amount"`
	ExpiresAt       time.Time       `json:"expires_at"`
}

// PaymentConfirmation is a verified COMPLETED payment for a session.
type PaymentConfirmation struct {
	SessionID     uuid.UUID
	PaymentID     string
	TransactionID string
	PaidAt        *time.Time
}

// ResultStatus is where a checkout stands after the buyer returns or the broker calls back.
type ResultStatus string

const (
	ResultPaid      ResultStatus = "paid"
	ResultPending   ResultStatus = "pending"
	ResultCancelled ResultStatus = "cancelled"
	ResultFailed    ResultStatus = "failed"
	ResultExpired   ResultStatus = "expired"
)

// Result is the outcome of Confirm and HandleWebhook. Cancellation is a result, not an error.
type Result struct {
	SessionID uuid.UUID     `json:"session_id"`
	Status    ResultStatus  `json:"status"`
	Message   string        `json:"message,omitempty"`
	Order     *models.Order `json:"-"`
}

// ServiceParams wires the checkout orchestrator.
type ServiceParams struct {
	DB        txRunner
	Sessions  Repository
	Orders    orders.Repository
	Inventory holdStore
	Gateway   PaymentGateway
	Outbox    eventEmitter
	Guard     finalizeGuard
	Carts     CartStore
	Metrics   *metrics.CheckoutMetrics
	Logger    *logger.Logger
	Config    config.CheckoutConfig
	Now       func() time.Time
}

// Service runs a checkout from cart to paid order.
type Service struct {
	db        txRunner
	sessions  Repository
	orders    orders.Repository
	inventory holdStore
	gateway   PaymentGateway
	outbox    eventEmitter
	guard     finalizeGuard
	carts     CartStore
	metrics   *metrics.CheckoutMetrics
	logg      *logger.Logger
	cfg       config.CheckoutConfig
	now       func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("checkout session repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory store required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	cfg := params.Config
	if cfg.GatewayExpiry <= 0 {
		cfg.GatewayExpiry = gateway.DefaultExpireAfter
	}
	if cfg.DispensingCodeTTL <= 0 {
		cfg.DispensingCodeTTL = dispensing.DefaultTTL
	}
	if cfg.FinalizeGuardTTL <= 0 {
		cfg.FinalizeGuardTTL = 2 * time.Minute
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		db:        params.DB,
		sessions:  params.Sessions,
		orders:    params.Orders,
		inventory: params.Inventory,
		gateway:   params.Gateway,
		outbox:    params.Outbox,
		guard:     params.Guard,
		carts:     params.Carts,
		metrics:   params.Metrics,
		logg:      params.Logger,
		cfg:       cfg,
		now:       now,
	}, nil
}

// InitiateCheckout reserves the cart, records a pending session and opens a payment page.
// No order exists until the payment is confirmed.
func (s *Service) InitiateCheckout(ctx context.Context, session *Session) (*PaymentRedirect, error) {
	if err := session.validate(); err != nil {
		return nil, err
	}
	machine := session.Machine
	if machine.Status != enums.MachineStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "machine is not accepting orders").
			WithDetails(map[string]any{"machine_status": machine.Status})
	}
	ctx = s.logg.WithUserID(ctx, session.UserID.String())
	ctx = s.logg.WithMachineCode(ctx, machine.MachineCode)

	now := s.now().UTC()
	record := &models.CheckoutSession{
		ID:            uuid.New(),
		UserID:        session.UserID,
		MachineID:     machine.ID,
		MachineCode:   machine.MachineCode,
		OrderNumber:   OrderNumber(machine.MachineCode, now),
		TotalAmount:   session.Cart.Total(),
		Status:        enums.CheckoutStatusPending,
		Cart:          session.Cart.snapshot(),
		HoldExpiresAt: now.Add(s.cfg.HoldTTL()),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	requests := make([]inventory.HoldRequest, 0, len(record.Cart))
	for _, line := range record.Cart {
		requests = append(requests, inventory.HoldRequest{
			ProductID:  line.ProductID,
			SlotNumber: line.SlotNumber,
			Quantity:   line.Quantity,
		})
	}

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.sessions.WithTx(tx).Create(ctx, record); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout session")
		}
		if _, err := s.inventory.Reserve(ctx, tx, record.ID, machine.ID, requests, record.HoldExpiresAt.Sub(now)); err != nil {
			return stockError(err)
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCheckoutInitiated,
			AggregateType: enums.AggregateCheckoutSession,
			AggregateID:   record.ID,
			Actor:         outbox.UserActor(session.UserID, string(enums.RoleCustomer)),
			Data: map[string]any{
				"session_id":   record.ID,
				"order_number": record.OrderNumber,
				"machine_code": record.MachineCode,
				"total_amount": record.TotalAmount,
				"items":        record.Cart,
			},
			OccurredAt: now,
		})
	})
	if err != nil {
		s.metrics.IncCheckout("rejected")
		return nil, err
	}

	paySession, err := s.gateway.CreatePaymentSession(ctx, s.intentFor(record))
	if err == nil && strings.TrimSpace(paySession.MerchantOrderID) == "" {
		err = pkgerrors.Wrap(pkgerrors.CodeGatewayRequest, &gateway.RequestError{StatusCode: 200, Message: "no merchant order id received"}, "create payment session")
	}
	if err != nil {
		s.logg.Error(ctx, "payment session creation failed", err)
		if failErr := s.closeSession(ctx, record, enums.CheckoutStatusFailed, enums.EventCheckoutFailed, reasonGatewayError, nil); failErr != nil {
			s.logg.Error(ctx, "failed to release checkout after gateway error", failErr)
		}
		s.metrics.IncCheckout("gateway_error")
		return nil, err
	}

	expiresAt := now.Add(s.cfg.GatewayExpiry)
	if paySession.ExpiresAt != nil && !paySession.ExpiresAt.IsZero() {
		expiresAt = paySession.ExpiresAt.UTC()
	}
	updates := map[string]any{
		"merchant_order_id":  paySession.MerchantOrderID,
		"redirect_url":       paySession.RedirectURL,
		"gateway_expires_at": expiresAt,
	}
	if paySession.ProviderOrderID != "" {
		updates["provider_order_id"] = paySession.ProviderOrderID
	}
	if err := s.sessions.Update(ctx, record.ID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store payment session")
	}

	s.metrics.IncCheckout("initiated")
	s.logg.Info(s.logg.WithField(ctx, "session_id", record.ID.String()), "checkout initiated")
	return &PaymentRedirect{
		SessionID:       record.ID,
		OrderNumber:     record.OrderNumber,
		MerchantOrderID: paySession.MerchantOrderID,
		RedirectURL:     paySession.RedirectURL,
		Amount:          record.TotalAmount,
		ExpiresAt:       expiresAt,
	}, nil
}

// GetSession returns a buyer's checkout session.
func (s *Service) GetSession(ctx context.Context, userID, sessionID uuid.UUID) (*models.CheckoutSession, error) {
	record, err := s.sessions.FindForUser(ctx, sessionID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load checkout session")
	}
	return record, nil
}

// Confirm handles the buyer returning from the payment page with USER_CANCEL or CONCLUDED.
func (s *Service) Confirm(ctx context.Context, userID, sessionID uuid.UUID, outcome enums.PaymentOutcome) (*Result, error) {
	record, err := s.GetSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if record.Status == enums.CheckoutStatusExpired && outcome == enums.PaymentOutcomeConcluded {
		return s.reconcile(ctx, record)
	}
	if record.Status.IsTerminal() {
		return s.settledResult(ctx, record)
	}

	switch outcome {
	case enums.PaymentOutcomeUserCancel:
		if err := s.closeSession(ctx, record, enums.CheckoutStatusCancelled, enums.EventCheckoutCancelled, "user_cancelled", &userID); err != nil {
			return nil, err
		}
		s.metrics.IncCheckout("cancelled")
		return &Result{SessionID: record.ID, Status: ResultCancelled, Message: "payment was cancelled"}, nil
	case enums.PaymentOutcomeConcluded:
		return s.reconcile(ctx, record)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment outcome")
	}
}

// HandleWebhook reconciles a session after the broker notifies us about its payment.
func (s *Service) HandleWebhook(ctx context.Context, merchantOrderID string) (*Result, error) {
	merchantOrderID = strings.TrimSpace(merchantOrderID)
	if merchantOrderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "merchant order id is required")
	}
	record, err := s.sessions.FindByMerchantOrderID(ctx, merchantOrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load checkout session")
	}
	if record.Status.IsTerminal() && record.Status != enums.CheckoutStatusExpired {
		return s.settledResult(ctx, record)
	}
	return s.reconcile(ctx, record)
}

func (s *Service) reconcile(ctx context.Context, record *models.CheckoutSession) (*Result, error) {
	if record.MerchantOrderID == nil || *record.MerchantOrderID == "" {
		return &Result{SessionID: record.ID, Status: ResultPending, Message: "payment not started"}, nil
	}
	merchantOrderID := *record.MerchantOrderID

	status, err := s.gateway.CheckPaymentStatus(ctx, merchantOrderID)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "merchant_order_id", merchantOrderID), "payment status check failed: "+err.Error())
		return &Result{SessionID: record.ID, Status: ResultPending, Message: "payment status unavailable, try again"}, nil
	}

	switch status.Status {
	case enums.PaymentStatusCompleted:
		order, err := s.FinalizeOrder(ctx, PaymentConfirmation{
			SessionID:     record.ID,
			PaymentID:     merchantOrderID,
			TransactionID: status.TransactionID,
			PaidAt:        status.PaidAt,
		})
		if err != nil {
			return nil, err
		}
		return &Result{SessionID: record.ID, Status: ResultPaid, Order: order}, nil
	case enums.PaymentStatusFailed:
		reason := reasonPaymentFailed
		if msg := strings.TrimSpace(status.ErrorMessage); msg != "" {
			reason = msg
		}
		if record.Status == enums.CheckoutStatusPending {
			if err := s.closeSession(ctx, record, enums.CheckoutStatusFailed, enums.EventCheckoutFailed, reason, nil); err != nil {
				return nil, err
			}
			s.metrics.IncCheckout("payment_failed")
		}
		return &Result{SessionID: record.ID, Status: ResultFailed, Message: reason}, nil
	default:
		if record.Status == enums.CheckoutStatusExpired {
			return &Result{SessionID: record.ID, Status: ResultExpired, Message: "checkout expired"}, nil
		}
		return &Result{SessionID: record.ID, Status: ResultPending, Message: "payment is still processing"}, nil
	}
}

func (s *Service) settledResult(ctx context.Context, record *models.CheckoutSession) (*Result, error) {
	result := &Result{SessionID: record.ID}
	if record.FailureReason != nil {
		result.Message = *record.FailureReason
	}
	switch record.Status {
	case enums.CheckoutStatusFinalized:
		result.Status = ResultPaid
		if record.OrderID != nil {
			order, err := s.orders.FindByID(ctx, *record.OrderID)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
			}
			result.Order = order
		}
	case enums.CheckoutStatusCancelled:
		result.Status = ResultCancelled
	case enums.CheckoutStatusExpired:
		result.Status = ResultExpired
	default:
		result.Status = ResultFailed
	}
	return result, nil
}

// FinalizeOrder turns a confirmed payment into a paid order in one transaction: order and
// items, committed holds, decremented stock, a dispensing code and the order_paid event.
// A second call for the same payment returns the existing order.
func (s *Service) FinalizeOrder(ctx context.Context, confirmation PaymentConfirmation) (*models.Order, error) {
	paymentID := strings.TrimSpace(confirmation.PaymentID)
	if paymentID == "" || confirmation.SessionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference and session are required")
	}
	started := s.now()
	defer func() { s.metrics.ObserveFinalize(s.now().Sub(started)) }()

	if existing, err := s.existingOrder(ctx, paymentID); err != nil || existing != nil {
		return existing, err
	}

	if s.guard != nil {
		key := s.guard.FinalizeKey(paymentID)
		acquired, err := s.guard.SetNX(ctx, key, confirmation.SessionID.String(), s.cfg.FinalizeGuardTTL)
		switch {
		case err != nil:
			s.logg.Warn(ctx, "finalize guard unavailable, relying on payment uniqueness: "+err.Error())
		case !acquired:
			if existing, err := s.existingOrder(ctx, paymentID); err != nil || existing != nil {
				return existing, err
			}
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "payment is already being finalized")
		default:
			defer func() {
				if err := s.guard.Del(context.WithoutCancel(ctx), key); err != nil {
					s.logg.Warn(ctx, "release finalize guard: "+err.Error())
				}
			}()
		}
	}

	var (
		order  *models.Order
		record *models.CheckoutSession
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		sessions := s.sessions.WithTx(tx)
		ordersRepo := s.orders.WithTx(tx)

		var err error
		record, err = sessions.FindByID(ctx, confirmation.SessionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load checkout session")
		}
		if record.Status != enums.CheckoutStatusPending && record.Status != enums.CheckoutStatusExpired {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "checkout session is already closed").
				WithDetails(map[string]any{"status": record.Status})
		}

		now := s.now().UTC()
		code, err := s.issueCode(ctx, ordersRepo, record.MachineID, now)
		if err != nil {
			return err
		}
		created, err := ordersRepo.Create(ctx, &models.Order{
			ID:                      uuid.New(),
			OrderNumber:             record.OrderNumber,
			UserID:                  record.UserID,
			MachineID:               record.MachineID,
			TotalAmount:             record.TotalAmount,
			Status:                  enums.OrderStatusPaid,
			PaymentMethod:           enums.PaymentMethodPhonePe,
			PaymentID:               paymentID,
			DispensingCode:          code.Value,
			DispensingCodeExpiresAt: code.ExpiresAt,
			CreatedAt:               now,
			UpdatedAt:               now,
		})
		if err != nil {
			return err
		}

		items := make([]models.OrderItem, 0, len(record.Cart))
		for _, line := range record.Cart {
			items = append(items, models.OrderItem{
				ID:         uuid.New(),
				OrderID:    created.ID,
				ProductID:  line.ProductID,
				SlotNumber: line.SlotNumber,
				Quantity:   line.Quantity,
				UnitPrice:  line.UnitPrice,
				TotalPrice: line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))).Round(2),
				CreatedAt:  now,
			})
		}
		if err := ordersRepo.CreateItems(ctx, items); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order items")
		}

		if _, err := s.inventory.Commit(ctx, tx, record.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "commit inventory holds")
		}
		for _, line := range byProduct(record.Cart) {
			if err := s.inventory.Decrement(ctx, tx, record.MachineID, line.ProductID, line.Quantity); err != nil {
				return err
			}
		}

		moved, err := sessions.TransitionStatus(ctx, record.ID, record.Status, enums.CheckoutStatusFinalized, map[string]any{
			"order_id": created.ID,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "finalize checkout session")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeConflict, "checkout session changed during finalization")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   created.ID,
			Actor:         outbox.UserActor(record.UserID, string(enums.RoleCustomer)),
			Data: map[string]any{
				"order_id":                   created.ID,
				"order_number":               created.OrderNumber,
				"session_id":                 record.ID,
				"machine_code":               record.MachineCode,
				"payment_id":                 paymentID,
				"transaction_id":             confirmation.TransactionID,
				"total_amount":               created.TotalAmount,
				"dispensing_code_expires_at": created.DispensingCodeExpiresAt,
			},
			OccurredAt: now,
		}); err != nil {
			return err
		}

		order, err = ordersRepo.FindByID(ctx, created.ID)
		return err
	})
	if err != nil {
		var shortage *inventory.ShortageError
		if errors.As(err, &shortage) && record != nil {
			return nil, s.failFinalization(ctx, record, paymentID, shortage)
		}
		if dbpkg.IsUniqueViolation(err, "") {
			if existing, findErr := s.existingOrder(ctx, paymentID); findErr == nil && existing != nil {
				return existing, nil
			}
		}
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "finalize order")
		}
		return nil, err
	}

	s.metrics.IncCheckout("finalized")
	s.metrics.IncOrderTransition(string(enums.OrderStatusPaid))
	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	s.logg.Info(logCtx, "order paid")

	if s.carts != nil {
		if err := s.carts.Delete(ctx, record.UserID.String(), record.MachineCode); err != nil {
			s.logg.Warn(logCtx, "clear cart after payment: "+err.Error())
		}
	}
	return order, nil
}

// failFinalization runs after the finalize transaction rolled back on short stock. The
// payment has been taken, so the failure is recorded for refund reconciliation.
func (s *Service) failFinalization(ctx context.Context, record *models.CheckoutSession, paymentID string, shortage *inventory.ShortageError) error {
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.inventory.Release(ctx, tx, record.ID); err != nil {
			return err
		}
		if _, err := s.sessions.WithTx(tx).TransitionStatus(ctx, record.ID, record.Status, enums.CheckoutStatusFailed, map[string]any{
			"failure_reason": reasonInsufficientStock,
		}); err != nil {
			return err
		}
		return s.outbox.EmitOnce(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventFinalizationFailed,
			AggregateType: enums.AggregateCheckoutSession,
			AggregateID:   record.ID,
			Actor:         outbox.SystemActor("checkout-finalize"),
			Data: map[string]any{
				"session_id":   record.ID,
				"payment_id":   paymentID,
				"total_amount": record.TotalAmount,
				"reason":       reasonInsufficientStock,
				"product_id":   shortage.ProductID,
				"slot_number":  shortage.SlotNumber,
				"requested":    shortage.Requested,
				"available":    shortage.Available,
			},
		})
	})
	if err != nil {
		s.logg.Error(ctx, "failed to record finalization failure", err)
	}
	s.metrics.IncCheckout("finalization_failed")
	s.logg.Error(s.logg.WithField(ctx, "payment_id", paymentID), "payment captured but order could not be finalized", shortage)

	return pkgerrors.Wrap(pkgerrors.CodeFinalization, shortage, "payment received but the order could not be completed").
		WithDetails(map[string]any{
			"session_id":  record.ID,
			"payment_id":  paymentID,
			"slot_number": shortage.SlotNumber,
		})
}

// ExpireStale closes pending sessions whose holds have lapsed and frees their stock.
func (s *Service) ExpireStale(ctx context.Context, limit int) (int, error) {
	now := s.now().UTC()
	stale, err := s.sessions.ListExpiredPending(ctx, now, limit)
	if err != nil {
		return 0, fmt.Errorf("list stale checkout sessions: %w", err)
	}

	expired := 0
	var errs error
	for i := range stale {
		record := stale[i]
		if err := s.closeSession(ctx, &record, enums.CheckoutStatusExpired, enums.EventCheckoutExpired, "", nil); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire checkout session %s: %w", record.ID, err))
			continue
		}
		expired++
		s.metrics.IncCheckout("expired")
	}
	return expired, errs
}

// closeSession releases holds and moves a pending session to a terminal status in one transaction.
func (s *Service) closeSession(ctx context.Context, record *models.CheckoutSession, to enums.CheckoutStatus, event enums.OutboxEventType, reason string, actorID *uuid.UUID) error {
	actor := outbox.SystemActor("checkout")
	if actorID != nil {
		actor = outbox.UserActor(*actorID, string(enums.RoleCustomer))
	}
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var updates map[string]any
		if reason != "" {
			updates = map[string]any{"failure_reason": reason}
		}
		moved, err := s.sessions.WithTx(tx).TransitionStatus(ctx, record.ID, enums.CheckoutStatusPending, to, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update checkout session")
		}
		if !moved {
			return nil
		}
		if _, err := s.inventory.Release(ctx, tx, record.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release inventory holds")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     event,
			AggregateType: enums.AggregateCheckoutSession,
			AggregateID:   record.ID,
			Actor:         actor,
			Data: map[string]any{
				"session_id":   record.ID,
				"order_number": record.OrderNumber,
				"status":       to,
				"reason":       reason,
			},
		})
	})
}

func (s *Service) existingOrder(ctx context.Context, paymentID string) (*models.Order, error) {
	order, err := s.orders.FindByPaymentID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup order by payment")
	}
	return order, nil
}

// issueCode draws a code that no live order on the machine is using.
func (s *Service) issueCode(ctx context.Context, repo orders.Repository, machineID uuid.UUID, now time.Time) (dispensing.Code, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := dispensing.Issue(now, s.cfg.DispensingCodeTTL)
		if err != nil {
			return dispensing.Code{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate dispensing code")
		}
		clash, err := repo.FindByDispensingCode(ctx, machineID, code.Value)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return code, nil
		}
		if err != nil {
			return dispensing.Code{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check dispensing code")
		}
		if dispensing.IsExpired(clash, now) || clash.Status != enums.OrderStatusPaid {
			return code, nil
		}
	}
	return dispensing.Code{}, pkgerrors.New(pkgerrors.CodeInternal, "could not allocate a dispensing code")
}

func (s *Service) intentFor(record *models.CheckoutSession) gateway.OrderIntent {
	items := make([]gateway.IntentItem, 0, len(record.Cart))
	for _, line := range record.Cart {
		items = append(items, gateway.IntentItem{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			UnitPrice:   line.UnitPrice,
			Quantity:    line.Quantity,
			SlotNumber:  line.SlotNumber,
		})
	}
	return gateway.OrderIntent{
		UserID:      record.UserID,
		MachineID:   record.MachineID,
		MachineCode: record.MachineCode,
		Items:       items,
		RedirectURL: s.redirectURL(record.ID),
		ExpireAfter: s.cfg.GatewayExpiry,
		MetaInfo: gateway.MetaInfo{
			UDF4: "session_" + record.ID.String(),
		},
	}
}

func (s *Service) redirectURL(sessionID uuid.UUID) string {
	base := strings.TrimRight(s.cfg.RedirectBaseURL, "/")
	q := url.Values{}
	q.Set("session_id", sessionID.String())
	return base + "/payment/callback?" + q.Encode()
}

// byProduct orders cart lines by product id so concurrent finalizers take slot row
// locks in the same sequence.
func byProduct(lines models.CartLines) models.CartLines {
	sorted := slices.Clone(lines)
	slices.SortStableFunc(sorted, func(a, b models.CartLine) int {
		return bytes.Compare(a.ProductID[:], b.ProductID[:])
	})
	return sorted
}

// stockError maps a reservation shortage onto the API error the buyer sees.
func stockError(err error) error {
	var shortage *inventory.ShortageError
	if errors.As(err, &shortage) {
		return pkgerrors.Wrap(pkgerrors.CodeInsufficientStock, err, fmt.Sprintf("only %d left in slot %s", shortage.Available, shortage.SlotNumber)).
			WithDetails(map[string]any{
				"product_id":  shortage.ProductID,
				"slot_number": shortage.SlotNumber,
				"requested":   shortage.Requested,
				"available":   shortage.Available,
			})
	}
	return err
}
