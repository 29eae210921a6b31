package poller

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/vendcare-backend/internal/gateway"
	"github.com/angelmondragon/vendcare-backend/internal/orders"
	"github.com/angelmondragon/vendcare-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/vendcare-backend/pkg/errors"
)

type orderFetcher interface {
	GetOrder(ctx context.Context, orderID uuid.UUID) (*gateway.OrderSnapshot, error)
}

// HTTPSource reads orders through the public API, as the buyer app does.
type HTTPSource struct {
	client orderFetcher
}

func NewHTTPSource(client orderFetcher) *HTTPSource {
	return &HTTPSource{client: client}
}

func (s *HTTPSource) Name() string { return "http" }

func (s *HTTPSource) Fetch(ctx context.Context, orderID uuid.UUID) (*Snapshot, error) {
	order, err := s.client.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		OrderID:                 order.ID,
		OrderNumber:             order.OrderNumber,
		Status:                  order.Status,
		DispensingCodeExpiresAt: order.DispensingCodeExpiresAt,
		IsExpired:               order.IsExpired,
		SecondsRemaining:        order.SecondsRemaining,
	}, nil
}

type orderReader interface {
	GetForUser(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error)
}

// StoreSource reads a buyer's order straight from the database for server-side streams.
type StoreSource struct {
	repo   orderReader
	userID uuid.UUID
	now    func() time.Time
}

func NewStoreSource(repo orderReader, userID uuid.UUID, now func() time.Time) *StoreSource {
	if now == nil {
		now = time.Now
	}
	return &StoreSource{repo: repo, userID: userID, now: now}
}

func (s *StoreSource) Name() string { return "store" }

func (s *StoreSource) Fetch(ctx context.Context, orderID uuid.UUID) (*Snapshot, error) {
	order, err := s.repo.GetForUser(ctx, orderID, s.userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeStatusCheck, err, "load order status")
	}
	detail := orders.ToDetail(order, s.now().UTC())
	return &Snapshot{
		OrderID:                 detail.ID,
		OrderNumber:             detail.OrderNumber,
		Status:                  detail.Status,
		DispensingCodeExpiresAt: detail.DispensingCodeExpiresAt,
		IsExpired:               detail.IsExpired,
		SecondsRemaining:        detail.SecondsRemaining,
	}, nil
}
