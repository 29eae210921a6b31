package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/vendcare-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendcare-backend/pkg/errors"
	"github.com/angelmondragon/vendcare-backend/pkg/pagination"
)

// Service exposes the buyer's read side of orders.
type Service interface {
	Detail(ctx context.Context, userID, orderID uuid.UUID) (*OrderDetail, error)
	List(ctx context.Context, userID uuid.UUID, statuses []enums.OrderStatus, params pagination.Params) (*OrderList, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

func (s *service) Detail(ctx context.Context, userID, orderID uuid.UUID) (*OrderDetail, error) {
	order, err := s.repo.GetForUser(ctx, orderID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	detail := ToDetail(order, s.now().UTC())
	return &detail, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID, statuses []enums.OrderStatus, params pagination.Params) (*OrderList, error) {
	for _, status := range statuses {
		if !status.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter").
				WithDetails(map[string]any{"status": status})
		}
	}
	rows, next, err := s.repo.List(ctx, ListFilter{UserID: &userID, Statuses: statuses}, params)
	if err != nil {
		if _, cursorErr := pagination.ParseCursor(params.Cursor); cursorErr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	now := s.now().UTC()
	list := &OrderList{Orders: make([]OrderDetail, 0, len(rows)), NextCursor: next}
	for i := range rows {
		list.Orders = append(list.Orders, ToDetail(&rows[i], now))
	}
	return list, nil
}
