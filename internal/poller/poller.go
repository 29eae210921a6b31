// Package poller follows a paid order until it leaves the paid state or its dispensing
// code lapses.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/vendcare-backend/pkg/enums"
	"github.com/angelmondragon/vendcare-backend/pkg/logger"
	"github.com/angelmondragon/vendcare-backend/pkg/metrics"
)

// DefaultInterval matches the buyer app refresh cadence.
const DefaultInterval = 5 * time.Second

// StopReason says why Run returned.
type StopReason string

const (
	StopTerminal  StopReason = "terminal"
	StopExpired   StopReason = "expired"
	StopCancelled StopReason = "cancelled"
)

// Snapshot is one observation of an order.
type Snapshot struct {
	OrderID                 uuid.UUID         `json:"order_id"`
	OrderNumber             string            `json:"order_number"`
	Status                  enums.OrderStatus `json:"status"`
	DispensingCodeExpiresAt time.Time         `json:"dispensing_code_expires_at"`
	IsExpired               bool              `json:"is_expired"`
	SecondsRemaining        int               `json:"seconds_remaining"`
}

// Done reports whether no further polling can change what the buyer sees.
func (s Snapshot) Done(now time.Time) bool {
	if s.Status != enums.OrderStatusPaid {
		return true
	}
	return s.IsExpired || !now.Before(s.DispensingCodeExpiresAt)
}

// Source fetches the current state of an order.
type Source interface {
	Name() string
	Fetch(ctx context.Context, orderID uuid.UUID) (*Snapshot, error)
}

// Params configure a poller.
type Params struct {
	Source   Source
	OrderID  uuid.UUID
	Interval time.Duration
	OnUpdate func(Snapshot)
	OnError  func(error)
	Metrics  *metrics.PollerMetrics
	Logger   *logger.Logger
	Now      func() time.Time
}

// Poller fetches an order on a fixed interval.
type Poller struct {
	source   Source
	orderID  uuid.UUID
	interval time.Duration
	onUpdate func(Snapshot)
	onError  func(error)
	metrics  *metrics.PollerMetrics
	logg     *logger.Logger
	now      func() time.Time
}

func New(params Params) (*Poller, error) {
	if params.Source == nil {
		return nil, fmt.Errorf("status source required")
	}
	if params.OrderID == uuid.Nil {
		return nil, fmt.Errorf("order id required")
	}
	interval := params.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Poller{
		source:   params.Source,
		orderID:  params.OrderID,
		interval: interval,
		onUpdate: params.OnUpdate,
		onError:  params.OnError,
		metrics:  params.Metrics,
		logg:     logg,
		now:      now,
	}, nil
}

// Run fetches immediately and then once per interval. It returns the last snapshot when
// the order reaches a terminal status or its code expires. On cancellation it returns the
// last snapshot seen, possibly nil, together with ctx.Err(). Fetch errors are reported to
// OnError and retried on the next tick.
func (p *Poller) Run(ctx context.Context) (*Snapshot, StopReason, error) {
	ctx = p.logg.WithOrderID(ctx, p.orderID.String())
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var last *Snapshot
	for {
		if err := ctx.Err(); err != nil {
			return p.stop(last, StopCancelled, err)
		}
		snap, err := p.source.Fetch(ctx, p.orderID)
		switch {
		case err != nil && errors.Is(err, context.Canceled):
			return p.stop(last, StopCancelled, err)
		case err != nil:
			p.metrics.IncFetch(p.source.Name(), "error")
			p.logg.Warn(ctx, "order status fetch failed: "+err.Error())
			if p.onError != nil {
				p.onError(err)
			}
			if last != nil && last.Status == enums.OrderStatusPaid && !p.now().Before(last.DispensingCodeExpiresAt) {
				expired := *last
				expired.IsExpired = true
				expired.SecondsRemaining = 0
				return p.stop(&expired, StopExpired, nil)
			}
		default:
			p.metrics.IncFetch(p.source.Name(), "ok")
			last = snap
			if p.onUpdate != nil {
				p.onUpdate(*snap)
			}
			if snap.Done(p.now()) {
				reason := StopTerminal
				if snap.Status == enums.OrderStatusPaid || snap.Status == enums.OrderStatusExpired {
					reason = StopExpired
				}
				return p.stop(last, reason, nil)
			}
		}

		select {
		case <-ctx.Done():
			return p.stop(last, StopCancelled, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (p *Poller) stop(last *Snapshot, reason StopReason, err error) (*Snapshot, StopReason, error) {
	p.metrics.IncStop(string(reason))
	return last, reason, err
}
