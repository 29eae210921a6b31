package orders

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/angelmondragon/vendcare-backend/api/responses"
	"github.com/angelmondragon/vendcare-backend/internal/poller"
	"github.com/angelmondragon/vendcare-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/vendcare-backend/pkg/errors"
	"github.com/angelmondragon/vendcare-backend/pkg/logger"
	"github.com/angelmondragon/vendcare-backend/pkg/metrics"
)

const streamWriteTimeout = 10 * time.Second

// OrderReader loads a buyer's order for the status stream.
type OrderReader interface {
	GetForUser(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error)
}

// StreamConfig tunes the status stream.
type StreamConfig struct {
	Interval       time.Duration
	AllowedOrigins []string
	Metrics        *metrics.PollerMetrics
}

type streamMessage struct {
	Type     string            `json:"type"`
	Snapshot *poller.Snapshot  `json:"snapshot,omitempty"`
	Reason   poller.StopReason `json:"reason,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// Stream upgrades to a websocket and pushes order snapshots until the order leaves paid,
// its code lapses, or the client goes away.
func Stream(repo OrderReader, cfg StreamConfig, logg *logger.Logger) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		HandshakeTimeout: 5 * time.Second,
		CheckOrigin:      originChecker(cfg.AllowedOrigins),
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders repository unavailable"))
			return
		}
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		source := poller.NewStoreSource(repo, userID, nil)
		// Reject unknown orders before upgrading so the client gets a normal 404.
		if _, err := source.Fetch(r.Context(), orderID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			if logg != nil {
				logg.Warn(r.Context(), "order stream upgrade failed: "+err.Error())
			}
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.NextReader(); err != nil {
					return
				}
			}
		}()

		var writeMu sync.Mutex
		send := func(msg streamMessage) {
			writeMu.Lock()
			defer writeMu.Unlock()
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				cancel()
			}
		}

		p, err := poller.New(poller.Params{
			Source:   source,
			OrderID:  orderID,
			Interval: cfg.Interval,
			Metrics:  cfg.Metrics,
			Logger:   logg,
			OnUpdate: func(s poller.Snapshot) {
				snap := s
				send(streamMessage{Type: "status", Snapshot: &snap})
			},
			OnError: func(err error) {
				send(streamMessage{Type: "error", Error: "status check failed, retrying"})
			},
		})
		if err != nil {
			send(streamMessage{Type: "error", Error: err.Error()})
			return
		}

		last, reason, _ := p.Run(ctx)
		if reason == poller.StopCancelled {
			return
		}
		send(streamMessage{Type: "done", Snapshot: last, Reason: reason})

		writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(reason)),
			time.Now().Add(time.Second))
		writeMu.Unlock()
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
