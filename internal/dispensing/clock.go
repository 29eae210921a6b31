package dispensing

import (
	"fmt"
	"time"

	"github.com/angelmondragon/vendcare-backend/pkg/db/models"
	"github.com/angelmondragon/vendcare-backend/pkg/enums"
)

// SecondsRemaining is the whole seconds left until expiresAt, never negative.
func SecondsRemaining(expiresAt, now time.Time) int {
	left := expiresAt.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(left / time.Second)
}

// FormatRemaining renders seconds as MM:SS for countdown displays.
func FormatRemaining(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// IsExpired is the single source of truth for whether an order's code is dead: either the
// expiry job already marked it, or it is still paid and the window has passed.
func IsExpired(order *models.Order, now time.Time) bool {
	if order == nil {
		return false
	}
	switch order.Status {
	case enums.OrderStatusExpired:
		return true
	case enums.OrderStatusPaid:
		return !now.Before(order.DispensingCodeExpiresAt)
	}
	return false
}
