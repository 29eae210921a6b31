package enums

import "fmt"

// CheckoutStatus tracks a checkout session while the buyer is at the payment page.
type CheckoutStatus string

const (
	CheckoutStatusPending   CheckoutStatus = "pending"
	CheckoutStatusCancelled CheckoutStatus = "cancelled"
	CheckoutStatusFailed    CheckoutStatus = "failed"
	CheckoutStatusFinalized CheckoutStatus = "finalized"
	CheckoutStatusExpired   CheckoutStatus = "expired"
)

var validCheckoutStatuses = []CheckoutStatus{
	CheckoutStatusPending,
	CheckoutStatusCancelled,
	CheckoutStatusFailed,
	CheckoutStatusFinalized,
	CheckoutStatusExpired,
}

func (s CheckoutStatus) String() string {
	return string(s)
}

func (s CheckoutStatus) IsValid() bool {
	for _, candidate := range validCheckoutStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the session is closed.
func (s CheckoutStatus) IsTerminal() bool {
	return s != CheckoutStatusPending && s.IsValid()
}

// ParseCheckoutStatus converts raw input into a CheckoutStatus.
func ParseCheckoutStatus(value string) (CheckoutStatus, error) {
	for _, candidate := range validCheckoutStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid checkout status %q", value)
}
