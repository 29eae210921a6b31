package enums

import (
	"fmt"
	"strings"
)

// PaymentStatus is the status reported by the payment broker for a gateway session.
type PaymentStatus string

const (
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusPending   PaymentStatus = "PENDING"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusCompleted,
	PaymentStatusFailed,
	PaymentStatusPending,
}

// String implements fmt.Stringer.
func (p PaymentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentStatus.
func (p PaymentStatus) IsValid() bool {
	for _, candidate := range validPaymentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentStatus converts raw input into a PaymentStatus. Matching is case-insensitive.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	for _, candidate := range validPaymentStatuses {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment status %q", value)
}

// PaymentOutcome is what the payment page hands back when the buyer returns.
type PaymentOutcome string

const (
	PaymentOutcomeUserCancel PaymentOutcome = "USER_CANCEL"
	PaymentOutcomeConcluded  PaymentOutcome = "CONCLUDED"
)

// ParsePaymentOutcome converts raw input into a PaymentOutcome.
func ParsePaymentOutcome(value string) (PaymentOutcome, error) {
	switch PaymentOutcome(strings.ToUpper(strings.TrimSpace(value))) {
	case PaymentOutcomeUserCancel:
		return PaymentOutcomeUserCancel, nil
	case PaymentOutcomeConcluded:
		return PaymentOutcomeConcluded, nil
	}
	return "", fmt.Errorf("invalid payment outcome %q", value)
}

// PaymentMethod tags how an order was paid.
type PaymentMethod string

const PaymentMethodPhonePe PaymentMethod = "phonepe"
