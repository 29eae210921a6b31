package enums

import "fmt"

// HoldStatus is the state of an inventory hold: reserved, then committed or released.
type HoldStatus string

const (
	HoldStatusReserved  HoldStatus = "reserved"
	HoldStatusCommitted HoldStatus = "committed"
	HoldStatusReleased  HoldStatus = "released"
)

var validHoldStatuses = []HoldStatus{
	HoldStatusReserved,
	HoldStatusCommitted,
	HoldStatusReleased,
}

func (s HoldStatus) String() string {
	return string(s)
}

func (s HoldStatus) IsValid() bool {
	for _, candidate := range validHoldStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseHoldStatus converts raw input into a HoldStatus.
func ParseHoldStatus(value string) (HoldStatus, error) {
	for _, candidate := range validHoldStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid hold status %q", value)
}
