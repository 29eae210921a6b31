package enums

import "fmt"

// MachineStatus is the operational state of a vending machine.
type MachineStatus string

const (
	MachineStatusActive      MachineStatus = "active"
	MachineStatusMaintenance MachineStatus = "maintenance"
	MachineStatusOffline     MachineStatus = "offline"
)

var validMachineStatuses = []MachineStatus{
	MachineStatusActive,
	MachineStatusMaintenance,
	MachineStatusOffline,
}

func (s MachineStatus) IsValid() bool {
	for _, candidate := range validMachineStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func ParseMachineStatus(value string) (MachineStatus, error) {
	for _, candidate := range validMachineStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid machine status %q", value)
}
