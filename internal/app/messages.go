package app

import (
	"time"

	"ble-pacer.klederson.com/internal/bluetooth"
	"ble-pacer.klederson.com/internal/daemon"
	"ble-pacer.klederson.com/internal/scan"
)

// TickMsg triggers a frame update.
type TickMsg time.Time

// RefreshMsg carries a fresh view of the service.
type RefreshMsg struct {
	Snapshot daemon.Snapshot
	Sessions []scan.SessionInfo
	Devices  []bluetooth.Device
	Err      error
}

// ActionMsg reports the outcome of a key-driven command.
type ActionMsg struct {
	Action string
	Err    error
}
