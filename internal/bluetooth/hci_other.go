//go:build !linux

package bluetooth

import (
	"context"
	"errors"

	"ble-pacer.klederson.com/internal/scan"
)

// ErrHCIUnsupported is returned on platforms without raw HCI sockets.
var ErrHCIUnsupported = errors.New("hci backend is only available on linux")

// HCIRadio is unavailable on this platform.
type HCIRadio struct{}

func NewHCIRadio(string) (*HCIRadio, error) { return nil, ErrHCIUnsupported }

func (r *HCIRadio) Name() string { return "hci" }

func (r *HCIRadio) Scan(context.Context, scan.Mode, func(scan.Result)) error {
	return ErrHCIUnsupported
}

func (r *HCIRadio) Probe() error { return ErrHCIUnsupported }

func (r *HCIRadio) Close() error { return nil }
