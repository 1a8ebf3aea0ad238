//go:build linux

package bluetooth

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/go-ble/ble/linux/hci/cmd"

	"ble-pacer.klederson.com/internal/config"
	"ble-pacer.klederson.com/internal/scan"
)

// HCIRadio scans through a raw HCI socket, programming the controller's
// LE scan interval and window for each mode instead of emulating them.
type HCIRadio struct {
	deviceID int

	mu   sync.Mutex
	dev  *linux.Device
	mode scan.Mode
}

// NewHCIRadio opens nothing yet; the device is created on first scan.
// adapter is "hci0", "hci1", ... or a bare index.
func NewHCIRadio(adapter string) (*HCIRadio, error) {
	id, err := strconv.Atoi(strings.TrimPrefix(adapter, "hci"))
	if err != nil || id < 0 {
		return nil, fmt.Errorf("invalid HCI adapter %q", adapter)
	}
	return &HCIRadio{deviceID: id}, nil
}

func (r *HCIRadio) Name() string { return fmt.Sprintf("hci%d", r.deviceID) }

// ScanParams returns the LE Set Scan Parameters command for a mode.
func ScanParams(mode scan.Mode) cmd.LESetScanParameters {
	window, interval := DutyCycle(mode)
	return cmd.LESetScanParameters{
		LEScanType:           0, // passive
		LEScanInterval:       hciUnits(interval),
		LEScanWindow:         hciUnits(window),
		OwnAddressType:       0,
		ScanningFilterPolicy: 0,
	}
}

// hciUnits converts to 0.625ms units, clamped to the range the LE
// controller accepts (0x0004-0x4000).
func hciUnits(d time.Duration) uint16 {
	u := d / config.HCIScanUnit
	if u < 0x0004 {
		u = 0x0004
	}
	if u > 0x4000 {
		u = 0x4000
	}
	return uint16(u)
}

// device returns an HCI device configured for mode, recreating it when the
// mode changed since the last scan.
func (r *HCIRadio) device(mode scan.Mode) (*linux.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dev != nil && r.mode == mode {
		return r.dev, nil
	}
	if r.dev != nil {
		_ = r.dev.Stop()
		r.dev = nil
	}

	dev, err := linux.NewDevice(
		ble.OptDeviceID(r.deviceID),
		ble.OptScanParams(ScanParams(mode)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", r.Name(), err)
	}
	r.dev, r.mode = dev, mode
	return dev, nil
}

func (r *HCIRadio) Scan(ctx context.Context, mode scan.Mode, handle func(scan.Result)) error {
	dev, err := r.device(mode)
	if err != nil {
		return err
	}

	err = dev.Scan(ctx, true, func(a ble.Advertisement) {
		handle(convertAdvertisement(a))
	})
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return fmt.Errorf("%s scan: %w", r.Name(), err)
}

// Probe opens the HCI socket at the low-power parameters.
func (r *HCIRadio) Probe() error {
	_, err := r.device(scan.ModeLowPower)
	return err
}

// Close releases the HCI socket.
func (r *HCIRadio) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dev == nil {
		return nil
	}
	err := r.dev.Stop()
	r.dev = nil
	return err
}

func convertAdvertisement(a ble.Advertisement) scan.Result {
	r := scan.Result{
		Address:   strings.ToUpper(a.Addr().String()),
		Name:      a.LocalName(),
		RSSI:      int16(a.RSSI()),
		Timestamp: time.Now(),
	}

	if md := a.ManufacturerData(); len(md) >= 2 {
		id := binary.LittleEndian.Uint16(md[:2])
		r.ManufacturerData = map[uint16][]byte{id: md[2:]}
	}
	for _, u := range a.Services() {
		r.Services = append(r.Services, u.String())
	}
	for _, sd := range a.ServiceData() {
		r.Services = append(r.Services, sd.UUID.String())
	}

	if r.Name == "" {
		r.Name = fallbackName(r.Address, r.ManufacturerData)
	}
	return r
}
