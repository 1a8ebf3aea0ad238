package bluetooth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"ble-pacer.klederson.com/internal/scan"
)

// TinyGoRadio scans through tinygo.org/x/bluetooth. The library has no scan
// interval/window knobs, so non-continuous modes are emulated by cycling the
// scan on and off.
type TinyGoRadio struct {
	adapter *bluetooth.Adapter

	mu      sync.Mutex
	enabled bool
}

// NewTinyGoRadio uses the platform default adapter.
func NewTinyGoRadio() *TinyGoRadio {
	return &TinyGoRadio{adapter: bluetooth.DefaultAdapter}
}

func (r *TinyGoRadio) Name() string { return "tinygo" }

func (r *TinyGoRadio) enable() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enabled {
		return nil
	}
	if err := r.adapter.Enable(); err != nil {
		return fmt.Errorf("failed to enable BLE adapter: %w (try running with sudo or setcap cap_net_admin+ep)", err)
	}
	r.enabled = true
	return nil
}

// Probe enables the adapter.
func (r *TinyGoRadio) Probe() error { return r.enable() }

// Scan runs duty-cycled scan windows until ctx is cancelled.
func (r *TinyGoRadio) Scan(ctx context.Context, mode scan.Mode, handle func(scan.Result)) error {
	if err := r.enable(); err != nil {
		return err
	}

	window, interval := DutyCycle(mode)
	for {
		if err := r.window(ctx, window, handle); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		if idle := interval - window; idle > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(idle):
			}
		}
	}
}

// window scans for d, or until ctx is done when d is the whole interval.
func (r *TinyGoRadio) window(ctx context.Context, d time.Duration, handle func(scan.Result)) error {
	errc := make(chan error, 1)
	go func() {
		errc <- r.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			handle(convertTinyGo(result))
		})
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	case <-time.After(d):
	}

	_ = r.adapter.StopScan()
	if err := <-errc; err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func convertTinyGo(result bluetooth.ScanResult) scan.Result {
	r := scan.Result{
		Address:   result.Address.String(),
		Name:      result.LocalName(),
		RSSI:      result.RSSI,
		Timestamp: time.Now(),
	}

	if mfrs := result.ManufacturerData(); len(mfrs) > 0 {
		r.ManufacturerData = make(map[uint16][]byte, len(mfrs))
		for _, m := range mfrs {
			r.ManufacturerData[m.CompanyID] = m.Data
		}
	}
	for _, sd := range result.ServiceData() {
		r.Services = append(r.Services, sd.UUID.String())
	}

	if r.Name == "" {
		r.Name = fallbackName(r.Address, r.ManufacturerData)
	}
	return r
}

// fallbackName identifies an unnamed advertiser by manufacturer, e.g.
// "Apple EE:FF".
func fallbackName(mac string, mfrs map[uint16][]byte) string {
	for id := range mfrs {
		if name := LookupManufacturer(id); name != "" && len(mac) >= 17 {
			return name + " " + mac[12:]
		}
	}
	return ""
}
