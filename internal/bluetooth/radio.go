package bluetooth

import (
	"context"
	"fmt"
	"time"

	"ble-pacer.klederson.com/internal/config"
	"ble-pacer.klederson.com/internal/scan"
)

// Radio is one scanning backend. Scan blocks, calling handle from its own
// goroutine for every advertisement, until ctx is cancelled or the radio
// fails.
type Radio interface {
	Name() string
	Scan(ctx context.Context, mode scan.Mode, handle func(scan.Result)) error
}

// Prober is implemented by radios that can check hardware access without
// starting a scan.
type Prober interface {
	Probe() error
}

// Probe checks that r can be used. Radios without a probe always pass.
func Probe(r Radio) error {
	if p, ok := r.(Prober); ok {
		return p.Probe()
	}
	return nil
}

// DutyCycle returns the scan window and interval for a mode.
func DutyCycle(mode scan.Mode) (window, interval time.Duration) {
	switch mode {
	case scan.ModeLowLatency:
		return config.LowLatencyWindow, config.LowLatencyInterval
	case scan.ModeBalanced:
		return config.BalancedWindow, config.BalancedInterval
	default:
		return config.LowPowerWindow, config.LowPowerInterval
	}
}

// OpenRadio builds the configured backend.
func OpenRadio(backend, adapter string) (Radio, error) {
	switch backend {
	case "tinygo", "":
		return NewTinyGoRadio(), nil
	case "hci":
		return NewHCIRadio(adapter)
	case "mock":
		return NewMockRadio(), nil
	default:
		return nil, fmt.Errorf("unknown scan backend %q", backend)
	}
}
