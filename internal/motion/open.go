package motion

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"ble-pacer.klederson.com/internal/config"
)

// SensorOptions selects and configures the motion sensor.
type SensorOptions struct {
	Kind         string // auto, iio, trigger, simulated
	IIOPath      string
	IIORoot      string
	PollInterval time.Duration
}

// OpenSensor resolves the configured sensor kind. "auto" prefers an IIO
// accelerometer and falls back to a manual trigger.
func OpenSensor(opts SensorOptions, logger zerolog.Logger) (Sensor, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = config.DefaultPollInterval
	}
	if opts.IIORoot == "" {
		opts.IIORoot = config.IIODevicesRoot
	}

	switch opts.Kind {
	case "iio":
		return openIIO(opts)
	case "trigger":
		return NewManualTrigger(), nil
	case "simulated":
		return NewSimulatedAccelerometer(opts.PollInterval), nil
	case "", "auto":
		s, err := openIIO(opts)
		if err == nil {
			return s, nil
		}
		logger.Info().Err(err).Msg("No accelerometer available, using manual motion trigger")
		return NewManualTrigger(), nil
	default:
		return nil, fmt.Errorf("unknown sensor kind %q", opts.Kind)
	}
}

func openIIO(opts SensorOptions) (*IIOAccelerometer, error) {
	dir := opts.IIOPath
	if dir == "" {
		found, err := FindIIOAccelerometer(opts.IIORoot)
		if err != nil {
			return nil, err
		}
		dir = found
	}
	return NewIIOAccelerometer(dir, opts.PollInterval)
}
