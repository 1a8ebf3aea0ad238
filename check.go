package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"ble-pacer.klederson.com/internal/bluetooth"
	"ble-pacer.klederson.com/internal/config"
	"ble-pacer.klederson.com/internal/motion"
	"ble-pacer.klederson.com/internal/screen"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check which sensors, screen sources and radios are available",
		Long: `Check loads the configuration and probes the motion sensor, the screen
source and the scan backend it selects, reporting what the daemon would use.`,
		Example: `  ble-pacer check
  ble-pacer --config /etc/ble-pacer.yaml --backend hci check`,
		Args: cobra.NoArgs,
		RunE: runCheck,
	}
}

type checkResult struct {
	name   string
	detail string
	err    error
	// warn marks a fallback that works but is not the preferred source.
	warn bool
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration invalid: %v\n", err)
		return err
	}

	results := []checkResult{
		checkSensor(cfg),
		checkScreen(cfg),
		checkRadio(cfg),
	}

	out := cmd.OutOrStdout()
	failed := printResults(out, results)

	fmt.Fprintln(out)
	if failed > 0 {
		color.New(color.FgRed, color.Bold).Fprintf(out, "%d check(s) failed\n", failed)
		return fmt.Errorf("%d check(s) failed", failed)
	}
	color.New(color.FgGreen, color.Bold).Fprintln(out, "All checks passed")
	return nil
}

func printResults(out io.Writer, results []checkResult) int {
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)
	bold := color.New(color.Bold)

	failed := 0
	for _, r := range results {
		bold.Fprintf(out, "%-8s ", r.name)
		switch {
		case r.err != nil:
			failed++
			red.Fprintf(out, "FAIL  %v\n", r.err)
		case r.warn:
			yellow.Fprintf(out, "WARN  %s\n", r.detail)
		default:
			green.Fprintf(out, "OK    %s\n", r.detail)
		}
	}
	return failed
}

func checkSensor(cfg *config.Config) checkResult {
	res := checkResult{name: "motion"}
	sensor, err := motion.OpenSensor(motion.SensorOptions{
		Kind:         cfg.Motion.Sensor,
		IIOPath:      cfg.Motion.IIOPath,
		PollInterval: cfg.Motion.PollInterval,
	}, zerolog.Nop())
	if err != nil {
		res.err = err
		return res
	}
	if c, ok := sensor.(io.Closer); ok {
		defer c.Close()
	}

	res.detail = fmt.Sprintf("%s (threshold %.1f, window %s)", sensor.Name(), cfg.Motion.Threshold, cfg.Motion.Window)
	if _, manual := sensor.(*motion.ManualTrigger); manual && cfg.Motion.Sensor == "auto" {
		res.warn = true
		res.detail += ", no accelerometer found"
	}
	return res
}

func checkScreen(cfg *config.Config) checkResult {
	res := checkResult{name: "screen"}
	initial, err := screen.ParseState(cfg.Screen.Initial)
	if err != nil {
		res.err = err
		return res
	}
	src, err := screen.Open(cfg.Screen.Source, initial, zerolog.Nop())
	if err != nil {
		res.err = err
		return res
	}
	if c, ok := src.(io.Closer); ok {
		defer c.Close()
	}

	on, err := src.Subscribe(func(bool) {})
	if err != nil {
		res.err = err
		return res
	}
	src.Unsubscribe()

	state := "off"
	if on {
		state = "on"
	}
	switch src.(type) {
	case *screen.DBusSource:
		res.detail = "org.freedesktop.ScreenSaver, screen " + state
	default:
		res.detail = "manual, screen " + state
		res.warn = cfg.Screen.Source == "auto"
	}
	return res
}

func checkRadio(cfg *config.Config) checkResult {
	res := checkResult{name: "radio"}
	radio, err := bluetooth.OpenRadio(cfg.Scan.Backend, cfg.Scan.Adapter)
	if err != nil {
		res.err = err
		return res
	}
	if c, ok := radio.(io.Closer); ok {
		defer c.Close()
	}

	if err := bluetooth.Probe(radio); err != nil {
		res.err = err
		return res
	}
	res.detail = fmt.Sprintf("%s backend on %s", cfg.Scan.Backend, radio.Name())
	res.warn = cfg.Scan.Backend == "mock"
	return res
}
