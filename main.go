package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"ble-pacer.klederson.com/internal/api"
	"ble-pacer.klederson.com/internal/app"
	"ble-pacer.klederson.com/internal/config"
	"ble-pacer.klederson.com/internal/daemon"
	"ble-pacer.klederson.com/internal/logging"
)

var (
	flagConfig  string
	flagTUI     bool
	flagDemo    bool
	flagBackend string
	flagAdapter string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ble-pacer",
		Short: "BLE Pacer - motion and screen aware Bluetooth scan scheduler",
		Long: `BLE Pacer decides how aggressively to scan for Bluetooth Low Energy
devices. It scans fast while the device is moving with the screen on, slowly
for a while after the screen goes off or motion stops, and not at all once
that idle period runs out.

Requires sudo or CAP_NET_ADMIN capability for real Bluetooth scanning.
Use --demo for a simulated radio, accelerometer and screen.`,
		Version:       config.AppVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&flagBackend, "backend", "", "Scan backend: tinygo, hci or mock (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagAdapter, "adapter", "", "Bluetooth adapter to use (overrides config)")
	rootCmd.Flags().BoolVar(&flagTUI, "tui", false, "Show the terminal dashboard")
	rootCmd.Flags().BoolVar(&flagDemo, "demo", false, "Run with a mock radio, simulated accelerometer and manual screen")

	rootCmd.AddCommand(newCheckCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads the configuration and applies command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagBackend != "" {
		cfg.Scan.Backend = flagBackend
	}
	if flagAdapter != "" {
		cfg.Scan.Adapter = flagAdapter
	}
	if flagDemo {
		cfg.Scan.Backend = "mock"
		cfg.Motion.Sensor = "simulated"
		cfg.Screen.Source = "manual"
	}
	return cfg, nil
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if flagTUI && cfg.Logging.File == "" {
		cfg.Logging.File = "ble-pacer.log"
	}

	logger, logCloser, err := logging.Setup(cfg.Logging, flagTUI)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	logger.Info().
		Str("version", config.AppVersion).
		Str("config", flagConfig).
		Str("backend", cfg.Scan.Backend).
		Bool("demo", flagDemo).
		Msg("Starting " + config.AppName)

	svc, err := daemon.New(daemon.Options{
		Config:     cfg,
		ConfigPath: flagConfig,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	var server *api.Server
	if cfg.API.Listen != "" {
		server = api.NewServer(cfg.API.Listen, svc, logger)
		if err := server.Start(); err != nil {
			return err
		}
		logger.Info().Str("addr", server.Addr()).Msg("API server started")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := make(chan error, 1)
	go func() { runErr <- svc.Run(ctx) }()

	if flagTUI {
		p := tea.NewProgram(
			app.New(svc, cfg.Scan.IdleTimeout),
			tea.WithAltScreen(),
			tea.WithContext(ctx),
		)
		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			logger.Error().Err(err).Msg("Dashboard failed")
		}
		stop()
	}

	err = <-runErr
	stopServer(server, logger)
	logger.Info().Msg(config.AppName + " stopped")
	return err
}

func stopServer(server *api.Server, logger zerolog.Logger) {
	if server == nil {
		return
	}
	if err := server.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping API server")
	}
}
