package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/penlink/internal/actions"
	"github.com/srg/penlink/internal/devicefactory"
	"github.com/srg/penlink/internal/gesture"
	"github.com/srg/penlink/internal/groutine"
	"github.com/srg/penlink/internal/input"
	"github.com/srg/penlink/internal/link"
	"github.com/srg/penlink/pkg/config"
)

const shutdownTimeout = 5 * time.Second

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pen link daemon",
	Long: `Connects to the provisioned pen while pen actions are enabled and injects
the keys its clicks and swipes map to.

SIGHUP reloads the configuration file; edits are also picked up automatically.
SIGINT and SIGTERM disconnect the pen and exit.`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

var (
	runDryRun        bool
	runWatchInterval time.Duration
)

func init() {
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Log key events instead of injecting them")
	runCmd.Flags().DurationVar(&runWatchInterval, "watch-interval", config.DefaultWatchInterval, "How often the configuration file is checked for changes (0 disables)")
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	path := configPath(cmd)
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg.LogLevel)
	if err != nil {
		return err
	}
	store, err := config.NewStore(path, logger)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	return runLink(ctx, store, hup, logger)
}

// runLink wires the backend, the action pipeline and the supervisor and blocks until ctx is done.
func runLink(ctx context.Context, store *config.Store, reload <-chan os.Signal, logger *logrus.Logger) error {
	cfg := store.Config()

	backend, err := devicefactory.DeviceFactory(ctx, devicefactory.Options{Backend: cfg.Backend, Adapter: cfg.Adapter}, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.WithError(err).Debug("Failed to close radio backend")
		}
	}()

	sink, err := openSink(cfg, logger)
	if err != nil {
		return err
	}
	pipeline := actions.New(store, sink, cfg.EventQueue, logger)
	pipeline.Start(ctx)
	defer func() {
		if err := pipeline.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close input sink")
		}
	}()

	sup, err := link.NewSupervisor(backend, cfg.NewHAL(logger), store, link.Options{
		ServiceUUID:    cfg.ServiceUUID,
		ReconnectDelay: cfg.ReconnectDelay,
		ConnectTimeout: cfg.ConnectTimeout,
		OnNotification: pipeline.HandleNotification,
		OnStateChange: func(_, to link.LinkState) {
			if to == link.Disconnected {
				pipeline.Reset()
			}
		},
	}, logger)
	if err != nil {
		return err
	}

	supCtx, cancelSup := context.WithCancel(context.Background())
	supDone := make(chan struct{})
	groutine.Go(supCtx, "penlink-supervisor", func(ctx context.Context) {
		defer close(supDone)
		_ = sup.Run(ctx)
	})
	defer func() {
		cancelSup()
		<-supDone
	}()

	if err := backend.RegisterAgent(ctx, sup.HandlePairingRequest); err != nil {
		logger.WithError(err).Warn("Failed to register pairing agent")
	}
	backend.WatchAdapterPower(sup.HandleAdapterPower)

	// Startup mirrors an adapter power event with the current state.
	if powered, err := backend.AdapterPowered(); err != nil {
		logger.WithError(err).Warn("Failed to query adapter power")
		applyPreferences(sup, cfg)
	} else {
		sup.HandleAdapterPower(powered)
	}

	if runWatchInterval > 0 {
		store.Watch(ctx, runWatchInterval, func(c config.Config) { applyPreferences(sup, c) })
	}

	logger.WithFields(logrus.Fields{
		"backend": cfg.Backend,
		"adapter": cfg.Adapter,
		"enabled": cfg.Enabled,
		"mode":    cfg.Mode,
	}).Info("Pen link daemon started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			err := sup.Shutdown(shutdownCtx)
			cancel()
			if err != nil {
				logger.WithError(err).Warn("Link teardown did not complete")
			}
			return nil
		case <-reload:
			changed, err := store.Reload()
			if err == nil && changed {
				applyPreferences(sup, store.Config())
			}
		}
	}
}

// applyPreferences connects while pen actions are enabled and disconnects otherwise.
// Mode changes need no action; the mode is read for every key event.
func applyPreferences(sup *link.Supervisor, cfg config.Config) {
	if cfg.Enabled {
		sup.Connect()
		return
	}
	sup.Disconnect()
}

func openSink(cfg config.Config, logger *logrus.Logger) (input.Sink, error) {
	if cfg.DryRun || runDryRun {
		return input.NewLogSink(logger), nil
	}
	return input.OpenUInput(cfg.Input.Path, cfg.Input.Name, gesture.KeyCodes(), logger)
}
