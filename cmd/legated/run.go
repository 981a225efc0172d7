package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"legate/internal/config"
	"legate/internal/devscan"
	"legate/internal/eventloop"
	"legate/internal/logging"
	"legate/internal/seat"
	"legate/internal/session"
)

func newRunCommand(configFlag *string) *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the session helper and run the seat",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := config.Load(*configFlag)
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}
			return runSeat(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	return cmd
}

func runSeat(cmd *cobra.Command, cfg *config.Config) error {
	lock := flock.New(cfg.Daemon.LockPath)
	if err := os.MkdirAll(filepath.Dir(cfg.Daemon.LockPath), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire seat lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another display server already holds %s", cfg.Daemon.LockPath)
	}
	defer lock.Unlock() //nolint:errcheck

	logger, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	logger = logger.With(logging.String("run_id", uuid.NewString()))

	loop, err := eventloop.New(logger)
	if err != nil {
		return err
	}
	defer loop.Close()

	st := seat.New(cfg.Seat.Name)
	st.Subscribe(func(active bool) {
		logger.Info("session state changed",
			logging.String(logging.FieldEventType, "session_state"),
			logging.String("seat", st.Name()),
			logging.Bool("active", active),
		)
	})

	client, err := session.Connect(loop, st, logger)
	if err != nil {
		return err
	}
	defer client.Destroy()

	drmFD := -1
	closeDRM := func() {
		if drmFD >= 0 {
			client.Close(drmFD)
			drmFD = -1
		}
	}
	defer closeDRM()

	openDRM := func(path string) {
		closeDRM()
		fd, err := client.Open(path, syscall.O_RDWR)
		if err != nil {
			logger.Error("failed to open seat device",
				logging.Error(err),
				logging.String("device", path),
				logging.String(logging.FieldErrorHint, "check that the helper grants access to this device"),
			)
			return
		}
		drmFD = fd
		logger.Info("seat device opened",
			logging.String("device", path),
			logging.Int("fd", fd),
		)
	}

	if cfg.Seat.DRMDevice != "" {
		openDRM(cfg.Seat.DRMDevice)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var monitor *devscan.Monitor
	if cfg.Daemon.WatchDevices {
		// The monitor goroutine hands the reopen back to the loop thread.
		monitor = devscan.NewMonitor(cfg.Seat.DRMDevice, func(path string) {
			loop.AddIdle(func() { openDRM(path) })
			loop.Wake()
		}, logger)
		if err := monitor.Start(ctx); err != nil {
			return err
		}
		defer monitor.Stop()
	}

	if vt, err := client.GetVT(); err == nil {
		logger.Info("seat running", logging.String("seat", cfg.Seat.Name), logging.Int("vt", vt))
	} else {
		logger.Info("seat running", logging.String("seat", cfg.Seat.Name))
	}

	if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("event loop: %w", err)
	}
	logger.Info("seat shutting down")
	return nil
}

func buildLogger(cfg *config.Config) (*slog.Logger, error) {
	format := cfg.Logging.Format
	if format == "" || format == "console" {
		if !isatty.IsTerminal(os.Stderr.Fd()) {
			format = "json"
		} else {
			format = "console"
		}
	}
	outputs := []string{"stderr"}
	if cfg.Logging.Dir != "" {
		outputs = append(outputs, filepath.Join(cfg.Logging.Dir, "legated.log"))
	}
	return logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      format,
		OutputPaths: outputs,
	})
}
