package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/activation"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/kozaktomas/attendance/internal/attendance"
	"github.com/kozaktomas/attendance/internal/config"
	"github.com/kozaktomas/attendance/internal/constants"
	"github.com/kozaktomas/attendance/internal/database"
	"github.com/kozaktomas/attendance/internal/web"
	"github.com/kozaktomas/attendance/internal/web/handlers"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attendance web service",
	Long: `Start the attendance HTTP service.
Staff submit a class (date, period, subject), poll its status or follow it
over server-sent events, and fetch the verified attendance when it completes.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
}

// resolveServeHostPort applies flag overrides on top of the environment config.
func resolveServeHostPort(cmd *cobra.Command, cfg *config.Config) {
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}
}

// systemdListener returns the socket passed by systemd socket activation, if any.
func systemdListener() (net.Listener, error) {
	listeners, err := activation.Listeners()
	if err != nil {
		return nil, fmt.Errorf("reading systemd sockets: %w", err)
	}
	if len(listeners) == 0 {
		return nil, nil
	}
	return listeners[0], nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	resolveServeHostPort(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx := context.Background()
	logger := slog.Default()

	hasStore, err := initStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStorage()

	eng, err := buildEngine(ctx, cfg, galleryCache(ctx), logger)
	if err != nil {
		return err
	}
	defer eng.close()

	var store attendance.RecordWriter
	var records *handlers.RecordsHandler
	if hasStore {
		recordStore, err := database.GetRecordStore(ctx)
		if err != nil {
			return err
		}
		store = recordStore
		records = handlers.NewRecordsHandler(database.GetRecordStore)
	} else {
		fmt.Println("No database configured: attendance records are kept in memory only")
	}

	events := handlers.NewEventBroadcaster()
	job := attendance.NewJob(eng.aggregator, store, logger.With("component", "job"),
		attendance.WithEventHook(events.Publish))
	eng.aggregator.OnProgress = job.ReportProgress

	server := web.NewServer(cfg, web.Dependencies{
		Job:     job,
		Events:  events,
		Records: records,
		Health: handlers.NewHealthHandler(handlers.HealthInfo{
			GalleryIdentities: func() int { return len(eng.gallery.Identities()) },
			DeviceBusy:        eng.device.Busy,
			Database:          database.BackendName,
		}),
	})

	ln, err := systemdListener()
	if err != nil {
		return err
	}
	if ln == nil {
		ln, err = net.Listen("tcp", cfg.Web.Addr())
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", cfg.Web.Addr(), err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()

		if err := job.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error stopping attendance job: %v\n", err)
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Capture device: %s (window %s, quiet interval %s)\n",
		cfg.Capture.Device, cfg.Capture.Window, cfg.Capture.QuietInterval)
	fmt.Printf("Starting attendance service on http://%s\n", ln.Addr())
	fmt.Println("Press Ctrl+C to stop")

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logger.Warn("sd_notify failed", "error", err)
	}

	if err := server.Serve(ln); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
