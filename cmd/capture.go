package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kozaktomas/attendance/internal/attendance"
	"github.com/kozaktomas/attendance/internal/config"
	"github.com/kozaktomas/attendance/internal/database"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Run one attendance capture in the foreground",
	Long: `Run both capture windows for one class and print the attendance record as JSON.

The first Ctrl+C ends the current window early and keeps what it saw so far;
a second Ctrl+C aborts the run.`,
	Example: `  attendance capture --date 2026-03-02 --period 1 --subject Math
  attendance capture --date 2026-03-02 --period 1 --subject Math --window 30s --save`,
	RunE: runCapture,
}

func init() {
	rootCmd.AddCommand(captureCmd)

	captureCmd.Flags().String("date", "", "Class date (required)")
	captureCmd.Flags().String("period", "", "Class period (required)")
	captureCmd.Flags().String("subject", "", "Class subject (required)")
	captureCmd.Flags().Duration("window", 0, "Override CAPTURE_WINDOW")
	captureCmd.Flags().Duration("quiet", -1, "Override CAPTURE_QUIET_INTERVAL")
	captureCmd.Flags().String("device", "", "Override CAPTURE_DEVICE")
	captureCmd.Flags().Bool("save", false, "Persist the record to the configured database")
	captureCmd.Flags().Bool("no-progress", false, "Disable the progress display")
}

// captureProgress renders aggregator progress as a spinner on stderr.
type captureProgress struct {
	bar   *progressbar.ProgressBar
	phase attendance.Phase
}

func newCaptureProgress() *captureProgress {
	return &captureProgress{
		bar: progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("Starting"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("frames"),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionShowElapsedTimeOnFinish(),
		),
	}
}

func (p *captureProgress) report(pr attendance.Progress) {
	if pr.Phase != p.phase {
		p.phase = pr.Phase
		p.bar.Reset()
	}
	if pr.Message != "" {
		p.bar.Describe(pr.Message)
		return
	}
	p.bar.Describe(fmt.Sprintf("%s: %d identified", pr.Phase, pr.Identities))
	_ = p.bar.Set(pr.Frame)
}

func applyCaptureOverrides(cmd *cobra.Command, cfg *config.Config) {
	if w := mustGetDuration(cmd, "window"); w > 0 {
		cfg.Capture.Window = w
	}
	if q := mustGetDuration(cmd, "quiet"); q >= 0 {
		cfg.Capture.QuietInterval = q
	}
	if d := mustGetString(cmd, "device"); d != "" {
		cfg.Capture.Device = d
	}
}

func runCapture(cmd *cobra.Command, args []string) error {
	req := attendance.Request{
		Date:    mustGetString(cmd, "date"),
		Period:  mustGetString(cmd, "period"),
		Subject: mustGetString(cmd, "subject"),
	}
	if err := req.Validate(); err != nil {
		return errors.New("--date, --period and --subject are required")
	}

	cfg := config.Load()
	applyCaptureOverrides(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	save := mustGetBool(cmd, "save")
	if save {
		hasStore, err := initStorage(ctx, cfg)
		if err != nil {
			return err
		}
		if !hasStore {
			return errors.New("--save needs DATABASE_URL or MARIADB_DSN")
		}
		defer closeStorage()
	}

	eng, err := buildEngine(ctx, cfg, galleryCache(ctx), slog.Default())
	if err != nil {
		return err
	}
	defer eng.close()

	var progress *captureProgress
	if !mustGetBool(cmd, "no-progress") {
		progress = newCaptureProgress()
		eng.aggregator.OnProgress = progress.report
	}

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		for range sigChan {
			if eng.aggregator.StopWindow() {
				fmt.Fprintln(os.Stderr, "\nStopping current window early (Ctrl+C again to abort)...")
				continue
			}
			fmt.Fprintln(os.Stderr, "\nReceived interrupt signal, aborting...")
			cancel()
			return
		}
	}()

	rec, err := eng.aggregator.Capture(ctx, req)
	if progress != nil {
		_ = progress.bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return fmt.Errorf("attendance capture failed: %w", err)
	}

	if save {
		store, err := database.GetRecordStore(ctx)
		if err != nil {
			return err
		}
		if err := store.SaveRecord(ctx, rec); err != nil {
			return fmt.Errorf("saving record failed: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Record saved (%s backend)\n", database.BackendName())
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}
