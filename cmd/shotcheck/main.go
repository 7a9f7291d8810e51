// CLAUDE:SUMMARY CLI entry point for shotcheck: one visual-regression run over the example corpus, optional reset of all baselines.
// Command shotcheck captures every example page, compares it with its
// accepted baseline and reports the changed subjects.
//
// Usage:
//
//	shotcheck            # compare against existing baselines
//	shotcheck --reset    # drop all baselines, capture fresh ones
//	shotcheck reset      # same as --reset
//
// Configuration is read from $SHOTCHECK_CONFIG, else ./shotcheck.yaml if
// present, else built-in defaults.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hazyhaar/shotcheck/capture"
	"github.com/hazyhaar/shotcheck/harness"
	"github.com/hazyhaar/shotcheck/history"
	"github.com/hazyhaar/shotcheck/internal/browser"
	"github.com/hazyhaar/shotcheck/internal/config"
	"github.com/hazyhaar/shotcheck/pageserver"
	"github.com/hazyhaar/shotcheck/report"
	"github.com/hazyhaar/shotcheck/slot"
	"github.com/hazyhaar/shotcheck/subject"
)

// Exit codes.
const (
	exitOK         = 0
	exitFatal      = 1
	exitRegression = 2
)

func main() {
	os.Exit(realMain(os.Args[1:], os.Stderr))
}

func realMain(args []string, stderr io.Writer) int {
	mode, err := parseMode(args, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitFatal
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitFatal
	}
	logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	passed, err := run(ctx, logger, cfg, mode)
	if err != nil {
		logger.Error("shotcheck: fatal", "error", err)
		return exitFatal
	}
	if !passed && cfg.FailOnRegression {
		return exitRegression
	}
	return exitOK
}

// parseMode accepts --reset or a lone "reset" token.
func parseMode(args []string, stderr io.Writer) (slot.Mode, error) {
	fs := flag.NewFlagSet("shotcheck", flag.ContinueOnError)
	fs.SetOutput(stderr)
	reset := fs.Bool("reset", false, "delete all baselines and capture fresh ones")
	if err := fs.Parse(args); err != nil {
		return slot.Normal, err
	}

	switch rest := fs.Args(); {
	case len(rest) == 0:
	case len(rest) == 1 && rest[0] == "reset":
		*reset = true
	default:
		return slot.Normal, fmt.Errorf("usage: shotcheck [--reset | reset]")
	}
	if *reset {
		return slot.Reset, nil
	}
	return slot.Normal, nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// run performs one pass and reports the suite verdict.
func run(ctx context.Context, logger *slog.Logger, cfg *config.Config, mode slot.Mode) (bool, error) {
	baseURL := cfg.BaseURL
	if cfg.Serve.Enabled {
		srv, err := pageserver.Listen(cfg.Serve.Addr, cfg.ExamplesDir, logger)
		if err != nil {
			return false, fmt.Errorf("serve: %w", err)
		}
		srvCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() { done <- srv.Serve(srvCtx) }()
		defer func() {
			cancel()
			if err := <-done; err != nil {
				logger.Warn("shotcheck: page server", "error", err)
			}
		}()
		baseURL = srv.URL()
		logger.Info("shotcheck: serving examples", "root", cfg.ExamplesDir, "url", baseURL)
	}

	var hist *history.Store
	if cfg.History.Path != "" {
		h, err := history.Open(cfg.History.Path)
		if err != nil {
			return false, err
		}
		defer h.Close()
		hist = h
	}

	mgr := browser.NewManager(browser.Config{
		RemoteURL: cfg.Browser.Remote,
		Bin:       cfg.Browser.Bin,
		Headless:  cfg.Browser.IsHeadless(),
		Stealth:   cfg.Browser.Stealth,
		Settle:    cfg.Settle,
		Logger:    logger,
	})

	hcfg := harness.Config{
		Root: cfg.ExamplesDir,
		Discovery: subject.Options{
			Extension:    cfg.Extension,
			ExcludeDirs:  cfg.ExcludeDirs,
			ExcludeFiles: cfg.ExcludeFiles,
			Denylist:     cfg.Denylist,
		},
		Store: slot.NewStore(cfg.ImagesDir, cfg.DiffsDir),
		Capture: capture.Config{
			BaseURL: baseURL,
			Timeout: cfg.CaptureTimeout,
			Logger:  logger,
		},
		Threshold:   cfg.Threshold,
		DiffWorkers: cfg.DiffWorkers,
		Logger:      logger,
	}

	started := time.Now()
	rep, err := harness.Run(ctx, hcfg, mode, mgr)
	if rep == nil {
		return false, err
	}
	rep.Log(logger)

	if hist != nil {
		logHistory(context.WithoutCancel(ctx), logger, hist, rep)
		// Record even interrupted runs; the partial trail is still useful.
		id, herr := hist.Record(context.WithoutCancel(ctx), mode.String(), started, time.Now(), rep)
		if herr != nil {
			logger.Warn("shotcheck: history record failed", "error", herr)
		} else {
			logger.Debug("shotcheck: run recorded", "run_id", id)
		}
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return rep.Passed(), fmt.Errorf("interrupted: %w", err)
		}
		return rep.Passed(), err
	}
	return rep.Passed(), nil
}

// logHistory relates this run to earlier ones: the previous verdict, and for
// each changed subject its last recorded status. Read errors are only logged.
func logHistory(ctx context.Context, logger *slog.Logger, hist *history.Store, rep *report.Report) {
	runs, err := hist.Recent(ctx, 1)
	if err != nil {
		logger.Warn("shotcheck: history read failed", "error", err)
		return
	}
	if len(runs) == 0 {
		return
	}
	last := runs[0]
	logger.Info("shotcheck: previous run", "run_id", last.ID, "mode", last.Mode,
		"started", last.StartedAt, "passed", last.Passed, "failed", last.Failed)

	for _, f := range rep.Failed() {
		trail, err := hist.SubjectTrail(ctx, f.Subject, 1)
		if err != nil {
			logger.Warn("shotcheck: history read failed", "subject", f.Subject, "error", err)
			continue
		}
		if len(trail) == 0 {
			continue
		}
		logger.Warn("shotcheck: changed since last run", "subject", f.Subject,
			"last_status", trail[0].Status, "last_run", trail[0].RunID)
	}
}
