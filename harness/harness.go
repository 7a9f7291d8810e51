// CLAUDE:SUMMARY Run orchestrator: discover subjects, rotate slots, capture sequentially, diff on a worker pool, aggregate a report.
// Package harness runs one visual-regression pass over the subject corpus.
//
// Subjects are processed in discovery order against a single shared page:
// rotate (or reset) the slots, capture into current, then hand the subject
// to a diff worker when a previous baseline exists. Captures never overlap.
// Diffs only touch their own subject's files, so they run in parallel.
//
// Failures local to one subject (capture, rotation, dimension mismatch) are
// logged and recorded as skips. Discovery and browser failures abort the run.
package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/hazyhaar/shotcheck/capture"
	"github.com/hazyhaar/shotcheck/pixeldiff"
	"github.com/hazyhaar/shotcheck/report"
	"github.com/hazyhaar/shotcheck/slot"
	"github.com/hazyhaar/shotcheck/subject"
)

// Config configures a run.
type Config struct {
	// Root is the corpus directory walked for subjects.
	Root      string
	Discovery subject.Options

	Store   *slot.Store
	Capture capture.Config

	// Threshold is the per-pixel tolerance in [0,1]. Default: 0.1.
	Threshold float64

	// DiffWorkers bounds concurrent comparisons. Default: runtime.NumCPU().
	DiffWorkers int

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Threshold == 0 {
		c.Threshold = pixeldiff.DefaultThreshold
	}
	if c.DiffWorkers <= 0 {
		c.DiffWorkers = runtime.NumCPU()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Capture.Logger == nil {
		c.Capture.Logger = c.Logger
	}
}

type diffJob struct {
	seq  int
	subj subject.Subject
}

// Run executes one pass. The returned Report is non-nil whenever subjects
// were processed, even if err reports a browser release failure or
// cancellation.
func Run(ctx context.Context, cfg Config, mode slot.Mode, launcher capture.Launcher) (rep *report.Report, err error) {
	cfg.defaults()
	log := cfg.Logger

	if cfg.Store == nil {
		return nil, fmt.Errorf("harness: no slot store")
	}

	subjects, err := subject.Discover(cfg.Root, cfg.Discovery)
	if err != nil {
		return nil, err
	}
	log.Info("harness: subjects discovered", "root", cfg.Root, "count", len(subjects), "mode", mode)

	if err := cfg.Store.Init(); err != nil {
		return nil, fmt.Errorf("harness: %w", err)
	}

	eng, err := capture.New(cfg.Capture)
	if err != nil {
		return nil, fmt.Errorf("harness: %w", err)
	}

	b, err := launcher.Launch(ctx)
	if err != nil {
		return nil, &capture.ResourceError{Op: "launch", Err: err}
	}
	defer func() {
		if cerr := eng.Close(); cerr != nil {
			log.Warn("harness: close page", "error", cerr)
		}
		if cerr := b.Close(); cerr != nil {
			log.Error("harness: close browser", "error", cerr)
			if err == nil {
				err = &capture.ResourceError{Op: "close", Err: cerr}
			}
		}
	}()

	if err := eng.Open(ctx, b); err != nil {
		return nil, err
	}

	rep = report.New()
	jobs := make(chan diffJob)
	var wg sync.WaitGroup
	for range cfg.DiffWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				compareSubject(cfg, rep, j)
			}
		}()
	}

	start := time.Now()
	for i, s := range subjects {
		if ctx.Err() != nil {
			for k, rest := range subjects[i:] {
				rep.Skip(i+k, rest.Token, ctx.Err())
			}
			break
		}

		if !processSubject(ctx, cfg, eng, rep, mode, i, s) {
			continue
		}
		jobs <- diffJob{seq: i, subj: s}
	}
	close(jobs)
	wg.Wait()

	log.Info("harness: run complete", "subjects", len(subjects), "elapsed", time.Since(start))
	return rep, ctx.Err()
}

// processSubject rotates and captures one subject. It returns true when a
// baseline exists and the subject should be compared.
func processSubject(ctx context.Context, cfg Config, eng *capture.Engine, rep *report.Report, mode slot.Mode, seq int, s subject.Subject) bool {
	log := cfg.Logger.With("subject", s.Token)
	st := cfg.Store

	act, err := st.Rotate(s, mode)
	if err != nil {
		log.Warn("harness: rotation failed", "error", err)
		rep.Skip(seq, s.Token, err)
		return false
	}
	log.Debug("harness: rotated", "action", act)

	data, err := eng.Capture(ctx, s)
	if err != nil {
		log.Warn("harness: capture failed", "error", err)
		rep.Skip(seq, s.Token, err)
		return false
	}
	if err := st.WriteCurrent(s, data); err != nil {
		log.Warn("harness: write current failed", "error", err)
		rep.Skip(seq, s.Token, err)
		return false
	}

	hasPrevious, err := st.Exists(s, slot.Previous)
	if err != nil {
		log.Warn("harness: inspect previous failed", "error", err)
		rep.Skip(seq, s.Token, err)
		return false
	}
	if !hasPrevious {
		log.Info("harness: no baseline yet", "action", act)
		rep.Record(report.Result{Seq: seq, Subject: s.Token, HasBaseline: false})
		return false
	}
	return true
}

// compareSubject diffs previous against current and records the outcome.
func compareSubject(cfg Config, rep *report.Report, j diffJob) {
	log := cfg.Logger.With("subject", j.subj.Token)
	st := cfg.Store

	prev, err := st.Load(j.subj, slot.Previous)
	if err != nil {
		log.Warn("harness: load previous failed", "error", err)
		rep.Skip(j.seq, j.subj.Token, err)
		return
	}
	cur, err := st.Load(j.subj, slot.Current)
	if err != nil {
		log.Warn("harness: load current failed", "error", err)
		rep.Skip(j.seq, j.subj.Token, err)
		return
	}

	res, err := pixeldiff.Compare(prev, cur, cfg.Threshold)
	if err != nil {
		var dm *pixeldiff.DimensionMismatchError
		if errors.As(err, &dm) {
			log.Warn("harness: baseline size differs", "previous", dm.A, "current", dm.B)
		} else {
			log.Warn("harness: compare failed", "error", err)
		}
		rep.Skip(j.seq, j.subj.Token, err)
		return
	}

	out := report.Result{
		Seq:           j.seq,
		Subject:       j.subj.Token,
		ChangedPixels: res.Changed,
		TotalPixels:   res.Total,
		HasBaseline:   true,
	}

	if res.Passed() {
		if err := st.RemoveDiff(j.subj); err != nil {
			log.Warn("harness: remove stale diff failed", "error", err)
		}
		rep.Record(out)
		return
	}

	out.Bounds = res.Bounds
	path, err := st.WriteDiff(j.subj, res.Image)
	if err != nil {
		// The regression still counts; only the artifact is missing.
		log.Warn("harness: write diff failed", "error", err)
	} else {
		out.DiffPath = path
	}
	log.Warn("harness: changed", "pixels", res.Changed, "ratio", res.Ratio(), "bounds", res.Bounds, "diff", out.DiffPath)
	rep.Record(out)
}
