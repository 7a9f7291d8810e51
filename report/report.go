// CLAUDE:SUMMARY Collects per-subject comparison outcomes and skips into a suite-level pass/fail verdict and summary line.
// Package report aggregates the outcome of one run.
//
// A Report is created per run and handed back to the caller; there is no
// package-level state. It is safe for concurrent use by diff workers.
package report

import (
	"fmt"
	"image"
	"log/slog"
	"slices"
	"strings"
	"sync"
)

// Result is the comparison outcome for one subject.
type Result struct {
	Seq           int // discovery order
	Subject       string
	ChangedPixels int
	TotalPixels   int
	HasBaseline   bool
	DiffPath      string          // set when a diff artifact was written
	Bounds        image.Rectangle // changed region, empty when unchanged
}

// Passed reports whether the subject shows no regression.
func (r Result) Passed() bool { return r.ChangedPixels == 0 }

// Skipped is a subject whose comparison could not be completed.
type Skipped struct {
	Seq     int
	Subject string
	Err     error
}

// Report accumulates results and skips.
type Report struct {
	mu      sync.Mutex
	results []Result
	skipped []Skipped
}

// New returns an empty Report.
func New() *Report { return &Report{} }

// Record adds a comparison result.
func (r *Report) Record(res Result) {
	r.mu.Lock()
	r.results = append(r.results, res)
	r.mu.Unlock()
}

// Skip marks a subject as skipped for this run.
func (r *Report) Skip(seq int, subject string, err error) {
	r.mu.Lock()
	r.skipped = append(r.skipped, Skipped{Seq: seq, Subject: subject, Err: err})
	r.mu.Unlock()
}

// Results returns every recorded result in discovery order.
func (r *Report) Results() []Result {
	r.mu.Lock()
	out := slices.Clone(r.results)
	r.mu.Unlock()
	slices.SortFunc(out, func(a, b Result) int { return a.Seq - b.Seq })
	return out
}

// Failed returns results with changed pixels, in discovery order.
func (r *Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results() {
		if !res.Passed() {
			out = append(out, res)
		}
	}
	return out
}

// Skipped returns skipped subjects in discovery order.
func (r *Report) Skipped() []Skipped {
	r.mu.Lock()
	out := slices.Clone(r.skipped)
	r.mu.Unlock()
	slices.SortFunc(out, func(a, b Skipped) int { return a.Seq - b.Seq })
	return out
}

// Passed is the suite verdict: every recorded result unchanged.
// Skipped subjects do not count against it.
func (r *Report) Passed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range r.results {
		if !res.Passed() {
			return false
		}
	}
	return true
}

// Summary renders the final human-readable line.
func (r *Report) Summary() string {
	failed := r.Failed()
	skipped := r.Skipped()

	if len(failed) == 0 && len(skipped) == 0 {
		return fmt.Sprintf("all clear: %d subjects unchanged", len(r.Results()))
	}

	var b strings.Builder
	if len(failed) == 0 {
		fmt.Fprintf(&b, "no changes in %d subjects", len(r.Results()))
	} else {
		fmt.Fprintf(&b, "%d changed:", len(failed))
		for _, f := range failed {
			fmt.Fprintf(&b, " %s (%d px", f.Subject, f.ChangedPixels)
			if !f.Bounds.Empty() {
				fmt.Fprintf(&b, " in %v", f.Bounds)
			}
			if f.DiffPath != "" {
				fmt.Fprintf(&b, ", %s", f.DiffPath)
			}
			b.WriteString(")")
		}
	}
	if len(skipped) > 0 {
		fmt.Fprintf(&b, "; %d skipped:", len(skipped))
		for _, s := range skipped {
			fmt.Fprintf(&b, " %s", s.Subject)
		}
	}
	return b.String()
}

// Log emits the summary and one warning per skipped subject.
func (r *Report) Log(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, s := range r.Skipped() {
		logger.Warn("report: subject skipped", "subject", s.Subject, "error", s.Err)
	}
	results := r.Results()
	newCount := 0
	for _, res := range results {
		if !res.HasBaseline {
			newCount++
		}
	}

	attrs := []any{
		"compared", len(results) - newCount,
		"new", newCount,
		"failed", len(r.Failed()),
		"skipped", len(r.Skipped()),
	}
	if r.Passed() && len(r.Skipped()) == 0 {
		logger.Info("report: "+r.Summary(), attrs...)
		return
	}
	logger.Warn("report: "+r.Summary(), attrs...)
}
