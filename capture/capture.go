// CLAUDE:SUMMARY Renders subjects through a browser collaborator at a fixed 1600x900 viewport and returns PNG frames.
// Package capture drives the rendering collaborator for one run: a single
// page is opened, sized once, and reused to screenshot every subject in turn.
package capture

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"log/slog"
	"net/url"
	"time"

	"github.com/hazyhaar/shotcheck/subject"
)

// Fixed rendering geometry.
const (
	ViewportWidth     = 1600
	ViewportHeight    = 900
	DeviceScaleFactor = 1.0
)

// Browser is the rendering collaborator acquired once per run.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is one browser tab. Implementations need not be safe for concurrent use.
type Page interface {
	SetViewport(ctx context.Context, width, height int, scale float64) error
	Navigate(ctx context.Context, url string) error
	// WaitSettled blocks until the page has finished rendering.
	WaitSettled(ctx context.Context) error
	// Screenshot returns the visible viewport as PNG.
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// Launcher acquires a Browser.
type Launcher interface {
	Launch(ctx context.Context) (Browser, error)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context) (Browser, error)

func (f LauncherFunc) Launch(ctx context.Context) (Browser, error) { return f(ctx) }

// CaptureError is a navigation or screenshot failure for one subject.
type CaptureError struct {
	Subject string
	URL     string
	Op      string // navigate | settle | screenshot | decode
	Err     error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture: %s %s (subject %s): %v", e.Op, e.URL, e.Subject, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// ResourceError is a failure to acquire or release the browser.
type ResourceError struct {
	Op  string // launch | open-page | viewport | close
	Err error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("capture: browser %s: %v", e.Op, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// Config configures an Engine.
type Config struct {
	// BaseURL serves each subject at BaseURL + Subject.Path.
	BaseURL string

	// Timeout bounds navigate, settle and screenshot for one subject.
	// Zero disables the deadline. Default set by callers: 30s.
	Timeout time.Duration

	Logger *slog.Logger
}

// Engine captures subjects on one shared page.
type Engine struct {
	cfg  Config
	base *url.URL
	page Page
}

// New validates the config and returns an Engine. Call Open before Capture.
func New(cfg Config) (*Engine, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("capture: base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("capture: base url %q must be absolute", cfg.BaseURL)
	}
	return &Engine{cfg: cfg, base: base}, nil
}

// Open creates the shared page on b and applies the fixed viewport.
func (e *Engine) Open(ctx context.Context, b Browser) error {
	p, err := b.NewPage(ctx)
	if err != nil {
		return &ResourceError{Op: "open-page", Err: err}
	}
	if err := p.SetViewport(ctx, ViewportWidth, ViewportHeight, DeviceScaleFactor); err != nil {
		p.Close()
		return &ResourceError{Op: "viewport", Err: err}
	}
	e.page = p
	return nil
}

// Close releases the shared page.
func (e *Engine) Close() error {
	if e.page == nil {
		return nil
	}
	err := e.page.Close()
	e.page = nil
	return err
}

// URL returns where a subject is served.
func (e *Engine) URL(s subject.Subject) string {
	return e.base.JoinPath(s.Path).String()
}

// Capture renders one subject and returns its PNG frame. The call blocks
// until navigation, settle and screenshot complete.
func (e *Engine) Capture(ctx context.Context, s subject.Subject) ([]byte, error) {
	if e.page == nil {
		return nil, &ResourceError{Op: "open-page", Err: fmt.Errorf("engine not open")}
	}
	u := e.URL(s)

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	if err := e.page.Navigate(ctx, u); err != nil {
		return nil, &CaptureError{Subject: s.Token, URL: u, Op: "navigate", Err: err}
	}
	if err := e.page.WaitSettled(ctx); err != nil {
		return nil, &CaptureError{Subject: s.Token, URL: u, Op: "settle", Err: err}
	}
	data, err := e.page.Screenshot(ctx)
	if err != nil {
		return nil, &CaptureError{Subject: s.Token, URL: u, Op: "screenshot", Err: err}
	}

	// A frame that is not a decodable PNG would poison the next compare.
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &CaptureError{Subject: s.Token, URL: u, Op: "decode", Err: err}
	}

	e.cfg.Logger.Debug("capture: frame",
		"subject", s.Token, "url", u,
		"width", cfg.Width, "height", cfg.Height,
		"elapsed", time.Since(start))
	return data, nil
}
