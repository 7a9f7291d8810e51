package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// Tab wraps a Rod page as a capture.Page.
type Tab struct {
	page   *rod.Page
	settle time.Duration
	logger *slog.Logger
}

// SetViewport fixes the CSS viewport and device pixel ratio.
func (t *Tab) SetViewport(ctx context.Context, width, height int, scale float64) error {
	err := t.page.Context(ctx).SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: scale,
		Mobile:            false,
	})
	if err != nil {
		return fmt.Errorf("browser: set viewport: %w", err)
	}
	return nil
}

// Navigate loads url and waits for the load event.
func (t *Tab) Navigate(ctx context.Context, url string) error {
	p := t.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("browser: wait load %s: %w", url, err)
	}
	return nil
}

// WaitSettled waits until requests and DOM have been idle for the settle window.
func (t *Tab) WaitSettled(ctx context.Context) error {
	start := time.Now()
	if err := t.page.Context(ctx).WaitStable(t.settle); err != nil {
		return fmt.Errorf("browser: wait stable: %w", err)
	}
	t.logger.Debug("browser: page settled", "elapsed", time.Since(start))
	return nil
}

// Screenshot captures the viewport as PNG.
func (t *Tab) Screenshot(ctx context.Context) ([]byte, error) {
	data, err := t.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("browser: screenshot: %w", err)
	}
	return data, nil
}

// Close closes the tab.
func (t *Tab) Close() error {
	if t.page != nil {
		return t.page.Close()
	}
	return nil
}
