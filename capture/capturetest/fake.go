// Package capturetest provides an in-memory capture.Browser for tests.
package capturetest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"sync"

	"github.com/hazyhaar/shotcheck/capture"
)

// Browser renders pages from a lookup table instead of a real engine.
type Browser struct {
	mu sync.Mutex

	// Render returns the frame for a URL. Nil frame with nil error means
	// "page not found" and fails navigation.
	Render func(url string) (image.Image, error)

	// FailNewPage makes NewPage return this error.
	FailNewPage error

	// FailClose makes Close return this error. The browser still counts
	// as closed.
	FailClose error

	Visited  []string
	Pages    int
	Closed   bool
	Viewport image.Point
	Scale    float64
}

// NewBrowser returns a Browser driven by render.
func NewBrowser(render func(url string) (image.Image, error)) *Browser {
	return &Browser{Render: render}
}

// Launcher returns a capture.Launcher that hands out b.
func (b *Browser) Launcher() capture.Launcher {
	return capture.LauncherFunc(func(context.Context) (capture.Browser, error) { return b, nil })
}

func (b *Browser) NewPage(ctx context.Context) (capture.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailNewPage != nil {
		return nil, b.FailNewPage
	}
	if b.Closed {
		return nil, errors.New("capturetest: browser closed")
	}
	b.Pages++
	return &page{b: b}, nil
}

func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Closed = true
	return b.FailClose
}

// IsClosed reports whether Close was called.
func (b *Browser) IsClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Closed
}

type page struct {
	b     *Browser
	url   string
	frame image.Image
}

func (p *page) SetViewport(_ context.Context, w, h int, scale float64) error {
	p.b.mu.Lock()
	defer p.b.mu.Unlock()
	p.b.Viewport = image.Pt(w, h)
	p.b.Scale = scale
	return nil
}

func (p *page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.b.mu.Lock()
	p.b.Visited = append(p.b.Visited, url)
	render := p.b.Render
	p.b.mu.Unlock()

	img, err := render(url)
	if err != nil {
		return err
	}
	if img == nil {
		return fmt.Errorf("capturetest: 404 %s", url)
	}
	p.url, p.frame = url, img
	return nil
}

func (p *page) WaitSettled(ctx context.Context) error { return ctx.Err() }

func (p *page) Screenshot(ctx context.Context) ([]byte, error) {
	if p.frame == nil {
		return nil, errors.New("capturetest: nothing rendered")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, p.frame); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (p *page) Close() error { return nil }
