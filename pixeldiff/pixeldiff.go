// CLAUDE:SUMMARY Thresholded YIQ pixel comparison producing a changed-pixel count and a highlighted diff image.
// Package pixeldiff compares two same-size rasters pixel by pixel.
//
// Distance is the YIQ weighted-channel delta used by pixelmatch, with alpha
// blended over white. A pixel is changed when its delta exceeds
// MaxDelta * threshold². Identical pixels always have delta 0, so an image
// compared with itself never reports a change. The metric is symmetric.
package pixeldiff

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/fogleman/gg"
)

// DefaultThreshold absorbs anti-aliasing noise (~10% channel tolerance).
const DefaultThreshold = 0.1

// MaxDelta is the largest possible YIQ delta between two pixels.
const MaxDelta = 35215.0

var (
	markColor    = color.RGBA{R: 255, A: 255}
	outlineColor = color.RGBA{R: 255, B: 255, A: 255}
)

// fade is the weight of the original luma in unchanged diff pixels.
const fade = 0.1

// DimensionMismatchError is returned when the two images differ in size.
type DimensionMismatchError struct {
	A, B image.Point
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("pixeldiff: dimension mismatch: %dx%d vs %dx%d", e.A.X, e.A.Y, e.B.X, e.B.Y)
}

// Result of a comparison.
type Result struct {
	Changed int             // pixels whose delta exceeded the threshold
	Total   int             // pixels compared
	Bounds  image.Rectangle // smallest rectangle holding every changed pixel, in diff-image coordinates
	Image   *image.RGBA     // same size as the inputs, origin (0,0)
}

// Passed reports whether no pixel changed.
func (r *Result) Passed() bool { return r.Changed == 0 }

// Ratio is the changed fraction of the frame.
func (r *Result) Ratio() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Changed) / float64(r.Total)
}

// Compare diffs a against b. Threshold is clamped to [0,1]; a pixel counts as
// changed when its delta exceeds MaxDelta*threshold². At threshold 1 no delta
// can exceed MaxDelta, so nothing is ever flagged.
func Compare(a, b image.Image, threshold float64) (*Result, error) {
	ab, bb := a.Bounds(), b.Bounds()
	if ab.Size() != bb.Size() {
		return nil, &DimensionMismatchError{A: ab.Size(), B: bb.Size()}
	}

	threshold = math.Max(0, math.Min(1, threshold))
	maxDelta := MaxDelta * threshold * threshold

	w, h := ab.Dx(), ab.Dy()
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	res := &Result{Total: w * h, Image: out}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			ca := color.NRGBAModel.Convert(a.At(ab.Min.X+x, ab.Min.Y+y)).(color.NRGBA)
			cb := color.NRGBAModel.Convert(b.At(bb.Min.X+x, bb.Min.Y+y)).(color.NRGBA)

			if ca != cb && colorDelta(ca, cb) > maxDelta {
				res.Changed++
				res.Bounds = res.Bounds.Union(image.Rect(x, y, x+1, y+1))
				out.SetRGBA(x, y, markColor)
				continue
			}
			out.SetRGBA(x, y, faded(ca))
		}
	}

	if res.Changed > 0 {
		outline(out, res.Bounds)
	}
	return res, nil
}

// colorDelta is the squared YIQ distance between two pixels blended over white.
func colorDelta(a, b color.NRGBA) float64 {
	ar, ag, abl := blend(a)
	br, bg, bbl := blend(b)

	dy := rgb2y(ar, ag, abl) - rgb2y(br, bg, bbl)
	di := rgb2i(ar, ag, abl) - rgb2i(br, bg, bbl)
	dq := rgb2q(ar, ag, abl) - rgb2q(br, bg, bbl)

	return 0.5053*dy*dy + 0.299*di*di + 0.1957*dq*dq
}

func blend(c color.NRGBA) (r, g, b float64) {
	alpha := float64(c.A) / 255
	r = 255 + (float64(c.R)-255)*alpha
	g = 255 + (float64(c.G)-255)*alpha
	b = 255 + (float64(c.B)-255)*alpha
	return
}

func rgb2y(r, g, b float64) float64 { return r*0.29889531 + g*0.58662247 + b*0.11448223 }
func rgb2i(r, g, b float64) float64 { return r*0.59597799 - g*0.27417610 - b*0.32180189 }
func rgb2q(r, g, b float64) float64 { return r*0.21147017 - g*0.52261711 + b*0.31114694 }

// faded renders an unchanged pixel as a pale gray so marks stand out.
func faded(c color.NRGBA) color.RGBA {
	r, g, b := blend(c)
	v := 255 + (rgb2y(r, g, b)-255)*fade
	gray := uint8(math.Round(math.Max(0, math.Min(255, v))))
	return color.RGBA{gray, gray, gray, 255}
}

// outline frames the changed region two pixels outside its bounds. Sides
// that would fall off the image are skipped, so pixels inside the bounds
// keep their marks.
func outline(img *image.RGBA, r image.Rectangle) {
	frame := r.Inset(-2)
	x0, x1 := max(frame.Min.X, img.Rect.Min.X), min(frame.Max.X, img.Rect.Max.X)
	y0, y1 := max(frame.Min.Y, img.Rect.Min.Y), min(frame.Max.Y, img.Rect.Max.Y)

	dc := gg.NewContextForRGBA(img)
	dc.SetColor(outlineColor)
	dc.SetLineWidth(1)
	dc.SetLineCapButt()

	if frame.Min.Y >= img.Rect.Min.Y {
		hline(dc, x0, x1, frame.Min.Y)
	}
	if frame.Max.Y <= img.Rect.Max.Y {
		hline(dc, x0, x1, frame.Max.Y-1)
	}
	if frame.Min.X >= img.Rect.Min.X {
		vline(dc, frame.Min.X, y0, y1)
	}
	if frame.Max.X <= img.Rect.Max.X {
		vline(dc, frame.Max.X-1, y0, y1)
	}
}

func hline(dc *gg.Context, x0, x1, y int) {
	dc.DrawLine(float64(x0), float64(y)+0.5, float64(x1), float64(y)+0.5)
	dc.Stroke()
}

func vline(dc *gg.Context, x, y0, y1 int) {
	dc.DrawLine(float64(x)+0.5, float64(y0), float64(x)+0.5, float64(y1))
	dc.Stroke()
}
