package mask

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/chromedp/chromedp"
)

// Rasterizer converts an SVG fragment to a raster against a declared
// background color. Implementations must be safe for concurrent calls.
type Rasterizer interface {
	Rasterize(ctx context.Context, svg string, width, height int, background string) (image.Image, error)
}

// CLIRasterizer shells out to an external vector-to-raster tool
// (resvg-compatible flags). Each call uses unique temp files so
// concurrent invocations never collide.
type CLIRasterizer struct {
	Command string
	DPI     int
}

// Rasterize implements Rasterizer via subprocess.
func (r *CLIRasterizer) Rasterize(ctx context.Context, svg string, width, height int, background string) (image.Image, error) {
	in, err := os.CreateTemp("", "chartgen-*.svg")
	if err != nil {
		return nil, fmt.Errorf("%w: temp svg: %v", ErrMaskComputation, err)
	}
	defer os.Remove(in.Name())
	if _, err := in.WriteString(svg); err != nil {
		in.Close()
		return nil, fmt.Errorf("%w: writing temp svg: %v", ErrMaskComputation, err)
	}
	in.Close()

	out, err := os.CreateTemp("", "chartgen-*.png")
	if err != nil {
		return nil, fmt.Errorf("%w: temp png: %v", ErrMaskComputation, err)
	}
	out.Close()
	defer os.Remove(out.Name())

	args := []string{
		"--background", background,
		"--width", strconv.Itoa(width),
		"--height", strconv.Itoa(height),
	}
	if r.DPI > 0 {
		args = append(args, "--dpi", strconv.Itoa(r.DPI))
	}
	args = append(args, in.Name(), out.Name())

	cmd := exec.CommandContext(ctx, r.Command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %s failed: %v (%s)", ErrMaskComputation, r.Command, err, strings.TrimSpace(stderr.String()))
	}

	raw, err := os.ReadFile(out.Name())
	if err != nil {
		return nil, fmt.Errorf("%w: reading raster output: %v", ErrMaskComputation, err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: decoding raster output: %v", ErrMaskComputation, err)
	}
	return img, nil
}

// ChromeRasterizer renders the SVG as a base64 data URI in headless
// Chrome and screenshots the svg element.
type ChromeRasterizer struct{}

// Rasterize implements Rasterizer via a headless-browser screenshot.
func (r *ChromeRasterizer) Rasterize(ctx context.Context, svg string, width, height int, background string) (image.Image, error) {
	// Wrap the fragment in a page that pins the declared background so
	// transparent regions rasterize to it.
	page := fmt.Sprintf(
		`<!DOCTYPE html><html><body style="margin:0;background:%s">%s</body></html>`,
		background, svg)
	dataURI := "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(page))

	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Headless)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()

	var buf []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.Navigate(dataURI),
		chromedp.WaitVisible(`svg`, chromedp.ByQuery),
		chromedp.Screenshot(`svg`, &buf, chromedp.ByQuery),
	}
	if err := chromedp.Run(tabCtx, tasks); err != nil {
		return nil, fmt.Errorf("%w: chromedp rasterize: %v", ErrMaskComputation, err)
	}
	if len(buf) == 0 {
		return nil, fmt.Errorf("%w: empty screenshot buffer", ErrMaskComputation)
	}
	img, err := png.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("%w: decoding screenshot: %v", ErrMaskComputation, err)
	}
	return img, nil
}

// Engine pairs a rasterizer with grid parameters and derives the mask
// variants the layout solver consumes.
type Engine struct {
	Rasterizer Rasterizer
	Grid       int
	Threshold  float64
}

// NewEngine applies the conventional defaults.
func NewEngine(r Rasterizer) *Engine {
	return &Engine{Rasterizer: r, Grid: DefaultGrid, Threshold: DefaultThreshold}
}

// Compute returns the full-content occupancy mask of an SVG fragment:
// chrome stripped, rasterized against the background, reduced to the
// grid.
func (e *Engine) Compute(ctx context.Context, svg string, width, height int, background string) (*Mask, error) {
	return e.compute(ctx, svg, width, height, background, StripChrome)
}

// ComputeText returns the text-only occupancy mask.
func (e *Engine) ComputeText(ctx context.Context, svg string, width, height int, background string) (*Mask, error) {
	return e.compute(ctx, svg, width, height, background, KeepTextOnly)
}

// ComputeContent returns the non-text foreground mask.
func (e *Engine) ComputeContent(ctx context.Context, svg string, width, height int, background string) (*Mask, error) {
	return e.compute(ctx, svg, width, height, background, DropText)
}

func (e *Engine) compute(ctx context.Context, svg string, width, height int, background string, mode StripMode) (*Mask, error) {
	prepared, err := PrepareSVG(svg, mode, float64(width), float64(height))
	if err != nil {
		return nil, err
	}
	img, err := e.Rasterizer.Rasterize(ctx, prepared, width, height, background)
	if err != nil {
		return nil, err
	}
	bg, err := ParseHexColor(background)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMaskComputation, err)
	}
	return FromImage(img, bg, e.Grid, e.Threshold), nil
}

// ParseHexColor parses #rgb and #rrggbb colors.
func ParseHexColor(s string) (color.Color, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	switch len(s) {
	case 3:
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	case 6:
	default:
		return nil, fmt.Errorf("invalid hex color %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid hex color %q: %v", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}
