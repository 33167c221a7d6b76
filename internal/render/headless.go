package render

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/RhNO3-lx/chartgen/internal/model"
)

// HeadlessRenderer executes a script template's HTML page in headless
// Chrome and extracts the SVG the chart library produced. The page is
// loaded as a base64 data URI so no temp files or local server are
// involved.
type HeadlessRenderer struct {
	Timeout time.Duration
}

// NewHeadlessRenderer applies the default per-render timeout.
func NewHeadlessRenderer() *HeadlessRenderer {
	return &HeadlessRenderer{Timeout: 30 * time.Second}
}

// Render builds the page, waits for the chart script to settle and pulls
// the svg element's outer HTML. Raster fallback output (a canvas, or an
// SVG stuffed with bitmap data URIs) is a hard error: downstream masking
// and restyling need true vector content.
func (h *HeadlessRenderer) Render(ctx context.Context, tmpl *model.TemplateDescriptor, ds *model.DatasetDescriptor, pal *model.Palette, width, height int) (*Result, error) {
	page, err := BuildScriptPage(tmpl, ds, pal, width, height)
	if err != nil {
		return nil, err
	}

	svg, err := h.extractSVG(ctx, page, width, height)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRenderBackend, tmpl.Key(), err)
	}
	if ContainsRasterFallback(svg) {
		return nil, fmt.Errorf("%w: %s", ErrRasterOutput, tmpl.Key())
	}

	w, hgt := svgDimensions(svg, width, height)
	return &Result{SVG: svg, Width: w, Height: hgt}, nil
}

func (h *HeadlessRenderer) extractSVG(ctx context.Context, page string, width, height int) (string, error) {
	dataURI := "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(page))

	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Headless)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		tabCtx, cancel = context.WithTimeout(tabCtx, h.Timeout)
		defer cancel()
	}

	var outer string
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.Navigate(dataURI),
		chromedp.WaitVisible(`svg`, chromedp.ByQuery),
		chromedp.OuterHTML(`svg`, &outer, chromedp.ByQuery),
	}
	if err := chromedp.Run(tabCtx, tasks); err != nil {
		return "", fmt.Errorf("chromedp execution failed: %w", err)
	}
	if outer == "" {
		return "", fmt.Errorf("script produced no svg element")
	}
	return outer, nil
}

// Screenshot renders an SVG fragment and returns its PNG screenshot,
// used for the raster preview artifact.
func (h *HeadlessRenderer) Screenshot(ctx context.Context, svg string, width, height int) ([]byte, error) {
	page := fmt.Sprintf(`<!DOCTYPE html><html><body style="margin:0">%s</body></html>`, svg)
	dataURI := "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(page))

	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Headless)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		tabCtx, cancel = context.WithTimeout(tabCtx, h.Timeout)
		defer cancel()
	}

	var buf []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.Navigate(dataURI),
		chromedp.WaitVisible(`svg`, chromedp.ByQuery),
		chromedp.Screenshot(`svg`, &buf, chromedp.ByQuery),
	}
	log.Println("running chromedp tasks (navigate and screenshot)")
	if err := chromedp.Run(tabCtx, tasks); err != nil {
		return nil, fmt.Errorf("chromedp execution failed: %w", err)
	}
	if len(buf) == 0 {
		return nil, fmt.Errorf("screenshot buffer is empty")
	}
	return buf, nil
}

var svgWidthRe = regexp.MustCompile(`<svg[^>]*\bwidth="(\d+)`)
var svgHeightRe = regexp.MustCompile(`<svg[^>]*\bheight="(\d+)`)

// svgDimensions reads the realized width/height attributes, falling back
// to the requested size.
func svgDimensions(svg string, defW, defH int) (int, int) {
	w, h := defW, defH
	if m := svgWidthRe.FindStringSubmatch(svg); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil && v > 0 {
			w = v
		}
	}
	if m := svgHeightRe.FindStringSubmatch(svg); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil && v > 0 {
			h = v
		}
	}
	return w, h
}
