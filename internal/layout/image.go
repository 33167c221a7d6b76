package layout

import (
	"errors"
	"fmt"
	"image"
	"math"

	xdraw "golang.org/x/image/draw"

	"github.com/RhNO3-lx/chartgen/internal/mask"
	"github.com/RhNO3-lx/chartgen/internal/model"
)

// ErrPlacementExhausted reports that no usable image size was found in
// any mode. The pipeline then proceeds without a decorative image
// rather than failing the infographic.
var ErrPlacementExhausted = errors.New("image placement search exhausted")

// Masker produces the image's occupancy stamp at a requested square size
// in pixels, already reduced to the search grid (see StampFromImage).
type Masker func(sizePx int) (*mask.Mask, error)

// ImageSearch carries the masks and tunables for the size-and-position
// search. Content and Text are first-level masks sharing a grid; the
// search itself runs on a further Factor-downsampled copy to keep the
// O(size² x positions) scan tractable. The grid/Factor pair is the
// explicit two-level downsample.
type ImageSearch struct {
	Content *mask.Mask // chart+title occupancy (caller pre-expands for safety margin)
	Text    *mask.Mask // text-only occupancy
	Factor  int

	MinUsablePx int // below this, a mode is considered collapsed (48-96 depending on context)
	MaxSizePx   int

	// The overlap thresholds treat zero as unset; a negative value
	// requests zero tolerance explicitly.
	SideThreshold       float64 // max overlap ratio vs Content for side mode
	BackgroundThreshold float64 // max overlap ratio vs Text for background mode
	OverlayMinRatio     float64 // min overlap ratio vs Content for overlay mode
	OverlayGain         float64 // overlay must beat side by this factor to win
}

func (s *ImageSearch) defaults() {
	if s.Factor <= 0 {
		s.Factor = 2
	}
	if s.MinUsablePx == 0 {
		s.MinUsablePx = 64
	}
	if s.MaxSizePx == 0 {
		s.MaxSizePx = minInt(s.Content.W, s.Content.H) * s.Content.Grid
	}
	switch {
	case s.SideThreshold == 0:
		s.SideThreshold = 0.02
	case s.SideThreshold < 0:
		s.SideThreshold = 0
	}
	switch {
	case s.BackgroundThreshold == 0:
		s.BackgroundThreshold = 0.05
	case s.BackgroundThreshold < 0:
		s.BackgroundThreshold = 0
	}
	if s.OverlayMinRatio == 0 {
		s.OverlayMinRatio = 0.97
	}
	if s.OverlayGain == 0 {
		s.OverlayGain = 2.2
	}
}

// searchCell is the pixel size of one cell at search resolution.
func (s *ImageSearch) searchCell() int {
	return s.Content.Grid * s.Factor
}

// ChooseImagePlacement finds the best placement mode, size and position
// for the decorative image. Side and overlay are searched independently;
// overlay wins only when its best size exceeds side's by OverlayGain.
// When both collapse below the minimum usable size the search falls back
// to a background wash confined to the chart's bounding box, and when
// that fails too the result is mode none with ErrPlacementExhausted.
func ChooseImagePlacement(s ImageSearch, stamp Masker) (model.ImagePlacement, error) {
	s.defaults()
	content := s.Content.Downsample(s.Factor)
	text := s.Text.Downsample(s.Factor)

	side, sideOK := bestSize(s, stamp, func(st *mask.Mask, x, y int) bool {
		return ratio(content, st, x, y) <= s.SideThreshold
	}, content, nil)

	overlay, overlayOK := bestSize(s, stamp, func(st *mask.Mask, x, y int) bool {
		return ratio(content, st, x, y) >= s.OverlayMinRatio &&
			content.OverlapCount(st, x, y) > 0 && // must actually sit on content
			text.OverlapCount(st, x, y) == 0 // but never on letters
	}, content, nil)

	switch {
	case overlayOK && (!sideOK || float64(overlay.sizePx) > s.OverlayGain*float64(side.sizePx)):
		return overlay.placement(model.ImageOverlay, s.searchCell()), nil
	case sideOK:
		return side.placement(model.ImageSide, s.searchCell()), nil
	}

	// Background wash: allowed to cover shapes (rendered translucent)
	// but not text, confined within the chart's own bounding box.
	if bg, ok := bestSize(s, stamp, func(st *mask.Mask, x, y int) bool {
		return ratio(text, st, x, y) <= s.BackgroundThreshold
	}, content, chartBox(content)); ok {
		return bg.placement(model.ImageBackground, s.searchCell()), nil
	}

	return model.ImagePlacement{Mode: model.ImageNone}, ErrPlacementExhausted
}

// found is a feasible size with one admissible position, in search cells.
type found struct {
	sizePx int
	x, y   int
}

func (f found) placement(mode model.ImageMode, cellPx int) model.ImagePlacement {
	return model.ImagePlacement{
		X:        f.x * cellPx,
		Y:        f.y * cellPx,
		Size:     f.sizePx,
		Mode:     mode,
		Resolved: true,
	}
}

// bestSize binary-searches the largest square size whose stamp admits at
// least one position satisfying ok. The position scan is exhaustive over
// the downsampled grid, optionally confined to a cell box.
func bestSize(s ImageSearch, stamp Masker, ok func(st *mask.Mask, x, y int) bool, canvas *mask.Mask, confine *image.Rectangle) (found, bool) {
	cell := s.searchCell()
	lo := s.MinUsablePx
	hi := s.MaxSizePx
	if hi < lo {
		return found{}, false
	}

	var best found
	have := false
	for lo <= hi {
		mid := (lo + hi) / 2
		// Snap to cell granularity so distinct probes differ.
		mid = maxInt(s.MinUsablePx, mid/cell*cell)
		st, err := stamp(mid)
		if err != nil {
			return found{}, false
		}
		if x, y, posOK := scanPositions(canvas, st, ok, confine); posOK {
			best, have = found{sizePx: mid, x: x, y: y}, true
			lo = mid + cell
		} else {
			hi = mid - cell
		}
	}
	return best, have
}

// scanPositions walks every admissible offset for the stamp.
func scanPositions(canvas, st *mask.Mask, ok func(st *mask.Mask, x, y int) bool, confine *image.Rectangle) (int, int, bool) {
	x0, y0 := 0, 0
	x1, y1 := canvas.W-st.W, canvas.H-st.H
	if confine != nil {
		x0, y0 = confine.Min.X, confine.Min.Y
		x1 = minInt(x1, confine.Max.X-st.W)
		y1 = minInt(y1, confine.Max.Y-st.H)
	}
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			if ok(st, x, y) {
				return x, y, true
			}
		}
	}
	return 0, 0, false
}

// ratio is the fraction of the stamp's occupied cells that collide with
// the canvas mask at (x, y).
func ratio(canvas, st *mask.Mask, x, y int) float64 {
	total := st.Count()
	if total == 0 {
		return 0
	}
	return float64(canvas.OverlapCount(st, x, y)) / float64(total)
}

// chartBox returns the occupied bounding box of the mask as a cell
// rectangle, or nil for an empty mask.
func chartBox(m *mask.Mask) *image.Rectangle {
	minX, minY, maxX, maxY, ok := m.Bounds()
	if !ok {
		return nil
	}
	r := image.Rect(minX, minY, maxX+1, maxY+1)
	return &r
}

// FindBestPosition keeps a fixed image size and searches outward from a
// preferred position in Manhattan-distance rings for a zero-overlap
// placement against the main mask (and avoid mask, when supplied). If
// the search radius (about a third of the canvas) is exhausted, the
// preferred position is returned flagged unresolved; the caller renders
// the image at reduced opacity instead of failing.
func FindBestPosition(main, avoid, stamp *mask.Mask, prefX, prefY int) (int, int, bool) {
	fits := func(x, y int) bool {
		if x < 0 || y < 0 || x+stamp.W > main.W || y+stamp.H > main.H {
			return false
		}
		if main.OverlapCount(stamp, x, y) > 0 {
			return false
		}
		if avoid != nil && avoid.OverlapCount(stamp, x, y) > 0 {
			return false
		}
		return true
	}

	if fits(prefX, prefY) {
		return prefX, prefY, true
	}
	radius := maxInt(main.W, main.H) / 3
	for r := 1; r <= radius; r++ {
		for dx := -r; dx <= r; dx++ {
			dy := r - absInt(dx)
			if fits(prefX+dx, prefY+dy) {
				return prefX + dx, prefY + dy, true
			}
			if dy != 0 && fits(prefX+dx, prefY-dy) {
				return prefX + dx, prefY - dy, true
			}
		}
	}
	return prefX, prefY, false
}

// StampFromImage reduces a decorative image's alpha channel to an
// occupancy stamp for a target square size, scaling with x/image draw.
// cellPx is the pixel size of one search cell.
func StampFromImage(img image.Image, sizePx, cellPx int) (*mask.Mask, error) {
	if sizePx <= 0 || cellPx <= 0 {
		return nil, fmt.Errorf("invalid stamp size %dpx (cell %dpx)", sizePx, cellPx)
	}
	cells := int(math.Ceil(float64(sizePx) / float64(cellPx)))
	scaled := image.NewRGBA(image.Rect(0, 0, cells, cells))
	xdraw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), img, img.Bounds(), xdraw.Over, nil)

	m := mask.New(cells, cells, cellPx)
	for y := 0; y < cells; y++ {
		for x := 0; x < cells; x++ {
			_, _, _, a := scaled.At(x, y).RGBA()
			if a>>8 > 32 {
				m.Set(x, y, true)
			}
		}
	}
	return m, nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func absInt(a int) int {
	if a < 0 {
		return -a
	}
	return a
}
