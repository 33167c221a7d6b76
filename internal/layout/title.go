// Package layout places the title block and the decorative image around
// a chart's occupancy mask. Both solvers are pure functions of their
// input masks and candidate sizes, safe to run concurrently across
// independent infographics.
package layout

import (
	"math"
	"math/rand"
	"strings"

	"github.com/RhNO3-lx/chartgen/internal/mask"
	"github.com/RhNO3-lx/chartgen/internal/model"
)

// The nine canonical title-to-chart relations.
const (
	RelTopLeft     = "top-left"
	RelTopRight    = "top-right"
	RelBottomLeft  = "bottom-left"
	RelBottomRight = "bottom-right"
	RelTop         = "top"
	RelBottom      = "bottom"
	RelLeft        = "left"
	RelRight       = "right"
	RelCenter      = "center"
)

// TitleCandidate is one pre-measured title block size in pixels.
type TitleCandidate struct {
	Width  int
	Height int
}

// TitleLayout is one evaluated placement with its total-area cost.
type TitleLayout struct {
	Relation     string
	Title        model.TitlePlacement
	ChartDX      int // px shift applied to the chart group
	ChartDY      int
	CanvasWidth  int // px
	CanvasHeight int
	Area         float64 // cells²; the minimized objective
}

// TitleOptions tunes the title search.
type TitleOptions struct {
	ChartType string
	// GapPx is the clearance kept between the title block and chart ink.
	GapPx int
	// NearTolerance widens the winner set: layouts within this fraction
	// of the minimum area join the randomized tie-break.
	NearTolerance float64
	Rng           *rand.Rand
}

func (o *TitleOptions) defaults() {
	if o.GapPx == 0 {
		o.GapPx = 10
	}
	if o.NearTolerance == 0 {
		o.NearTolerance = 0.05
	}
	if o.Rng == nil {
		o.Rng = rand.New(rand.NewSource(1))
	}
}

// PlaceTitle evaluates the nine canonical placements for every candidate
// size and returns the minimum-total-area layout. Near-minimal layouts
// (within NearTolerance) are sampled randomly with double weight on
// top-left; the randomness is intentional, to vary styling across runs.
func PlaceTitle(chart *mask.Mask, cands []TitleCandidate, opts TitleOptions) TitleLayout {
	opts.defaults()
	if len(cands) == 0 {
		cands = []TitleCandidate{{Width: 250, Height: 40}}
	}

	// Degenerate chart: nothing occupies the canvas, so the default
	// top-left layout needs no pushed-out area at all.
	if chart.Count() == 0 {
		c := cands[0]
		return topLayout(chart, c, 0, 0, RelTopLeft)
	}

	all := EvaluateTitleLayouts(chart, cands, opts)
	best := all[0].Area
	for _, l := range all {
		if l.Area < best {
			best = l.Area
		}
	}

	var near []TitleLayout
	for _, l := range all {
		if l.Area <= best*(1+opts.NearTolerance) {
			near = append(near, l)
		}
	}
	return pickWeighted(near, opts.Rng)
}

// EvaluateTitleLayouts returns every evaluated layout; exported so the
// area-optimality property is directly testable.
func EvaluateTitleLayouts(chart *mask.Mask, cands []TitleCandidate, opts TitleOptions) []TitleLayout {
	opts.defaults()
	g := chart.Grid
	gap := cellsCeil(opts.GapPx, g)

	firstRow := profileFirstRow(chart)
	lastRow := profileLastRow(chart)
	firstCol := profileFirstCol(chart)
	lastCol := profileLastCol(chart)

	var out []TitleLayout

	// A donut/pie with a hollow center can host the title with zero
	// area growth; try the center band first.
	if isRingChart(opts.ChartType) {
		for _, c := range cands {
			if l, ok := centerLayout(chart, c); ok {
				out = append(out, l)
			}
		}
	}

	for _, c := range cands {
		tw := cellsCeil(c.Width, g)
		th := cellsCeil(c.Height, g)

		// Corner placements sweep the offset along the adjacent side;
		// pure side placements are centered.
		sweep := sweepOffsets(chart.W, tw)
		out = append(out,
			bestOver(sweep.left, func(ox int) TitleLayout {
				return topLayout(chart, c, ox, pushDown(firstRow, ox, tw, th+gap), RelTopLeft)
			}),
			bestOver(sweep.right, func(ox int) TitleLayout {
				return topLayout(chart, c, ox, pushDown(firstRow, ox, tw, th+gap), RelTopRight)
			}),
			topLayout(chart, c, sweep.center, pushDown(firstRow, sweep.center, tw, th+gap), RelTop),
			bestOver(sweep.left, func(ox int) TitleLayout {
				return bottomLayout(chart, c, ox, pushUp(lastRow, chart.H, ox, tw, th+gap), RelBottomLeft)
			}),
			bestOver(sweep.right, func(ox int) TitleLayout {
				return bottomLayout(chart, c, ox, pushUp(lastRow, chart.H, ox, tw, th+gap), RelBottomRight)
			}),
			bottomLayout(chart, c, sweep.center, pushUp(lastRow, chart.H, sweep.center, tw, th+gap), RelBottom),
		)

		vsweep := sweepOffsets(chart.H, th)
		out = append(out,
			sideLayout(chart, c, vsweep.center, pushRight(firstCol, vsweep.center, th, tw+gap), RelLeft),
			sideLayoutRight(chart, c, vsweep.center, pushLeft(lastCol, chart.W, vsweep.center, th, tw+gap), RelRight),
		)
	}
	return out
}

// pickWeighted samples among near-minimal layouts with double weight on
// top-left, the cosmetically preferred near-tie.
func pickWeighted(near []TitleLayout, rng *rand.Rand) TitleLayout {
	total := 0.0
	for _, l := range near {
		total += tieWeight(l.Relation)
	}
	r := rng.Float64() * total
	for _, l := range near {
		r -= tieWeight(l.Relation)
		if r < 0 {
			return l
		}
	}
	return near[len(near)-1]
}

func tieWeight(relation string) float64 {
	if relation == RelTopLeft {
		return 2
	}
	return 1
}

// --- placement geometry ---

// topLayout grows the canvas downward by dy cells; the title sits flush
// with the top edge at column offset ox.
func topLayout(chart *mask.Mask, c TitleCandidate, ox, dy int, rel string) TitleLayout {
	g := chart.Grid
	tw := cellsCeil(c.Width, g)
	w := maxInt(chart.W, ox+tw)
	h := chart.H + dy
	return TitleLayout{
		Relation: rel,
		Title: model.TitlePlacement{
			X: ox * g, Y: 0, Width: c.Width, Height: c.Height,
			TextAlign: alignFor(rel), Relation: rel,
		},
		ChartDY:      dy * g,
		CanvasWidth:  w * g,
		CanvasHeight: h * g,
		Area:         float64(w * h),
	}
}

// bottomLayout grows the canvas downward; the chart keeps its origin and
// the title sits below the last pushed row.
func bottomLayout(chart *mask.Mask, c TitleCandidate, ox, need int, rel string) TitleLayout {
	g := chart.Grid
	tw := cellsCeil(c.Width, g)
	th := cellsCeil(c.Height, g)
	w := maxInt(chart.W, ox+tw)
	h := chart.H + need
	return TitleLayout{
		Relation: rel,
		Title: model.TitlePlacement{
			X: ox * g, Y: (h - th) * g, Width: c.Width, Height: c.Height,
			TextAlign: alignFor(rel), Relation: rel,
		},
		CanvasWidth:  w * g,
		CanvasHeight: h * g,
		Area:         float64(w * h),
	}
}

// sideLayout grows the canvas rightward by dx, shifting the chart right;
// the title hugs the left edge.
func sideLayout(chart *mask.Mask, c TitleCandidate, oy, dx int, rel string) TitleLayout {
	g := chart.Grid
	th := cellsCeil(c.Height, g)
	w := chart.W + dx
	h := maxInt(chart.H, oy+th)
	return TitleLayout{
		Relation: rel,
		Title: model.TitlePlacement{
			X: 0, Y: oy * g, Width: c.Width, Height: c.Height,
			TextAlign: alignFor(rel), Relation: rel,
		},
		ChartDX:      dx * g,
		CanvasWidth:  w * g,
		CanvasHeight: h * g,
		Area:         float64(w * h),
	}
}

// sideLayoutRight grows the canvas rightward; the title hugs the new
// right edge.
func sideLayoutRight(chart *mask.Mask, c TitleCandidate, oy, need int, rel string) TitleLayout {
	g := chart.Grid
	tw := cellsCeil(c.Width, g)
	th := cellsCeil(c.Height, g)
	w := chart.W + need
	h := maxInt(chart.H, oy+th)
	return TitleLayout{
		Relation: rel,
		Title: model.TitlePlacement{
			X: (w - tw) * g, Y: oy * g, Width: c.Width, Height: c.Height,
			TextAlign: alignFor(rel), Relation: rel,
		},
		CanvasWidth:  w * g,
		CanvasHeight: h * g,
		Area:         float64(w * h),
	}
}

// centerLayout fits the title into the hollow middle band of a ring
// chart: find the empty horizontal span around the midpoint at vertical
// center and require the candidate to fit with no canvas growth.
func centerLayout(chart *mask.Mask, c TitleCandidate) (TitleLayout, bool) {
	g := chart.Grid
	tw := cellsCeil(c.Width, g)
	th := cellsCeil(c.Height, g)
	midX, midY := chart.W/2, chart.H/2

	bandTop := midY - th/2
	emptyInBand := func(x int) bool {
		for y := bandTop; y < bandTop+th; y++ {
			if chart.At(x, y) {
				return false
			}
		}
		return true
	}
	left, right := midX, midX
	for left > 0 && emptyInBand(left-1) {
		left--
	}
	for right < chart.W-1 && emptyInBand(right+1) {
		right++
	}
	if right-left+1 < tw {
		return TitleLayout{}, false
	}
	// Also require the band itself to be reasonably hollow, so a dense
	// chart with one empty column does not trigger this path.
	span := float64(right - left + 1)
	if span < 0.25*float64(chart.W) {
		return TitleLayout{}, false
	}
	return TitleLayout{
		Relation: RelCenter,
		Title: model.TitlePlacement{
			X: (midX - tw/2) * g, Y: bandTop * g, Width: c.Width, Height: c.Height,
			TextAlign: "center", Relation: RelCenter,
		},
		CanvasWidth:  chart.W * g,
		CanvasHeight: chart.H * g,
		Area:         float64(chart.W * chart.H),
	}, true
}

// --- occupancy profiles and push distances ---

// profileFirstRow returns, per column, the first occupied row (H when
// the column is empty).
func profileFirstRow(m *mask.Mask) []int {
	out := make([]int, m.W)
	for x := 0; x < m.W; x++ {
		out[x] = m.H
		for y := 0; y < m.H; y++ {
			if m.At(x, y) {
				out[x] = y
				break
			}
		}
	}
	return out
}

func profileLastRow(m *mask.Mask) []int {
	out := make([]int, m.W)
	for x := 0; x < m.W; x++ {
		out[x] = -1
		for y := m.H - 1; y >= 0; y-- {
			if m.At(x, y) {
				out[x] = y
				break
			}
		}
	}
	return out
}

func profileFirstCol(m *mask.Mask) []int {
	out := make([]int, m.H)
	for y := 0; y < m.H; y++ {
		out[y] = m.W
		for x := 0; x < m.W; x++ {
			if m.At(x, y) {
				out[y] = x
				break
			}
		}
	}
	return out
}

func profileLastCol(m *mask.Mask) []int {
	out := make([]int, m.H)
	for y := 0; y < m.H; y++ {
		out[y] = -1
		for x := m.W - 1; x >= 0; x-- {
			if m.At(x, y) {
				out[y] = x
				break
			}
		}
	}
	return out
}

// pushDown returns how many cells the chart must shift down so a title
// band of height need over columns [ox, ox+tw) clears the chart ink.
func pushDown(firstRow []int, ox, tw, need int) int {
	push := 0
	for x := ox; x < ox+tw && x < len(firstRow); x++ {
		if p := need - firstRow[x]; p > push {
			push = p
		}
	}
	return push
}

// pushUp returns the extra canvas needed below the chart for a bottom
// title band.
func pushUp(lastRow []int, h, ox, tw, need int) int {
	push := 0
	for x := ox; x < ox+tw && x < len(lastRow); x++ {
		free := h - 1 - lastRow[x]
		if lastRow[x] < 0 {
			free = h
		}
		if p := need - free; p > push {
			push = p
		}
	}
	return push
}

func pushRight(firstCol []int, oy, th, need int) int {
	push := 0
	for y := oy; y < oy+th && y < len(firstCol); y++ {
		if p := need - firstCol[y]; p > push {
			push = p
		}
	}
	return push
}

func pushLeft(lastCol []int, w, oy, th, need int) int {
	push := 0
	for y := oy; y < oy+th && y < len(lastCol); y++ {
		free := w - 1 - lastCol[y]
		if lastCol[y] < 0 {
			free = w
		}
		if p := need - free; p > push {
			push = p
		}
	}
	return push
}

// --- sweeps and small helpers ---

type sweepSet struct {
	left   []int
	right  []int
	center int
}

// sweepOffsets produces the corner offset sweeps along one axis: the
// left/top corner sweeps outward from 0 through the first half, the
// right/bottom corner mirrors it, and the pure side placement centers.
func sweepOffsets(extent, span int) sweepSet {
	maxOff := extent - span
	if maxOff < 0 {
		maxOff = 0
	}
	step := maxInt(1, extent/20)
	var left, right []int
	for off := 0; off <= maxOff/2; off += step {
		left = append(left, off)
		right = append(right, maxOff-off)
	}
	if len(left) == 0 {
		left, right = []int{0}, []int{maxOff}
	}
	return sweepSet{left: left, right: right, center: maxOff / 2}
}

// bestOver evaluates a layout constructor over a sweep and keeps the
// minimum-area result.
func bestOver(offsets []int, build func(off int) TitleLayout) TitleLayout {
	best := build(offsets[0])
	for _, off := range offsets[1:] {
		if l := build(off); l.Area < best.Area {
			best = l
		}
	}
	return best
}

func isRingChart(chartType string) bool {
	t := strings.ToLower(chartType)
	return strings.Contains(t, "donut") || strings.Contains(t, "pie") || strings.Contains(t, "ring")
}

func alignFor(rel string) string {
	switch rel {
	case RelTopLeft, RelBottomLeft, RelLeft:
		return "left"
	case RelTopRight, RelBottomRight, RelRight:
		return "right"
	default:
		return "center"
	}
}

func cellsCeil(px, grid int) int {
	return int(math.Ceil(float64(px) / float64(grid)))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// MeasureTitleCandidates pre-measures title block sizes at increasing
// widths spanning [max(250, chartWidth/2), chartWidth] in ~100px steps.
// Height follows the wrapped line count under the usual proportional
// font width heuristic.
func MeasureTitleCandidates(title string, chartWidthPx, fontSizePx int) []TitleCandidate {
	if fontSizePx <= 0 {
		fontSizePx = 28
	}
	minW := maxInt(250, chartWidthPx/2)
	if minW > chartWidthPx {
		minW = chartWidthPx
	}
	lineHeight := int(float64(fontSizePx) * 1.3)

	var out []TitleCandidate
	for w := minW; w <= chartWidthPx; w += 100 {
		lines := wrappedLineCount(title, w, fontSizePx)
		out = append(out, TitleCandidate{Width: w, Height: lines * lineHeight})
	}
	if len(out) == 0 {
		out = append(out, TitleCandidate{Width: minW, Height: lineHeight})
	}
	return out
}

// wrappedLineCount estimates how many lines the title wraps to at the
// given width. Average glyph width is ~0.6 of the font size for
// proportional fonts.
func wrappedLineCount(text string, widthPx, fontSizePx int) int {
	charsPerLine := int(float64(widthPx) / (float64(fontSizePx) * 0.6))
	if charsPerLine < 1 {
		charsPerLine = 1
	}
	lines, lineLen := 1, 0
	for _, word := range strings.Fields(text) {
		wl := len([]rune(word))
		if lineLen > 0 && lineLen+1+wl > charsPerLine {
			lines++
			lineLen = wl
			continue
		}
		if lineLen > 0 {
			lineLen++
		}
		lineLen += wl
	}
	return lines
}
