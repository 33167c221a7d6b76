// Package mask turns rendered SVG fragments into coarse binary occupancy
// grids and provides the mask algebra the layout solver searches over:
// downsampling, overlap scoring and distance-transform expansion.
package mask

import (
	"errors"
	"image"
	"image/color"
	"math"
)

// ErrMaskComputation wraps rasterization failures. There is no safe
// empty-mask default: an incorrect empty mask would silently place
// content on top of chart ink.
var ErrMaskComputation = errors.New("mask computation failed")

// DefaultGrid is the cell size in pixels of a first-level mask.
const DefaultGrid = 5

// DefaultThreshold is the Euclidean RGB distance beyond which a pixel
// counts as foreground against the declared background color.
const DefaultThreshold = 15.0

// Mask is a 2D binary occupancy grid over a rendered canvas. Cell (0,0)
// is the top-left; Grid is the source pixel size of one cell.
type Mask struct {
	W, H  int
	Grid  int
	cells []uint8
}

// New creates an all-zero mask.
func New(w, h, grid int) *Mask {
	return &Mask{W: w, H: h, Grid: grid, cells: make([]uint8, w*h)}
}

// At reports whether a cell is occupied. Out-of-range cells read as empty.
func (m *Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.W || y >= m.H {
		return false
	}
	return m.cells[y*m.W+x] != 0
}

// Set marks a cell occupied or empty. Out-of-range writes are dropped.
func (m *Mask) Set(x, y int, occupied bool) {
	if x < 0 || y < 0 || x >= m.W || y >= m.H {
		return
	}
	if occupied {
		m.cells[y*m.W+x] = 1
	} else {
		m.cells[y*m.W+x] = 0
	}
}

// Count returns the number of occupied cells.
func (m *Mask) Count() int {
	n := 0
	for _, c := range m.cells {
		if c != 0 {
			n++
		}
	}
	return n
}

// Clone returns a deep copy.
func (m *Mask) Clone() *Mask {
	out := New(m.W, m.H, m.Grid)
	copy(out.cells, m.cells)
	return out
}

// Bounds returns the bounding box of occupied cells and false when the
// mask is empty.
func (m *Mask) Bounds() (minX, minY, maxX, maxY int, ok bool) {
	minX, minY = m.W, m.H
	maxX, maxY = -1, -1
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			if m.At(x, y) {
				if x < minX {
					minX = x
				}
				if y < minY {
					minY = y
				}
				if x > maxX {
					maxX = x
				}
				if y > maxY {
					maxY = y
				}
			}
		}
	}
	return minX, minY, maxX, maxY, maxX >= 0
}

// Union overlays other onto m in place. Both masks must share dimensions;
// mismatched cells outside m are ignored.
func (m *Mask) Union(other *Mask) {
	for y := 0; y < other.H; y++ {
		for x := 0; x < other.W; x++ {
			if other.At(x, y) {
				m.Set(x, y, true)
			}
		}
	}
}

// OverlapCount returns how many occupied cells of the stamp, placed at
// (dx, dy), land on occupied cells of m. Stamp cells falling outside m
// do not count as overlap.
func (m *Mask) OverlapCount(stamp *Mask, dx, dy int) int {
	n := 0
	for y := 0; y < stamp.H; y++ {
		for x := 0; x < stamp.W; x++ {
			if stamp.At(x, y) && m.At(x+dx, y+dy) {
				n++
			}
		}
	}
	return n
}

// RectOverlapCount returns how many occupied cells of m fall inside the
// cell rectangle [x, x+w) x [y, y+h).
func (m *Mask) RectOverlapCount(x, y, w, h int) int {
	n := 0
	for yy := y; yy < y+h; yy++ {
		for xx := x; xx < x+w; xx++ {
			if m.At(xx, yy) {
				n++
			}
		}
	}
	return n
}

// Downsample reduces the mask by an integer factor. Any occupied source
// cell marks the destination cell occupied, preserving the
// over-estimation rule of the first-level grid.
func (m *Mask) Downsample(factor int) *Mask {
	if factor <= 1 {
		return m.Clone()
	}
	w := (m.W + factor - 1) / factor
	h := (m.H + factor - 1) / factor
	out := New(w, h, m.Grid*factor)
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			if m.At(x, y) {
				out.Set(x/factor, y/factor, true)
			}
		}
	}
	return out
}

// FromImage reduces a raster to grid occupancy: a cell is occupied when
// any pixel in its source block differs from the background color by
// more than the threshold (Euclidean RGB distance). Over-estimating
// occupied area is deliberate, so a sliver of content still claims its
// whole cell.
func FromImage(img image.Image, background color.Color, grid int, threshold float64) *Mask {
	b := img.Bounds()
	w := (b.Dx() + grid - 1) / grid
	h := (b.Dy() + grid - 1) / grid
	m := New(w, h, grid)

	bgR, bgG, bgB := rgb8(background)
	t2 := threshold * threshold

	for cy := 0; cy < h; cy++ {
		for cx := 0; cx < w; cx++ {
			if cellOccupied(img, b, cx, cy, grid, bgR, bgG, bgB, t2) {
				m.Set(cx, cy, true)
			}
		}
	}
	return m
}

func cellOccupied(img image.Image, b image.Rectangle, cx, cy, grid int, bgR, bgG, bgB float64, t2 float64) bool {
	x0 := b.Min.X + cx*grid
	y0 := b.Min.Y + cy*grid
	for y := y0; y < y0+grid && y < b.Max.Y; y++ {
		for x := x0; x < x0+grid && x < b.Max.X; x++ {
			r, g, bl := rgb8(img.At(x, y))
			dr, dg, db := r-bgR, g-bgG, bl-bgB
			if dr*dr+dg*dg+db*db > t2 {
				return true
			}
		}
	}
	return false
}

func rgb8(c color.Color) (float64, float64, float64) {
	r, g, b, _ := c.RGBA()
	return float64(r >> 8), float64(g >> 8), float64(b >> 8)
}

// Expand grows the occupied region by distance cells using a Euclidean
// distance transform over the inverted mask: every background cell
// within distance of an occupied cell becomes occupied. distance 0
// returns an identical copy.
func (m *Mask) Expand(distance int) *Mask {
	out := m.Clone()
	if distance <= 0 || m.Count() == 0 {
		return out
	}
	dist2 := squaredDistanceTransform(m)
	limit := float64(distance * distance)
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			if dist2[y*m.W+x] <= limit {
				out.Set(x, y, true)
			}
		}
	}
	return out
}

const farAway = 1e18

// squaredDistanceTransform computes, per cell, the squared Euclidean
// distance to the nearest occupied cell (two-pass 1D lower-envelope
// transform, columns then rows).
func squaredDistanceTransform(m *Mask) []float64 {
	d := make([]float64, m.W*m.H)
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			if m.At(x, y) {
				d[y*m.W+x] = 0
			} else {
				d[y*m.W+x] = farAway
			}
		}
	}

	col := make([]float64, m.H)
	for x := 0; x < m.W; x++ {
		for y := 0; y < m.H; y++ {
			col[y] = d[y*m.W+x]
		}
		for y, v := range transform1D(col) {
			d[y*m.W+x] = v
		}
	}

	row := make([]float64, m.W)
	for y := 0; y < m.H; y++ {
		copy(row, d[y*m.W:(y+1)*m.W])
		for x, v := range transform1D(row) {
			d[y*m.W+x] = v
		}
	}
	return d
}

// transform1D is the 1D squared distance transform of Felzenszwalb and
// Huttenlocher: the lower envelope of parabolas rooted at each sample.
func transform1D(f []float64) []float64 {
	n := len(f)
	d := make([]float64, n)
	if n == 0 {
		return d
	}
	v := make([]int, n)
	z := make([]float64, n+1)
	k := 0
	v[0] = 0
	z[0] = math.Inf(-1)
	z[1] = math.Inf(1)

	for q := 1; q < n; q++ {
		var s float64
		for {
			p := v[k]
			s = ((f[q] + float64(q*q)) - (f[p] + float64(p*p))) / float64(2*q-2*p)
			if s > z[k] {
				break
			}
			k--
		}
		k++
		v[k] = q
		z[k] = s
		z[k+1] = math.Inf(1)
	}

	k = 0
	for q := 0; q < n; q++ {
		for z[k+1] < float64(q) {
			k++
		}
		dq := float64(q - v[k])
		d[q] = dq*dq + f[v[k]]
	}
	return d
}
