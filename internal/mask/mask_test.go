package mask

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromImageAnyPixelRule(t *testing.T) {
	// 10x10 white image with a single dark pixel at (7, 2): with grid 5
	// the whole top-right cell must read occupied.
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	white := color.RGBA{255, 255, 255, 255}
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			img.Set(x, y, white)
		}
	}
	img.Set(7, 2, color.RGBA{0, 0, 0, 255})

	m := FromImage(img, white, 5, 15.0)
	assert.Equal(t, 2, m.W)
	assert.Equal(t, 2, m.H)
	assert.True(t, m.At(1, 0))
	assert.False(t, m.At(0, 0))
	assert.False(t, m.At(0, 1))
	assert.False(t, m.At(1, 1))
	assert.Equal(t, 1, m.Count())
}

func TestFromImageThresholdBoundary(t *testing.T) {
	bg := color.RGBA{100, 100, 100, 255}
	img := image.NewRGBA(image.Rect(0, 0, 5, 5))
	for y := 0; y < 5; y++ {
		for x := 0; x < 5; x++ {
			img.Set(x, y, bg)
		}
	}
	// Distance 8 stays under the threshold of 15.
	img.Set(2, 2, color.RGBA{108, 100, 100, 255})
	assert.Equal(t, 0, FromImage(img, bg, 5, 15.0).Count())

	// Distance ~17 crosses it.
	img.Set(2, 2, color.RGBA{110, 110, 105, 255})
	assert.Equal(t, 1, FromImage(img, bg, 5, 15.0).Count())
}

func TestDownsampleAnyOccupied(t *testing.T) {
	m := New(4, 4, 5)
	m.Set(3, 3, true)
	d := m.Downsample(2)
	assert.Equal(t, 2, d.W)
	assert.Equal(t, 10, d.Grid)
	assert.True(t, d.At(1, 1))
	assert.Equal(t, 1, d.Count())
}

func TestExpandDistance(t *testing.T) {
	m := New(9, 9, 5)
	m.Set(4, 4, true)

	e := m.Expand(2)
	// Euclidean: (4,2) is at distance 2, inside; (2,2) is at sqrt(8), out.
	assert.True(t, e.At(4, 2))
	assert.True(t, e.At(2, 4))
	assert.True(t, e.At(3, 3)) // sqrt(2)
	assert.False(t, e.At(2, 2))
	assert.False(t, e.At(4, 1))

	// Zero distance is an identical copy.
	same := m.Expand(0)
	assert.Equal(t, m.Count(), same.Count())
	assert.True(t, same.At(4, 4))
}

func TestExpandMonotonic(t *testing.T) {
	m := New(12, 12, 5)
	m.Set(2, 3, true)
	m.Set(8, 9, true)

	d1, d2 := m.Expand(1), m.Expand(3)
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			if d1.At(x, y) {
				assert.True(t, d2.At(x, y), "cell (%d,%d) lost at larger distance", x, y)
			}
		}
	}
	assert.Greater(t, d2.Count(), d1.Count())
}

func TestExpandEmptyMaskStaysEmpty(t *testing.T) {
	assert.Equal(t, 0, New(5, 5, 5).Expand(3).Count())
}

func TestOverlapCount(t *testing.T) {
	m := New(6, 6, 5)
	m.Set(2, 2, true)
	m.Set(3, 2, true)

	stamp := New(2, 1, 5)
	stamp.Set(0, 0, true)
	stamp.Set(1, 0, true)

	assert.Equal(t, 2, m.OverlapCount(stamp, 2, 2))
	assert.Equal(t, 1, m.OverlapCount(stamp, 3, 2))
	assert.Equal(t, 0, m.OverlapCount(stamp, 0, 0))
	// Stamp hanging off the edge counts no phantom overlap.
	assert.Equal(t, 0, m.OverlapCount(stamp, 5, 5))
}

func TestBoundsAndUnion(t *testing.T) {
	m := New(8, 8, 5)
	_, _, _, _, ok := m.Bounds()
	assert.False(t, ok)

	m.Set(2, 3, true)
	m.Set(5, 6, true)
	minX, minY, maxX, maxY, ok := m.Bounds()
	require.True(t, ok)
	assert.Equal(t, []int{2, 3, 5, 6}, []int{minX, minY, maxX, maxY})

	other := New(8, 8, 5)
	other.Set(0, 0, true)
	m.Union(other)
	assert.Equal(t, 3, m.Count())
}

func TestRectOverlapCount(t *testing.T) {
	m := New(6, 6, 5)
	m.Set(1, 1, true)
	m.Set(2, 2, true)
	m.Set(5, 5, true)
	assert.Equal(t, 2, m.RectOverlapCount(0, 0, 4, 4))
	assert.Equal(t, 3, m.RectOverlapCount(0, 0, 6, 6))
}
