package compose

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fogleman/gg"
	"github.com/gofrs/flock"

	"github.com/RhNO3-lx/chartgen/internal/mask"
	"github.com/RhNO3-lx/chartgen/internal/model"
)

// Artifacts is the file set written for one finished infographic.
type Artifacts struct {
	SVG     string                   // final composed document
	PNG     []byte                   // optional raster preview
	Layout  *model.LayoutPlacement   // info.json sidecar
	Dataset *model.DatasetDescriptor // data.json echo
	// DebugMask, when set, is rendered to mask_debug.png for inspection.
	DebugMask *mask.Mask
}

// Write persists the artifact set under dir. A directory-level lock file
// serializes writers so concurrent pipeline workers targeting the same
// output directory never interleave partial files.
func Write(dir string, a *Artifacts) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output dir %s: %w", dir, err)
	}

	lock := flock.New(filepath.Join(dir, ".chartgen.lock"))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("locking output dir %s: %w", dir, err)
	}
	defer lock.Unlock()

	if err := os.WriteFile(filepath.Join(dir, "chart.svg"), []byte(a.SVG), 0o644); err != nil {
		return fmt.Errorf("writing chart.svg: %w", err)
	}
	if len(a.PNG) > 0 {
		if err := os.WriteFile(filepath.Join(dir, "chart.png"), a.PNG, 0o644); err != nil {
			return fmt.Errorf("writing chart.png: %w", err)
		}
	}
	if a.Layout != nil {
		if err := writeJSON(filepath.Join(dir, "info.json"), a.Layout); err != nil {
			return err
		}
	}
	if a.Dataset != nil {
		if err := writeJSON(filepath.Join(dir, "data.json"), a.Dataset); err != nil {
			return err
		}
	}
	if a.DebugMask != nil {
		if err := writeMaskDebug(filepath.Join(dir, "mask_debug.png"), a.DebugMask); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(path string, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return nil
}

// writeMaskDebug paints occupied cells as filled squares at their source
// pixel scale, matching what the layout solver saw.
func writeMaskDebug(path string, m *mask.Mask) error {
	g := m.Grid
	dc := gg.NewContext(m.W*g, m.H*g)
	dc.SetHexColor("#ffffff")
	dc.Clear()
	dc.SetHexColor("#d33682")
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			if m.At(x, y) {
				dc.DrawRectangle(float64(x*g), float64(y*g), float64(g), float64(g))
			}
		}
	}
	dc.Fill()
	if err := dc.SavePNG(path); err != nil {
		return fmt.Errorf("writing mask debug image: %w", err)
	}
	return nil
}
