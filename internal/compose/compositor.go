// Package compose assembles the final infographic SVG from the rendered
// chart, the solved title and image placements and the palette, and
// writes the output artifacts.
package compose

import (
	"fmt"
	"strings"

	"github.com/RhNO3-lx/chartgen/internal/mask"
	"github.com/RhNO3-lx/chartgen/internal/model"
)

const (
	titleFontSize   = 28.0
	titleLineHeight = 1.3
	// Unresolved image placements still render, but washed out so they
	// never visually compete with chart ink they may touch.
	unresolvedOpacity = 0.35
	backgroundOpacity = 0.18
)

// Input is everything the compositor needs for one infographic.
type Input struct {
	ChartSVG    string
	ChartWidth  int
	ChartHeight int
	Layout      *model.LayoutPlacement
	TitleText   string
	Palette     *model.Palette
	// ImageHref references the decorative image (path or data URI);
	// empty when the image mode is none.
	ImageHref string
}

// Compose builds the final SVG. Layer order is fixed: background, then
// (for background mode) the decorative image, then the translated chart,
// then the title, then (for side/overlay modes) the image on top.
func Compose(in Input) (string, error) {
	if in.Layout == nil {
		return "", fmt.Errorf("compose: nil layout")
	}
	W, H := in.Layout.CanvasWidth, in.Layout.CanvasHeight
	if W <= 0 || H <= 0 {
		return "", fmt.Errorf("compose: invalid canvas %dx%d", W, H)
	}

	var out strings.Builder
	fmt.Fprintf(&out, `<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" width="%d" height="%d" viewBox="0 0 %d %d">`+"\n", W, H, W, H)

	writeBackground(&out, in, W, H)

	img := in.Layout.Image
	if in.ImageHref != "" && img.Mode == model.ImageBackground {
		writeImage(&out, in.ImageHref, img, backgroundOpacity)
	}

	// The chart keeps its own coordinate space inside a nested svg.
	fmt.Fprintf(&out, `<g transform="translate(%d,%d)">`+"\n", in.Layout.ChartDX, in.Layout.ChartDY)
	out.WriteString(innerSVG(in.ChartSVG))
	out.WriteString("\n</g>\n")

	writeTitle(&out, in)

	if in.ImageHref != "" && (img.Mode == model.ImageSide || img.Mode == model.ImageOverlay) {
		opacity := 1.0
		if !img.Resolved {
			opacity = unresolvedOpacity
		}
		writeImage(&out, in.ImageHref, img, opacity)
	}

	out.WriteString("</svg>")
	return out.String(), nil
}

// writeBackground reuses the chart's own full-canvas background element
// when one exists, stretched to the composed canvas; otherwise it
// synthesizes a subtle vertical gradient from the palette background.
func writeBackground(out *strings.Builder, in Input, W, H int) {
	if _, ok := mask.FindBackgroundRect(in.ChartSVG, float64(in.ChartWidth), float64(in.ChartHeight)); ok {
		fmt.Fprintf(out, `<rect class="background" x="0" y="0" width="%d" height="%d" fill="%s"/>`+"\n", W, H, in.Palette.BackgroundColor)
		return
	}
	fmt.Fprintf(out,
		`<defs><linearGradient id="bg" x1="0" y1="0" x2="0" y2="1"><stop offset="0%%" stop-color="%s"/><stop offset="100%%" stop-color="%s"/></linearGradient></defs>`+"\n",
		in.Palette.BackgroundColor, darken(in.Palette.BackgroundColor, 0.08))
	fmt.Fprintf(out, `<rect class="background" x="0" y="0" width="%d" height="%d" fill="url(#bg)"/>`+"\n", W, H)
}

func writeTitle(out *strings.Builder, in Input) {
	t := in.Layout.Title
	if in.TitleText == "" || t.Width <= 0 {
		return
	}
	lines := wrapTitle(in.TitleText, t.Width)
	anchor, ax := "start", t.X
	switch t.TextAlign {
	case "center":
		anchor, ax = "middle", t.X+t.Width/2
	case "right":
		anchor, ax = "end", t.X+t.Width
	}
	titleH := titleFontSize * titleLineHeight
	lineH := int(titleH)
	fmt.Fprintf(out, `<g class="title" font-family="Arial, sans-serif" font-size="%.0f" font-weight="bold" fill="%s">`+"\n", titleFontSize, in.Palette.TextColor)
	for i, line := range lines {
		y := t.Y + (i+1)*lineH - lineH/4
		fmt.Fprintf(out, `<text x="%d" y="%d" text-anchor="%s">%s</text>`+"\n", ax, y, anchor, escapeXML(line))
	}
	out.WriteString("</g>\n")
}

func writeImage(out *strings.Builder, href string, img model.ImagePlacement, opacity float64) {
	fmt.Fprintf(out, `<image href="%s" x="%d" y="%d" width="%d" height="%d" opacity="%.2f" preserveAspectRatio="xMidYMid meet"/>`+"\n",
		escapeXML(href), img.X, img.Y, img.Size, img.Size, opacity)
}

// RegionTag names the cell of a 3x3 canvas grid containing the image
// center. Recorded in the sidecar for downstream consumers.
func RegionTag(x, y, size, canvasW, canvasH int) string {
	cx, cy := x+size/2, y+size/2
	col := clampIdx(cx*3/maxInt(1, canvasW), 2)
	row := clampIdx(cy*3/maxInt(1, canvasH), 2)
	rows := [3]string{"top", "middle", "bottom"}
	cols := [3]string{"left", "center", "right"}
	if rows[row] == "middle" && cols[col] == "center" {
		return "center"
	}
	return rows[row] + "-" + cols[col]
}

// innerSVG drops an XML prolog if present; the fragment nests as-is.
func innerSVG(svg string) string {
	s := strings.TrimSpace(svg)
	if strings.HasPrefix(s, "<?xml") {
		if i := strings.Index(s, "?>"); i >= 0 {
			s = strings.TrimSpace(s[i+2:])
		}
	}
	return s
}

// wrapTitle greedily wraps by the proportional-font width estimate used
// by the title solver, so rendered lines match the measured block.
func wrapTitle(text string, widthPx int) []string {
	charsPerLine := int(float64(widthPx) / (titleFontSize * 0.6))
	if charsPerLine < 1 {
		charsPerLine = 1
	}
	var lines []string
	var cur strings.Builder
	curLen := 0
	for _, word := range strings.Fields(text) {
		wl := len([]rune(word))
		if curLen > 0 && curLen+1+wl > charsPerLine {
			lines = append(lines, cur.String())
			cur.Reset()
			curLen = 0
		}
		if curLen > 0 {
			cur.WriteByte(' ')
			curLen++
		}
		cur.WriteString(word)
		curLen += wl
	}
	if cur.Len() > 0 {
		lines = append(lines, cur.String())
	}
	return lines
}

// darken shifts a #rrggbb color toward black by the given fraction.
func darken(hex string, frac float64) string {
	s := strings.TrimPrefix(hex, "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return hex
	}
	var r, g, b int
	if _, err := fmt.Sscanf(s, "%02x%02x%02x", &r, &g, &b); err != nil {
		return hex
	}
	scale := 1 - frac
	return fmt.Sprintf("#%02x%02x%02x", int(float64(r)*scale), int(float64(g)*scale), int(float64(b)*scale))
}

func escapeXML(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}

func clampIdx(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
