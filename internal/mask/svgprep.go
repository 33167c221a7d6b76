package mask

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// StripMode selects which elements are removed before rasterization.
type StripMode int

const (
	// StripChrome removes full-canvas background fills and hairline
	// separator lines; everything else stays. This is the default mask
	// preparation: background and grid lines would otherwise register
	// as false occupied signal.
	StripChrome StripMode = iota
	// KeepTextOnly additionally drops every shape element, leaving only
	// text (and its containers), to derive the text-only mask.
	KeepTextOnly
	// DropText removes chrome and all text elements, leaving only the
	// non-text foreground content.
	DropText
)

// Node is one element of the parsed SVG fragment tree. Unknown
// attributes and children pass through unchanged so re-serialization is
// lossless enough for rasterization.
type Node struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Children []Node     `xml:",any"`
	Text     string     `xml:",chardata"`
}

// Attr returns the value of a named attribute.
func (n *Node) Attr(name string) string {
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

var textTags = map[string]bool{"text": true, "tspan": true, "textPath": true}

var shapeTags = map[string]bool{
	"rect": true, "circle": true, "ellipse": true, "line": true,
	"polyline": true, "polygon": true, "path": true, "image": true,
}

// PrepareSVG parses an SVG fragment, removes the elements the mode
// excludes and re-serializes it. canvasW/canvasH give the declared
// canvas size used to recognize full-canvas background elements.
func PrepareSVG(svg string, mode StripMode, canvasW, canvasH float64) (string, error) {
	var root Node
	if err := xml.Unmarshal([]byte(svg), &root); err != nil {
		return "", fmt.Errorf("%w: parsing svg: %v", ErrMaskComputation, err)
	}
	root.Children = stripChildren(root.Children, mode, canvasW, canvasH)

	ns := root.XMLName.Space
	stripNamespaceDecls(&root)
	if ns != "" {
		root.Attrs = append([]xml.Attr{{Name: xml.Name{Local: "xmlns"}, Value: ns}}, root.Attrs...)
	}

	out, err := xml.Marshal(&root)
	if err != nil {
		return "", fmt.Errorf("%w: reserializing svg: %v", ErrMaskComputation, err)
	}
	return string(out), nil
}

// stripNamespaceDecls clears the namespace the unmarshaler recorded in
// both XMLName.Space and the captured attribute list. Marshaling with
// both set emits a duplicate xmlns attribute on the root, which strict
// SVG parsers reject as malformed.
func stripNamespaceDecls(n *Node) {
	n.XMLName.Space = ""
	kept := n.Attrs[:0]
	for _, a := range n.Attrs {
		if a.Name.Local == "xmlns" || a.Name.Space == "xmlns" {
			continue
		}
		kept = append(kept, a)
	}
	n.Attrs = kept
	for i := range n.Children {
		stripNamespaceDecls(&n.Children[i])
	}
}

func stripChildren(nodes []Node, mode StripMode, w, h float64) []Node {
	kept := nodes[:0]
	for _, n := range nodes {
		if excluded(&n, mode, w, h) {
			continue
		}
		n.Children = stripChildren(n.Children, mode, w, h)
		kept = append(kept, n)
	}
	return kept
}

// excluded applies the closed predicate set for the mode.
func excluded(n *Node, mode StripMode, w, h float64) bool {
	if isBackground(n, w, h) || isHairline(n) {
		return true
	}
	tag := n.XMLName.Local
	switch mode {
	case KeepTextOnly:
		// Drop shapes; keep text and structural containers (g, defs,
		// svg) whose subtrees may hold text.
		return shapeTags[tag]
	case DropText:
		return textTags[tag]
	}
	return false
}

// isBackground recognizes a rect or image covering (nearly) the whole
// canvas: a pure background fill, not chart ink.
func isBackground(n *Node, w, h float64) bool {
	tag := n.XMLName.Local
	if tag != "rect" && tag != "image" {
		return false
	}
	if strings.Contains(n.Attr("class"), "background") {
		return true
	}
	if w <= 0 || h <= 0 {
		return false
	}
	ew, okW := dimension(n.Attr("width"), w)
	eh, okH := dimension(n.Attr("height"), h)
	if !okW || !okH {
		return false
	}
	x, _ := dimension(n.Attr("x"), w)
	y, _ := dimension(n.Attr("y"), h)
	return x <= 0.05*w && y <= 0.05*h && ew >= 0.95*w && eh >= 0.95*h
}

// isHairline recognizes thin separator strokes (width <= 1) carrying no
// fill of their own.
func isHairline(n *Node) bool {
	tag := n.XMLName.Local
	if tag != "line" && tag != "path" && tag != "polyline" {
		return false
	}
	sw := n.Attr("stroke-width")
	if sw == "" {
		if style := n.Attr("style"); style != "" {
			sw = styleValue(style, "stroke-width")
		}
	}
	if sw == "" {
		return false
	}
	width, err := strconv.ParseFloat(strings.TrimSuffix(sw, "px"), 64)
	if err != nil || width > 1 {
		return false
	}
	fill := n.Attr("fill")
	return fill == "" || fill == "none"
}

// dimension parses an SVG length, resolving percentages against total.
func dimension(v string, total float64) (float64, bool) {
	if v == "" {
		return 0, false
	}
	if strings.HasSuffix(v, "%") {
		pct, err := strconv.ParseFloat(strings.TrimSuffix(v, "%"), 64)
		if err != nil {
			return 0, false
		}
		return pct / 100 * total, true
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(v, "px"), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// styleValue extracts one property from an inline style attribute.
func styleValue(style, key string) string {
	for _, decl := range strings.Split(style, ";") {
		parts := strings.SplitN(decl, ":", 2)
		if len(parts) == 2 && strings.TrimSpace(parts[0]) == key {
			return strings.TrimSpace(parts[1])
		}
	}
	return ""
}

// FindBackgroundRect returns the serialized full-canvas background
// element of an SVG fragment, if one exists. The compositor reuses it
// instead of synthesizing a gradient.
func FindBackgroundRect(svg string, canvasW, canvasH float64) (string, bool) {
	var root Node
	if err := xml.Unmarshal([]byte(svg), &root); err != nil {
		return "", false
	}
	var found *Node
	var walk func(ns []Node)
	walk = func(ns []Node) {
		for i := range ns {
			if found != nil {
				return
			}
			if isBackground(&ns[i], canvasW, canvasH) {
				found = &ns[i]
				return
			}
			walk(ns[i].Children)
		}
	}
	walk(root.Children)
	if found == nil {
		return "", false
	}
	stripNamespaceDecls(found)
	out, err := xml.Marshal(found)
	if err != nil {
		return "", false
	}
	return string(out), true
}
