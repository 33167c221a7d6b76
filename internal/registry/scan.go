package registry

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/RhNO3-lx/chartgen/internal/model"
)

// Sentinel markers delimiting the requirements JSON embedded in template
// source comments.
const (
	reqBegin = "REQUIREMENTS_BEGIN"
	reqEnd   = "REQUIREMENTS_END"
)

// templateExts are the file extensions considered template candidates.
var templateExts = map[string]bool{
	".html": true,
	".tmpl": true,
	".d2":   true,
	".js":   true,
}

// ScanTemplates walks each engine subdirectory under root and extracts a
// descriptor from every candidate file. A file whose requirements block
// is malformed or lacks a chart_type is skipped with a warning, never
// fatal; only I/O errors on the walk itself abort the scan.
func ScanTemplates(root string) ([]*model.TemplateDescriptor, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading template root: %w", err)
	}

	var out []*model.TemplateDescriptor
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		engine, err := model.ParseEngine(entry.Name())
		if err != nil {
			log.Printf("registry: skipping directory %s: %v", entry.Name(), err)
			continue
		}
		if engine == model.EngineProcedural {
			// Procedural templates are statically registered, never
			// loaded from disk.
			continue
		}
		engineDir := filepath.Join(root, entry.Name())
		err = filepath.WalkDir(engineDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !templateExts[filepath.Ext(path)] {
				return nil
			}
			t, perr := parseTemplateFile(path, engine)
			if perr != nil {
				log.Printf("registry: skipping template %s: %v", path, perr)
				return nil
			}
			out = append(out, t)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", engineDir, err)
		}
	}
	return out, nil
}

// parseTemplateFile extracts the sentinel-delimited requirements block
// from a template file and builds its descriptor.
func parseTemplateFile(path string, engine model.Engine) (*model.TemplateDescriptor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading: %w", err)
	}
	block, err := ExtractRequirementsBlock(string(raw))
	if err != nil {
		return nil, err
	}

	var header struct {
		ChartType string `json:"chart_type"`
		ChartName string `json:"chart_name"`
		model.Requirements
	}
	if err := json.Unmarshal([]byte(block), &header); err != nil {
		return nil, fmt.Errorf("parsing requirements JSON: %w", err)
	}
	if header.ChartType == "" {
		return nil, fmt.Errorf("requirements block lacks chart_type")
	}
	name := header.ChartName
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return &model.TemplateDescriptor{
		Engine:       engine,
		ChartType:    header.ChartType,
		ChartName:    name,
		Requirements: header.Requirements,
		Path:         path,
	}, nil
}

// ExtractRequirementsBlock returns the JSON object between the sentinel
// markers, with any per-line comment prefixes stripped.
func ExtractRequirementsBlock(src string) (string, error) {
	start := strings.Index(src, reqBegin)
	if start < 0 {
		return "", fmt.Errorf("no %s marker", reqBegin)
	}
	rest := src[start+len(reqBegin):]
	end := strings.Index(rest, reqEnd)
	if end < 0 {
		return "", fmt.Errorf("no %s marker", reqEnd)
	}
	block := rest[:end]

	// Template comments may prefix every line (e.g. "//" in .js or .d2
	// files); strip leading comment tokens so the JSON parses.
	lines := strings.Split(block, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		trimmed = strings.TrimPrefix(trimmed, "//")
		trimmed = strings.TrimPrefix(trimmed, "#")
		trimmed = strings.TrimPrefix(trimmed, "*")
		lines[i] = trimmed
	}
	joined := strings.TrimSpace(strings.Join(lines, "\n"))
	joined = strings.TrimSuffix(joined, "-->")
	joined = strings.TrimSpace(strings.TrimPrefix(joined, "<!--"))
	if !strings.HasPrefix(joined, "{") {
		return "", fmt.Errorf("requirements block is not a JSON object")
	}
	return joined, nil
}
