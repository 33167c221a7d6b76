package model

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// Column is one dataset column. Role is assigned after template
// selection; order of columns is significant because roles map onto
// columns positionally.
type Column struct {
	Name     string   `json:"name"`
	DataType DataType `json:"data_type"`
	Unit     string   `json:"unit,omitempty"`
	Role     string   `json:"role,omitempty"`
}

// DatasetDescriptor is one chart's worth of tabular data.
type DatasetDescriptor struct {
	Columns         []Column                 `json:"columns"`
	Rows            []map[string]interface{} `json:"data"`
	TypeCombination string                   `json:"type_combination,omitempty"`
}

// datasetFile mirrors the wire shape {"data": {...descriptor...}}.
type datasetFile struct {
	Data DatasetDescriptor `json:"data"`
}

// LoadDataset reads the dataset JSON wire format.
func LoadDataset(path string) (*DatasetDescriptor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dataset %s: %w", path, err)
	}
	var file datasetFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parsing dataset %s: %w", path, err)
	}
	ds := file.Data
	if len(ds.Columns) == 0 {
		return nil, fmt.Errorf("dataset %s: no columns", path)
	}
	if ds.TypeCombination == "" {
		ds.TypeCombination = ds.ComputeTypeCombination()
	}
	return &ds, nil
}

// LoadPalettePair reads the two-theme palette JSON.
func LoadPalettePair(path string) (*PalettePair, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading palette %s: %w", path, err)
	}
	var pp PalettePair
	if err := json.Unmarshal(raw, &pp); err != nil {
		return nil, fmt.Errorf("parsing palette %s: %w", path, err)
	}
	return &pp, nil
}

// ComputeTypeCombination joins the column types with " + ", the coarse
// compatibility pre-filter key.
func (ds *DatasetDescriptor) ComputeTypeCombination() string {
	parts := make([]string, len(ds.Columns))
	for i, c := range ds.Columns {
		parts[i] = string(c.DataType)
	}
	return strings.Join(parts, " + ")
}

// DistinctCount returns the number of distinct values in the named column.
func (ds *DatasetDescriptor) DistinctCount(col string) int {
	seen := make(map[string]struct{}, len(ds.Rows))
	for _, row := range ds.Rows {
		seen[valueKey(row[col])] = struct{}{}
	}
	return len(seen)
}

// DistinctComboCount returns the number of distinct value combinations
// across the named columns, used by the hierarchy check.
func (ds *DatasetDescriptor) DistinctComboCount(cols ...string) int {
	seen := make(map[string]struct{}, len(ds.Rows))
	for _, row := range ds.Rows {
		parts := make([]string, len(cols))
		for i, c := range cols {
			parts[i] = valueKey(row[c])
		}
		seen[strings.Join(parts, "\x1f")] = struct{}{}
	}
	return len(seen)
}

// NumericRange returns the [min, max] of a numerical column. ok is false
// when the column holds no parseable numbers.
func (ds *DatasetDescriptor) NumericRange(col string) (min, max float64, ok bool) {
	min, max = math.Inf(1), math.Inf(-1)
	for _, row := range ds.Rows {
		v, numOK := toFloat(row[col])
		if !numOK {
			continue
		}
		ok = true
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max, ok
}

// Numbers returns the column's values as floats, skipping non-numbers.
func (ds *DatasetDescriptor) Numbers(col string) []float64 {
	out := make([]float64, 0, len(ds.Rows))
	for _, row := range ds.Rows {
		if v, ok := toFloat(row[col]); ok {
			out = append(out, v)
		}
	}
	return out
}

// Strings returns the column's values rendered as strings, in row order.
func (ds *DatasetDescriptor) Strings(col string) []string {
	out := make([]string, 0, len(ds.Rows))
	for _, row := range ds.Rows {
		out = append(out, valueKey(row[col]))
	}
	return out
}

// DistinctStrings returns distinct values of a column in first-seen order.
func (ds *DatasetDescriptor) DistinctStrings(col string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, row := range ds.Rows {
		s := valueKey(row[col])
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// AssignRoles maps the resolved role list onto the columns positionally,
// in declaration order. Extra columns keep an empty role.
func (ds *DatasetDescriptor) AssignRoles(roles []RoleSpec) error {
	if len(roles) > len(ds.Columns) {
		return fmt.Errorf("template needs %d fields, dataset has %d columns", len(roles), len(ds.Columns))
	}
	for i := range ds.Columns {
		if i < len(roles) {
			ds.Columns[i].Role = roles[i].Name
		} else {
			ds.Columns[i].Role = ""
		}
	}
	return nil
}

// ColumnByRole returns the column currently assigned the role.
func (ds *DatasetDescriptor) ColumnByRole(role string) (*Column, bool) {
	for i := range ds.Columns {
		if ds.Columns[i].Role == role {
			return &ds.Columns[i], true
		}
	}
	return nil, false
}

// LoadCSV builds a DatasetDescriptor from a CSV file with a header row,
// inferring column types from the first data row.
func LoadCSV(path string) (*DatasetDescriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening csv %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading csv header %s: %w", path, err)
	}

	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv %s: %w", path, err)
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv %s: no data rows", path)
	}

	ds := &DatasetDescriptor{Columns: make([]Column, len(header))}
	for i, name := range header {
		ds.Columns[i] = Column{Name: name, DataType: inferColumnType(records, i)}
	}
	for _, rec := range records {
		row := make(map[string]interface{}, len(header))
		for i, name := range header {
			if i >= len(rec) {
				continue
			}
			if ds.Columns[i].DataType == Numerical {
				if v, err := strconv.ParseFloat(rec[i], 64); err == nil {
					row[name] = v
					continue
				}
			}
			row[name] = rec[i]
		}
		ds.Rows = append(ds.Rows, row)
	}
	ds.TypeCombination = ds.ComputeTypeCombination()
	return ds, nil
}

// inferColumnType samples the column's values: all numbers -> numerical,
// all parseable dates -> temporal, else categorical.
func inferColumnType(records [][]string, col int) DataType {
	numeric, temporal := true, true
	for _, rec := range records {
		if col >= len(rec) {
			continue
		}
		v := strings.TrimSpace(rec[col])
		if v == "" {
			continue
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			numeric = false
		}
		if !looksTemporal(v) {
			temporal = false
		}
	}
	switch {
	case numeric:
		return Numerical
	case temporal:
		return Temporal
	default:
		return Categorical
	}
}

var temporalLayouts = []string{"2006-01-02", "2006/01/02", "2006-01", "Jan 2006", "2006"}

func looksTemporal(v string) bool {
	for _, layout := range temporalLayouts {
		if _, err := time.Parse(layout, v); err == nil {
			return true
		}
	}
	return false
}

func valueKey(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
