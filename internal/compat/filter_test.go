package compat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RhNO3-lx/chartgen/internal/model"
	"github.com/RhNO3-lx/chartgen/internal/registry"
)

func barTemplate(name string, xMax float64) *model.TemplateDescriptor {
	return &model.TemplateDescriptor{
		Engine: model.EngineProcedural, ChartType: "bar", ChartName: name,
		Requirements: model.Requirements{
			RequiredFields: model.FieldGroups{{"x", "y"}},
			RequiredFieldsType: map[string]model.TypeList{
				"x": {model.Categorical},
				"y": {model.Numerical},
			},
			RequiredFieldsRange: map[string][]float64{
				"x": {1, xMax},
				"y": {0, 1e12},
			},
		},
	}
}

func storeWith(t *testing.T, templates ...*model.TemplateDescriptor) *registry.Store {
	t.Helper()
	store := registry.NewStore("")
	require.NoError(t, store.Rebuild(templates, false))
	return store
}

func salesDataset(values ...float64) *model.DatasetDescriptor {
	ds := &model.DatasetDescriptor{
		Columns: []model.Column{
			{Name: "region", DataType: model.Categorical},
			{Name: "sales", DataType: model.Numerical},
		},
	}
	regions := []string{"north", "south", "east", "west", "mid"}
	for i, v := range values {
		ds.Rows = append(ds.Rows, map[string]interface{}{
			"region": regions[i%len(regions)], "sales": v,
		})
	}
	ds.TypeCombination = ds.ComputeTypeCombination()
	return ds
}

func TestFilterAcceptsMatchingTemplate(t *testing.T) {
	store := storeWith(t, barTemplate("vertical_bar", 12))
	cands, err := Filter(salesDataset(3, 8, 5), store, "", model.ThemeLight)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "vertical_bar", cands[0].Template.ChartName)
	require.Len(t, cands[0].Roles, 2)
	assert.Equal(t, "x", cands[0].Roles[0].Name)
}

func TestFilterAcceptsCardinalityAtMax(t *testing.T) {
	// The declared range is inclusive: exactly max distinct categories pass.
	store := storeWith(t, barTemplate("vertical_bar", 3))
	cands, err := Filter(salesDataset(3, 8, 5), store, "", model.ThemeLight)
	require.NoError(t, err)
	assert.Len(t, cands, 1)
}

func TestFilterRejectsCardinalityOverflow(t *testing.T) {
	// Only two distinct categories allowed; dataset has three.
	store := storeWith(t, barTemplate("tiny_bar", 2))
	_, err := Filter(salesDataset(3, 8, 5), store, "", model.ThemeLight)
	assert.ErrorIs(t, err, ErrNoCompatibleTemplate)
}

func TestFilterRejectsValueRangeEscape(t *testing.T) {
	store := storeWith(t, barTemplate("vertical_bar", 12))
	// Negative value escapes the declared [0, 1e12] range.
	_, err := Filter(salesDataset(3, -8), store, "", model.ThemeLight)
	assert.ErrorIs(t, err, ErrNoCompatibleTemplate)
}

func TestFilterThemeMismatch(t *testing.T) {
	dark := barTemplate("dark_bar", 12)
	dark.Requirements.Background = model.ThemeDark
	store := storeWith(t, dark)

	_, err := Filter(salesDataset(3, 8), store, "", model.ThemeLight)
	assert.ErrorIs(t, err, ErrNoCompatibleTemplate)

	cands, err := Filter(salesDataset(3, 8), store, "", model.ThemeDark)
	require.NoError(t, err)
	assert.Len(t, cands, 1)
}

func TestFilterCategoricalSlotAcceptsTemporal(t *testing.T) {
	store := storeWith(t, barTemplate("vertical_bar", 12))
	ds := salesDataset(3, 8)
	ds.Columns[0].DataType = model.Temporal
	ds.TypeCombination = ds.ComputeTypeCombination()

	cands, err := Filter(ds, store, "", model.ThemeLight)
	require.NoError(t, err)
	assert.Len(t, cands, 1)
}

func TestFilterTemporalSlotRejectsCategorical(t *testing.T) {
	tmpl := barTemplate("time_bar", 12)
	tmpl.Requirements.RequiredFieldsType["x"] = model.TypeList{model.Temporal}
	store := storeWith(t, tmpl)

	_, err := Filter(salesDataset(3, 8), store, "", model.ThemeLight)
	assert.ErrorIs(t, err, ErrNoCompatibleTemplate)
}

func TestFilterDualDirectionNeedsSignSplit(t *testing.T) {
	tmpl := barTemplate("dual_direction_bar", 12)
	tmpl.Requirements.RequiredFieldsRange["y"] = []float64{-1e12, 1e12}
	store := storeWith(t, tmpl)

	// All non-negative: a dual-direction chart is meaningless.
	_, err := Filter(salesDataset(3, 8, 5), store, "", model.ThemeLight)
	assert.ErrorIs(t, err, ErrNoCompatibleTemplate)

	cands, err := Filter(salesDataset(3, -8, 5), store, "", model.ThemeLight)
	require.NoError(t, err)
	assert.Len(t, cands, 1)
}

func TestFilterScatterplotNegativeRangeRule(t *testing.T) {
	tmpl := &model.TemplateDescriptor{
		Engine: model.EngineProcedural, ChartType: "scatter", ChartName: "scatterplot",
		Requirements: model.Requirements{
			RequiredFields: model.FieldGroups{{"x", "y"}},
			RequiredFieldsType: map[string]model.TypeList{
				"x": {model.Numerical}, "y": {model.Numerical},
			},
			RequiredFieldsRange: map[string][]float64{
				"x": {-1e12, 1e12}, "y": {-1e12, 1e12},
			},
		},
	}
	store := storeWith(t, tmpl)

	ds := &model.DatasetDescriptor{
		Columns: []model.Column{
			{Name: "a", DataType: model.Numerical},
			{Name: "b", DataType: model.Numerical},
		},
		Rows: []map[string]interface{}{
			{"a": 1.0, "b": 2.0},
			{"a": 3.0, "b": 4.0},
		},
	}
	// Range permits negatives but data is non-negative only: reject.
	_, err := Filter(ds, store, "", model.ThemeLight)
	assert.ErrorIs(t, err, ErrNoCompatibleTemplate)

	ds.Rows[0]["a"] = -1.0
	ds.Rows[0]["b"] = -2.0
	cands, err := Filter(ds, store, "", model.ThemeLight)
	require.NoError(t, err)
	assert.Len(t, cands, 1)
}

func groupedDataset(hierarchical bool) *model.DatasetDescriptor {
	ds := &model.DatasetDescriptor{
		Columns: []model.Column{
			{Name: "quarter", DataType: model.Categorical},
			{Name: "sales", DataType: model.Numerical},
			{Name: "product", DataType: model.Categorical},
		},
	}
	if hierarchical {
		// Each quarter splits into two products: combos > quarters.
		for _, q := range []string{"Q1", "Q2"} {
			for _, p := range []string{"widget", "gadget"} {
				ds.Rows = append(ds.Rows, map[string]interface{}{
					"quarter": q, "sales": 5.0, "product": p,
				})
			}
		}
	} else {
		// One product per quarter: combos == quarters.
		ds.Rows = append(ds.Rows,
			map[string]interface{}{"quarter": "Q1", "sales": 5.0, "product": "widget"},
			map[string]interface{}{"quarter": "Q2", "sales": 7.0, "product": "gadget"},
		)
	}
	ds.TypeCombination = ds.ComputeTypeCombination()
	return ds
}

func groupedTemplate(hierarchy bool) *model.TemplateDescriptor {
	tmpl := &model.TemplateDescriptor{
		Engine: model.EngineProcedural, ChartType: "bar", ChartName: "grouped_bar",
		Requirements: model.Requirements{
			RequiredFields: model.FieldGroups{{"x", "y", "group"}},
			RequiredFieldsType: map[string]model.TypeList{
				"x": {model.Categorical}, "y": {model.Numerical}, "group": {model.Categorical},
			},
		},
	}
	if hierarchy {
		tmpl.Requirements.Hierarchy = []string{"group"}
	}
	return tmpl
}

func TestHierarchyFlaggedRequiresRefinement(t *testing.T) {
	store := storeWith(t, groupedTemplate(true))

	cands, err := Filter(groupedDataset(true), store, "", model.ThemeLight)
	require.NoError(t, err)
	assert.Len(t, cands, 1)

	_, err = Filter(groupedDataset(false), store, "", model.ThemeLight)
	assert.ErrorIs(t, err, ErrNoCompatibleTemplate)
}

func TestHierarchyUnflaggedRejectsRefinement(t *testing.T) {
	store := storeWith(t, groupedTemplate(false))

	_, err := Filter(groupedDataset(true), store, "", model.ThemeLight)
	assert.ErrorIs(t, err, ErrNoCompatibleTemplate)

	cands, err := Filter(groupedDataset(false), store, "", model.ThemeLight)
	require.NoError(t, err)
	assert.Len(t, cands, 1)
}

func TestFilterPinnedChart(t *testing.T) {
	store := storeWith(t, barTemplate("vertical_bar", 12), barTemplate("horizontal_bar", 12))

	cands, err := Filter(salesDataset(3, 8), store, "horizontal_bar", model.ThemeLight)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "horizontal_bar", cands[0].Template.ChartName)

	_, err = Filter(salesDataset(3, 8), store, "no_such_chart", model.ThemeLight)
	assert.Error(t, err)
}

func TestFilterArityMismatch(t *testing.T) {
	store := storeWith(t, groupedTemplate(true))
	// Two-column dataset cannot satisfy a three-role template.
	_, err := Filter(salesDataset(3, 8), store, "", model.ThemeLight)
	assert.ErrorIs(t, err, ErrNoCompatibleTemplate)
}
