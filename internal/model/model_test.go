package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldGroupsUnmarshalFlat(t *testing.T) {
	var fg FieldGroups
	require.NoError(t, json.Unmarshal([]byte(`["x","y"]`), &fg))
	require.Len(t, fg, 1)
	assert.Equal(t, []string{"x", "y"}, fg[0])
}

func TestFieldGroupsUnmarshalGrouped(t *testing.T) {
	var fg FieldGroups
	require.NoError(t, json.Unmarshal([]byte(`[["x","y"],["x","y","group"]]`), &fg))
	require.Len(t, fg, 2)
	assert.Equal(t, []string{"x", "y", "group"}, fg[1])
}

func TestTypeListSingleOrList(t *testing.T) {
	var tl TypeList
	require.NoError(t, json.Unmarshal([]byte(`"numerical"`), &tl))
	assert.Equal(t, TypeList{Numerical}, tl)

	require.NoError(t, json.Unmarshal([]byte(`["categorical","temporal"]`), &tl))
	assert.Equal(t, TypeList{Categorical, Temporal}, tl)
}

func TestResolveRolesFirstOccurrenceWins(t *testing.T) {
	r := Requirements{
		RequiredFields: FieldGroups{{"x", "y"}, {"x", "y", "group"}},
		RequiredFieldsType: map[string]TypeList{
			"x": {Categorical},
			"y": {Numerical},
		},
		RequiredFieldsRange: map[string][]float64{"x": {2, 8}},
	}
	roles, err := r.ResolveRoles()
	require.NoError(t, err)
	require.Len(t, roles, 3)
	assert.Equal(t, "x", roles[0].Name)
	assert.True(t, roles[0].HasRange)
	assert.Equal(t, [2]float64{2, 8}, roles[0].Range)
	assert.Equal(t, "group", roles[2].Name)
	assert.False(t, roles[2].HasRange)
}

func TestResolveRolesRejectsBadRange(t *testing.T) {
	r := Requirements{
		RequiredFields:      FieldGroups{{"x"}},
		RequiredFieldsRange: map[string][]float64{"x": {1, 2, 3}},
	}
	_, err := r.ResolveRoles()
	assert.Error(t, err)
}

func TestRequirementsThemeDefaultsLight(t *testing.T) {
	assert.Equal(t, ThemeLight, (&Requirements{}).Theme())
	assert.Equal(t, ThemeDark, (&Requirements{Background: ThemeDark}).Theme())
}

func TestParseEngineRoundTrip(t *testing.T) {
	for _, e := range []Engine{EngineProcedural, EngineScriptA, EngineScriptB, EngineVectorSpec} {
		got, err := ParseEngine(e.String())
		require.NoError(t, err)
		assert.Equal(t, e, got)
	}
	_, err := ParseEngine("carrier_pigeon")
	assert.Error(t, err)
}

func testDataset() *DatasetDescriptor {
	ds := &DatasetDescriptor{
		Columns: []Column{
			{Name: "region", DataType: Categorical},
			{Name: "sales", DataType: Numerical},
		},
		Rows: []map[string]interface{}{
			{"region": "north", "sales": 10.0},
			{"region": "south", "sales": -4.0},
			{"region": "north", "sales": 7.5},
		},
	}
	ds.TypeCombination = ds.ComputeTypeCombination()
	return ds
}

func TestComputeTypeCombination(t *testing.T) {
	assert.Equal(t, "categorical + numerical", testDataset().TypeCombination)
}

func TestDistinctAndComboCounts(t *testing.T) {
	ds := testDataset()
	assert.Equal(t, 2, ds.DistinctCount("region"))
	assert.Equal(t, 3, ds.DistinctComboCount("region", "sales"))
}

func TestNumericRange(t *testing.T) {
	min, max, ok := testDataset().NumericRange("sales")
	require.True(t, ok)
	assert.Equal(t, -4.0, min)
	assert.Equal(t, 10.0, max)

	_, _, ok = testDataset().NumericRange("region")
	assert.False(t, ok)
}

func TestAssignRolesPositional(t *testing.T) {
	ds := testDataset()
	roles := []RoleSpec{{Name: "x"}, {Name: "y"}}
	require.NoError(t, ds.AssignRoles(roles))
	assert.Equal(t, "x", ds.Columns[0].Role)
	assert.Equal(t, "y", ds.Columns[1].Role)

	col, ok := ds.ColumnByRole("y")
	require.True(t, ok)
	assert.Equal(t, "sales", col.Name)
}

func TestAssignRolesTooManyRoles(t *testing.T) {
	ds := testDataset()
	err := ds.AssignRoles([]RoleSpec{{Name: "x"}, {Name: "y"}, {Name: "group"}})
	assert.Error(t, err)
}

func TestPalettePairForTheme(t *testing.T) {
	pp := &PalettePair{
		Light: Palette{BackgroundColor: "#ffffff"},
		Dark:  Palette{BackgroundColor: "#000000"},
	}
	assert.Equal(t, "#ffffff", pp.ForTheme(ThemeLight).BackgroundColor)
	assert.Equal(t, "#000000", pp.ForTheme(ThemeDark).BackgroundColor)
}
