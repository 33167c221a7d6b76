package registry

import (
	"bytes"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RhNO3-lx/chartgen/internal/model"
)

const goodTemplate = `<!-- REQUIREMENTS_BEGIN
{
  "chart_type": "bar",
  "chart_name": "fancy_bar",
  "required_fields": ["x", "y"],
  "required_fields_type": {"x": ["categorical"], "y": ["numerical"]}
}
REQUIREMENTS_END -->
<html><body>chart here</body></html>`

const d2Template = `# REQUIREMENTS_BEGIN
# {
#   "chart_type": "flow",
#   "required_fields": ["x", "y"]
# }
# REQUIREMENTS_END
a -> b`

const brokenTemplate = `<!-- REQUIREMENTS_BEGIN
not json at all
REQUIREMENTS_END -->`

func writeTemplateTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	scriptA := filepath.Join(root, "script_a")
	vector := filepath.Join(root, "vector_spec")
	require.NoError(t, os.MkdirAll(scriptA, 0o755))
	require.NoError(t, os.MkdirAll(vector, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(scriptA, "fancy.html"), []byte(goodTemplate), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(scriptA, "broken.html"), []byte(brokenTemplate), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(vector, "flowy.d2"), []byte(d2Template), 0o644))
	// Unknown engine directories are skipped, not fatal.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "mystery_engine"), 0o755))
	return root
}

func TestScanTemplates(t *testing.T) {
	root := writeTemplateTree(t)
	scanned, err := ScanTemplates(root)
	require.NoError(t, err)
	require.Len(t, scanned, 2)

	byName := make(map[string]*model.TemplateDescriptor)
	for _, tmpl := range scanned {
		byName[tmpl.ChartName] = tmpl
	}
	require.Contains(t, byName, "fancy_bar")
	assert.Equal(t, model.EngineScriptA, byName["fancy_bar"].Engine)
	assert.Equal(t, "bar", byName["fancy_bar"].ChartType)
	assert.NotEmpty(t, byName["fancy_bar"].Path)

	// chart_name defaults to the file basename.
	require.Contains(t, byName, "flowy")
	assert.Equal(t, model.EngineVectorSpec, byName["flowy"].Engine)
}

func TestRebuildMergesBuiltinAndIsIdempotent(t *testing.T) {
	root := writeTemplateTree(t)
	store := NewStore(root)

	builtin := []*model.TemplateDescriptor{{
		Engine: model.EngineProcedural, ChartType: "bar", ChartName: "vertical_bar",
		Requirements: model.Requirements{RequiredFields: model.FieldGroups{{"x", "y"}}},
	}}
	require.NoError(t, store.Rebuild(builtin, false))
	assert.True(t, store.Built())
	assert.Len(t, store.All(), 3)

	// Second rebuild without force is a no-op even if the disk changed.
	require.NoError(t, os.RemoveAll(filepath.Join(root, "script_a")))
	require.NoError(t, store.Rebuild(builtin, false))
	assert.Len(t, store.All(), 3)

	require.NoError(t, store.Rebuild(builtin, true))
	assert.Len(t, store.All(), 2)
}

func TestRebuildWarnsOnDuplicateChartName(t *testing.T) {
	a := &model.TemplateDescriptor{Engine: model.EngineProcedural, ChartType: "bar", ChartName: "dup"}
	b := &model.TemplateDescriptor{Engine: model.EngineScriptA, ChartType: "bar", ChartName: "dup"}

	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(prev)

	store := NewStore("")
	require.NoError(t, store.Rebuild([]*model.TemplateDescriptor{a, b}, false))
	assert.Contains(t, buf.String(), `"dup"`)
	assert.Contains(t, buf.String(), "shadows")

	// Last registration wins in the flat name index.
	got, err := store.LookupByName("dup")
	require.NoError(t, err)
	assert.Equal(t, model.EngineScriptA, got.Engine)
}

func TestLookupByNameNotFound(t *testing.T) {
	store := NewStore("")
	require.NoError(t, store.Rebuild(nil, false))

	_, err := store.LookupByName("nope")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "nope", nf.ChartName)
}

func TestLookupByTypeAndRandomSibling(t *testing.T) {
	store := NewStore(writeTemplateTree(t))
	require.NoError(t, store.Rebuild(nil, false))

	bars := store.LookupByType("bar")
	require.Len(t, bars, 1)

	rng := rand.New(rand.NewSource(7))
	tmpl, err := store.RandomSibling("bar", rng)
	require.NoError(t, err)
	assert.Equal(t, "fancy_bar", tmpl.ChartName)

	_, err = store.RandomSibling("heatmap", rng)
	assert.Error(t, err)
}

func TestExtractRequirementsBlock(t *testing.T) {
	block, err := ExtractRequirementsBlock(d2Template)
	require.NoError(t, err)
	assert.Contains(t, block, `"chart_type": "flow"`)

	_, err = ExtractRequirementsBlock("no markers here")
	assert.Error(t, err)

	_, err = ExtractRequirementsBlock("REQUIREMENTS_BEGIN plain words REQUIREMENTS_END")
	assert.Error(t, err)
}
