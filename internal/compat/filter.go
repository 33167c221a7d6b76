// Package compat filters the template registry down to the templates
// structurally compatible with a dataset: field arity, semantic types,
// cardinality/value ranges and hierarchy constraints.
package compat

import (
	"errors"
	"log"
	"strings"

	"github.com/RhNO3-lx/chartgen/internal/model"
	"github.com/RhNO3-lx/chartgen/internal/registry"
)

// ErrNoCompatibleTemplate is returned when filtering leaves no candidate.
// The pipeline aborts the infographic rather than substituting a default.
var ErrNoCompatibleTemplate = errors.New("no compatible template for dataset")

// Candidate pairs an accepted template with its resolved ordered roles,
// used later to assign roles onto the dataset's columns.
type Candidate struct {
	Template *model.TemplateDescriptor
	Roles    []model.RoleSpec
}

// Filter returns the templates compatible with the dataset under the
// given color theme. If pinnedName is non-empty only that chart is
// considered. Errors in one candidate's requirements never abort the
// filtering of the rest.
func Filter(ds *model.DatasetDescriptor, store *registry.Store, pinnedName string, theme model.ColorTheme) ([]Candidate, error) {
	var pool []*model.TemplateDescriptor
	if pinnedName != "" {
		t, err := store.LookupByName(pinnedName)
		if err != nil {
			return nil, err
		}
		pool = []*model.TemplateDescriptor{t}
	} else {
		pool = store.All()
	}

	var out []Candidate
	for _, t := range pool {
		roles, ok := check(ds, t, theme)
		if ok {
			out = append(out, Candidate{Template: t, Roles: roles})
		}
	}
	if len(out) == 0 {
		return nil, ErrNoCompatibleTemplate
	}
	return out, nil
}

// check runs the full acceptance chain for one template.
func check(ds *model.DatasetDescriptor, t *model.TemplateDescriptor, theme model.ColorTheme) ([]model.RoleSpec, bool) {
	if t.Requirements.Theme() != theme {
		return nil, false
	}

	roles, err := t.Requirements.ResolveRoles()
	if err != nil {
		log.Printf("compat: skipping %s: %v", t.Key(), err)
		return nil, false
	}
	if len(roles) > len(ds.Columns) {
		return nil, false
	}

	for i, role := range roles {
		col := ds.Columns[i]
		if !typeCompatible(role.Types, col.DataType) {
			return nil, false
		}
		if !rangeCompatible(ds, t, role, col) {
			return nil, false
		}
	}

	if !hierarchyCompatible(ds, t.Requirements.Hierarchy, roles) {
		return nil, false
	}
	return roles, true
}

// typeCompatible applies the positional type rule: a categorical slot
// accepts categorical or temporal columns, numerical accepts only
// numerical, temporal accepts only temporal. An empty allowed list
// accepts anything.
func typeCompatible(allowed []model.DataType, got model.DataType) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, want := range allowed {
		switch want {
		case model.Categorical:
			if got == model.Categorical || got == model.Temporal {
				return true
			}
		case model.Numerical:
			if got == model.Numerical {
				return true
			}
		case model.Temporal:
			if got == model.Temporal {
				return true
			}
		}
	}
	return false
}

// rangeCompatible checks cardinality ranges for categorical/temporal
// columns and value containment for numerical ones, including the
// dual-direction and scatterplot special cases.
func rangeCompatible(ds *model.DatasetDescriptor, t *model.TemplateDescriptor, role model.RoleSpec, col model.Column) bool {
	switch col.DataType {
	case model.Categorical, model.Temporal:
		if !role.HasRange {
			return true
		}
		n := float64(ds.DistinctCount(col.Name))
		return n >= role.Range[0] && n <= role.Range[1]

	case model.Numerical:
		min, max, ok := ds.NumericRange(col.Name)
		if !ok {
			return false
		}
		// A dual-direction chart needs a sign split to be meaningful.
		if strings.Contains(t.ChartName, "dual_direction") && min >= 0 {
			return false
		}
		if !role.HasRange {
			return true
		}
		if min < role.Range[0] || max > role.Range[1] {
			return false
		}
		// A scatterplot whose declared range permits negatives wants
		// genuinely bidirectional data.
		if strings.Contains(t.ChartName, "scatterplot") && role.Range[0] < 0 && min >= 0 {
			return false
		}
		return true
	}
	return true
}

// hierarchyCompatible enforces the refinement rule on grouping roles:
// a hierarchy-flagged role must strictly increase the distinct
// (predecessor, role) combination count over the predecessor alone,
// while a non-hierarchy grouping role must not increase it.
func hierarchyCompatible(ds *model.DatasetDescriptor, hierarchy []string, roles []model.RoleSpec) bool {
	flagged := make(map[string]bool, len(hierarchy))
	for _, h := range hierarchy {
		flagged[h] = true
	}
	for i, role := range roles {
		pred, ok := predecessorOf(role.Name)
		if !ok {
			continue
		}
		predCol, roleCol := columnForRole(ds, roles, pred), ds.Columns[i].Name
		if predCol == "" {
			continue
		}
		alone := ds.DistinctComboCount(predCol)
		combined := ds.DistinctComboCount(predCol, roleCol)
		if flagged[role.Name] {
			if combined <= alone {
				return false
			}
		} else if combined > alone {
			return false
		}
	}
	return true
}

// predecessorOf returns the role a grouping role refines. Only grouping
// roles participate in the hierarchy check.
func predecessorOf(role string) (string, bool) {
	switch role {
	case "group":
		return "x", true
	case "group2":
		return "group", true
	default:
		return "", false
	}
}

// columnForRole resolves a role name to its positionally assigned column.
func columnForRole(ds *model.DatasetDescriptor, roles []model.RoleSpec, role string) string {
	for i, r := range roles {
		if r.Name == role && i < len(ds.Columns) {
			return ds.Columns[i].Name
		}
	}
	return ""
}
