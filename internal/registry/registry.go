// Package registry indexes chart templates by engine, chart type and
// chart name. Script and vector-spec templates are discovered by a
// directory scan; procedural templates are registered from a static
// table compiled into the binary.
package registry

import (
	"fmt"
	"log"
	"math/rand"
	"sort"
	"sync"

	"github.com/RhNO3-lx/chartgen/internal/model"
)

// NotFoundError reports a lookup for a chart name with no registered
// template.
type NotFoundError struct {
	ChartName string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no template registered for chart %q", e.ChartName)
}

// Store owns the scanned template index. It is rebuilt wholesale and
// read-mostly afterwards; callers pass it explicitly instead of reaching
// for module globals.
type Store struct {
	mu    sync.RWMutex
	root  string
	built bool
	// engine -> chart_type -> chart_name -> descriptor
	index map[model.Engine]map[string]map[string]*model.TemplateDescriptor
	// flat name index for LookupByName
	byName map[string]*model.TemplateDescriptor
}

// NewStore creates an empty store rooted at the template directory.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// Rebuild scans the template root and installs the new index, replacing
// any previous one. builtin templates (procedural engine) are merged in.
// Idempotent unless force is true: a built store is returned as-is.
func (s *Store) Rebuild(builtin []*model.TemplateDescriptor, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.built && !force {
		return nil
	}

	index := make(map[model.Engine]map[string]map[string]*model.TemplateDescriptor)
	byName := make(map[string]*model.TemplateDescriptor)
	insert := func(t *model.TemplateDescriptor) {
		byType, ok := index[t.Engine]
		if !ok {
			byType = make(map[string]map[string]*model.TemplateDescriptor)
			index[t.Engine] = byType
		}
		names, ok := byType[t.ChartType]
		if !ok {
			names = make(map[string]*model.TemplateDescriptor)
			byType[t.ChartType] = names
		}
		names[t.ChartName] = t
		// Chart names are only guaranteed unique per (engine, chart_type);
		// a cross-engine collision shadows the earlier template in the
		// flat name index.
		if prev, dup := byName[t.ChartName]; dup && prev != t {
			log.Printf("registry: chart name %q registered twice (%s shadows %s)",
				t.ChartName, t.Key(), prev.Key())
		}
		byName[t.ChartName] = t
	}

	for _, t := range builtin {
		insert(t)
	}

	if s.root != "" {
		scanned, err := ScanTemplates(s.root)
		if err != nil {
			return fmt.Errorf("scanning templates in %s: %w", s.root, err)
		}
		for _, t := range scanned {
			insert(t)
		}
	}

	s.index = index
	s.byName = byName
	s.built = true
	log.Printf("registry: indexed %d templates", len(byName))
	return nil
}

// Built reports whether Rebuild has completed at least once.
func (s *Store) Built() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.built
}

// All returns every registered descriptor, ordered by key for stable
// iteration.
func (s *Store) All() []*model.TemplateDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.TemplateDescriptor, 0, len(s.byName))
	for _, t := range s.byName {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// LookupByType returns all templates sharing a chart type, across engines.
func (s *Store) LookupByType(chartType string) []*model.TemplateDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.TemplateDescriptor
	for _, byType := range s.index {
		for _, t := range byType[chartType] {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// LookupByName returns the template with the given chart name.
func (s *Store) LookupByName(chartName string) (*model.TemplateDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byName[chartName]
	if !ok {
		return nil, &NotFoundError{ChartName: chartName}
	}
	return t, nil
}

// RandomSibling picks one template among those sharing a chart type,
// used when a caller names only the type.
func (s *Store) RandomSibling(chartType string, rng *rand.Rand) (*model.TemplateDescriptor, error) {
	siblings := s.LookupByType(chartType)
	if len(siblings) == 0 {
		return nil, &NotFoundError{ChartName: chartType}
	}
	return siblings[rng.Intn(len(siblings))], nil
}
