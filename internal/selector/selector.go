// Package selector chooses one template among the compatible candidates,
// either by usage-weighted fair sampling or by embedding similarity
// against previously rendered example images.
package selector

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/RhNO3-lx/chartgen/internal/compat"
	"github.com/RhNO3-lx/chartgen/internal/genai"
)

// SelectionStats counts how often each template key has been selected.
// It is the only mutable state the selector touches; a plain mutex
// suffices since increments carry no cross-key invariant.
type SelectionStats struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewSelectionStats creates an empty counter set.
func NewSelectionStats() *SelectionStats {
	return &SelectionStats{counts: make(map[string]int)}
}

// Uses returns the selection count for a template key.
func (s *SelectionStats) Uses(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[key]
}

// record increments the count for a key.
func (s *SelectionStats) record(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[key]++
}

// weight maps a usage count to a sampling weight in (1, 5]. It decreases
// smoothly with use so popular templates are damped without ever being
// starved.
func weight(uses int) float64 {
	return 1 + 4/(1+float64(uses)/3)
}

// SelectFair picks one candidate by usage-weighted random sampling and
// records the choice.
func SelectFair(stats *SelectionStats, cands []compat.Candidate, rng *rand.Rand) (compat.Candidate, error) {
	if len(cands) == 0 {
		return compat.Candidate{}, fmt.Errorf("no candidates to select from")
	}
	total := 0.0
	weights := make([]float64, len(cands))
	for i, c := range cands {
		w := weight(stats.Uses(c.Template.Key()))
		weights[i] = w
		total += w
	}
	r := rng.Float64() * total
	idx := len(cands) - 1
	for i, w := range weights {
		if r < w {
			idx = i
			break
		}
		r -= w
	}
	chosen := cands[idx]
	stats.record(chosen.Template.Key())
	return chosen, nil
}

// SelectByEmbedding ranks candidates by cosine similarity between the
// target description and each candidate's first example image, located by
// filesystem convention under exampleRoot/<chart_name>/. Candidates
// without example images score nothing; if none has one, the choice
// falls back to uniform random.
func SelectByEmbedding(ctx context.Context, emb genai.Embedder, cands []compat.Candidate, exampleRoot, target string, rng *rand.Rand) (compat.Candidate, error) {
	if len(cands) == 0 {
		return compat.Candidate{}, fmt.Errorf("no candidates to select from")
	}

	textVec, err := emb.EmbedText(ctx, target)
	if err != nil {
		return compat.Candidate{}, fmt.Errorf("embedding target description: %w", err)
	}

	bestIdx, bestScore := -1, math.Inf(-1)
	for i, c := range cands {
		img, ok := firstExampleImage(exampleRoot, c.Template.ChartName)
		if !ok {
			continue
		}
		imgVec, err := emb.EmbedImage(ctx, img)
		if err != nil {
			log.Printf("selector: embedding example for %s failed: %v", c.Template.ChartName, err)
			continue
		}
		score := genai.Cosine(textVec, imgVec)
		if score > bestScore {
			bestScore, bestIdx = score, i
		}
	}
	if bestIdx < 0 {
		return cands[rng.Intn(len(cands))], nil
	}
	return cands[bestIdx], nil
}

// firstExampleImage returns the bytes of the lexically first example
// image for a chart name, if any exists.
func firstExampleImage(root, chartName string) ([]byte, bool) {
	matches, err := filepath.Glob(filepath.Join(root, chartName, "*.png"))
	if err != nil || len(matches) == 0 {
		return nil, false
	}
	sort.Strings(matches)
	raw, err := os.ReadFile(matches[0])
	if err != nil {
		return nil, false
	}
	return raw, true
}
