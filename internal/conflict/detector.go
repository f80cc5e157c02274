// Package conflict detects when a new memory contradicts or duplicates
// existing ones, using an injected similarity function so the package
// stays free of any embedding dependency.
package conflict

import (
	"strings"

	"github.com/arialive/memcore/internal/models"
)

// Classification thresholds. Boundaries are inclusive at the low end,
// exclusive at the high end:
//
//	s <  0.5          unrelated, ignored
//	0.5 <= s < 0.85   conflict: existing memory is superseded
//	s >= 0.85         duplicate, not a conflict
const (
	ConflictThreshold  = 0.5
	DuplicateThreshold = 0.85

	// DecayFactor is applied to a superseded memory's importance.
	DecayFactor = 0.7
)

// SimilarityFn scores two texts in [0,1].
type SimilarityFn func(a, b string) float64

// Detector compares new memory content against existing memories.
type Detector struct {
	similarity SimilarityFn
}

// NewDetector creates a detector with the given similarity function.
// A nil fn selects the token-overlap default.
func NewDetector(fn SimilarityFn) *Detector {
	if fn == nil {
		fn = TokenOverlap
	}
	return &Detector{similarity: fn}
}

// Check scores newContent against each existing memory and returns one
// conflict record per superseded memory. The caller persists the
// supersedes edge and the decayed importance.
func (d *Detector) Check(newContent string, existing []models.KnowledgeNode) []models.ConflictResult {
	var results []models.ConflictResult
	for _, node := range existing {
		s := d.similarity(newContent, node.Content)
		if s < ConflictThreshold || s >= DuplicateThreshold {
			continue
		}
		results = append(results, models.ConflictResult{
			SupersededID:       models.MustRecordIDString(node.ID),
			Similarity:         s,
			NewImportanceDecay: node.Importance * DecayFactor,
		})
	}
	return results
}

// FindDuplicate returns the id of the first existing memory scoring at
// or above the duplicate threshold, or nil when none does. Duplicates
// are not conflicts; callers typically boost the duplicate's mention
// count instead of inserting a new node.
func (d *Detector) FindDuplicate(newContent string, existing []models.KnowledgeNode) *string {
	for _, node := range existing {
		if d.similarity(newContent, node.Content) >= DuplicateThreshold {
			id := models.MustRecordIDString(node.ID)
			return &id
		}
	}
	return nil
}

// TokenOverlap is the dependency-free default similarity: Jaccard
// overlap of normalized word sets. Adequate for short extracted memory
// contents; callers with an embedder inject cosine similarity instead.
func TokenOverlap(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	inter := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[strings.Trim(w, ".,!?;:~")] = struct{}{}
	}
	delete(set, "")
	return set
}
