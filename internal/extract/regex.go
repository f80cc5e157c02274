// Package extract turns conversation turns into memory candidates. The
// regex path is the zero-dependency hot path that runs on every turn;
// the model path is optional and merged in when configured.
package extract

import (
	"sort"
	"strings"

	"github.com/arialive/memcore/internal/models"
)

// PatternConfidence marks a candidate as pattern-derived rather than
// model-derived.
const PatternConfidence = 0.5

// RegexExtractor performs stateless pattern extraction over a single
// utterance. Safe for concurrent use; the pattern set is fixed and
// precompiled.
type RegexExtractor struct{}

// NewRegexExtractor returns the pattern extractor.
func NewRegexExtractor() *RegexExtractor {
	return &RegexExtractor{}
}

// PatternCount reports the size of the compiled pattern set.
func (e *RegexExtractor) PatternCount() int {
	return len(patterns)
}

// Extract returns the memory candidates matched in text, deduplicated
// by normalized content (first occurrence wins) and sorted by
// importance descending. Deterministic: identical input yields
// identical output.
func (e *RegexExtractor) Extract(text string) []models.ExtractionCandidate {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var out []models.ExtractionCandidate
	seen := make(map[string]struct{})

	for _, p := range patterns {
		for _, idx := range p.re.FindAllStringSubmatchIndex(text, -1) {
			content := strings.TrimSpace(string(p.re.ExpandString(nil, p.template, text, idx)))
			content = strings.TrimRight(content, ".!?,;~ ")
			if content == "" {
				continue
			}

			key := NormalizeContent(content)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			out = append(out, models.ExtractionCandidate{
				Content:    content,
				Type:       p.nodeType,
				Importance: p.importance,
				Confidence: PatternConfidence,
				Category:   p.category,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Importance > out[j].Importance
	})
	return out
}

// NormalizeContent lowercases and collapses whitespace for dedup
// comparison.
func NormalizeContent(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
