package conflict_test

import (
	"testing"

	"github.com/arialive/memcore/internal/conflict"
	"github.com/arialive/memcore/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

func node(id, content string, importance float64) models.KnowledgeNode {
	return models.KnowledgeNode{
		ID:         surrealmodels.RecordID{Table: "knowledge_node", ID: id},
		Content:    content,
		Importance: importance,
	}
}

// fixedSimilarity returns a preset score per existing content.
func fixedSimilarity(scores map[string]float64) conflict.SimilarityFn {
	return func(_, b string) float64 {
		return scores[b]
	}
}

func TestCheckBelowThresholdIgnored(t *testing.T) {
	d := conflict.NewDetector(fixedSimilarity(map[string]float64{"old": 0.49}))
	got := d.Check("new", []models.KnowledgeNode{node("n1", "old", 0.8)})
	assert.Empty(t, got, "similarity below 0.5 is unrelated")
}

func TestCheckConflictBand(t *testing.T) {
	d := conflict.NewDetector(fixedSimilarity(map[string]float64{"old": 0.6}))

	got := d.Check("new", []models.KnowledgeNode{node("n1", "old", 0.8)})
	require.Len(t, got, 1, "0.5 <= s < 0.85 supersedes")
	assert.Equal(t, "n1", got[0].SupersededID)
	assert.InDelta(t, 0.6, got[0].Similarity, 1e-9)
	assert.InDelta(t, 0.8*conflict.DecayFactor, got[0].NewImportanceDecay, 1e-9,
		"superseded importance decays by the fixed factor")
}

func TestCheckBoundaries(t *testing.T) {
	// Lower boundary inclusive, upper boundary exclusive.
	d := conflict.NewDetector(fixedSimilarity(map[string]float64{
		"at lower": 0.5,
		"below":    0.4999,
		"at upper": 0.85,
		"just in":  0.8499,
	}))

	existing := []models.KnowledgeNode{
		node("lo", "at lower", 0.5),
		node("below", "below", 0.5),
		node("hi", "at upper", 0.5),
		node("in", "just in", 0.5),
	}

	got := d.Check("new", existing)
	require.Len(t, got, 2)
	ids := []string{got[0].SupersededID, got[1].SupersededID}
	assert.Contains(t, ids, "lo", "s == 0.5 is a conflict")
	assert.Contains(t, ids, "in", "s just below 0.85 is a conflict")
}

func TestCheckMultipleConflicts(t *testing.T) {
	d := conflict.NewDetector(fixedSimilarity(map[string]float64{
		"a": 0.7, "b": 0.55, "c": 0.2,
	}))
	existing := []models.KnowledgeNode{
		node("na", "a", 0.9), node("nb", "b", 0.4), node("nc", "c", 0.9),
	}

	got := d.Check("new", existing)
	assert.Len(t, got, 2, "every memory in the conflict band gets its own record")
}

func TestFindDuplicate(t *testing.T) {
	d := conflict.NewDetector(fixedSimilarity(map[string]float64{
		"near": 0.84, "dup": 0.85,
	}))
	existing := []models.KnowledgeNode{
		node("n1", "near", 0.5),
		node("n2", "dup", 0.5),
	}

	got := d.FindDuplicate("new", existing)
	require.NotNil(t, got, "s >= 0.85 is a duplicate")
	assert.Equal(t, "n2", *got)

	assert.Nil(t, d.FindDuplicate("new", existing[:1]), "below the duplicate threshold")
	assert.Nil(t, d.FindDuplicate("new", nil))
}

func TestTokenOverlap(t *testing.T) {
	assert.InDelta(t, 1.0, conflict.TokenOverlap("Likes coffee", "likes coffee."), 1e-9,
		"case and punctuation are normalized away")
	assert.InDelta(t, 0.0, conflict.TokenOverlap("Likes coffee", "plays guitar"), 1e-9)
	assert.InDelta(t, 0.0, conflict.TokenOverlap("", "anything"), 1e-9, "empty input scores zero")

	// {likes, coffee} vs {likes, tea}: one of three words shared.
	assert.InDelta(t, 1.0/3.0, conflict.TokenOverlap("likes coffee", "likes tea"), 1e-9)
}

func TestDefaultDetectorEndToEnd(t *testing.T) {
	d := conflict.NewDetector(nil)

	existing := []models.KnowledgeNode{node("n1", "Lives in Seoul South Korea", 0.8)}

	// {lives, in, busan, south, korea} vs {lives, in, seoul, south, korea}:
	// 4 shared of 6 total = 0.666..., inside the conflict band.
	got := d.Check("Lives in Busan South Korea", existing)
	require.Len(t, got, 1)
	assert.InDelta(t, 0.8*conflict.DecayFactor, got[0].NewImportanceDecay, 1e-9)

	dup := d.FindDuplicate("lives in seoul south korea", existing)
	require.NotNil(t, dup, "identical word set is a duplicate")
	assert.Equal(t, "n1", *dup)
}
