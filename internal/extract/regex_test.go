package extract_test

import (
	"testing"

	"github.com/arialive/memcore/internal/extract"
	"github.com/arialive/memcore/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegexExtractEnglish(t *testing.T) {
	e := extract.NewRegexExtractor()

	got := e.Extract("Hi! My name is Alice. I live in Berlin. I really love coffee.")
	require.NotEmpty(t, got, "should match name, location and preference patterns")

	contents := make(map[string]models.ExtractionCandidate)
	for _, c := range got {
		contents[c.Content] = c
	}

	name, ok := contents["Name: Alice"]
	require.True(t, ok, "should extract the name, got %v", got)
	assert.Equal(t, models.NodeAtomicFact, name.Type)
	assert.Equal(t, "identity", name.Category)

	loc, ok := contents["Lives in Berlin"]
	require.True(t, ok, "should extract the location, got %v", got)
	assert.InDelta(t, 0.8, loc.Importance, 1e-9)

	pref, ok := contents["Likes coffee"]
	require.True(t, ok, "should extract the preference, got %v", got)
	assert.Equal(t, models.NodePreference, pref.Type)
}

func TestRegexExtractKorean(t *testing.T) {
	e := extract.NewRegexExtractor()

	got := e.Extract("서울에 살아요. 커피를 정말 좋아해요!")
	require.NotEmpty(t, got)

	var contents []string
	for _, c := range got {
		contents = append(contents, c.Content)
	}
	assert.Contains(t, contents, "사는 곳: 서울", "should extract the location")
	assert.Contains(t, contents, "좋아하는 것: 커피", "should extract the preference")
}

func TestRegexExtractConfidence(t *testing.T) {
	e := extract.NewRegexExtractor()

	for _, c := range e.Extract("I like tea and I live in Seoul") {
		assert.InDelta(t, extract.PatternConfidence, c.Confidence, 1e-9,
			"pattern candidates carry the fixed pattern confidence")
	}
}

func TestRegexExtractOrderedByImportance(t *testing.T) {
	e := extract.NewRegexExtractor()

	got := e.Extract("I like tea. I am allergic to peanuts. My name is Bob")
	require.GreaterOrEqual(t, len(got), 3)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Importance, got[i].Importance,
			"candidates must be sorted by importance descending")
	}
}

func TestRegexExtractDeterministic(t *testing.T) {
	e := extract.NewRegexExtractor()
	text := "My name is Carol. I live in Busan. I love ramen. 매일 운동해요"

	first := e.Extract(text)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, e.Extract(text), "identical input must yield identical output")
	}
}

func TestRegexExtractDedupe(t *testing.T) {
	e := extract.NewRegexExtractor()

	got := e.Extract("I love coffee. I LOVE COFFEE. I really love coffee")
	count := 0
	for _, c := range got {
		if extract.NormalizeContent(c.Content) == "likes coffee" {
			count++
		}
	}
	assert.Equal(t, 1, count, "repeated statements dedupe by normalized content")
}

func TestRegexExtractEmptyInput(t *testing.T) {
	e := extract.NewRegexExtractor()
	assert.Nil(t, e.Extract(""), "empty input yields no candidates")
	assert.Nil(t, e.Extract("   \n\t "), "whitespace input yields no candidates")
	assert.Nil(t, e.Extract("the weather is nice"), "no pattern match yields no candidates")
}

func TestNormalizeContent(t *testing.T) {
	assert.Equal(t, "likes iced coffee", extract.NormalizeContent("  Likes   ICED coffee \n"))
	assert.Equal(t, "", extract.NormalizeContent("   "))
}
