package procedural_test

import (
	"testing"

	"github.com/arialive/memcore/internal/models"
	"github.com/arialive/memcore/internal/procedural"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatForContextEmpty(t *testing.T) {
	m := procedural.NewMemory()
	assert.Equal(t, "", m.FormatForContext(), "no rules means no section at all")
}

func TestAddRule(t *testing.T) {
	m := procedural.NewMemory()

	rule := m.AddRule("interaction", "Greet returning viewers by name", 0.8, models.RuleSourceManual)
	assert.NotEmpty(t, rule.ID, "rules get a generated id")
	assert.True(t, rule.Active)
	assert.Equal(t, 1, m.Len())
}

func TestFormatForContextGroupsByType(t *testing.T) {
	m := procedural.NewMemory()
	m.AddRule("persona", "Stay upbeat between donation readings", 0.9, models.RuleSourceManual)
	m.AddRule("interaction", "Thank superchats immediately", 0.8, models.RuleSourceManual)
	m.AddRule("persona", "Never reveal viewer personal details", 1.0, models.RuleSourceManual)

	got := m.FormatForContext()
	want := "[Interaction]\n" +
		"- Thank superchats immediately\n" +
		"\n" +
		"[Persona]\n" +
		"- Stay upbeat between donation readings\n" +
		"- Never reveal viewer personal details"
	assert.Equal(t, want, got, "groups sorted by type, rules in load order")
}

func TestLoadRulesReplaces(t *testing.T) {
	m := procedural.NewMemory()
	m.AddRule("persona", "old rule", 0.5, models.RuleSourceManual)

	m.LoadRules([]models.ProceduralRule{
		{ID: "r1", RuleType: "interaction", Content: "new rule", Active: true},
	})

	assert.Equal(t, 1, m.Len(), "LoadRules replaces, not appends")
	require.Len(t, m.RulesByType("interaction"), 1)
	assert.Empty(t, m.RulesByType("persona"))
}

func TestRulesByType(t *testing.T) {
	m := procedural.NewMemory()
	m.AddRule("persona", "a", 0.5, models.RuleSourceLearned)
	m.AddRule("persona", "b", 0.5, models.RuleSourceReflection)
	m.AddRule("interaction", "c", 0.5, models.RuleSourceManual)

	assert.Len(t, m.RulesByType("persona"), 2)
	assert.Len(t, m.RulesByType("interaction"), 1)
	assert.Empty(t, m.RulesByType("missing"))
}
