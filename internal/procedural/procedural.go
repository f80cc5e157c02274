// Package procedural holds the in-memory registry of learned
// behavioral rules injected into prompts.
package procedural

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/arialive/memcore/internal/models"
	"github.com/google/uuid"
)

// Memory is the in-memory rule registry. Loaded from the store at
// session start; mutated only by the owning service.
type Memory struct {
	mu    sync.RWMutex
	rules []models.ProceduralRule
}

// NewMemory creates an empty registry.
func NewMemory() *Memory {
	return &Memory{}
}

// LoadRules replaces the current rule set.
func (m *Memory) LoadRules(rules []models.ProceduralRule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append([]models.ProceduralRule(nil), rules...)
}

// AddRule appends one rule with a generated id and returns it.
func (m *Memory) AddRule(ruleType, content string, confidence float64, source string) models.ProceduralRule {
	rule := models.ProceduralRule{
		ID:         uuid.NewString(),
		RuleType:   ruleType,
		Content:    content,
		Confidence: confidence,
		Source:     source,
		Active:     true,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, rule)
	return rule
}

// RulesByType returns the rules matching ruleType.
func (m *Memory) RulesByType(ruleType string) []models.ProceduralRule {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.ProceduralRule
	for _, r := range m.rules {
		if r.RuleType == ruleType {
			out = append(out, r)
		}
	}
	return out
}

// Len reports the number of loaded rules.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rules)
}

// FormatForContext renders all rules grouped by type under bracketed
// section headers, e.g.:
//
//	[Persona]
//	- Stay upbeat between donation readings
//
// Returns an empty string when no rules are loaded. Group order is
// deterministic (sorted by type); rule order within a group follows
// load order.
func (m *Memory) FormatForContext() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.rules) == 0 {
		return ""
	}

	byType := make(map[string][]models.ProceduralRule)
	for _, r := range m.rules {
		byType[r.RuleType] = append(byType[r.RuleType], r)
	}

	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Strings(types)

	var sb strings.Builder
	for i, t := range types {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "[%s]\n", title(t))
		for _, r := range byType[t] {
			fmt.Fprintf(&sb, "- %s\n", r.Content)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// title uppercases the first rune of a rule type for its header.
func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
