package models

import "time"

// Procedural rule sources.
const (
	RuleSourceLearned    = "learned"
	RuleSourceManual     = "manual"
	RuleSourceReflection = "reflection"
)

// ProceduralRule is a learned or manually supplied behavioral directive
// injected into prompts. Rules are deactivated rather than deleted.
type ProceduralRule struct {
	ID         string    `json:"id"`
	RuleType   string    `json:"rule_type"`
	Content    string    `json:"content"`
	Confidence float64   `json:"confidence"`
	Source     string    `json:"source"`
	Active     bool      `json:"active"`
	Created    time.Time `json:"created,omitempty"`
}
