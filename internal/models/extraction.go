package models

// ExtractionCandidate is a memory candidate produced by the regex or
// model extraction path, before threshold filtering and persistence.
type ExtractionCandidate struct {
	Content    string  `json:"content"`
	Type       string  `json:"type"`
	Importance float64 `json:"importance"`
	Confidence float64 `json:"confidence"`
	Category   string  `json:"category,omitempty"`
	Subject    string  `json:"subject,omitempty"`
	Predicate  string  `json:"predicate,omitempty"`
	Object     string  `json:"object,omitempty"`
}

// ExtractionResult carries the surviving candidates for one entity
// after a buffer drain.
type ExtractionResult struct {
	EntityID   string                `json:"entity_id"`
	Candidates []ExtractionCandidate `json:"candidates"`
}
