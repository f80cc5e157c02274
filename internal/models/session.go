package models

import "time"

// Session is a bounded interaction window. EntityID is nil for
// anonymous sessions.
type Session struct {
	ID           string     `json:"id"`
	EntityID     *string    `json:"entity_id,omitempty"`
	Platform     string     `json:"platform"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	MessageCount int        `json:"message_count"`
}

// StreamEpisode is an immutable snapshot of a session's live context,
// captured once when the session ends.
type StreamEpisode struct {
	ID               string    `json:"id"`
	SessionID        string    `json:"session_id"`
	Summary          string    `json:"summary"`
	Topics           []string  `json:"topics,omitempty"`
	KeyEvents        []string  `json:"key_events,omitempty"`
	ParticipantCount int       `json:"participant_count"`
	Sentiment        string    `json:"sentiment,omitempty"`
	StartedAt        time.Time `json:"started_at"`
	EndedAt          time.Time `json:"ended_at"`
}
