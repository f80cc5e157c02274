package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Entity is a tracked conversational counterpart, identified by
// (identifier, platform). Entities are created on first mention and
// touched on every later interaction; they are never deleted.
type Entity struct {
	ID         surrealmodels.RecordID `json:"id"`
	Identifier string                 `json:"identifier"`
	Platform   string                 `json:"platform"`
	FirstSeen  time.Time              `json:"first_seen,omitempty"`
	LastSeen   time.Time              `json:"last_seen,omitempty"`
}
