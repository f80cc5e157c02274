package db

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrReferentialIntegrity indicates an insert referenced a record
	// that does not exist (e.g. a session pointing at an unknown entity).
	ErrReferentialIntegrity = errors.New("referenced record does not exist")

	// ErrMigration indicates the stored schema version cannot be
	// migrated to the current version. Fatal on open.
	ErrMigration = errors.New("schema migration failed")
)

// refIntegrityMarker is thrown inside SurrealQL blocks when an
// existence precondition fails; see classifyErr.
const refIntegrityMarker = "referenced record missing"

// classifyErr maps THROW'd precondition failures onto the package
// sentinel so callers can errors.Is against ErrReferentialIntegrity.
func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), refIntegrityMarker) {
		return ErrReferentialIntegrity
	}
	return err
}
