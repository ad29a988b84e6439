// Package corpus builds the canonical statement corpus: batched merging of
// distilled raw records into canonical statements, refinement linking through
// the ontology, and orchestration of full and incremental runs.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"statforge/internal/statement"
)

// ErrOntologyViolation marks an inconsistent comparator: a reported cycle or
// mutual generalization between distinct fingerprints. Runs abort on it and
// the watermark is not advanced.
var ErrOntologyViolation = errors.New("ontology contract violation")

// ErrCorpusExists is returned when a full build is requested over a corpus
// that was already initialized.
var ErrCorpusExists = errors.New("corpus already initialized")

// ErrNoCorpus is returned when a supplement run is requested before any full
// build has completed.
var ErrNoCorpus = errors.New("corpus not initialized")

// TransientError wraps a storage failure that is worth retrying, such as a
// dropped connection. Non-transient failures abort the run immediately.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient storage failure: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err should be retried with backoff.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// RecordLink maps one surviving raw record to the canonical statement it was
// merged into. Every surviving record has exactly one.
type RecordLink struct {
	RecordID    int64
	Fingerprint int64
}

// RefinementLink is a directed edge: the supporting statement's content is at
// least as specific as, and consistent with, the supported statement's.
type RefinementLink struct {
	Supporting int64
	Supported  int64
	Type       statement.RelationType
}

// Update is one completed corpus run, recorded as the watermark. LastRecordID
// is the highest raw record id incorporated by the run.
type Update struct {
	RunType      string
	Type         statement.RelationType
	LastRecordID int64
	CompletedAt  time.Time
}

const (
	RunTypeCreate     = "create"
	RunTypeSupplement = "supplement"
)

// Store is the persistence contract the core consumes. Writes to link tables
// are append-only within a run and idempotent per key; canonical statement
// updates are read-modify-write with the caller holding a single writer per
// fingerprint.
type Store interface {
	// CanonicalByFingerprint returns the canonical statements for the
	// given fingerprints, omitting any that do not exist.
	CanonicalByFingerprint(ctx context.Context, fps []int64) (map[int64]*statement.Canonical, error)

	// UpsertCanonical inserts or replaces canonical statements by
	// fingerprint.
	UpsertCanonical(ctx context.Context, stmts []*statement.Canonical) error

	// CanonicalByType returns every canonical statement of one relation
	// type.
	CanonicalByType(ctx context.Context, t statement.RelationType) ([]*statement.Canonical, error)

	// RelationTypes lists the distinct relation types present in the
	// corpus.
	RelationTypes(ctx context.Context) ([]statement.RelationType, error)

	// AppendRecordLinks persists raw-to-canonical links. Re-appending an
	// existing link is a no-op.
	AppendRecordLinks(ctx context.Context, links []RecordLink) error

	// LinkedRecordIDs returns the ids of every raw record that already has
	// a raw-to-canonical link.
	LinkedRecordIDs(ctx context.Context) (map[int64]struct{}, error)

	// AppendRefinementLinks persists refinement edges. Re-appending an
	// existing edge is a no-op.
	AppendRefinementLinks(ctx context.Context, links []RefinementLink) error

	// RefinementLinksByType returns the refinement edges within one
	// relation-type partition.
	RefinementLinksByType(ctx context.Context, t statement.RelationType) ([]RefinementLink, error)

	// LatestUpdate returns the most recent completed run covering the
	// given relation type, or nil if none exists. Unscoped runs cover
	// every type; scoped runs cover only their own. An empty type asks
	// for a run covering all types, so only unscoped rows qualify — a
	// scoped run's watermark can exceed the ids of unprocessed records
	// of other types and must never gate an unscoped run.
	LatestUpdate(ctx context.Context, t statement.RelationType) (*Update, error)

	// RecordUpdate appends a completed run to the watermark history.
	RecordUpdate(ctx context.Context, u Update) error
}
