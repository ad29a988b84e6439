// Package distill filters the raw record set down to the records produced by
// the best extractor version per content unit, tracking what was superseded.
package distill

import (
	"fmt"
	"sort"

	"statforge/internal/statement"
)

// GroupKey identifies one extractor's output for one content unit of one
// input unit. Version selection happens independently per group.
type GroupKey struct {
	InputUnitID   int64
	SourceKind    string
	ContentUnitID int64
	Extractor     string
}

// Index is the provenance-indexed view of raw records for one partition:
// group → extractor version → extraction run → shallow fingerprint → records.
type Index struct {
	groups map[GroupKey]versionMap
}

type versionMap map[string]runMap
type runMap map[int64]fingerprintMap
type fingerprintMap map[int64][]*statement.RawRecord

func NewIndex() *Index {
	return &Index{groups: make(map[GroupKey]versionMap)}
}

// Add inserts a record under its provenance path. Records with incomplete
// provenance are rejected so the caller can skip and log them without
// aborting the rest of the partition.
func (ix *Index) Add(rec *statement.RawRecord) error {
	if rec == nil {
		return fmt.Errorf("nil record")
	}
	if err := rec.Provenance.Validate(); err != nil {
		return fmt.Errorf("record %d: %w", rec.ID, err)
	}

	key := GroupKey{
		InputUnitID:   rec.Provenance.InputUnitID,
		SourceKind:    rec.Provenance.SourceKind,
		ContentUnitID: rec.Provenance.ContentUnitID,
		Extractor:     rec.Provenance.Extractor,
	}
	versions, ok := ix.groups[key]
	if !ok {
		versions = make(versionMap)
		ix.groups[key] = versions
	}
	runs, ok := versions[rec.Provenance.ExtractorVersion]
	if !ok {
		runs = make(runMap)
		versions[rec.Provenance.ExtractorVersion] = runs
	}
	fps, ok := runs[rec.Provenance.RunID]
	if !ok {
		fps = make(fingerprintMap)
		runs[rec.Provenance.RunID] = fps
	}
	fp := statement.ShallowFingerprint(rec.Content)
	fps[fp] = append(fps[fp], rec)
	return nil
}

// Len returns the number of (input unit, source kind, content unit,
// extractor) groups held by the index.
func (ix *Index) Len() int { return len(ix.groups) }

func (ix *Index) sortedKeys() []GroupKey {
	keys := make([]GroupKey, 0, len(ix.groups))
	for key := range ix.groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		switch {
		case a.InputUnitID != b.InputUnitID:
			return a.InputUnitID < b.InputUnitID
		case a.SourceKind != b.SourceKind:
			return a.SourceKind < b.SourceKind
		case a.ContentUnitID != b.ContentUnitID:
			return a.ContentUnitID < b.ContentUnitID
		default:
			return a.Extractor < b.Extractor
		}
	})
	return keys
}
