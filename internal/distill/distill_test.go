package distill

import (
	"testing"

	"statforge/internal/statement"
)

var testPriority = PriorityTable{
	"reach":   {"0", "1"},
	"sparser": {"0"},
}

func record(id int64, extractor, version string, runID int64, subject, object, evText string) *statement.RawRecord {
	return &statement.RawRecord{
		ID: id,
		Content: statement.Content{
			Type: statement.RelationPhosphorylation,
			Agents: []*statement.Agent{
				{Name: subject, Groundings: map[string]string{"FPLX": subject}},
				{Name: object, Groundings: map[string]string{"FPLX": object}},
			},
		},
		Evidence: statement.Evidence{Text: evText, SourceAPI: extractor},
		Provenance: statement.Provenance{
			InputUnitID:      1,
			SourceKind:       "pubmed/abstract",
			ContentUnitID:    1,
			Extractor:        extractor,
			ExtractorVersion: version,
			RunID:            runID,
		},
	}
}

func buildIndex(t *testing.T, recs ...*statement.RawRecord) *Index {
	t.Helper()
	ix := NewIndex()
	for _, rec := range recs {
		if err := ix.Add(rec); err != nil {
			t.Fatalf("add record %d: %v", rec.ID, err)
		}
	}
	return ix
}

func TestDistill_VersionPriority(t *testing.T) {
	t.Parallel()

	ix := buildIndex(t,
		record(1, "reach", "0", 10, "MEK", "ERK", "old evidence"),
		record(2, "reach", "1", 11, "MEK", "ERK", "new evidence"),
	)
	out := Distill(ix, Options{Priority: testPriority})

	if _, ok := out.IDs[2]; !ok {
		t.Fatalf("expected the newer version record to be selected")
	}
	if _, ok := out.IDs[1]; ok {
		t.Fatalf("older version record must not be selected")
	}
	if _, ok := out.SupersededIDs[1]; !ok {
		t.Fatalf("older version record must be reported as superseded")
	}
}

func TestDistill_LinkedRecordExemption(t *testing.T) {
	t.Parallel()

	ix := buildIndex(t,
		record(1, "reach", "0", 10, "MEK", "ERK", "old evidence"),
		record(2, "reach", "1", 11, "MEK", "ERK", "new evidence"),
	)
	out := Distill(ix, Options{
		Priority:  testPriority,
		LinkedIDs: map[int64]struct{}{1: {}},
	})

	if _, ok := out.IDs[1]; !ok {
		t.Fatalf("linked record must be retained despite losing on version priority")
	}
	if _, ok := out.IDs[2]; !ok {
		t.Fatalf("best version record must still be selected")
	}
	if _, ok := out.SupersededIDs[1]; ok {
		t.Fatalf("linked record must not be superseded")
	}
}

func TestDistill_BestRunWinsWithinVersion(t *testing.T) {
	t.Parallel()

	ix := buildIndex(t,
		record(1, "reach", "1", 20, "MEK", "ERK", "run 20 evidence"),
		record(2, "reach", "1", 21, "MEK", "ERK", "run 21 evidence"),
	)
	out := Distill(ix, Options{Priority: testPriority})

	// No linked records: the lowest run id is the documented tie-break.
	if _, ok := out.IDs[1]; !ok {
		t.Fatalf("expected run 20 to win the tie-break")
	}
	if _, ok := out.SupersededIDs[2]; !ok {
		t.Fatalf("expected run 21 records to be superseded")
	}
}

func TestDistill_LinkedRecordsDecideBestRun(t *testing.T) {
	t.Parallel()

	ix := buildIndex(t,
		record(1, "reach", "1", 20, "MEK", "ERK", "run 20 evidence"),
		record(2, "reach", "1", 21, "MEK", "ERK", "run 21 evidence"),
	)
	out := Distill(ix, Options{
		Priority:  testPriority,
		LinkedIDs: map[int64]struct{}{2: {}},
	})

	if _, ok := out.IDs[2]; !ok {
		t.Fatalf("run holding the linked record should win")
	}
	if _, ok := out.SupersededIDs[1]; !ok {
		t.Fatalf("the other run should be superseded")
	}
}

func TestDistill_CrossExtractorContentIsKept(t *testing.T) {
	t.Parallel()

	// Identical content from two extractors is corroboration, not
	// redundancy; both survive distillation.
	ix := buildIndex(t,
		record(1, "reach", "1", 10, "MEK", "ERK", "reach evidence"),
		record(2, "sparser", "0", 11, "MEK", "ERK", "sparser evidence"),
	)
	out := Distill(ix, Options{Priority: testPriority})

	for _, id := range []int64{1, 2} {
		if _, ok := out.IDs[id]; !ok {
			t.Fatalf("record %d should have survived", id)
		}
	}
	if len(out.SupersededIDs) != 0 {
		t.Fatalf("nothing should be superseded, got %v", out.SupersededIDs)
	}
}

func TestDistill_UnknownVersionIsLowestPriority(t *testing.T) {
	t.Parallel()

	ix := buildIndex(t,
		record(1, "reach", "experimental", 10, "MEK", "ERK", "mystery build"),
		record(2, "reach", "0", 11, "MEK", "ERK", "known old build"),
	)
	out := Distill(ix, Options{Priority: testPriority})

	if _, ok := out.IDs[2]; !ok {
		t.Fatalf("a listed version should beat an unknown one")
	}
	if _, ok := out.SupersededIDs[1]; !ok {
		t.Fatalf("unknown version record should be superseded")
	}
}

func TestDistill_IDOnlyMode(t *testing.T) {
	t.Parallel()

	ix := buildIndex(t, record(1, "reach", "1", 10, "MEK", "ERK", "ev"))

	idOnly := Distill(ix, Options{Priority: testPriority})
	if len(idOnly.Records) != 0 {
		t.Fatalf("id-only mode should not materialize records")
	}
	if _, ok := idOnly.IDs[1]; !ok {
		t.Fatalf("id set should always be populated")
	}

	full := Distill(ix, Options{Priority: testPriority, FullRecords: true})
	if len(full.Records) != 1 || full.Records[0].ID != 1 {
		t.Fatalf("full mode should return the record, got %v", full.Records)
	}
}

func TestDistill_EmptyIndex(t *testing.T) {
	t.Parallel()

	out := Distill(NewIndex(), Options{Priority: testPriority})
	if len(out.IDs) != 0 || len(out.SupersededIDs) != 0 {
		t.Fatalf("empty index should yield an empty contribution")
	}
}

func TestIndexAdd_RejectsMalformedProvenance(t *testing.T) {
	t.Parallel()

	rec := record(1, "reach", "1", 10, "MEK", "ERK", "ev")
	rec.Provenance.ContentUnitID = 0

	ix := NewIndex()
	if err := ix.Add(rec); err == nil {
		t.Fatalf("expected malformed provenance to be rejected")
	}
	if ix.Len() != 0 {
		t.Fatalf("rejected record must not be indexed")
	}
}
