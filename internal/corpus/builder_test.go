package corpus

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/rs/zerolog"

	"statforge/internal/statement"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func fplx(name string) *statement.Agent {
	return &statement.Agent{Name: name, Groundings: map[string]string{"FPLX": name}}
}

func hgnc(name, id string) *statement.Agent {
	return &statement.Agent{Name: name, Groundings: map[string]string{"HGNC": id}}
}

func testRecord(id int64, t statement.RelationType, subject, object *statement.Agent, extractor, version string, runID int64, evText string) *statement.RawRecord {
	return &statement.RawRecord{
		ID:       id,
		Content:  statement.Content{Type: t, Agents: []*statement.Agent{subject, object}},
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

// canonicalDiff compares corpus snapshots structurally: evidence and member
// sets matter, their order does not.
func canonicalDiff(a, b map[int64]*statement.Canonical) string {
	sortEvidence := cmpopts.SortSlices(func(x, y statement.Evidence) bool {
		return statement.EvidenceFingerprint(x) < statement.EvidenceFingerprint(y)
	})
	sortIDs := cmpopts.SortSlices(func(x, y int64) bool { return x < y })
	return cmp.Diff(a, b, sortEvidence, sortIDs)
}

func TestBuilder_EvidenceMerge(t *testing.T) {
	t.Parallel()

	store := NewMemStore()
	builder := NewBuilder(store, testLogger(), RetryPolicy{})

	records := []*statement.RawRecord{
		testRecord(1, statement.RelationPhosphorylation, fplx("MEK"), fplx("ERK"), "reach", "1", 10, "MEK phosphorylates ERK."),
		testRecord(2, statement.RelationPhosphorylation, fplx("MEK"), fplx("ERK"), "sparser", "0", 11, "ERK is phosphorylated by MEK."),
	}
	res, err := builder.CreateCorpus(context.Background(), NewSliceSource(records), 0)
	if err != nil {
		t.Fatalf("create corpus: %v", err)
	}
	if res.Created != 1 {
		t.Fatalf("expected one canonical statement, got %d", res.Created)
	}

	canonicals := store.Canonicals()
	if len(canonicals) != 1 {
		t.Fatalf("expected 1 canonical statement, got %d", len(canonicals))
	}
	for _, c := range canonicals {
		if len(c.Evidence) != 2 {
			t.Fatalf("expected merged evidence cardinality 2, got %d", len(c.Evidence))
		}
		if len(c.MemberIDs) != 2 {
			t.Fatalf("expected both records as members, got %v", c.MemberIDs)
		}
	}
}

func TestBuilder_ExactDuplicateCollapse(t *testing.T) {
	t.Parallel()

	store := NewMemStore()
	builder := NewBuilder(store, testLogger(), RetryPolicy{})

	// Same extractor emitted the identical statement with identical
	// evidence twice.
	records := []*statement.RawRecord{
		testRecord(1, statement.RelationPhosphorylation, fplx("MEK"), fplx("ERK"), "reach", "1", 10, "MEK phosphorylates ERK."),
		testRecord(2, statement.RelationPhosphorylation, fplx("MEK"), fplx("ERK"), "reach", "1", 10, "MEK phosphorylates ERK."),
	}
	if _, err := builder.CreateCorpus(context.Background(), NewSliceSource(records), 0); err != nil {
		t.Fatalf("create corpus: %v", err)
	}

	for _, c := range store.Canonicals() {
		if len(c.Evidence) != 1 {
			t.Fatalf("exact duplicates must collapse to one evidence entry, got %d", len(c.Evidence))
		}
		if len(c.MemberIDs) != 2 {
			t.Fatalf("both records should still be members, got %v", c.MemberIDs)
		}
	}
}

func TestBuilder_CollisionWithMismatchedShapeSkipped(t *testing.T) {
	t.Parallel()

	store := NewMemStore()
	builder := NewBuilder(store, testLogger(), RetryPolicy{})
	// Force a grouping-key collision between statements of different
	// relation types; the real hash makes one unreachable.
	builder.fingerprint = func(statement.Content) int64 { return 77 }

	records := []*statement.RawRecord{
		testRecord(1, statement.RelationPhosphorylation, fplx("MEK"), fplx("ERK"), "reach", "1", 10, "MEK phosphorylates ERK."),
		testRecord(2, statement.RelationActivation, fplx("RAS"), fplx("RAF"), "reach", "1", 10, "RAS activates RAF."),
	}
	res, err := builder.CreateCorpus(context.Background(), NewSliceSource(records), 0)
	if err != nil {
		t.Fatalf("create corpus: %v", err)
	}
	if res.Skipped != 1 {
		t.Fatalf("the colliding record must be skipped, got %d", res.Skipped)
	}
	if res.Created != 1 {
		t.Fatalf("expected one canonical statement, got %d", res.Created)
	}

	canonicals := store.Canonicals()
	c, ok := canonicals[77]
	if !ok || len(canonicals) != 1 {
		t.Fatalf("expected exactly the first record's canonical, got %v", canonicals)
	}
	if c.Content.Type != statement.RelationPhosphorylation {
		t.Fatalf("first record's content must win, got %s", c.Content.Type)
	}
	if diff := cmp.Diff([]int64{1}, c.MemberIDs); diff != "" {
		t.Fatalf("skipped record must not become a member:\n%s", diff)
	}
	if _, linked := store.RecordLinks()[RecordLink{RecordID: 2, Fingerprint: 77}]; linked {
		t.Fatalf("skipped record must not be linked")
	}
}

func TestBuilder_LinkCoverage(t *testing.T) {
	t.Parallel()

	store := NewMemStore()
	builder := NewBuilder(store, testLogger(), RetryPolicy{})

	records := []*statement.RawRecord{
		testRecord(1, statement.RelationPhosphorylation, fplx("MEK"), fplx("ERK"), "reach", "1", 10, "ev one"),
		testRecord(2, statement.RelationPhosphorylation, fplx("MEK"), fplx("ERK"), "sparser", "0", 11, "ev two"),
		testRecord(3, statement.RelationActivation, fplx("RAS"), fplx("RAF"), "reach", "1", 10, "ev three"),
	}
	if _, err := builder.CreateCorpus(context.Background(), NewSliceSource(records), 0); err != nil {
		t.Fatalf("create corpus: %v", err)
	}

	links := store.RecordLinks()
	perRecord := make(map[int64]int)
	for l := range links {
		perRecord[l.RecordID]++
	}
	for _, rec := range records {
		if perRecord[rec.ID] != 1 {
			t.Fatalf("record %d should have exactly one link, got %d", rec.ID, perRecord[rec.ID])
		}
	}
}

func TestBuilder_Idempotence(t *testing.T) {
	t.Parallel()

	store := NewMemStore()
	builder := NewBuilder(store, testLogger(), RetryPolicy{})

	records := []*statement.RawRecord{
		testRecord(1, statement.RelationPhosphorylation, fplx("MEK"), fplx("ERK"), "reach", "1", 10, "first"),
		testRecord(2, statement.RelationPhosphorylation, fplx("MEK"), fplx("ERK"), "reach", "1", 10, "second"),
		testRecord(3, statement.RelationActivation, fplx("RAS"), fplx("RAF"), "sparser", "0", 11, "third"),
	}

	if _, err := builder.CreateCorpus(context.Background(), NewSliceSource(records), 0); err != nil {
		t.Fatalf("first build: %v", err)
	}
	firstCanonicals := store.Canonicals()
	firstLinks := store.RecordLinks()

	if _, err := builder.CreateCorpus(context.Background(), NewSliceSource(records), 0); err != nil {
		t.Fatalf("second build: %v", err)
	}

	if diff := canonicalDiff(firstCanonicals, store.Canonicals()); diff != "" {
		t.Fatalf("second build changed the corpus:\n%s", diff)
	}
	if diff := cmp.Diff(firstLinks, store.RecordLinks()); diff != "" {
		t.Fatalf("second build changed the link set:\n%s", diff)
	}
}

func TestBuilder_Convergence(t *testing.T) {
	t.Parallel()

	all := []*statement.RawRecord{
		testRecord(1, statement.RelationPhosphorylation, fplx("MEK"), fplx("ERK"), "reach", "1", 10, "first"),
		testRecord(2, statement.RelationPhosphorylation, fplx("MEK"), fplx("ERK"), "sparser", "0", 11, "second"),
		testRecord(3, statement.RelationActivation, fplx("RAS"), fplx("RAF"), "reach", "1", 10, "third"),
		testRecord(4, statement.RelationPhosphorylation, hgnc("MAP2K1", "6840"), hgnc("MAPK1", "6871"), "sparser", "0", 11, "fourth"),
	}

	incremental := NewMemStore()
	ib := NewBuilder(incremental, testLogger(), RetryPolicy{})
	if _, err := ib.CreateCorpus(context.Background(), NewSliceSource(all[:2]), 0); err != nil {
		t.Fatalf("create on first half: %v", err)
	}
	if _, err := ib.SupplementCorpus(context.Background(), NewSliceSource(all[2:]), 0); err != nil {
		t.Fatalf("supplement with second half: %v", err)
	}

	oneShot := NewMemStore()
	ob := NewBuilder(oneShot, testLogger(), RetryPolicy{})
	if _, err := ob.CreateCorpus(context.Background(), NewSliceSource(all), 0); err != nil {
		t.Fatalf("one-shot create: %v", err)
	}

	if diff := canonicalDiff(oneShot.Canonicals(), incremental.Canonicals()); diff != "" {
		t.Fatalf("incremental corpus diverged from one-shot build:\n%s", diff)
	}
	if diff := cmp.Diff(oneShot.RecordLinks(), incremental.RecordLinks()); diff != "" {
		t.Fatalf("incremental link set diverged:\n%s", diff)
	}
}

func TestBuilder_CrossBatchFold(t *testing.T) {
	t.Parallel()

	store := NewMemStore()
	builder := NewBuilder(store, testLogger(), RetryPolicy{})

	records := []*statement.RawRecord{
		testRecord(1, statement.RelationPhosphorylation, fplx("MEK"), fplx("ERK"), "reach", "1", 10, "first"),
		testRecord(2, statement.RelationPhosphorylation, fplx("MEK"), fplx("ERK"), "sparser", "0", 11, "second"),
	}
	// Batch size one forces the fingerprint to reappear in a second batch.
	res, err := builder.CreateCorpus(context.Background(), NewSliceSource(records), 1)
	if err != nil {
		t.Fatalf("create corpus: %v", err)
	}
	if res.Batches != 2 {
		t.Fatalf("expected 2 batches, got %d", res.Batches)
	}

	canonicals := store.Canonicals()
	if len(canonicals) != 1 {
		t.Fatalf("expected one canonical statement after folding, got %d", len(canonicals))
	}
	for _, c := range canonicals {
		if len(c.Evidence) != 2 {
			t.Fatalf("expected folded evidence cardinality 2, got %d", len(c.Evidence))
		}
	}
}

func TestBuilder_RetriesTransientWriteFailure(t *testing.T) {
	t.Parallel()

	store := NewMemStore()
	store.FailNextWrites = 1
	builder := NewBuilder(store, testLogger(), RetryPolicy{Backoff: 1})

	records := []*statement.RawRecord{
		testRecord(1, statement.RelationPhosphorylation, fplx("MEK"), fplx("ERK"), "reach", "1", 10, "ev"),
	}
	if _, err := builder.CreateCorpus(context.Background(), NewSliceSource(records), 0); err != nil {
		t.Fatalf("expected retry to absorb a single transient failure, got %v", err)
	}
	if len(store.Canonicals()) != 1 {
		t.Fatalf("canonical statement should have been written after retry")
	}
}

func TestBuilder_ExhaustedRetriesFail(t *testing.T) {
	t.Parallel()

	store := NewMemStore()
	store.FailNextWrites = 10
	builder := NewBuilder(store, testLogger(), RetryPolicy{Attempts: 2, Backoff: 1})

	records := []*statement.RawRecord{
		testRecord(1, statement.RelationPhosphorylation, fplx("MEK"), fplx("ERK"), "reach", "1", 10, "ev"),
	}
	if _, err := builder.CreateCorpus(context.Background(), NewSliceSource(records), 0); err == nil {
		t.Fatalf("expected exhausted retries to surface the failure")
	}
}
