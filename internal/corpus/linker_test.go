package corpus

import (
	"context"
	"errors"
	"testing"

	"statforge/internal/ontology"
	"statforge/internal/statement"
)

func testOntology() *ontology.Index {
	ix := ontology.NewIndex()
	ix.AddIsA("HGNC:6840", "FPLX:MEK")
	ix.AddIsA("HGNC:6871", "FPLX:ERK")
	return ix
}

func seedCanonical(t *testing.T, store *MemStore, contents ...statement.Content) []int64 {
	t.Helper()
	fps := make([]int64, 0, len(contents))
	stmts := make([]*statement.Canonical, 0, len(contents))
	for i, c := range contents {
		fp := statement.ShallowFingerprint(c)
		fps = append(fps, fp)
		stmts = append(stmts, &statement.Canonical{
			Fingerprint: fp,
			Content:     c,
			Evidence:    []statement.Evidence{{Text: "ev", SourceAPI: "reach"}},
			MemberIDs:   []int64{int64(i + 1)},
		})
	}
	if err := store.UpsertCanonical(context.Background(), stmts); err != nil {
		t.Fatalf("seed canonical statements: %v", err)
	}
	return fps
}

func phosContent(a, b *statement.Agent) statement.Content {
	return statement.Content{Type: statement.RelationPhosphorylation, Agents: []*statement.Agent{a, b}}
}

func TestLinker_RefinementDirection(t *testing.T) {
	t.Parallel()

	store := NewMemStore()
	general := phosContent(fplx("MEK"), fplx("ERK"))
	specific := phosContent(hgnc("MAP2K1", "6840"), hgnc("MAPK1", "6871"))
	fps := seedCanonical(t, store, general, specific)

	linker := NewLinker(store, testOntology(), testLogger(), RetryPolicy{})
	res, err := linker.Link(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if res.Links != 1 {
		t.Fatalf("expected exactly one refinement link, got %d", res.Links)
	}

	want := RefinementLink{Supporting: fps[1], Supported: fps[0], Type: statement.RelationPhosphorylation}
	if _, ok := store.Refinements()[want]; !ok {
		t.Fatalf("expected specific statement to support the general one, got %v", store.Refinements())
	}
}

func TestLinker_NoSelfSupport(t *testing.T) {
	t.Parallel()

	store := NewMemStore()
	seedCanonical(t, store,
		phosContent(fplx("MEK"), fplx("ERK")),
		phosContent(hgnc("MAP2K1", "6840"), hgnc("MAPK1", "6871")),
		phosContent(fplx("RAS"), fplx("RAF")),
	)

	linker := NewLinker(store, testOntology(), testLogger(), RetryPolicy{})
	if _, err := linker.Link(context.Background(), "", nil); err != nil {
		t.Fatalf("link: %v", err)
	}
	for l := range store.Refinements() {
		if l.Supporting == l.Supported {
			t.Fatalf("found self-support link on %d", l.Supporting)
		}
	}
}

func TestLinker_PartitionByRelationType(t *testing.T) {
	t.Parallel()

	store := NewMemStore()
	// Same agent pattern in two different relation types; the specific
	// activation must not support the general phosphorylation.
	seedCanonical(t, store,
		phosContent(fplx("MEK"), fplx("ERK")),
		statement.Content{Type: statement.RelationActivation, Agents: []*statement.Agent{hgnc("MAP2K1", "6840"), hgnc("MAPK1", "6871")}},
	)

	linker := NewLinker(store, testOntology(), testLogger(), RetryPolicy{})
	res, err := linker.Link(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if res.Links != 0 {
		t.Fatalf("expected no cross-type links, got %d", res.Links)
	}
}

func TestLinker_ScopeRestrictsPartition(t *testing.T) {
	t.Parallel()

	store := NewMemStore()
	seedCanonical(t, store,
		phosContent(fplx("MEK"), fplx("ERK")),
		phosContent(hgnc("MAP2K1", "6840"), hgnc("MAPK1", "6871")),
		statement.Content{Type: statement.RelationActivation, Agents: []*statement.Agent{fplx("MEK"), fplx("ERK")}},
		statement.Content{Type: statement.RelationActivation, Agents: []*statement.Agent{hgnc("MAP2K1", "6840"), hgnc("MAPK1", "6871")}},
	)

	linker := NewLinker(store, testOntology(), testLogger(), RetryPolicy{})
	res, err := linker.Link(context.Background(), statement.RelationActivation, nil)
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if res.Partitions != 1 {
		t.Fatalf("expected a single partition, got %d", res.Partitions)
	}
	for l := range store.Refinements() {
		if l.Type != statement.RelationActivation {
			t.Fatalf("scoped run must not write links for %s", l.Type)
		}
	}
}

func TestLinker_IncrementalSkipsOldPairs(t *testing.T) {
	t.Parallel()

	store := NewMemStore()
	general := phosContent(fplx("MEK"), fplx("ERK"))
	specific := phosContent(hgnc("MAP2K1", "6840"), hgnc("MAPK1", "6871"))
	fps := seedCanonical(t, store, general, specific)

	linker := NewLinker(store, testOntology(), testLogger(), RetryPolicy{})
	if _, err := linker.Link(context.Background(), "", nil); err != nil {
		t.Fatalf("initial link: %v", err)
	}

	// A third statement arrives; only pairs involving it are compared.
	sited := phosContent(hgnc("MAP2K1", "6840"), hgnc("MAPK1", "6871"))
	sited.Residue, sited.Position = "T", "185"
	newFPs := seedCanonical(t, store, sited)

	res, err := linker.Link(context.Background(), "", map[int64]struct{}{newFPs[0]: {}})
	if err != nil {
		t.Fatalf("incremental link: %v", err)
	}
	if res.Pairs != 2 {
		t.Fatalf("expected only the two new pairs to be compared, got %d", res.Pairs)
	}

	// The original edge plus two edges into the sited statement.
	wantEdges := map[RefinementLink]struct{}{
		{Supporting: fps[1], Supported: fps[0], Type: statement.RelationPhosphorylation}:   {},
		{Supporting: newFPs[0], Supported: fps[0], Type: statement.RelationPhosphorylation}: {},
		{Supporting: newFPs[0], Supported: fps[1], Type: statement.RelationPhosphorylation}: {},
	}
	got := store.Refinements()
	if len(got) != len(wantEdges) {
		t.Fatalf("unexpected edge set: %v", got)
	}
	for edge := range wantEdges {
		if _, ok := got[edge]; !ok {
			t.Fatalf("missing expected edge %v", edge)
		}
	}
}

// inconsistentComparator claims every pair is equal, which is impossible for
// distinct fingerprints.
type inconsistentComparator struct{}

func (inconsistentComparator) Compare(_, _ statement.Content) ontology.Result {
	return ontology.Equal
}

func TestLinker_RejectsInconsistentComparator(t *testing.T) {
	t.Parallel()

	store := NewMemStore()
	seedCanonical(t, store,
		phosContent(fplx("MEK"), fplx("ERK")),
		phosContent(fplx("RAS"), fplx("RAF")),
	)

	linker := NewLinker(store, inconsistentComparator{}, testLogger(), RetryPolicy{})
	_, err := linker.Link(context.Background(), "", nil)
	if !errors.Is(err, ErrOntologyViolation) {
		t.Fatalf("expected ontology contract violation, got %v", err)
	}
}

func TestLinker_RejectsMutualSupport(t *testing.T) {
	t.Parallel()

	store := NewMemStore()
	general := phosContent(fplx("MEK"), fplx("ERK"))
	specific := phosContent(hgnc("MAP2K1", "6840"), hgnc("MAPK1", "6871"))
	fps := seedCanonical(t, store, general, specific)

	// A pre-existing reverse edge makes any honest recomputation a
	// contradiction.
	reversed := RefinementLink{Supporting: fps[0], Supported: fps[1], Type: statement.RelationPhosphorylation}
	if err := store.AppendRefinementLinks(context.Background(), []RefinementLink{reversed}); err != nil {
		t.Fatalf("seed reversed link: %v", err)
	}

	linker := NewLinker(store, testOntology(), testLogger(), RetryPolicy{})
	_, err := linker.Link(context.Background(), "", nil)
	if !errors.Is(err, ErrOntologyViolation) {
		t.Fatalf("expected mutual support to be rejected, got %v", err)
	}
}
