package statement

import "testing"

func agent(name string, groundings map[string]string) *Agent {
	return &Agent{Name: name, Groundings: groundings}
}

func TestShallowFingerprint_IgnoresEvidence(t *testing.T) {
	t.Parallel()

	content := Content{
		Type: RelationPhosphorylation,
		Agents: []*Agent{
			agent("MEK", map[string]string{"FPLX": "MEK"}),
			agent("ERK", map[string]string{"FPLX": "ERK"}),
		},
	}
	if ShallowFingerprint(content) != ShallowFingerprint(content) {
		t.Fatalf("shallow fingerprint is not stable")
	}

	full1 := FullFingerprint(content, Evidence{Text: "first mention", SourceAPI: "reach"})
	full2 := FullFingerprint(content, Evidence{Text: "second mention", SourceAPI: "reach"})
	if full1 == full2 {
		t.Fatalf("full fingerprints should differ for distinct evidence")
	}
}

func TestShallowFingerprint_GroundingBeatsSurfaceName(t *testing.T) {
	t.Parallel()

	a := Content{Type: RelationActivation, Agents: []*Agent{
		agent("MEK1/2", map[string]string{"HGNC": "6840"}),
		agent("ERK", map[string]string{"FPLX": "ERK"}),
	}}
	b := Content{Type: RelationActivation, Agents: []*Agent{
		agent("MAP2K1", map[string]string{"HGNC": "6840"}),
		agent("ERK", map[string]string{"FPLX": "ERK"}),
	}}
	if ShallowFingerprint(a) != ShallowFingerprint(b) {
		t.Fatalf("same grounding with different surface names should share a fingerprint")
	}
}

func TestShallowFingerprint_ComplexIsUnordered(t *testing.T) {
	t.Parallel()

	ab := Content{Type: RelationComplex, Agents: []*Agent{
		agent("MEK", map[string]string{"FPLX": "MEK"}),
		agent("ERK", map[string]string{"FPLX": "ERK"}),
	}}
	ba := Content{Type: RelationComplex, Agents: []*Agent{
		agent("ERK", map[string]string{"FPLX": "ERK"}),
		agent("MEK", map[string]string{"FPLX": "MEK"}),
	}}
	if ShallowFingerprint(ab) != ShallowFingerprint(ba) {
		t.Fatalf("complex member order should not change the fingerprint")
	}

	ordered := Content{Type: RelationPhosphorylation, Agents: ab.Agents}
	reversed := Content{Type: RelationPhosphorylation, Agents: ba.Agents}
	if ShallowFingerprint(ordered) == ShallowFingerprint(reversed) {
		t.Fatalf("ordered relation should be position sensitive")
	}
}

func TestShallowFingerprint_SiteChangesIdentity(t *testing.T) {
	t.Parallel()

	agents := []*Agent{
		agent("MEK", map[string]string{"FPLX": "MEK"}),
		agent("ERK", map[string]string{"FPLX": "ERK"}),
	}
	plain := Content{Type: RelationPhosphorylation, Agents: agents}
	sited := Content{Type: RelationPhosphorylation, Agents: agents, Residue: "T", Position: "124"}
	if ShallowFingerprint(plain) == ShallowFingerprint(sited) {
		t.Fatalf("site details must be part of the content identity")
	}

	lower := Content{Type: RelationPhosphorylation, Agents: agents, Residue: "t", Position: "124"}
	if ShallowFingerprint(sited) != ShallowFingerprint(lower) {
		t.Fatalf("residue normalization should be case insensitive")
	}
}

func TestShallowFingerprint_NilAgentSlot(t *testing.T) {
	t.Parallel()

	unknown := Content{Type: RelationPhosphorylation, Agents: []*Agent{
		nil,
		agent("ERK", map[string]string{"FPLX": "ERK"}),
	}}
	known := Content{Type: RelationPhosphorylation, Agents: []*Agent{
		agent("MEK", map[string]string{"FPLX": "MEK"}),
		agent("ERK", map[string]string{"FPLX": "ERK"}),
	}}
	if ShallowFingerprint(unknown) == ShallowFingerprint(known) {
		t.Fatalf("an unspecified agent slot must not collide with a grounded one")
	}
}

func TestProvenanceValidate(t *testing.T) {
	t.Parallel()

	good := Provenance{
		InputUnitID:      1,
		SourceKind:       "pubmed/abstract",
		ContentUnitID:    10,
		Extractor:        "reach",
		ExtractorVersion: "1.3.3",
		RunID:            7,
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected valid provenance, got %v", err)
	}

	missing := good
	missing.Extractor = " "
	if err := missing.Validate(); err == nil {
		t.Fatalf("expected error for blank extractor")
	}
}
