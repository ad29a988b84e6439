package statement

import (
	"fmt"
	"strings"
)

// RelationType identifies the kind of interaction a statement asserts.
type RelationType string

const (
	RelationPhosphorylation RelationType = "phosphorylation"
	RelationActivation      RelationType = "activation"
	RelationInhibition      RelationType = "inhibition"
	RelationComplex         RelationType = "complex"
	RelationIncreaseAmount  RelationType = "increase_amount"
	RelationDecreaseAmount  RelationType = "decrease_amount"
)

// relations whose agent list carries no positional meaning; members are
// sorted before fingerprinting and comparison.
func (t RelationType) Unordered() bool {
	return t == RelationComplex
}

// groundingPriority orders namespaces from most to least authoritative when
// picking the identity key for an agent.
var groundingPriority = []string{"FPLX", "HGNC", "UP", "CHEBI", "GO", "MESH"}

// Agent is one grounded participant of a statement.
type Agent struct {
	Name       string            `json:"name"`
	Groundings map[string]string `json:"groundings,omitempty"`
}

// GroundingKey returns the agent's identity as "NAMESPACE:ID", preferring the
// most authoritative namespace present. Ungrounded agents fall back to their
// surface name.
func (a *Agent) GroundingKey() string {
	if a == nil {
		return ""
	}
	for _, ns := range groundingPriority {
		if id, ok := a.Groundings[ns]; ok && id != "" {
			return ns + ":" + id
		}
	}
	return "NAME:" + strings.ToUpper(strings.TrimSpace(a.Name))
}

// Content is the logical payload of a statement, independent of any evidence.
type Content struct {
	Type     RelationType `json:"type"`
	Agents   []*Agent     `json:"agents"`
	Residue  string       `json:"residue,omitempty"`
	Position string       `json:"position,omitempty"`
}

// Arity returns the number of agent slots, counting unspecified ones.
func (c Content) Arity() int { return len(c.Agents) }

func (c Content) String() string {
	names := make([]string, 0, len(c.Agents))
	for _, a := range c.Agents {
		if a == nil {
			names = append(names, "_")
			continue
		}
		names = append(names, a.Name)
	}
	site := ""
	if c.Residue != "" || c.Position != "" {
		site = fmt.Sprintf("@%s%s", c.Residue, c.Position)
	}
	return fmt.Sprintf("%s(%s)%s", c.Type, strings.Join(names, ", "), site)
}

// Evidence is the single piece of supporting text attached to a raw record.
type Evidence struct {
	Text      string `json:"text"`
	SourceAPI string `json:"source_api,omitempty"`
	PMID      string `json:"pmid,omitempty"`
}

// Provenance locates a raw record in the extraction hierarchy: which input
// unit it came from, which content unit of that input, and which extractor
// run produced it.
type Provenance struct {
	InputUnitID      int64  `json:"input_unit_id"`
	SourceKind       string `json:"source_kind"`
	ContentUnitID    int64  `json:"content_unit_id"`
	Extractor        string `json:"extractor"`
	ExtractorVersion string `json:"extractor_version"`
	RunID            int64  `json:"run_id"`
}

// Validate reports the first missing provenance field, if any. Records that
// fail validation are skipped during distillation rather than aborting the
// partition.
func (p Provenance) Validate() error {
	switch {
	case p.InputUnitID == 0:
		return fmt.Errorf("provenance missing input_unit_id")
	case strings.TrimSpace(p.SourceKind) == "":
		return fmt.Errorf("provenance missing source_kind")
	case p.ContentUnitID == 0:
		return fmt.Errorf("provenance missing content_unit_id")
	case strings.TrimSpace(p.Extractor) == "":
		return fmt.Errorf("provenance missing extractor")
	case strings.TrimSpace(p.ExtractorVersion) == "":
		return fmt.Errorf("provenance missing extractor_version")
	case p.RunID == 0:
		return fmt.Errorf("provenance missing run_id")
	}
	return nil
}

// RawRecord is one extracted statement instance as delivered by ingestion.
// Immutable once created; the core only reads it.
type RawRecord struct {
	ID         int64      `json:"id"`
	Content    Content    `json:"content"`
	Evidence   Evidence   `json:"evidence"`
	Provenance Provenance `json:"provenance"`
}

// Canonical is a merged statement identified by its shallow fingerprint. Its
// evidence list is the union of evidence from every raw record mapped to it.
type Canonical struct {
	Fingerprint int64      `json:"fingerprint"`
	Content     Content    `json:"content"`
	Evidence    []Evidence `json:"evidence"`
	MemberIDs   []int64    `json:"member_ids"`
}
