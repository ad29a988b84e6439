// Package ontology answers generalization queries between statement contents
// using an externally supplied is-a index over grounded entities.
package ontology

import (
	"strings"

	"statforge/internal/statement"
)

// Result is the outcome of comparing two statement contents.
type Result int

const (
	Unrelated Result = iota
	Equal
	AGeneralizesB
	BGeneralizesA
)

func (r Result) String() string {
	switch r {
	case Equal:
		return "equal"
	case AGeneralizesB:
		return "a_generalizes_b"
	case BGeneralizesA:
		return "b_generalizes_a"
	default:
		return "unrelated"
	}
}

// Invert flips the direction of a result, as if the operands were swapped.
func (r Result) Invert() Result {
	switch r {
	case AGeneralizesB:
		return BGeneralizesA
	case BGeneralizesA:
		return AGeneralizesB
	default:
		return r
	}
}

// Comparator compares two statement contents of the same relation type.
type Comparator interface {
	Compare(a, b statement.Content) Result
}

// Index holds is-a edges between grounding keys ("NAMESPACE:ID"). Ancestry is
// resolved transitively, so only direct parent edges need to be loaded.
type Index struct {
	parents map[string]map[string]struct{}
}

func NewIndex() *Index {
	return &Index{parents: make(map[string]map[string]struct{})}
}

// AddIsA records that child is a kind of parent, e.g. HGNC:6840 is-a FPLX:MEK.
func (ix *Index) AddIsA(child, parent string) {
	if child == "" || parent == "" || child == parent {
		return
	}
	set, ok := ix.parents[child]
	if !ok {
		set = make(map[string]struct{})
		ix.parents[child] = set
	}
	set[parent] = struct{}{}
}

// HasAncestor reports whether ancestor is reachable from child over is-a
// edges. Safe against cycles in the loaded edge set.
func (ix *Index) HasAncestor(child, ancestor string) bool {
	if child == "" || ancestor == "" || child == ancestor {
		return false
	}
	seen := map[string]struct{}{child: {}}
	stack := []string{child}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for parent := range ix.parents[cur] {
			if parent == ancestor {
				return true
			}
			if _, ok := seen[parent]; ok {
				continue
			}
			seen[parent] = struct{}{}
			stack = append(stack, parent)
		}
	}
	return false
}

// CompareEntities relates two grounded agents. A nil agent is a wildcard and
// generalizes any concrete one.
func (ix *Index) CompareEntities(a, b *statement.Agent) Result {
	switch {
	case a == nil && b == nil:
		return Equal
	case a == nil:
		return AGeneralizesB
	case b == nil:
		return BGeneralizesA
	}
	ka, kb := a.GroundingKey(), b.GroundingKey()
	switch {
	case ka == kb:
		return Equal
	case ix.HasAncestor(kb, ka):
		return AGeneralizesB
	case ix.HasAncestor(ka, kb):
		return BGeneralizesA
	default:
		return Unrelated
	}
}

// Compare relates two statement contents. Contents of different relation
// types or arities are unrelated. For a to generalize b, every position of a
// must be equal to or more general than the matching position of b, with at
// least one strictly more general.
func (ix *Index) Compare(a, b statement.Content) Result {
	if a.Type != b.Type || a.Arity() != b.Arity() {
		return Unrelated
	}

	agents := ix.compareAgents(a, b)
	if agents == Unrelated {
		return Unrelated
	}
	site := compareSites(a, b)
	if site == Unrelated {
		return Unrelated
	}
	return combine(agents, site)
}

func (ix *Index) compareAgents(a, b statement.Content) Result {
	if a.Type.Unordered() {
		return ix.compareUnordered(a.Agents, b.Agents)
	}
	combined := Equal
	for i := range a.Agents {
		combined = combine(combined, ix.CompareEntities(a.Agents[i], b.Agents[i]))
		if combined == Unrelated {
			return Unrelated
		}
	}
	return combined
}

// maxUnorderedArity bounds the permutation search for unordered relations.
// Complexes beyond this size are compared for equality only.
const maxUnorderedArity = 6

// compareUnordered looks for a pairing of members under which the whole set
// relates in one consistent direction.
func (ix *Index) compareUnordered(a, b []*statement.Agent) Result {
	if len(a) != len(b) {
		return Unrelated
	}
	if len(a) > maxUnorderedArity {
		if unorderedKeysEqual(a, b) {
			return Equal
		}
		return Unrelated
	}

	best := Unrelated
	used := make([]bool, len(b))
	var walk func(i int, acc Result)
	walk = func(i int, acc Result) {
		if acc == Unrelated || best == Equal {
			return
		}
		if i == len(a) {
			if best == Unrelated || acc == Equal {
				best = acc
			}
			return
		}
		for j := range b {
			if used[j] {
				continue
			}
			used[j] = true
			walk(i+1, combine(acc, ix.CompareEntities(a[i], b[j])))
			used[j] = false
		}
	}
	walk(0, Equal)
	return best
}

func unorderedKeysEqual(a, b []*statement.Agent) bool {
	counts := make(map[string]int, len(a))
	for _, ag := range a {
		counts[ag.GroundingKey()]++
	}
	for _, ag := range b {
		counts[ag.GroundingKey()]--
	}
	for _, n := range counts {
		if n != 0 {
			return false
		}
	}
	return true
}

// compareSites treats a missing site as more general than a present one.
func compareSites(a, b statement.Content) Result {
	ra, rb := siteKey(a), siteKey(b)
	switch {
	case ra == rb:
		return Equal
	case ra == "":
		return AGeneralizesB
	case rb == "":
		return BGeneralizesA
	default:
		return Unrelated
	}
}

func siteKey(c statement.Content) string {
	res := strings.ToUpper(strings.TrimSpace(c.Residue))
	pos := strings.TrimSpace(c.Position)
	if res == "" && pos == "" {
		return ""
	}
	return res + "@" + pos
}

// combine folds two positional results into an overall one. Opposite
// directions at different positions mean the contents are simply unrelated.
func combine(x, y Result) Result {
	switch {
	case x == Unrelated || y == Unrelated:
		return Unrelated
	case x == Equal:
		return y
	case y == Equal:
		return x
	case x == y:
		return x
	default:
		return Unrelated
	}
}
