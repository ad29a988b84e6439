package statement

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"
	"strings"
)

// ShallowFingerprint keys a statement by logical content only: relation type,
// agent groundings and normalized site. Records from different extractors that
// assert the same thing share a shallow fingerprint and merge into one
// canonical statement.
func ShallowFingerprint(c Content) int64 {
	return hashKey(shallowKey(c))
}

// FullFingerprint additionally covers the evidence item, so two records
// collide only when the same extractor produced the identical statement with
// the identical supporting text. Used for exact-duplicate collapse.
func FullFingerprint(c Content, ev Evidence) int64 {
	return hashKey(shallowKey(c) + "||" + evidenceKey(ev))
}

// EvidenceFingerprint keys a single evidence item within a canonical
// statement's evidence set.
func EvidenceFingerprint(ev Evidence) int64 {
	return hashKey(evidenceKey(ev))
}

func shallowKey(c Content) string {
	keys := make([]string, 0, len(c.Agents))
	for _, a := range c.Agents {
		keys = append(keys, a.GroundingKey())
	}
	if c.Type.Unordered() {
		sort.Strings(keys)
	}

	var b strings.Builder
	b.WriteString(string(c.Type))
	for _, k := range keys {
		b.WriteByte('(')
		b.WriteString(k)
		b.WriteByte(')')
	}
	if r := normalizeResidue(c.Residue); r != "" {
		b.WriteString("|res=")
		b.WriteString(r)
	}
	if p := strings.TrimSpace(c.Position); p != "" {
		b.WriteString("|pos=")
		b.WriteString(p)
	}
	return b.String()
}

func evidenceKey(ev Evidence) string {
	return strings.Join([]string{ev.SourceAPI, ev.PMID, ev.Text}, "\x1f")
}

func normalizeResidue(residue string) string {
	return strings.ToUpper(strings.TrimSpace(residue))
}

func hashKey(key string) int64 {
	sum := sha256.Sum256([]byte(key))
	return int64(binary.BigEndian.Uint64(sum[:8]))
}
