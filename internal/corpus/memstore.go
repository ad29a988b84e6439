package corpus

import (
	"context"
	"sort"
	"sync"

	"statforge/internal/statement"
)

// MemStore is an in-memory Store used by tests and dry runs. It applies the
// same idempotent append semantics as the Postgres-backed store.
type MemStore struct {
	mu          sync.Mutex
	canonical   map[int64]*statement.Canonical
	recordLinks map[RecordLink]struct{}
	refinements map[RefinementLink]struct{}
	updates     []Update

	// FailNextWrites makes the next n write calls fail transiently, for
	// exercising the retry path.
	FailNextWrites int
}

func NewMemStore() *MemStore {
	return &MemStore{
		canonical:   make(map[int64]*statement.Canonical),
		recordLinks: make(map[RecordLink]struct{}),
		refinements: make(map[RefinementLink]struct{}),
	}
}

func (m *MemStore) failWrite() error {
	if m.FailNextWrites > 0 {
		m.FailNextWrites--
		return &TransientError{Err: context.DeadlineExceeded}
	}
	return nil
}

func (m *MemStore) CanonicalByFingerprint(_ context.Context, fps []int64) (map[int64]*statement.Canonical, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64]*statement.Canonical, len(fps))
	for _, fp := range fps {
		if c, ok := m.canonical[fp]; ok {
			out[fp] = cloneCanonical(c)
		}
	}
	return out, nil
}

func (m *MemStore) UpsertCanonical(_ context.Context, stmts []*statement.Canonical) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failWrite(); err != nil {
		return err
	}
	for _, c := range stmts {
		m.canonical[c.Fingerprint] = cloneCanonical(c)
	}
	return nil
}

func (m *MemStore) CanonicalByType(_ context.Context, t statement.RelationType) ([]*statement.Canonical, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*statement.Canonical
	for _, c := range m.canonical {
		if c.Content.Type == t {
			out = append(out, cloneCanonical(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Fingerprint < out[j].Fingerprint })
	return out, nil
}

func (m *MemStore) RelationTypes(_ context.Context) ([]statement.RelationType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[statement.RelationType]struct{})
	for _, c := range m.canonical {
		seen[c.Content.Type] = struct{}{}
	}
	types := make([]statement.RelationType, 0, len(seen))
	for t := range seen {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types, nil
}

func (m *MemStore) AppendRecordLinks(_ context.Context, links []RecordLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failWrite(); err != nil {
		return err
	}
	for _, l := range links {
		m.recordLinks[l] = struct{}{}
	}
	return nil
}

func (m *MemStore) LinkedRecordIDs(_ context.Context) (map[int64]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64]struct{}, len(m.recordLinks))
	for l := range m.recordLinks {
		out[l.RecordID] = struct{}{}
	}
	return out, nil
}

func (m *MemStore) AppendRefinementLinks(_ context.Context, links []RefinementLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failWrite(); err != nil {
		return err
	}
	for _, l := range links {
		m.refinements[l] = struct{}{}
	}
	return nil
}

func (m *MemStore) RefinementLinksByType(_ context.Context, t statement.RelationType) ([]RefinementLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []RefinementLink
	for l := range m.refinements {
		if l.Type == t {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Supporting != out[j].Supporting {
			return out[i].Supporting < out[j].Supporting
		}
		return out[i].Supported < out[j].Supported
	})
	return out, nil
}

func (m *MemStore) LatestUpdate(_ context.Context, t statement.RelationType) (*Update, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.updates) - 1; i >= 0; i-- {
		u := m.updates[i]
		if u.Type == "" || (t != "" && u.Type == t) {
			copied := u
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *MemStore) RecordUpdate(_ context.Context, u Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failWrite(); err != nil {
		return err
	}
	m.updates = append(m.updates, u)
	return nil
}

// RecordLinks returns a snapshot of the raw-to-canonical link set.
func (m *MemStore) RecordLinks() map[RecordLink]struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[RecordLink]struct{}, len(m.recordLinks))
	for l := range m.recordLinks {
		out[l] = struct{}{}
	}
	return out
}

// Canonicals returns a snapshot of every canonical statement by fingerprint.
func (m *MemStore) Canonicals() map[int64]*statement.Canonical {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64]*statement.Canonical, len(m.canonical))
	for fp, c := range m.canonical {
		out[fp] = cloneCanonical(c)
	}
	return out
}

// Refinements returns a snapshot of every refinement edge.
func (m *MemStore) Refinements() map[RefinementLink]struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[RefinementLink]struct{}, len(m.refinements))
	for l := range m.refinements {
		out[l] = struct{}{}
	}
	return out
}

func cloneCanonical(c *statement.Canonical) *statement.Canonical {
	if c == nil {
		return nil
	}
	copied := *c
	copied.Evidence = append([]statement.Evidence(nil), c.Evidence...)
	copied.MemberIDs = append([]int64(nil), c.MemberIDs...)
	return &copied
}
