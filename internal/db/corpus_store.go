package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"statforge/internal/corpus"
	"statforge/internal/statement"
)

// CorpusStore implements corpus.Store on top of the shared Pool. Link-table
// appends use ON CONFLICT DO NOTHING so re-appending after a retried batch is
// a no-op.
type CorpusStore struct {
	pool *Pool
}

func NewCorpusStore(pool *Pool) *CorpusStore {
	return &CorpusStore{pool: pool}
}

func (s *CorpusStore) CanonicalByFingerprint(ctx context.Context, fps []int64) (map[int64]*statement.Canonical, error) {
	out := make(map[int64]*statement.Canonical, len(fps))
	if len(fps) == 0 {
		return out, nil
	}

	const q = `
SELECT mk_hash, content, evidence, member_ids
FROM corpus.canonical_statements
WHERE mk_hash = ANY($1::bigint[])
`

	rows, err := s.pool.Query(ctx, q, int64Array(fps))
	if err != nil {
		return nil, transient(fmt.Errorf("query canonical statements by fingerprint: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		stmt, err := scanCanonical(rows)
		if err != nil {
			return nil, err
		}
		out[stmt.Fingerprint] = stmt
	}
	if err := rows.Err(); err != nil {
		return nil, transient(fmt.Errorf("iterate canonical statements: %w", err))
	}
	return out, nil
}

func (s *CorpusStore) UpsertCanonical(ctx context.Context, stmts []*statement.Canonical) error {
	if len(stmts) == 0 {
		return nil
	}

	const q = `
INSERT INTO corpus.canonical_statements (mk_hash, relation_type, content, evidence, member_ids, updated_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (mk_hash) DO UPDATE SET
	content = EXCLUDED.content,
	evidence = EXCLUDED.evidence,
	member_ids = EXCLUDED.member_ids,
	updated_at = now()
`

	for _, stmt := range stmts {
		content, err := json.Marshal(stmt.Content)
		if err != nil {
			return fmt.Errorf("marshal canonical content %d: %w", stmt.Fingerprint, err)
		}
		evidence, err := json.Marshal(stmt.Evidence)
		if err != nil {
			return fmt.Errorf("marshal canonical evidence %d: %w", stmt.Fingerprint, err)
		}
		members, err := json.Marshal(stmt.MemberIDs)
		if err != nil {
			return fmt.Errorf("marshal canonical member ids %d: %w", stmt.Fingerprint, err)
		}
		if _, err := s.pool.Exec(ctx, q,
			stmt.Fingerprint, string(stmt.Content.Type), content, evidence, members,
		); err != nil {
			return transient(fmt.Errorf("upsert canonical statement %d: %w", stmt.Fingerprint, err))
		}
	}
	return nil
}

func (s *CorpusStore) CanonicalByType(ctx context.Context, t statement.RelationType) ([]*statement.Canonical, error) {
	const q = `
SELECT mk_hash, content, evidence, member_ids
FROM corpus.canonical_statements
WHERE relation_type = $1
ORDER BY mk_hash
`

	rows, err := s.pool.Query(ctx, q, string(t))
	if err != nil {
		return nil, transient(fmt.Errorf("query canonical statements by type: %w", err))
	}
	defer rows.Close()

	var out []*statement.Canonical
	for rows.Next() {
		stmt, err := scanCanonical(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, stmt)
	}
	if err := rows.Err(); err != nil {
		return nil, transient(fmt.Errorf("iterate canonical statements: %w", err))
	}
	return out, nil
}

func (s *CorpusStore) RelationTypes(ctx context.Context) ([]statement.RelationType, error) {
	const q = `
SELECT DISTINCT relation_type
FROM corpus.canonical_statements
ORDER BY relation_type
`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, transient(fmt.Errorf("query relation types: %w", err))
	}
	defer rows.Close()

	var out []statement.RelationType
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan relation type: %w", err)
		}
		out = append(out, statement.RelationType(t))
	}
	if err := rows.Err(); err != nil {
		return nil, transient(fmt.Errorf("iterate relation types: %w", err))
	}
	return out, nil
}

func (s *CorpusStore) AppendRecordLinks(ctx context.Context, links []corpus.RecordLink) error {
	if len(links) == 0 {
		return nil
	}

	const q = `
INSERT INTO corpus.raw_unique_links (raw_statement_id, mk_hash)
VALUES ($1, $2)
ON CONFLICT (raw_statement_id) DO NOTHING
`

	for _, link := range links {
		if _, err := s.pool.Exec(ctx, q, link.RecordID, link.Fingerprint); err != nil {
			return transient(fmt.Errorf("append record link %d: %w", link.RecordID, err))
		}
	}
	return nil
}

func (s *CorpusStore) LinkedRecordIDs(ctx context.Context) (map[int64]struct{}, error) {
	const q = `
SELECT raw_statement_id
FROM corpus.raw_unique_links
`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, transient(fmt.Errorf("query linked record ids: %w", err))
	}
	defer rows.Close()

	out := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan linked record id: %w", err)
		}
		out[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, transient(fmt.Errorf("iterate linked record ids: %w", err))
	}
	return out, nil
}

func (s *CorpusStore) AppendRefinementLinks(ctx context.Context, links []corpus.RefinementLink) error {
	if len(links) == 0 {
		return nil
	}

	const q = `
INSERT INTO corpus.refinement_links (supporting_hash, supported_hash, relation_type)
VALUES ($1, $2, $3)
ON CONFLICT (supporting_hash, supported_hash) DO NOTHING
`

	for _, link := range links {
		if _, err := s.pool.Exec(ctx, q, link.Supporting, link.Supported, string(link.Type)); err != nil {
			return transient(fmt.Errorf("append refinement link %d->%d: %w", link.Supporting, link.Supported, err))
		}
	}
	return nil
}

func (s *CorpusStore) RefinementLinksByType(ctx context.Context, t statement.RelationType) ([]corpus.RefinementLink, error) {
	const q = `
SELECT supporting_hash, supported_hash, relation_type
FROM corpus.refinement_links
WHERE relation_type = $1
ORDER BY supporting_hash, supported_hash
`

	rows, err := s.pool.Query(ctx, q, string(t))
	if err != nil {
		return nil, transient(fmt.Errorf("query refinement links by type: %w", err))
	}
	defer rows.Close()

	var out []corpus.RefinementLink
	for rows.Next() {
		var link corpus.RefinementLink
		var relationType string
		if err := rows.Scan(&link.Supporting, &link.Supported, &relationType); err != nil {
			return nil, fmt.Errorf("scan refinement link: %w", err)
		}
		link.Type = statement.RelationType(relationType)
		out = append(out, link)
	}
	if err := rows.Err(); err != nil {
		return nil, transient(fmt.Errorf("iterate refinement links: %w", err))
	}
	return out, nil
}

func (s *CorpusStore) LatestUpdate(ctx context.Context, t statement.RelationType) (*corpus.Update, error) {
	const q = `
SELECT run_type, relation_type, last_record_id, completed_at
FROM corpus.corpus_updates
WHERE relation_type = '' OR ($1 <> '' AND relation_type = $1)
ORDER BY corpus_update_id DESC
LIMIT 1
`

	var u corpus.Update
	var relationType string
	err := s.pool.QueryRow(ctx, q, string(t)).Scan(&u.RunType, &relationType, &u.LastRecordID, &u.CompletedAt)
	if err != nil {
		if errors.Is(err, ErrNoRows) {
			return nil, nil
		}
		return nil, transient(fmt.Errorf("query latest corpus update: %w", err))
	}
	u.Type = statement.RelationType(relationType)
	return &u, nil
}

func (s *CorpusStore) RecordUpdate(ctx context.Context, u corpus.Update) error {
	const q = `
INSERT INTO corpus.corpus_updates (run_type, relation_type, last_record_id, completed_at)
VALUES ($1, $2, $3, $4)
`

	if _, err := s.pool.Exec(ctx, q, u.RunType, string(u.Type), u.LastRecordID, u.CompletedAt.UTC()); err != nil {
		return transient(fmt.Errorf("record corpus update: %w", err))
	}
	return nil
}

// int64Array renders ids as a Postgres array literal for ANY($n::bigint[]).
func int64Array(ids []int64) string {
	var b strings.Builder
	b.WriteByte('{')
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(id, 10))
	}
	b.WriteByte('}')
	return b.String()
}

type canonicalScanner interface {
	Scan(dest ...any) error
}

func scanCanonical(row canonicalScanner) (*statement.Canonical, error) {
	var (
		mkHash   int64
		content  []byte
		evidence []byte
		members  []byte
	)
	if err := row.Scan(&mkHash, &content, &evidence, &members); err != nil {
		return nil, fmt.Errorf("scan canonical statement: %w", err)
	}

	stmt := &statement.Canonical{Fingerprint: mkHash}
	if err := json.Unmarshal(content, &stmt.Content); err != nil {
		return nil, fmt.Errorf("decode canonical content %d: %w", mkHash, err)
	}
	if err := json.Unmarshal(evidence, &stmt.Evidence); err != nil {
		return nil, fmt.Errorf("decode canonical evidence %d: %w", mkHash, err)
	}
	if err := json.Unmarshal(members, &stmt.MemberIDs); err != nil {
		return nil, fmt.Errorf("decode canonical member ids %d: %w", mkHash, err)
	}
	return stmt, nil
}

// transient marks storage failures as retryable unless the context itself was
// cancelled.
func transient(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &corpus.TransientError{Err: err}
}
