package db

import (
	"context"
	"encoding/json"
	"fmt"

	"statforge/internal/corpus"
	"statforge/internal/distill"
	"statforge/internal/statement"
)

// RecordFeed implements corpus.RecordFeed over corpus.raw_statements and
// corpus.extractor_versions.
type RecordFeed struct {
	pool *Pool
}

func NewRecordFeed(pool *Pool) *RecordFeed {
	return &RecordFeed{pool: pool}
}

// PriorityTable loads the extractor version preference table. Versions are
// ordered by ascending rank, so the last entry per extractor is the most
// preferred.
func (f *RecordFeed) PriorityTable(ctx context.Context) (distill.PriorityTable, error) {
	const q = `
SELECT extractor, version
FROM corpus.extractor_versions
ORDER BY extractor, rank
`

	rows, err := f.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query extractor versions: %w", err)
	}
	defer rows.Close()

	table := make(distill.PriorityTable)
	for rows.Next() {
		var extractor, version string
		if err := rows.Scan(&extractor, &version); err != nil {
			return nil, fmt.Errorf("scan extractor version: %w", err)
		}
		table[extractor] = append(table[extractor], version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate extractor versions: %w", err)
	}
	if len(table) == 0 {
		return nil, fmt.Errorf("extractor version table is empty; seed corpus.extractor_versions first")
	}
	return table, nil
}

// Records returns a paging source over raw statements with id greater than
// sinceID, in id order.
func (f *RecordFeed) Records(_ context.Context, sinceID int64, scope statement.RelationType) (corpus.Source, error) {
	return &recordPager{pool: f.pool, afterID: sinceID, scope: scope}, nil
}

// RelinkCandidates returns already-linked records whose extraction group
// gained new records after sinceID. Their evidence links must survive the
// re-distillation of those groups.
func (f *RecordFeed) RelinkCandidates(ctx context.Context, sinceID int64, scope statement.RelationType) ([]*statement.RawRecord, error) {
	const q = `
SELECT rs.raw_statement_id, rs.input_unit_id, rs.source_kind, rs.content_unit_id,
       rs.extractor, rs.extractor_version, rs.run_id, rs.content, rs.evidence
FROM corpus.raw_statements rs
JOIN corpus.raw_unique_links l
	ON l.raw_statement_id = rs.raw_statement_id
WHERE rs.raw_statement_id <= $1
  AND ($2 = '' OR rs.relation_type = $2)
  AND EXISTS (
	SELECT 1
	FROM corpus.raw_statements n
	WHERE n.input_unit_id = rs.input_unit_id
	  AND n.source_kind = rs.source_kind
	  AND n.content_unit_id = rs.content_unit_id
	  AND n.extractor = rs.extractor
	  AND n.raw_statement_id > $1
  )
ORDER BY rs.raw_statement_id
`

	rows, err := f.pool.Query(ctx, q, sinceID, string(scope))
	if err != nil {
		return nil, fmt.Errorf("query relink candidates: %w", err)
	}
	defer rows.Close()

	records, err := scanRawRecords(rows)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// recordPager pages corpus.raw_statements by id. Each batch query restarts
// from the last seen id, so a long build never holds a cursor open.
type recordPager struct {
	pool    *Pool
	afterID int64
	scope   statement.RelationType
}

func (p *recordPager) NextBatch(ctx context.Context, n int) ([]*statement.RawRecord, error) {
	if n <= 0 {
		n = corpus.DefaultBatchSize
	}

	const q = `
SELECT raw_statement_id, input_unit_id, source_kind, content_unit_id,
       extractor, extractor_version, run_id, content, evidence
FROM corpus.raw_statements
WHERE raw_statement_id > $1
  AND ($2 = '' OR relation_type = $2)
ORDER BY raw_statement_id
LIMIT $3
`

	rows, err := p.pool.Query(ctx, q, p.afterID, string(p.scope), n)
	if err != nil {
		return nil, fmt.Errorf("query raw statement batch: %w", err)
	}
	defer rows.Close()

	records, err := scanRawRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) > 0 {
		p.afterID = records[len(records)-1].ID
	}
	return records, nil
}

func scanRawRecords(rows *Rows) ([]*statement.RawRecord, error) {
	var out []*statement.RawRecord
	for rows.Next() {
		var (
			rec      statement.RawRecord
			content  []byte
			evidence []byte
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.Provenance.InputUnitID,
			&rec.Provenance.SourceKind,
			&rec.Provenance.ContentUnitID,
			&rec.Provenance.Extractor,
			&rec.Provenance.ExtractorVersion,
			&rec.Provenance.RunID,
			&content,
			&evidence,
		); err != nil {
			return nil, fmt.Errorf("scan raw statement: %w", err)
		}
		if err := json.Unmarshal(content, &rec.Content); err != nil {
			return nil, fmt.Errorf("decode raw statement content %d: %w", rec.ID, err)
		}
		if err := json.Unmarshal(evidence, &rec.Evidence); err != nil {
			return nil, fmt.Errorf("decode raw statement evidence %d: %w", rec.ID, err)
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate raw statements: %w", err)
	}
	return out, nil
}
