package db

import (
	"context"
	"fmt"
	"time"
)

// StatsTypeCount stores per-relation-type corpus counts.
type StatsTypeCount struct {
	RelationType string `json:"relation_type"`
	Canonical    int64  `json:"canonical_statements"`
	Refinements  int64  `json:"refinement_links"`
}

// StatsTotals stores totals across relation types.
type StatsTotals struct {
	RawStatements int64 `json:"raw_statements"`
	Canonical     int64 `json:"canonical_statements"`
	RecordLinks   int64 `json:"record_links"`
	Refinements   int64 `json:"refinement_links"`
}

// Watermark describes the most recent completed corpus run.
type Watermark struct {
	RunType      string    `json:"run_type"`
	RelationType string    `json:"relation_type,omitempty"`
	LastRecordID int64     `json:"last_record_id"`
	CompletedAt  time.Time `json:"completed_at"`
}

// CorpusStats is the read model returned by the status command.
type CorpusStats struct {
	Types     []StatsTypeCount `json:"types"`
	Totals    StatsTotals      `json:"totals"`
	Pending   int64            `json:"pending_raw_statements"`
	Watermark *Watermark       `json:"watermark,omitempty"`
}

// QueryCorpusStats returns per-type and total corpus counts plus the current
// watermark and the number of raw statements it has not yet incorporated.
func (p *Pool) QueryCorpusStats(ctx context.Context) (*CorpusStats, error) {
	stats := &CorpusStats{
		Types: make([]StatsTypeCount, 0, 8),
	}

	const countsQuery = `
WITH canonical_counts AS (
	SELECT cs.relation_type, COUNT(*)::BIGINT AS canonical
	FROM corpus.canonical_statements cs
	GROUP BY cs.relation_type
),
refinement_counts AS (
	SELECT rl.relation_type, COUNT(*)::BIGINT AS refinements
	FROM corpus.refinement_links rl
	GROUP BY rl.relation_type
)
SELECT
	COALESCE(c.relation_type, r.relation_type) AS relation_type,
	COALESCE(c.canonical, 0) AS canonical,
	COALESCE(r.refinements, 0) AS refinements
FROM canonical_counts c
FULL OUTER JOIN refinement_counts r
	ON r.relation_type = c.relation_type
ORDER BY 1
`

	rows, err := p.Query(ctx, countsQuery)
	if err != nil {
		return nil, fmt.Errorf("query corpus type counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row StatsTypeCount
		if err := rows.Scan(&row.RelationType, &row.Canonical, &row.Refinements); err != nil {
			return nil, fmt.Errorf("scan corpus type row: %w", err)
		}
		stats.Types = append(stats.Types, row)
		stats.Totals.Canonical += row.Canonical
		stats.Totals.Refinements += row.Refinements
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate corpus type rows: %w", err)
	}

	const totalsQuery = `
SELECT
	(SELECT COUNT(*) FROM corpus.raw_statements) AS raw_statements,
	(SELECT COUNT(*) FROM corpus.raw_unique_links) AS record_links
`

	if err := p.QueryRow(ctx, totalsQuery).Scan(
		&stats.Totals.RawStatements,
		&stats.Totals.RecordLinks,
	); err != nil {
		return nil, fmt.Errorf("query corpus totals: %w", err)
	}

	const watermarkQuery = `
SELECT run_type, relation_type, last_record_id, completed_at
FROM corpus.corpus_updates
ORDER BY corpus_update_id DESC
LIMIT 1
`

	var wm Watermark
	err = p.QueryRow(ctx, watermarkQuery).Scan(&wm.RunType, &wm.RelationType, &wm.LastRecordID, &wm.CompletedAt)
	switch {
	case err == nil:
		stats.Watermark = &wm
	case IsNoRows(err):
		// corpus never built
	default:
		return nil, fmt.Errorf("query corpus watermark: %w", err)
	}

	sinceID := int64(0)
	if stats.Watermark != nil {
		sinceID = stats.Watermark.LastRecordID
	}

	const pendingQuery = `
SELECT COUNT(*)
FROM corpus.raw_statements
WHERE raw_statement_id > $1
`

	if err := p.QueryRow(ctx, pendingQuery, sinceID).Scan(&stats.Pending); err != nil {
		return nil, fmt.Errorf("query pending raw statements: %w", err)
	}

	return stats, nil
}
