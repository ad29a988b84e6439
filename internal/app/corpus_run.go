package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"statforge/internal/corpus"
	"statforge/internal/distill"
	"statforge/internal/ontology"
	"statforge/internal/statement"
)

// ontologyFile is the on-disk form of the entity refinement index: a flat
// list of is-a edges between grounding keys.
type ontologyFile struct {
	IsA []ontologyEdge `json:"is_a"`
}

type ontologyEdge struct {
	Child  string `json:"child"`
	Parent string `json:"parent"`
}

// loadComparator builds the memoized ontology comparator from an optional
// edge file. Without a file only identical groundings and wildcard slots
// relate.
func loadComparator(path string) (ontology.Comparator, error) {
	index := ontology.NewIndex()

	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read ontology file: %w", err)
		}
		var file ontologyFile
		if err := json.Unmarshal(raw, &file); err != nil {
			return nil, fmt.Errorf("decode ontology file: %w", err)
		}
		for i, edge := range file.IsA {
			child := strings.TrimSpace(edge.Child)
			parent := strings.TrimSpace(edge.Parent)
			if child == "" || parent == "" {
				return nil, fmt.Errorf("ontology edge %d has empty endpoint", i)
			}
			index.AddIsA(child, parent)
		}
	}

	return ontology.NewCachedComparator(index), nil
}

// dryRunFeed serves records parsed from a payload file. The priority table
// is derived from the versions present, ordered lexically ascending, so the
// highest version of each extractor wins.
type dryRunFeed struct {
	records []*statement.RawRecord
}

func (f *dryRunFeed) PriorityTable(_ context.Context) (distill.PriorityTable, error) {
	versions := make(map[string]map[string]struct{})
	for _, rec := range f.records {
		ext := rec.Provenance.Extractor
		if versions[ext] == nil {
			versions[ext] = make(map[string]struct{})
		}
		versions[ext][rec.Provenance.ExtractorVersion] = struct{}{}
	}

	table := make(distill.PriorityTable, len(versions))
	for ext, vs := range versions {
		ordered := make([]string, 0, len(vs))
		for v := range vs {
			ordered = append(ordered, v)
		}
		sort.Strings(ordered)
		table[ext] = ordered
	}
	return table, nil
}

func (f *dryRunFeed) Records(_ context.Context, sinceID int64, scope statement.RelationType) (corpus.Source, error) {
	var filtered []*statement.RawRecord
	for _, rec := range f.records {
		if rec.ID <= sinceID {
			continue
		}
		if scope != "" && rec.Content.Type != scope {
			continue
		}
		filtered = append(filtered, rec)
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].ID < filtered[j].ID })
	return corpus.NewSliceSource(filtered), nil
}

func (f *dryRunFeed) RelinkCandidates(_ context.Context, _ int64, _ statement.RelationType) ([]*statement.RawRecord, error) {
	return nil, nil
}

func printRunReport(report corpus.RunReport, format string) error {
	if format == outputFormatJSON {
		return printJSON(map[string]any{
			"distilled":      report.Distilled,
			"superseded":     report.Superseded,
			"malformed":      report.Malformed,
			"batches":        report.Build.Batches,
			"records_merged": report.Build.Records,
			"skipped":        report.Build.Skipped,
			"created":        report.Build.Created,
			"updated":        report.Build.Updated,
			"record_links":   report.Build.Links,
			"partitions":     report.Linkage.Partitions,
			"pairs_compared": report.Linkage.Pairs,
			"refinements":    report.Linkage.Links,
			"last_record_id": report.LastRecordID,
		})
	}

	rows := [][]string{
		{"distilled", fmt.Sprintf("%d", report.Distilled)},
		{"superseded", fmt.Sprintf("%d", report.Superseded)},
		{"malformed", fmt.Sprintf("%d", report.Malformed)},
		{"batches", fmt.Sprintf("%d", report.Build.Batches)},
		{"records_merged", fmt.Sprintf("%d", report.Build.Records)},
		{"skipped", fmt.Sprintf("%d", report.Build.Skipped)},
		{"created", fmt.Sprintf("%d", report.Build.Created)},
		{"updated", fmt.Sprintf("%d", report.Build.Updated)},
		{"record_links", fmt.Sprintf("%d", report.Build.Links)},
		{"partitions", fmt.Sprintf("%d", report.Linkage.Partitions)},
		{"pairs_compared", fmt.Sprintf("%d", report.Linkage.Pairs)},
		{"refinements", fmt.Sprintf("%d", report.Linkage.Links)},
		{"last_record_id", fmt.Sprintf("%d", report.LastRecordID)},
	}
	return writeTable([]string{"metric", "value"}, rows)
}
