package distill

import (
	"sort"

	"statforge/internal/statement"
)

// PriorityTable maps an extractor name to its versions ordered from least to
// most preferred: the highest index is the most recent, most capable version.
// Passed in per call so concurrent runs with different tables cannot
// interfere.
type PriorityTable map[string][]string

// Rank returns the preference rank of a version, or -1 when the extractor or
// version is unknown. Unknown versions lose to every listed one.
func (t PriorityTable) Rank(extractor, version string) int {
	for i, v := range t[extractor] {
		if v == version {
			return i
		}
	}
	return -1
}

// Options configures one distillation pass.
type Options struct {
	// Priority is the extractor version preference table.
	Priority PriorityTable

	// LinkedIDs holds ids of records that already participate in a
	// raw-to-canonical link from a previous corpus run. Such records are
	// always retained, whatever version produced them, because dropping
	// them would orphan the existing link.
	LinkedIDs map[int64]struct{}

	// FullRecords selects whether Outcome carries whole records or only
	// their ids, trading memory for downstream convenience.
	FullRecords bool
}

// Outcome is the result of distilling one provenance index.
type Outcome struct {
	// Records holds the selected records when Options.FullRecords is set.
	Records []*statement.RawRecord
	// IDs holds the selected record ids; always populated.
	IDs map[int64]struct{}
	// SupersededIDs holds ids of records displaced by a better extractor
	// version or a better run, kept for audit and statistics.
	SupersededIDs map[int64]struct{}
}

// Distill walks every group of the index, keeps the records of the most
// preferred extractor version present, and reports everything else as
// superseded. Within the best version, one run is chosen as the best run
// (the run with the most already-linked records, ties broken by lowest run
// id); records of other runs are superseded. Already-linked records are
// exempt from all of this: they are retained unconditionally, as a
// set-membership override applied after normal selection.
func Distill(ix *Index, opts Options) Outcome {
	out := Outcome{
		IDs:           make(map[int64]struct{}),
		SupersededIDs: make(map[int64]struct{}),
	}

	for _, key := range ix.sortedKeys() {
		versions := ix.groups[key]
		best := bestVersion(key.Extractor, versions, opts.Priority)

		for version, runs := range versions {
			if version == best {
				distillBestVersion(runs, opts, &out)
				continue
			}
			for _, fps := range runs {
				for _, recs := range fps {
					for _, rec := range recs {
						classify(rec, opts, &out, false)
					}
				}
			}
		}
	}
	return out
}

// bestVersion picks the present version with the highest priority rank.
// Ties among unknown versions fall back to lexical order so the choice is
// stable run to run.
func bestVersion(extractor string, versions versionMap, table PriorityTable) string {
	best := ""
	bestRank := -2
	for version := range versions {
		rank := table.Rank(extractor, version)
		if rank > bestRank || (rank == bestRank && version > best) {
			best = version
			bestRank = rank
		}
	}
	return best
}

func distillBestVersion(runs runMap, opts Options, out *Outcome) {
	runIDs := make([]int64, 0, len(runs))
	for runID := range runs {
		runIDs = append(runIDs, runID)
	}
	sort.Slice(runIDs, func(i, j int) bool { return runIDs[i] < runIDs[j] })

	best := bestRun(runIDs, runs, opts.LinkedIDs)
	for _, runID := range runIDs {
		selected := runID == best
		for _, recs := range runs[runID] {
			for _, rec := range recs {
				classify(rec, opts, out, selected)
			}
		}
	}
}

// bestRun prefers the run holding the most already-linked records, then the
// lowest run id. runIDs must be sorted ascending.
func bestRun(runIDs []int64, runs runMap, linked map[int64]struct{}) int64 {
	best := runIDs[0]
	bestLinked := -1
	for _, runID := range runIDs {
		count := 0
		for _, recs := range runs[runID] {
			for _, rec := range recs {
				if _, ok := linked[rec.ID]; ok {
					count++
				}
			}
		}
		if count > bestLinked {
			best = runID
			bestLinked = count
		}
	}
	return best
}

func classify(rec *statement.RawRecord, opts Options, out *Outcome, selected bool) {
	if !selected {
		if _, linked := opts.LinkedIDs[rec.ID]; !linked {
			out.SupersededIDs[rec.ID] = struct{}{}
			return
		}
	}
	out.IDs[rec.ID] = struct{}{}
	if opts.FullRecords {
		out.Records = append(out.Records, rec)
	}
}
