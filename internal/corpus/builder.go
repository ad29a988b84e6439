package corpus

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"statforge/internal/statement"
)

// DefaultBatchSize bounds peak memory for the largest expected
// single-relation-type partition.
const DefaultBatchSize = 10000

// Source yields distilled raw records in stable order. A batch shorter than
// the requested size signals exhaustion.
type Source interface {
	NextBatch(ctx context.Context, n int) ([]*statement.RawRecord, error)
}

// SliceSource adapts an in-memory record slice to Source.
type SliceSource struct {
	records []*statement.RawRecord
	offset  int
}

func NewSliceSource(records []*statement.RawRecord) *SliceSource {
	return &SliceSource{records: records}
}

func (s *SliceSource) NextBatch(_ context.Context, n int) ([]*statement.RawRecord, error) {
	if s.offset >= len(s.records) {
		return nil, nil
	}
	end := s.offset + n
	if end > len(s.records) {
		end = len(s.records)
	}
	batch := s.records[s.offset:end]
	s.offset = end
	return batch, nil
}

// Builder merges distilled raw records into canonical statements, batch by
// batch. Within a batch, records are grouped by shallow fingerprint before
// any write, so each fingerprint has exactly one writer; a fingerprint that
// reappears in a later batch is folded by re-reading its existing canonical
// statement.
type Builder struct {
	store  Store
	logger zerolog.Logger
	retry  RetryPolicy

	// fingerprint computes the shallow grouping key; tests substitute it
	// to force collisions between unrelated statements.
	fingerprint func(statement.Content) int64
}

func NewBuilder(store Store, logger zerolog.Logger, retry RetryPolicy) *Builder {
	return &Builder{store: store, logger: logger, retry: retry, fingerprint: statement.ShallowFingerprint}
}

// BuildResult summarizes one builder run.
type BuildResult struct {
	Batches int
	Records int
	Skipped int
	Created int
	Updated int
	Links   int

	// Touched holds every fingerprint written during the run; the linker
	// uses it to scope incremental recomputation.
	Touched map[int64]struct{}
}

// CreateCorpus runs a full build over the record source. Re-running over the
// same immutable input produces the same canonical statements and links.
func (b *Builder) CreateCorpus(ctx context.Context, src Source, batchSize int) (BuildResult, error) {
	return b.run(ctx, src, batchSize)
}

// SupplementCorpus folds new records into an existing corpus. Applied after
// CreateCorpus, the result equals a single full build over the combined
// record set.
func (b *Builder) SupplementCorpus(ctx context.Context, src Source, batchSize int) (BuildResult, error) {
	return b.run(ctx, src, batchSize)
}

func (b *Builder) run(ctx context.Context, src Source, batchSize int) (BuildResult, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	res := BuildResult{Touched: make(map[int64]struct{})}
	for {
		batch, err := src.NextBatch(ctx, batchSize)
		if err != nil {
			return res, fmt.Errorf("read record batch: %w", err)
		}
		if len(batch) == 0 {
			return res, nil
		}
		if err := b.processBatch(ctx, batch, &res); err != nil {
			return res, err
		}
		res.Batches++
		if len(batch) < batchSize {
			return res, nil
		}
	}
}

// pendingGroup accumulates one fingerprint's contribution within a batch.
type pendingGroup struct {
	content      statement.Content
	evidence     []statement.Evidence
	evidenceSeen map[int64]struct{}
	members      []int64
	memberSeen   map[int64]struct{}
}

func (b *Builder) processBatch(ctx context.Context, batch []*statement.RawRecord, res *BuildResult) error {
	groups := make(map[int64]*pendingGroup)
	order := make([]int64, 0, len(batch))
	var links []RecordLink

	for _, rec := range batch {
		res.Records++
		fp := b.fingerprint(rec.Content)

		g, ok := groups[fp]
		if !ok {
			g = &pendingGroup{
				content:      rec.Content,
				evidenceSeen: make(map[int64]struct{}),
				memberSeen:   make(map[int64]struct{}),
			}
			groups[fp] = g
			order = append(order, fp)
		} else if g.content.Type != rec.Content.Type || g.content.Arity() != rec.Content.Arity() {
			// Same shallow fingerprint, irreconcilable shape. Never
			// silently merged.
			b.logger.Warn().
				Int64("record_id", rec.ID).
				Int64("fingerprint", fp).
				Str("content", rec.Content.String()).
				Msg("fingerprint collision with mismatched shape, skipping record")
			res.Skipped++
			continue
		}

		evFP := statement.EvidenceFingerprint(rec.Evidence)
		if _, dup := g.evidenceSeen[evFP]; !dup {
			g.evidenceSeen[evFP] = struct{}{}
			g.evidence = append(g.evidence, rec.Evidence)
		}
		if _, dup := g.memberSeen[rec.ID]; !dup {
			g.memberSeen[rec.ID] = struct{}{}
			g.members = append(g.members, rec.ID)
		}
		links = append(links, RecordLink{RecordID: rec.ID, Fingerprint: fp})
	}

	var existing map[int64]*statement.Canonical
	err := b.retry.do(ctx, b.logger, "read canonical statements", func() error {
		var err error
		existing, err = b.store.CanonicalByFingerprint(ctx, order)
		return err
	})
	if err != nil {
		return fmt.Errorf("read canonical statements: %w", err)
	}

	upserts := make([]*statement.Canonical, 0, len(order))
	for _, fp := range order {
		g := groups[fp]
		if prior, ok := existing[fp]; ok {
			merged := mergeInto(prior, g)
			upserts = append(upserts, merged)
			res.Updated++
		} else {
			members := append([]int64(nil), g.members...)
			sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
			upserts = append(upserts, &statement.Canonical{
				Fingerprint: fp,
				Content:     g.content,
				Evidence:    g.evidence,
				MemberIDs:   members,
			})
			res.Created++
		}
		res.Touched[fp] = struct{}{}
	}

	err = b.retry.do(ctx, b.logger, "upsert canonical statements", func() error {
		return b.store.UpsertCanonical(ctx, upserts)
	})
	if err != nil {
		return fmt.Errorf("upsert canonical statements: %w", err)
	}

	err = b.retry.do(ctx, b.logger, "append record links", func() error {
		return b.store.AppendRecordLinks(ctx, links)
	})
	if err != nil {
		return fmt.Errorf("append record links: %w", err)
	}
	res.Links += len(links)
	return nil
}

// mergeInto folds a batch group into an existing canonical statement,
// keeping evidence and member sets free of duplicates.
func mergeInto(prior *statement.Canonical, g *pendingGroup) *statement.Canonical {
	merged := &statement.Canonical{
		Fingerprint: prior.Fingerprint,
		Content:     prior.Content,
		Evidence:    append([]statement.Evidence(nil), prior.Evidence...),
		MemberIDs:   append([]int64(nil), prior.MemberIDs...),
	}

	seenEv := make(map[int64]struct{}, len(merged.Evidence))
	for _, ev := range merged.Evidence {
		seenEv[statement.EvidenceFingerprint(ev)] = struct{}{}
	}
	for _, ev := range g.evidence {
		evFP := statement.EvidenceFingerprint(ev)
		if _, dup := seenEv[evFP]; dup {
			continue
		}
		seenEv[evFP] = struct{}{}
		merged.Evidence = append(merged.Evidence, ev)
	}

	seenMembers := make(map[int64]struct{}, len(merged.MemberIDs))
	for _, id := range merged.MemberIDs {
		seenMembers[id] = struct{}{}
	}
	for _, id := range g.members {
		if _, dup := seenMembers[id]; dup {
			continue
		}
		seenMembers[id] = struct{}{}
		merged.MemberIDs = append(merged.MemberIDs, id)
	}
	sort.Slice(merged.MemberIDs, func(i, j int) bool { return merged.MemberIDs[i] < merged.MemberIDs[j] })
	return merged
}
