package corpus

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"statforge/internal/distill"
	"statforge/internal/globaltime"
	"statforge/internal/ontology"
	"statforge/internal/statement"
)

// State is the orchestrator's view of the corpus lifecycle.
type State string

const (
	StateEmpty State = "empty"
	StateBuilt State = "built"
	StateStale State = "stale"
	StateError State = "error"
)

// RecordFeed is the ingestion collaborator: it supplies raw records with
// their provenance and the extractor version priority table. When a scope is
// given, the feed only yields records of that relation type.
type RecordFeed interface {
	// PriorityTable returns the extractor version preference table for
	// this run.
	PriorityTable(ctx context.Context) (distill.PriorityTable, error)

	// Records yields raw records with id greater than sinceID, in id
	// order. sinceID zero means all records.
	Records(ctx context.Context, sinceID int64, scope statement.RelationType) (Source, error)

	// RelinkCandidates returns previously-linked records belonging to
	// content units that were re-extracted after sinceID; they must be
	// re-examined so existing evidence links are not orphaned.
	RelinkCandidates(ctx context.Context, sinceID int64, scope statement.RelationType) ([]*statement.RawRecord, error)
}

// RunOptions parameterizes one orchestrated run.
type RunOptions struct {
	// Scope restricts the run to a single relation type; empty means all.
	Scope statement.RelationType
	// BatchSize bounds per-batch memory; zero uses DefaultBatchSize.
	BatchSize int
}

// RunReport summarizes one completed run.
type RunReport struct {
	Distilled    int
	Superseded   int
	Malformed    int
	Build        BuildResult
	Linkage      LinkResult
	LastRecordID int64
}

// Orchestrator sequences distillation, corpus building and refinement
// linking for full and incremental runs, tracking the corpus watermark. The
// watermark only advances on success, so a failed run can be retried from
// the last good state; partial batch writes are repaired by the idempotence
// of supplement runs, not rolled back.
type Orchestrator struct {
	store   Store
	feed    RecordFeed
	builder *Builder
	linker  *Linker
	logger  zerolog.Logger

	mu    sync.Mutex
	state State
}

func NewOrchestrator(store Store, feed RecordFeed, comparator ontology.Comparator, logger zerolog.Logger, retry RetryPolicy) *Orchestrator {
	return &Orchestrator{
		store:   store,
		feed:    feed,
		builder: NewBuilder(store, logger, retry),
		linker:  NewLinker(store, comparator, logger, retry),
		logger:  logger,
		state:   "",
	}
}

// State resolves the current lifecycle state, consulting the watermark on
// first use.
func (o *Orchestrator) State(ctx context.Context) (State, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.resolveStateLocked(ctx)
}

func (o *Orchestrator) resolveStateLocked(ctx context.Context) (State, error) {
	if o.state != "" {
		return o.state, nil
	}
	update, err := o.store.LatestUpdate(ctx, "")
	if err != nil {
		return "", fmt.Errorf("resolve corpus state: %w", err)
	}
	if update == nil {
		o.state = StateEmpty
	} else {
		o.state = StateBuilt
	}
	return o.state, nil
}

// MarkStale flags that new raw ingestion happened outside this process.
func (o *Orchestrator) MarkStale() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateBuilt {
		o.state = StateStale
	}
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// CreateCorpus runs a full build: distill the entire provenance index, build
// the corpus, link refinements, then record the watermark.
func (o *Orchestrator) CreateCorpus(ctx context.Context, opts RunOptions) (RunReport, error) {
	state, err := o.State(ctx)
	if err != nil {
		return RunReport{}, err
	}
	if state != StateEmpty {
		return RunReport{}, fmt.Errorf("%w: state is %s", ErrCorpusExists, state)
	}

	report, err := o.runOnce(ctx, opts, 0, RunTypeCreate)
	if err != nil {
		o.setState(StateError)
		return report, err
	}
	o.setState(StateBuilt)
	return report, nil
}

// SupplementCorpus folds records newer than the watermark into the corpus
// and recomputes refinement links for the statements they touched.
func (o *Orchestrator) SupplementCorpus(ctx context.Context, opts RunOptions) (RunReport, error) {
	state, err := o.State(ctx)
	if err != nil {
		return RunReport{}, err
	}
	if state == StateEmpty {
		return RunReport{}, ErrNoCorpus
	}

	watermark, err := o.store.LatestUpdate(ctx, opts.Scope)
	if err != nil {
		return RunReport{}, fmt.Errorf("read watermark: %w", err)
	}
	if watermark == nil {
		return RunReport{}, ErrNoCorpus
	}

	report, err := o.runOnce(ctx, opts, watermark.LastRecordID, RunTypeSupplement)
	if err != nil {
		o.setState(StateError)
		return report, err
	}
	o.setState(StateBuilt)
	return report, nil
}

func (o *Orchestrator) runOnce(ctx context.Context, opts RunOptions, sinceID int64, runType string) (RunReport, error) {
	report := RunReport{LastRecordID: sinceID}

	priority, err := o.feed.PriorityTable(ctx)
	if err != nil {
		return report, fmt.Errorf("load priority table: %w", err)
	}
	linked, err := o.store.LinkedRecordIDs(ctx)
	if err != nil {
		return report, fmt.Errorf("load linked record ids: %w", err)
	}

	index := distill.NewIndex()
	src, err := o.feed.Records(ctx, sinceID, opts.Scope)
	if err != nil {
		return report, fmt.Errorf("open record feed: %w", err)
	}
	if err := o.loadIndex(ctx, src, opts.BatchSize, index, &report); err != nil {
		return report, err
	}

	if runType == RunTypeSupplement {
		relink, err := o.feed.RelinkCandidates(ctx, sinceID, opts.Scope)
		if err != nil {
			return report, fmt.Errorf("load relink candidates: %w", err)
		}
		for _, rec := range relink {
			if err := index.Add(rec); err != nil {
				o.logger.Warn().Err(err).Msg("skipping malformed relink candidate")
				report.Malformed++
			}
		}
	}

	out := distill.Distill(index, distill.Options{
		Priority:    priority,
		LinkedIDs:   linked,
		FullRecords: true,
	})
	report.Distilled = len(out.IDs)
	report.Superseded = len(out.SupersededIDs)

	var build BuildResult
	if runType == RunTypeCreate {
		build, err = o.builder.CreateCorpus(ctx, NewSliceSource(out.Records), opts.BatchSize)
	} else {
		build, err = o.builder.SupplementCorpus(ctx, NewSliceSource(out.Records), opts.BatchSize)
	}
	report.Build = build
	if err != nil {
		return report, fmt.Errorf("build corpus: %w", err)
	}

	var newFPs map[int64]struct{}
	if runType == RunTypeSupplement {
		newFPs = build.Touched
	}
	linkage, err := o.linker.Link(ctx, opts.Scope, newFPs)
	report.Linkage = linkage
	if err != nil {
		return report, fmt.Errorf("link refinements: %w", err)
	}

	update := Update{
		RunType:      runType,
		Type:         opts.Scope,
		LastRecordID: report.LastRecordID,
		CompletedAt:  globaltime.UTC(),
	}
	if err := o.store.RecordUpdate(ctx, update); err != nil {
		return report, fmt.Errorf("record corpus update: %w", err)
	}

	o.logger.Info().
		Str("run_type", runType).
		Str("scope", string(opts.Scope)).
		Int("distilled", report.Distilled).
		Int("superseded", report.Superseded).
		Int("malformed", report.Malformed).
		Int("statements_created", build.Created).
		Int("statements_updated", build.Updated).
		Int("refinement_links", linkage.Links).
		Int64("watermark", report.LastRecordID).
		Msg("corpus run completed")
	return report, nil
}

func (o *Orchestrator) loadIndex(ctx context.Context, src Source, batchSize int, index *distill.Index, report *RunReport) error {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	for {
		batch, err := src.NextBatch(ctx, batchSize)
		if err != nil {
			return fmt.Errorf("read raw records: %w", err)
		}
		if len(batch) == 0 {
			return nil
		}
		for _, rec := range batch {
			if err := index.Add(rec); err != nil {
				// Malformed records are skipped, not fatal.
				o.logger.Warn().Err(err).Msg("skipping malformed raw record")
				report.Malformed++
				continue
			}
			if rec.ID > report.LastRecordID {
				report.LastRecordID = rec.ID
			}
		}
		if len(batch) < batchSize {
			return nil
		}
	}
}
