package corpus

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"statforge/internal/ontology"
	"statforge/internal/statement"
)

// defaultLinkerConcurrency caps how many relation-type partitions are linked
// at once. Partitions touch disjoint output keys, so they can run in
// parallel.
const defaultLinkerConcurrency = 4

// Linker computes the directed refinement graph over canonical statements.
// Refinement only ever holds within one relation-type partition: a statement
// can only support another of the same type.
type Linker struct {
	store       Store
	comparator  ontology.Comparator
	logger      zerolog.Logger
	retry       RetryPolicy
	concurrency int
}

func NewLinker(store Store, comparator ontology.Comparator, logger zerolog.Logger, retry RetryPolicy) *Linker {
	return &Linker{
		store:       store,
		comparator:  comparator,
		logger:      logger,
		retry:       retry,
		concurrency: defaultLinkerConcurrency,
	}
}

// LinkResult summarizes one linking run.
type LinkResult struct {
	Partitions int
	Pairs      int
	Links      int
}

// Link computes refinement links for every partition, or for a single one
// when scope is non-empty. When newFPs is non-nil, only pairs with at least
// one statement in newFPs are compared; links among previously processed
// statements are not recomputed.
func (l *Linker) Link(ctx context.Context, scope statement.RelationType, newFPs map[int64]struct{}) (LinkResult, error) {
	types := []statement.RelationType{scope}
	if scope == "" {
		var err error
		types, err = l.store.RelationTypes(ctx)
		if err != nil {
			return LinkResult{}, fmt.Errorf("list relation types: %w", err)
		}
	}

	var (
		mu    sync.Mutex
		total LinkResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for _, t := range types {
		t := t
		g.Go(func() error {
			res, err := l.linkPartition(gctx, t, newFPs)
			if err != nil {
				return err
			}
			mu.Lock()
			total.Partitions++
			total.Pairs += res.Pairs
			total.Links += res.Links
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return total, err
	}
	return total, nil
}

func (l *Linker) linkPartition(ctx context.Context, t statement.RelationType, newFPs map[int64]struct{}) (LinkResult, error) {
	stmts, err := l.store.CanonicalByType(ctx, t)
	if err != nil {
		return LinkResult{}, fmt.Errorf("load partition %s: %w", t, err)
	}
	existing, err := l.store.RefinementLinksByType(ctx, t)
	if err != nil {
		return LinkResult{}, fmt.Errorf("load existing links for %s: %w", t, err)
	}

	existingSet := make(map[RefinementLink]struct{}, len(existing))
	for _, link := range existing {
		existingSet[RefinementLink{Supporting: link.Supporting, Supported: link.Supported, Type: t}] = struct{}{}
	}

	isNew := func(fp int64) bool {
		if newFPs == nil {
			return true
		}
		_, ok := newFPs[fp]
		return ok
	}

	res := LinkResult{}
	var fresh []RefinementLink
	for i := 0; i < len(stmts); i++ {
		for j := i + 1; j < len(stmts); j++ {
			a, b := stmts[i], stmts[j]
			if a.Fingerprint == b.Fingerprint {
				continue
			}
			if !isNew(a.Fingerprint) && !isNew(b.Fingerprint) {
				continue
			}
			res.Pairs++

			link, err := l.relate(a, b, t)
			if err != nil {
				return res, err
			}
			if link == nil {
				continue
			}
			reversed := RefinementLink{Supporting: link.Supported, Supported: link.Supporting, Type: t}
			if _, clash := existingSet[reversed]; clash {
				return res, fmt.Errorf("%w: %d and %d support each other in partition %s",
					ErrOntologyViolation, link.Supporting, link.Supported, t)
			}
			if _, dup := existingSet[*link]; dup {
				continue
			}
			existingSet[*link] = struct{}{}
			fresh = append(fresh, *link)
		}
	}

	if err := assertAcyclic(existingSet, t); err != nil {
		return res, err
	}

	err = l.retry.do(ctx, l.logger, "append refinement links", func() error {
		return l.store.AppendRefinementLinks(ctx, fresh)
	})
	if err != nil {
		return res, fmt.Errorf("append refinement links for %s: %w", t, err)
	}
	res.Links = len(fresh)

	l.logger.Debug().
		Str("relation_type", string(t)).
		Int("statements", len(stmts)).
		Int("pairs", res.Pairs).
		Int("links", res.Links).
		Msg("partition linked")
	return res, nil
}

// relate compares two canonical statements on content alone and returns the
// refinement edge between them, if any. The more specific statement supports
// the more general one.
func (l *Linker) relate(a, b *statement.Canonical, t statement.RelationType) (*RefinementLink, error) {
	switch l.comparator.Compare(a.Content, b.Content) {
	case ontology.AGeneralizesB:
		return &RefinementLink{Supporting: b.Fingerprint, Supported: a.Fingerprint, Type: t}, nil
	case ontology.BGeneralizesA:
		return &RefinementLink{Supporting: a.Fingerprint, Supported: b.Fingerprint, Type: t}, nil
	case ontology.Equal:
		// Distinct fingerprints with equal content: the comparator
		// disagrees with the fingerprinting contract.
		return nil, fmt.Errorf("%w: comparator reports distinct statements %d and %d as equal",
			ErrOntologyViolation, a.Fingerprint, b.Fingerprint)
	default:
		return nil, nil
	}
}

// assertAcyclic rejects any directed cycle in a partition's refinement graph.
// Generalization is a strict partial order; a cycle can only come from an
// inconsistent comparator.
func assertAcyclic(links map[RefinementLink]struct{}, t statement.RelationType) error {
	succ := make(map[int64][]int64)
	for link := range links {
		if link.Supporting == link.Supported {
			return fmt.Errorf("%w: self-support on %d in partition %s",
				ErrOntologyViolation, link.Supporting, t)
		}
		succ[link.Supporting] = append(succ[link.Supporting], link.Supported)
	}

	const (
		visiting = 1
		done     = 2
	)
	state := make(map[int64]int, len(succ))
	var visit func(fp int64) bool
	visit = func(fp int64) bool {
		state[fp] = visiting
		for _, next := range succ[fp] {
			switch state[next] {
			case visiting:
				return false
			case done:
				continue
			default:
				if !visit(next) {
					return false
				}
			}
		}
		state[fp] = done
		return true
	}
	for fp := range succ {
		if state[fp] == 0 && !visit(fp) {
			return fmt.Errorf("%w: refinement cycle detected in partition %s", ErrOntologyViolation, t)
		}
	}
	return nil
}
