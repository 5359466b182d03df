package alignment

import (
	"context"
	"fmt"

	"github.com/vitisalign/vitisalign-backend/internal/embedding"
	"github.com/vitisalign/vitisalign-backend/internal/logger"
	"github.com/vitisalign/vitisalign-backend/internal/pkg/ctxutil"
	"github.com/vitisalign/vitisalign-backend/internal/referential"
	"github.com/vitisalign/vitisalign-backend/internal/types"
)

const DefaultTopK = 5

// Pipeline composes retrieval and reasoning into the single "align one
// variable" operation. It holds only read-only state built at startup
// and is safe for concurrent use.
type Pipeline struct {
	log      *logger.Logger
	embedder embedding.Embedder
	index    *embedding.Index
	store    *referential.Store
	reasoner *Reasoner

	defaultTopK int
}

func NewPipeline(log *logger.Logger, embedder embedding.Embedder, index *embedding.Index, store *referential.Store, reasoner *Reasoner, defaultTopK int) (*Pipeline, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder required")
	}
	if index == nil {
		return nil, fmt.Errorf("index required")
	}
	if store == nil {
		return nil, fmt.Errorf("referential store required")
	}
	if reasoner == nil {
		return nil, fmt.Errorf("reasoner required")
	}
	if defaultTopK < 1 {
		defaultTopK = DefaultTopK
	}
	return &Pipeline{
		log:         log.With("service", "AlignmentPipeline"),
		embedder:    embedder,
		index:       index,
		store:       store,
		reasoner:    reasoner,
		defaultTopK: defaultTopK,
	}, nil
}

// AlignOne runs the full alignment for one variable: embed, rank against
// the referential index, take the top-k candidates, materialize their
// full concepts and hand them to the reasoner. A failure in any stage
// fails the whole call; no partial results.
func (p *Pipeline) AlignOne(ctx context.Context, variable types.NormalizedVariable, topK int) ([]types.AlignmentResult, error) {
	ctx = ctxutil.Default(ctx)
	if err := variable.Validate(); err != nil {
		return nil, err
	}
	if topK < 1 {
		topK = p.defaultTopK
	}

	query, err := embedding.QueryVector(ctx, p.embedder, variable)
	if err != nil {
		return nil, fmt.Errorf("embed variable: %w", err)
	}

	ranked, err := embedding.Rank(query, p.index)
	if err != nil {
		return nil, fmt.Errorf("rank against referential: %w", err)
	}
	selected := embedding.TopK(ranked, topK)

	ids := make([]string, len(selected))
	for i, c := range selected {
		ids[i] = c.RefID
	}
	candidates, err := p.store.GetAll(ids)
	if err != nil {
		return nil, fmt.Errorf("materialize candidates: %w", err)
	}

	p.log.Debug("Candidates selected",
		"dataset_id", variable.DatasetID,
		"trait_id", variable.TraitID,
		"top_k", topK,
		"candidate_ids", ids,
		"best_similarity", selected[0].SimilarityScore,
	)

	results, err := p.reasoner.Align(ctx, variable, candidates)
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Candidates exposes the retrieval stage on its own: ranked top-k ids
// with raw similarity scores, without invoking the reasoning model.
func (p *Pipeline) Candidates(ctx context.Context, variable types.NormalizedVariable, topK int) ([]types.AlignmentCandidate, error) {
	ctx = ctxutil.Default(ctx)
	if err := variable.Validate(); err != nil {
		return nil, err
	}
	if topK < 1 {
		topK = p.defaultTopK
	}

	query, err := embedding.QueryVector(ctx, p.embedder, variable)
	if err != nil {
		return nil, fmt.Errorf("embed variable: %w", err)
	}
	ranked, err := embedding.Rank(query, p.index)
	if err != nil {
		return nil, fmt.Errorf("rank against referential: %w", err)
	}
	return embedding.TopK(ranked, topK), nil
}
