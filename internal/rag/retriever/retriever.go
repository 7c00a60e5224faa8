package retriever

import (
	"context"
	"errors"
	"fmt"

	"docrag/internal/index"
	"docrag/internal/llm"
	"docrag/internal/models"
)

// ErrInvalidParams marks out-of-range retrieval parameters.
var ErrInvalidParams = errors.New("retriever: invalid parameters")

// Params controls one retrieval pass. Threshold, when set, drops results
// scoring strictly below it; filtering happens after top-k truncation so
// retrieval cost stays bounded by TopK.
type Params struct {
	TopK      int
	Threshold *float64
}

func (p Params) validate() error {
	if p.TopK < 1 {
		return fmt.Errorf("%w: topK must be >= 1, got %d", ErrInvalidParams, p.TopK)
	}
	if p.Threshold != nil && (*p.Threshold < -1 || *p.Threshold > 1) {
		return fmt.Errorf("%w: threshold must be in [-1,1], got %v", ErrInvalidParams, *p.Threshold)
	}
	return nil
}

// Retriever embeds a question and searches the active index snapshot.
type Retriever struct {
	emb llm.Embedder
	idx *index.Manager
}

func New(emb llm.Embedder, idx *index.Manager) *Retriever {
	return &Retriever{emb: emb, idx: idx}
}

// Retrieve returns the ranked chunks for question. An empty or never-built
// index yields an empty result, not an error; so does a threshold that
// filters everything out.
func (r *Retriever) Retrieve(ctx context.Context, question string, p Params) ([]models.RetrievedChunk, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	ix := r.idx.Active()
	if ix.Len() == 0 {
		return nil, nil
	}
	vecs, err := r.emb.Embeddings(ctx, []string{question})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%w: %d vectors for one query", llm.ErrMalformedResponse, len(vecs))
	}
	top, err := ix.Search(vecs[0], p.TopK)
	if err != nil {
		return nil, err
	}
	return FilterThreshold(top, p.Threshold), nil
}

// FilterThreshold drops results scoring strictly below threshold, keeping
// the incoming order. The output is always a subsequence of the input.
func FilterThreshold(results []models.RetrievedChunk, threshold *float64) []models.RetrievedChunk {
	if threshold == nil {
		return results
	}
	out := make([]models.RetrievedChunk, 0, len(results))
	for _, r := range results {
		if r.Score >= *threshold {
			out = append(out, r)
		}
	}
	return out
}
