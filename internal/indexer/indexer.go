package indexer

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"docrag/internal/chunker"
	"docrag/internal/index"
	"docrag/internal/llm"
	"docrag/internal/models"
)

// Builder turns a document set into a searchable index: chunk every
// document, embed the chunks in concurrent batches, assemble records in
// chunk order.
type Builder struct {
	emb         llm.Embedder
	size        int
	overlap     int
	batch       int
	concurrency int
}

type Option func(*Builder)

func WithChunking(size, overlap int) Option {
	return func(b *Builder) { b.size, b.overlap = size, overlap }
}

func WithBatch(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.batch = n
		}
	}
}

func WithConcurrency(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

func New(emb llm.Embedder, opts ...Option) *Builder {
	b := &Builder{
		emb:         emb,
		size:        chunker.DefaultSize,
		overlap:     chunker.DefaultOverlap,
		batch:       64,
		concurrency: 4,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Stats summarizes one build pass.
type Stats struct {
	DocumentCount int `json:"documentCount"`
	ChunkCount    int `json:"chunkCount"`
}

// Build chunks docs and embeds every chunk. Batches run concurrently as
// independent operations; vectors land at their chunk's slot, so completion
// order never changes record order. Any failed batch fails the whole build.
func (b *Builder) Build(ctx context.Context, docs []models.Document) (*index.Index, Stats, error) {
	var chunks []models.Chunk
	seen := 0
	for _, d := range docs {
		cs, err := chunker.SplitDocument(d, b.size, b.overlap)
		if err != nil {
			return nil, Stats{}, err
		}
		if len(cs) == 0 {
			continue // empty documents are skipped, not errored
		}
		seen++
		chunks = append(chunks, cs...)
	}
	stats := Stats{DocumentCount: seen, ChunkCount: len(chunks)}
	if len(chunks) == 0 {
		ix, err := index.Build(nil)
		return ix, stats, err
	}

	vectors := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for start := 0; start < len(chunks); start += b.batch {
		start := start
		end := start + b.batch
		if end > len(chunks) {
			end = len(chunks)
		}
		g.Go(func() error {
			texts := make([]string, end-start)
			for i := range texts {
				texts[i] = chunks[start+i].Text
			}
			vecs, err := b.emb.Embeddings(gctx, texts)
			if err != nil {
				return fmt.Errorf("embed chunks %d..%d: %w", start, end-1, err)
			}
			if len(vecs) != len(texts) {
				return fmt.Errorf("embed chunks %d..%d: %w: got %d vectors", start, end-1, llm.ErrMalformedResponse, len(vecs))
			}
			copy(vectors[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Stats{}, err
	}

	records := make([]index.Record, len(chunks))
	for i := range chunks {
		records[i] = index.Record{Chunk: chunks[i], Vector: vectors[i]}
	}
	ix, err := index.Build(records)
	if err != nil {
		return nil, Stats{}, err
	}
	return ix, stats, nil
}
