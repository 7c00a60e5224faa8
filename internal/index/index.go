package index

import (
	"fmt"
	"math"
	"sort"

	"docrag/internal/models"
)

// Record pairs one chunk with its embedding vector.
type Record struct {
	Chunk  models.Chunk
	Vector []float32
}

// Index is an immutable brute-force cosine-similarity index. It is built
// whole, queried many times, and discarded whole on the next rebuild; it is
// never mutated after Build returns, so concurrent Search calls need no
// locking.
type Index struct {
	records []Record
	mags    []float64
	dim     int
	docs    int
}

// Build validates dimension uniformity, precomputes magnitudes, and returns
// a ready index. An empty record set yields an empty, searchable index.
func Build(records []Record) (*Index, error) {
	ix := &Index{}
	if len(records) == 0 {
		return ix, nil
	}
	dim := len(records[0].Vector)
	if dim == 0 {
		return nil, fmt.Errorf("index: zero-dimension vector for chunk %s", records[0].Chunk.ID)
	}
	mags := make([]float64, len(records))
	docs := make(map[string]struct{})
	for i, r := range records {
		if len(r.Vector) != dim {
			return nil, fmt.Errorf("index: dimension mismatch for chunk %s: %d != %d", r.Chunk.ID, len(r.Vector), dim)
		}
		mags[i] = magnitude(r.Vector)
		docs[r.Chunk.Doc] = struct{}{}
	}
	ix.records = append([]Record(nil), records...)
	ix.mags = mags
	ix.dim = dim
	ix.docs = len(docs)
	return ix, nil
}

// Search returns the k records most similar to query by cosine similarity,
// descending, ties broken by insertion order. An empty index returns an
// empty result, not an error.
func (ix *Index) Search(query []float32, k int) ([]models.RetrievedChunk, error) {
	if ix == nil || len(ix.records) == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != ix.dim {
		return nil, fmt.Errorf("index: query dimension %d != index dimension %d", len(query), ix.dim)
	}
	qm := magnitude(query)
	if qm == 0 {
		return nil, nil
	}
	type scored struct {
		pos   int
		score float64
	}
	all := make([]scored, 0, len(ix.records))
	for i := range ix.records {
		if ix.mags[i] == 0 {
			continue
		}
		s := dot(query, ix.records[i].Vector) / (qm * ix.mags[i])
		if math.IsNaN(s) {
			continue
		}
		all = append(all, scored{pos: i, score: s})
	}
	// stable sort keeps insertion order among equal scores
	sort.SliceStable(all, func(a, b int) bool { return all[a].score > all[b].score })
	if k > len(all) {
		k = len(all)
	}
	out := make([]models.RetrievedChunk, 0, k)
	for _, s := range all[:k] {
		c := ix.records[s.pos].Chunk
		out = append(out, models.RetrievedChunk{
			ID:    c.ID,
			Doc:   c.Doc,
			Index: c.Index,
			Text:  c.Text,
			Score: s.score,
		})
	}
	return out, nil
}

// Len reports the number of indexed chunks.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.records)
}

// Dim reports the embedding dimension, 0 when empty.
func (ix *Index) Dim() int {
	if ix == nil {
		return 0
	}
	return ix.dim
}

// DocCount reports the number of distinct source documents.
func (ix *Index) DocCount() int {
	if ix == nil {
		return 0
	}
	return ix.docs
}

// Records exposes the ordered record slice for snapshotting. Callers must
// not mutate it.
func (ix *Index) Records() []Record {
	if ix == nil {
		return nil
	}
	return ix.records
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func magnitude(v []float32) float64 { return math.Sqrt(dot(v, v)) }
