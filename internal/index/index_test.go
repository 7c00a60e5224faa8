package index

import (
	"fmt"
	"testing"

	"docrag/internal/models"
)

func rec(doc string, i int, vec ...float32) Record {
	return Record{
		Chunk: models.Chunk{
			ID:    models.ChunkID(doc, i),
			Doc:   doc,
			Index: i,
			Text:  fmt.Sprintf("%s chunk %d", doc, i),
		},
		Vector: vec,
	}
}

func TestSearchRanksByCosine(t *testing.T) {
	ix, err := Build([]Record{
		rec("a.txt", 0, 1, 0),
		rec("a.txt", 1, 0, 1),
		rec("b.txt", 0, 0.7, 0.7),
	})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	got, err := ix.Search([]float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("results=%d want 2", len(got))
	}
	if got[0].ID != "a.txt#0" || got[1].ID != "b.txt#0" {
		t.Fatalf("unexpected order: %v %v", got[0].ID, got[1].ID)
	}
	if got[0].Score < got[1].Score {
		t.Fatalf("scores not descending: %v", got)
	}
}

func TestSearchExactKAndNonIncreasing(t *testing.T) {
	var recs []Record
	for i := 0; i < 30; i++ {
		recs = append(recs, rec("d.txt", i, float32(i), 1))
	}
	ix, err := Build(recs)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	for _, k := range []int{1, 5, 30} {
		got, err := ix.Search([]float32{1, 0.2}, k)
		if err != nil {
			t.Fatalf("Search error: %v", err)
		}
		if len(got) != k {
			t.Fatalf("k=%d results=%d", k, len(got))
		}
		for i := 1; i < len(got); i++ {
			if got[i].Score > got[i-1].Score {
				t.Fatalf("scores increase at %d: %v > %v", i, got[i].Score, got[i-1].Score)
			}
		}
	}
}

func TestSearchTieBreakInsertionOrder(t *testing.T) {
	// identical vectors: identical scores, earlier insertion wins
	ix, err := Build([]Record{
		rec("z.txt", 0, 1, 1),
		rec("a.txt", 0, 1, 1),
		rec("m.txt", 0, 1, 1),
	})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	got, err := ix.Search([]float32{1, 1}, 3)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	want := []string{"z.txt#0", "a.txt#0", "m.txt#0"}
	for i := range want {
		if got[i].ID != want[i] {
			t.Fatalf("tie order: got %v want %v", got, want)
		}
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	ix, err := Build(nil)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	got, err := ix.Search([]float32{1, 0}, 5)
	if err != nil || len(got) != 0 {
		t.Fatalf("empty index: got=%v err=%v", got, err)
	}
	// nil index behaves the same
	var nilIx *Index
	got, err = nilIx.Search([]float32{1, 0}, 5)
	if err != nil || len(got) != 0 {
		t.Fatalf("nil index: got=%v err=%v", got, err)
	}
}

func TestBuildDimensionMismatch(t *testing.T) {
	_, err := Build([]Record{rec("a", 0, 1, 0), rec("a", 1, 1, 0, 0)})
	if err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestSearchQueryDimensionMismatch(t *testing.T) {
	ix, _ := Build([]Record{rec("a", 0, 1, 0)})
	if _, err := ix.Search([]float32{1, 0, 0}, 1); err == nil {
		t.Fatal("expected query dimension error")
	}
}
