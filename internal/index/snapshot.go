package index

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"docrag/internal/models"
)

// Snapshot layout: a binary vector store plus a JSON metadata sidecar,
// both regenerated wholesale on every reindex.
const (
	VectorsFile = "vectors.bin"
	ChunksFile  = "chunks.json"
)

// vectors.bin: dim(uint32 LE), count(uint32 LE), then count frames of
// dim float32 LE values, in insertion order matching the sidecar.

// WriteSnapshot persists ix under dir. Files are written to temp names and
// renamed, so a crash mid-write never leaves a torn snapshot pair behind a
// valid name.
func WriteSnapshot(dir string, ix *Index) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	recs := ix.Records()

	vec := make([]byte, 8, 8+len(recs)*ix.Dim()*4)
	binary.LittleEndian.PutUint32(vec[0:4], uint32(ix.Dim()))
	binary.LittleEndian.PutUint32(vec[4:8], uint32(len(recs)))
	var f32 [4]byte
	for _, r := range recs {
		for _, v := range r.Vector {
			binary.LittleEndian.PutUint32(f32[:], math.Float32bits(v))
			vec = append(vec, f32[:]...)
		}
	}
	if err := writeAtomic(filepath.Join(dir, VectorsFile), vec); err != nil {
		return err
	}

	chunks := make([]models.Chunk, len(recs))
	for i, r := range recs {
		chunks[i] = r.Chunk
	}
	meta, err := json.MarshalIndent(chunks, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(filepath.Join(dir, ChunksFile), meta)
}

// ReadSnapshot loads a snapshot pair written by WriteSnapshot. A missing
// snapshot returns (nil, nil): the caller starts with an empty index.
func ReadSnapshot(dir string) (*Index, error) {
	vec, err := os.ReadFile(filepath.Join(dir, VectorsFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	meta, err := os.ReadFile(filepath.Join(dir, ChunksFile))
	if err != nil {
		return nil, err
	}
	var chunks []models.Chunk
	if err := json.Unmarshal(meta, &chunks); err != nil {
		return nil, fmt.Errorf("index: corrupt chunk sidecar: %w", err)
	}

	if len(vec) < 8 {
		return nil, fmt.Errorf("index: corrupt vector store: %d bytes", len(vec))
	}
	dim := int(binary.LittleEndian.Uint32(vec[0:4]))
	count := int(binary.LittleEndian.Uint32(vec[4:8]))
	if count != len(chunks) {
		return nil, fmt.Errorf("index: snapshot mismatch: %d vectors, %d chunks", count, len(chunks))
	}
	if count == 0 {
		return Build(nil)
	}
	if len(vec) != 8+count*dim*4 {
		return nil, fmt.Errorf("index: corrupt vector store: %d bytes for %d x %d", len(vec), count, dim)
	}
	records := make([]Record, count)
	off := 8
	for i := 0; i < count; i++ {
		v := make([]float32, dim)
		for j := 0; j < dim; j++ {
			v[j] = math.Float32frombits(binary.LittleEndian.Uint32(vec[off : off+4]))
			off += 4
		}
		records[i] = Record{Chunk: chunks[i], Vector: v}
	}
	return Build(records)
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
