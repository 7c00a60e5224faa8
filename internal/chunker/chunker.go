package chunker

import (
	"errors"
	"strings"

	"docrag/internal/models"
)

// ErrInvalidConfig is returned when the window parameters cannot advance
// through the document (overlap >= size, or non-positive size).
var ErrInvalidConfig = errors.New("chunker: overlap must be smaller than chunk size")

const (
	DefaultSize    = 400
	DefaultOverlap = 50
)

// Split cuts text into overlapping windows of at most size tokens, where a
// token is a whitespace-separated word. Adjacent windows share exactly
// overlap tokens. A document shorter than one window yields a single chunk;
// an empty document yields none.
func Split(text string, size, overlap int) ([]string, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, ErrInvalidConfig
	}
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return nil, nil
	}
	step := size - overlap
	var chunks []string
	for start := 0; start < len(tokens); start += step {
		end := start + size
		if end > len(tokens) {
			end = len(tokens)
		}
		chunks = append(chunks, strings.Join(tokens[start:end], " "))
		if end == len(tokens) {
			break
		}
	}
	return chunks, nil
}

// SplitDocument chunks one document and assigns per-document ordinals and
// canonical chunk ids.
func SplitDocument(doc models.Document, size, overlap int) ([]models.Chunk, error) {
	parts, err := Split(doc.Text, size, overlap)
	if err != nil {
		return nil, err
	}
	chunks := make([]models.Chunk, 0, len(parts))
	for i, p := range parts {
		chunks = append(chunks, models.Chunk{
			ID:     models.ChunkID(doc.Name, i),
			Doc:    doc.Name,
			Index:  i,
			Text:   p,
			Tokens: len(strings.Fields(p)),
		})
	}
	return chunks, nil
}
