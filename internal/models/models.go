package models

import (
	"fmt"
	"time"
)

// Document is a named text source loaded from the docs directory.
// Immutable once loaded; replaced wholesale on reindex.
type Document struct {
	Name string `json:"name"`
	Text string `json:"-"`
}

// Chunk is a contiguous token window of a document.
type Chunk struct {
	ID     string `json:"id"`
	Doc    string `json:"doc"`
	Index  int    `json:"chunkIndex"`
	Text   string `json:"text"`
	Tokens int    `json:"tokens"`
}

// ChunkID builds the canonical chunk identifier used for citations.
func ChunkID(doc string, index int) string {
	return fmt.Sprintf("%s#%d", doc, index)
}

// RetrievedChunk is a transient per-query result referencing an indexed chunk.
type RetrievedChunk struct {
	ID    string  `json:"id"`
	Doc   string  `json:"doc"`
	Index int     `json:"chunkIndex"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// AnswerMode selects how /ask composes the answer.
type AnswerMode string

const (
	ModePlain            AnswerMode = "plain"
	ModeGrounded         AnswerMode = "grounded"
	ModeGroundedFiltered AnswerMode = "grounded_filtered"
	ModeCompare          AnswerMode = "compare"
)

// ValidMode reports whether m is a known answer mode.
func ValidMode(m AnswerMode) bool {
	switch m {
	case ModePlain, ModeGrounded, ModeGroundedFiltered, ModeCompare:
		return true
	}
	return false
}

type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// ReindexJob records one full rebuild of the index.
type ReindexJob struct {
	ID            string     `json:"id"`
	Status        JobStatus  `json:"status"`
	StartedAt     time.Time  `json:"startedAt"`
	EndedAt       *time.Time `json:"endedAt,omitempty"`
	DocumentCount int        `json:"documentCount"`
	ChunkCount    int        `json:"chunkCount"`
	Error         string     `json:"error,omitempty"`
}

// QueryRecord is one /ask invocation persisted for auditing.
type QueryRecord struct {
	ID         string    `json:"id"`
	Question   string    `json:"question"`
	Mode       string    `json:"mode"`
	Grounded   bool      `json:"grounded"`
	ChunksUsed int       `json:"chunksUsed"`
	DurationMs int       `json:"durationMs"`
	CreatedAt  time.Time `json:"createdAt"`
}
