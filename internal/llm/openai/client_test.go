package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"docrag/internal/llm"
)

type embedReq struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

func embedResponse(w http.ResponseWriter, inputs []string, offset int) {
	type item struct {
		Object    string    `json:"object"`
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	}
	data := make([]item, len(inputs))
	for i := range inputs {
		// encode the global input position so order is observable
		data[i] = item{Object: "embedding", Embedding: []float32{float32(offset + i), 1}, Index: i}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"data":   data,
		"model":  "test-embed",
	})
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("DOCRAG_OPENAI_BASE_URL", srv.URL+"/v1")
	return NewFromEnv()
}

func TestEmbeddingsRetryOn429(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
			return
		}
		var req embedReq
		_ = json.NewDecoder(r.Body).Decode(&req)
		embedResponse(w, req.Input, 0)
	}))
	vecs, err := c.Embeddings(context.Background(), []string{"hello"})
	if err != nil {
		t.Fatalf("Embeddings error: %v", err)
	}
	if len(vecs) != 1 || len(vecs[0]) != 2 {
		t.Fatalf("unexpected vectors: %v", vecs)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("calls=%d want 2", calls)
	}
}

func TestEmbeddingsExhaustedRetries(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	_, err := c.Embeddings(context.Background(), []string{"hello"})
	if !errors.Is(err, llm.ErrProviderUnavailable) {
		t.Fatalf("want ErrProviderUnavailable, got %v", err)
	}
}

func TestEmbeddingsMalformedResponse(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// one embedding for two inputs
		embedResponse(w, []string{"only-one"}, 0)
	}))
	_, err := c.Embeddings(context.Background(), []string{"a", "b"})
	if !errors.Is(err, llm.ErrMalformedResponse) {
		t.Fatalf("want ErrMalformedResponse, got %v", err)
	}
}

func TestEmbeddingsSubBatchPreservesOrder(t *testing.T) {
	var offset int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedReq
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Input) > 2 {
			t.Errorf("batch size %d exceeds limit 2", len(req.Input))
		}
		base := atomic.AddInt32(&offset, int32(len(req.Input))) - int32(len(req.Input))
		embedResponse(w, req.Input, int(base))
	}))
	c.batch = 2
	inputs := []string{"a", "b", "c", "d", "e"}
	vecs, err := c.Embeddings(context.Background(), inputs)
	if err != nil {
		t.Fatalf("Embeddings error: %v", err)
	}
	if len(vecs) != len(inputs) {
		t.Fatalf("vectors=%d want %d", len(vecs), len(inputs))
	}
	for i, v := range vecs {
		if int(v[0]) != i {
			t.Fatalf("vector %d out of order: %v", i, v)
		}
	}
}

func TestCompleteAndMalformed(t *testing.T) {
	var malformed bool
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if malformed {
			_, _ = w.Write([]byte(`{"choices":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hi there"}}]}`))
	}))
	out, err := c.Complete(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}}, 0)
	if err != nil || out != "hi there" {
		t.Fatalf("Complete=%q err=%v", out, err)
	}
	malformed = true
	if _, err := c.Complete(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}}, 0); !errors.Is(err, llm.ErrMalformedResponse) {
		t.Fatalf("want ErrMalformedResponse, got %v", err)
	}
}
