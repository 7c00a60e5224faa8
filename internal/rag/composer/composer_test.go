package composer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"docrag/internal/llm"
	"docrag/internal/models"
)

// scriptedChat returns canned replies in order and records prompts.
type scriptedChat struct {
	replies []string
	prompts []string
	err     error
}

func (s *scriptedChat) Complete(ctx context.Context, messages []llm.Message, temperature float32) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	var all strings.Builder
	for _, m := range messages {
		all.WriteString(m.Content)
		all.WriteString("\n")
	}
	s.prompts = append(s.prompts, all.String())
	reply := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	return reply, nil
}

func someChunks() []models.RetrievedChunk {
	return []models.RetrievedChunk{
		{ID: "guide.md#0", Doc: "guide.md", Index: 0, Text: "Install with make.", Score: 0.91},
		{ID: "guide.md#1", Doc: "guide.md", Index: 1, Text: "Run the tests.", Score: 0.85},
	}
}

func TestGroundedCitesFirstTry(t *testing.T) {
	chat := &scriptedChat{replies: []string{"Use make [guide.md#0]."}}
	ans, err := New(chat).Grounded(context.Background(), "how install?", someChunks(), true)
	if err != nil {
		t.Fatalf("Grounded error: %v", err)
	}
	if !ans.Grounded || ans.CitationWarning {
		t.Fatalf("unexpected flags: %+v", ans)
	}
	if len(chat.prompts) != 1 {
		t.Fatalf("prompts=%d want 1 (no retry)", len(chat.prompts))
	}
	if !strings.Contains(chat.prompts[0], "[guide.md#0] Install with make.") {
		t.Fatalf("context block missing from prompt: %q", chat.prompts[0])
	}
}

func TestGroundedRetriesOnceThenWarns(t *testing.T) {
	chat := &scriptedChat{replies: []string{"no citations here", "still none"}}
	ans, err := New(chat).Grounded(context.Background(), "q", someChunks(), true)
	if err != nil {
		t.Fatalf("Grounded error: %v", err)
	}
	if len(chat.prompts) != 2 {
		t.Fatalf("prompts=%d want 2 (exactly one retry)", len(chat.prompts))
	}
	if !strings.Contains(chat.prompts[1], "previous draft had no citations") {
		t.Fatalf("retry prompt not stricter: %q", chat.prompts[1])
	}
	if !ans.CitationWarning {
		t.Fatal("expected citation warning on uncited final answer")
	}
	if ans.Text != "still none" {
		t.Fatalf("answer text = %q, want surfaced draft", ans.Text)
	}
}

func TestGroundedRetrySucceeds(t *testing.T) {
	chat := &scriptedChat{replies: []string{"no citations", "fixed [guide.md#1]"}}
	ans, err := New(chat).Grounded(context.Background(), "q", someChunks(), true)
	if err != nil {
		t.Fatalf("Grounded error: %v", err)
	}
	if ans.CitationWarning {
		t.Fatalf("cited retry should clear the warning: %+v", ans)
	}
}

func TestGroundedRejectsUnsuppliedCitation(t *testing.T) {
	// citation token references a chunk that was never supplied
	chat := &scriptedChat{replies: []string{"see [other.md#9]", "see [other.md#9]"}}
	ans, err := New(chat).Grounded(context.Background(), "q", someChunks(), true)
	if err != nil {
		t.Fatalf("Grounded error: %v", err)
	}
	if !ans.CitationWarning {
		t.Fatal("citation of unsupplied chunk must not satisfy verification")
	}
}

func TestGroundedZeroChunksFallsBack(t *testing.T) {
	chat := &scriptedChat{replies: []string{"general knowledge answer"}}
	ans, err := New(chat).Grounded(context.Background(), "q", nil, true)
	if err != nil {
		t.Fatalf("Grounded error: %v", err)
	}
	if ans.Grounded {
		t.Fatal("zero chunks must yield an ungrounded answer")
	}
	if ans.Chunks == nil || len(ans.Chunks) != 0 {
		t.Fatalf("chunks should be empty, got %v", ans.Chunks)
	}
}

func TestGroundedNoEnforcementSkipsVerification(t *testing.T) {
	chat := &scriptedChat{replies: []string{"uncited answer"}}
	ans, err := New(chat).Grounded(context.Background(), "q", someChunks(), false)
	if err != nil {
		t.Fatalf("Grounded error: %v", err)
	}
	if ans.CitationWarning || len(chat.prompts) != 1 {
		t.Fatalf("verification ran when disabled: %+v prompts=%d", ans, len(chat.prompts))
	}
}

func TestProviderErrorSurfaces(t *testing.T) {
	chat := &scriptedChat{err: errors.New("down")}
	if _, err := New(chat).Grounded(context.Background(), "q", someChunks(), true); err == nil {
		t.Fatal("expected provider error to surface")
	}
}
