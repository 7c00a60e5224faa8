package composer

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"docrag/internal/llm"
	"docrag/internal/models"
)

// Composer merges retrieved chunks into a prompt and asks the completion
// provider for an answer. With zero chunks it falls back to an ungrounded
// answer and marks the result so callers can tell the difference.
type Composer struct {
	chat        llm.ChatProvider
	temperature float32
}

func New(chat llm.ChatProvider) *Composer {
	return &Composer{chat: chat, temperature: 0.7}
}

// Answer is a composed result. CitationWarning is set when citation
// enforcement was requested but the model failed to cite any supplied chunk
// even after the bounded retry; the text is surfaced as-is rather than
// fabricating a citation.
type Answer struct {
	Text            string                  `json:"text"`
	Grounded        bool                    `json:"grounded"`
	CitationWarning bool                    `json:"citationWarning,omitempty"`
	Chunks          []models.RetrievedChunk `json:"chunks"`
}

const groundedSystem = "You are an assistant answering from the provided CONTEXT. " +
	"Each context block is tagged with its chunk id in the form [doc#index]. " +
	"Cite the chunk ids you rely on, inline, in that exact bracketed form. " +
	"If the context does not contain the answer, say so."

const plainSystem = "You are a helpful assistant. Answer from your general knowledge."

// inline citation tokens like [guide.md#3]
var citationRe = regexp.MustCompile(`\[([^\[\]\s]+#\d+)\]`)

// Plain answers without retrieval context.
func (c *Composer) Plain(ctx context.Context, question string) (Answer, error) {
	text, err := c.chat.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: plainSystem},
		{Role: llm.RoleUser, Content: question},
	}, c.temperature)
	if err != nil {
		return Answer{}, err
	}
	return Answer{Text: strings.TrimSpace(text)}, nil
}

// Grounded answers using chunks as context. With no chunks it degrades to an
// ungrounded answer. When enforceCitations is set the draft is verified to
// contain at least one citation of a supplied chunk id; one stricter retry
// is attempted before surfacing the uncited draft with a warning.
func (c *Composer) Grounded(ctx context.Context, question string, chunks []models.RetrievedChunk, enforceCitations bool) (Answer, error) {
	if len(chunks) == 0 {
		ans, err := c.Plain(ctx, question)
		if err != nil {
			return Answer{}, err
		}
		ans.Grounded = false
		ans.Chunks = []models.RetrievedChunk{}
		return ans, nil
	}

	draft, err := c.chat.Complete(ctx, groundedMessages(question, chunks, false), c.temperature)
	if err != nil {
		return Answer{}, err
	}
	ans := Answer{Text: strings.TrimSpace(draft), Grounded: true, Chunks: chunks}
	if !enforceCitations || cites(ans.Text, chunks) {
		return ans, nil
	}

	// one bounded retry with a stricter instruction
	retry, err := c.chat.Complete(ctx, groundedMessages(question, chunks, true), c.temperature)
	if err != nil {
		return Answer{}, err
	}
	ans.Text = strings.TrimSpace(retry)
	if !cites(ans.Text, chunks) {
		ans.CitationWarning = true
	}
	return ans, nil
}

func groundedMessages(question string, chunks []models.RetrievedChunk, strict bool) []llm.Message {
	var b strings.Builder
	for _, ch := range chunks {
		fmt.Fprintf(&b, "[%s] %s\n\n", ch.ID, ch.Text)
	}
	sys := groundedSystem
	if strict {
		ids := make([]string, len(chunks))
		for i, ch := range chunks {
			ids[i] = "[" + ch.ID + "]"
		}
		sys += " Your previous draft had no citations. Rewrite the answer and include at " +
			"least one inline citation chosen from: " + strings.Join(ids, ", ") + "."
	}
	user := fmt.Sprintf("CONTEXT:\n%sQUESTION: %s", b.String(), question)
	return []llm.Message{
		{Role: llm.RoleSystem, Content: sys},
		{Role: llm.RoleUser, Content: user},
	}
}

// cites reports whether text contains at least one well-formed citation
// token referencing a chunk that was actually supplied as context.
func cites(text string, chunks []models.RetrievedChunk) bool {
	supplied := make(map[string]struct{}, len(chunks))
	for _, ch := range chunks {
		supplied[ch.ID] = struct{}{}
	}
	for _, m := range citationRe.FindAllStringSubmatch(text, -1) {
		if _, ok := supplied[m[1]]; ok {
			return true
		}
	}
	return false
}
