package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"chat-hub/mention"
)

const (
	defaultMaxPassages = 3
	noAnswer           = "I could not find anything about that in the documentation."
)

// Responder builds an extractive answer: the best passages, quoted with their source.
type Responder struct {
	log         *slog.Logger
	retriever   *Retriever
	handles     *mention.Matcher
	maxPassages int
}

func NewResponder(log *slog.Logger, retriever *Retriever, handles *mention.Matcher, maxPassages int) *Responder {
	if maxPassages <= 0 {
		maxPassages = defaultMaxPassages
	}
	return &Responder{log: log, retriever: retriever, handles: handles, maxPassages: maxPassages}
}

func (r *Responder) Respond(ctx context.Context, text string, askingUserID string) (string, error) {
	question := r.stripHandles(text)
	if question == "" {
		return "Ask me anything about the documentation.", nil
	}
	passages, err := r.retriever.Search(ctx, question, r.maxPassages)
	if err != nil {
		return "", fmt.Errorf("search failed: %w", err)
	}
	r.log.Debug("Assistant retrieval", "user_id", askingUserID, "passages", len(passages))
	if len(passages) == 0 {
		return noAnswer, nil
	}

	var answer strings.Builder
	answer.WriteString("Here is what I found:")
	for _, p := range passages {
		fmt.Fprintf(&answer, "\n\n> %s\n(%s)", p.Body, p.Title)
	}
	return answer.String(), nil
}

// stripHandles removes the assistant handles so they do not pollute the query.
func (r *Responder) stripHandles(text string) string {
	words := strings.Fields(text)
	kept := words[:0]
	for _, word := range words {
		if r.handles != nil && len(r.handles.Find(word)) > 0 {
			continue
		}
		kept = append(kept, word)
	}
	return strings.Join(kept, " ")
}
