// Package assistant answers chat questions from a local document corpus.
// Documents are split into paragraphs indexed with bluge; an answer quotes the best matching ones.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/blugelabs/bluge"
)

const (
	fieldSource = "source"
	fieldTitle  = "title"
	fieldBody   = "body"
)

// Passage is one indexed paragraph of a source document.
type Passage struct {
	ID    string
	Title string
	Body  string
	Score float64
}

// Retriever owns the bluge writer. Readers are snapshots, so a search never
// sees a half-indexed document.
type Retriever struct {
	mu     sync.Mutex
	log    *slog.Logger
	writer *bluge.Writer
}

func NewRetriever(log *slog.Logger, writer *bluge.Writer) *Retriever {
	return &Retriever{log: log, writer: writer}
}

// Index replaces every passage of the document identified by source.
func (r *Retriever) Index(source, title, text string) (int, error) {
	paragraphs := splitParagraphs(text)
	r.mu.Lock()
	defer r.mu.Unlock()

	previous, err := r.passageIDs(source)
	if err != nil {
		return 0, fmt.Errorf("index %s: %w", source, err)
	}
	batch := bluge.NewBatch()
	for i, paragraph := range paragraphs {
		id := fmt.Sprintf("%s#%d", source, i)
		delete(previous, id)
		doc := bluge.NewDocument(id).
			AddField(bluge.NewKeywordField(fieldSource, source)).
			AddField(bluge.NewTextField(fieldTitle, title).StoreValue()).
			AddField(bluge.NewTextField(fieldBody, paragraph).StoreValue().HighlightMatches())
		batch.Update(doc.ID(), doc)
	}
	// A shorter new version leaves trailing passages behind
	for id := range previous {
		batch.Delete(bluge.Identifier(id))
	}
	if err := r.writer.Batch(batch); err != nil {
		return 0, fmt.Errorf("index %s: %w", source, err)
	}
	r.log.Debug("Document indexed", "source", source, "passages", len(paragraphs))
	return len(paragraphs), nil
}

// Search returns at most limit passages ranked by relevance.
func (r *Retriever) Search(ctx context.Context, text string, limit int) ([]Passage, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	reader, err := r.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	query := bluge.NewBooleanQuery().
		AddShould(bluge.NewMatchQuery(text).SetField(fieldBody)).
		AddShould(bluge.NewMatchQuery(text).SetField(fieldTitle).SetBoost(0.5)).
		SetMinShould(1)
	matches, err := reader.Search(ctx, bluge.NewTopNSearch(limit, query))
	if err != nil {
		return nil, err
	}

	var passages []Passage
	match, err := matches.Next()
	for err == nil && match != nil {
		passage := Passage{Score: match.Score}
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				passage.ID = string(value)
			case fieldTitle:
				passage.Title = string(value)
			case fieldBody:
				passage.Body = string(value)
			}
			return true
		})
		if err != nil {
			return nil, err
		}
		passages = append(passages, passage)
		match, err = matches.Next()
	}
	if err != nil {
		return nil, err
	}
	return passages, nil
}

// passageIDs must be called with mu held.
func (r *Retriever) passageIDs(source string) (map[string]struct{}, error) {
	reader, err := r.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	query := bluge.NewTermQuery(source).SetField(fieldSource)
	matches, err := reader.Search(context.Background(), bluge.NewAllMatches(query))
	if err != nil {
		return nil, err
	}
	ids := make(map[string]struct{})
	match, err := matches.Next()
	for err == nil && match != nil {
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			if field == "_id" {
				ids[string(value)] = struct{}{}
			}
			return true
		})
		if err != nil {
			return nil, err
		}
		match, err = matches.Next()
	}
	return ids, err
}

func splitParagraphs(text string) []string {
	var paragraphs []string
	for _, block := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		if p := strings.Join(strings.Fields(block), " "); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return paragraphs
}
