// Package rag answers questions by retrieving relevant chunks and
// prompting a chat model with them.
package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/docrag/api/internal/ollama"
	"github.com/docrag/api/internal/vectorstore"
)

const systemPrompt = "You are a helpful assistant. Use only the provided context to answer. " +
	"If the answer is not in the context, say you don't know. Cite sources with page numbers."

// snippetLimit caps the source excerpt returned with each answer.
const snippetLimit = 300

// DefaultTopK is the number of chunks retrieved when the caller does not
// ask for a specific count.
const DefaultTopK = 5

// Searcher is the read path of the vector store.
type Searcher interface {
	Search(ctx context.Context, query string, k int, docIDs []string) ([]vectorstore.Result, error)
}

// ChatClient generates chat completions.
type ChatClient interface {
	Chat(ctx context.Context, messages []ollama.Message) (string, error)
	ChatStream(ctx context.Context, messages []ollama.Message, onToken func(string)) error
}

// SourceChunk describes one retrieved chunk backing an answer.
type SourceChunk struct {
	DocID   string  `json:"docId"`
	Page    int     `json:"page"`
	Score   float64 `json:"score"`
	Snippet string  `json:"snippet"`
}

// Usage carries retrieval statistics for a query.
type Usage struct {
	Retrieved int `json:"retrieved"`
}

// Engine is the retrieval/answer pipeline.
type Engine struct {
	search Searcher
	chat   ChatClient
}

// NewEngine creates an answer engine over the given store and chat client.
func NewEngine(search Searcher, chat ChatClient) *Engine {
	return &Engine{search: search, chat: chat}
}

// BuildMessages assembles the grounded prompt: the fixed system
// instruction, then the retrieved snippets and the literal question.
func BuildMessages(snippets []string, question string) []ollama.Message {
	joined := strings.Join(snippets, "\n\n")
	user := fmt.Sprintf("Context:\n%s\n\nQuestion: %s\nAnswer:", joined, question)
	return []ollama.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: user},
	}
}

// Retrieve runs the similarity search without calling the model.
func (e *Engine) Retrieve(ctx context.Context, query string, topK int, docIDs []string) ([]vectorstore.Result, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return e.search.Search(ctx, query, topK, docIDs)
}

// Answer retrieves context for query and returns the model's grounded
// reply with its sources. An empty retrieval set is not an error: the
// model is asked anyway and expected to say it does not know.
func (e *Engine) Answer(ctx context.Context, query string, topK int, docIDs []string) (string, []SourceChunk, Usage, error) {
	results, err := e.Retrieve(ctx, query, topK, docIDs)
	if err != nil {
		return "", nil, Usage{}, err
	}

	answer, err := e.chat.Chat(ctx, BuildMessages(texts(results), query))
	if err != nil {
		return "", nil, Usage{}, fmt.Errorf("chat completion failed: %w", err)
	}
	return answer, sources(results), Usage{Retrieved: len(results)}, nil
}

// AnswerStream behaves like Answer but delivers the reply through
// onToken as fragments arrive.
func (e *Engine) AnswerStream(ctx context.Context, query string, topK int, docIDs []string, onToken func(string)) ([]SourceChunk, Usage, error) {
	results, err := e.Retrieve(ctx, query, topK, docIDs)
	if err != nil {
		return nil, Usage{}, err
	}

	if err := e.chat.ChatStream(ctx, BuildMessages(texts(results), query), onToken); err != nil {
		return nil, Usage{}, fmt.Errorf("chat completion failed: %w", err)
	}
	return sources(results), Usage{Retrieved: len(results)}, nil
}

func texts(results []vectorstore.Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Text
	}
	return out
}

func sources(results []vectorstore.Result) []SourceChunk {
	out := make([]SourceChunk, 0, len(results))
	for _, r := range results {
		out = append(out, SourceChunk{
			DocID:   r.Meta.DocID,
			Page:    r.Meta.Page,
			Score:   r.Score,
			Snippet: Snippet(r.Text),
		})
	}
	return out
}

// Snippet truncates text to the source excerpt limit.
func Snippet(text string) string {
	runes := []rune(text)
	if len(runes) <= snippetLimit {
		return text
	}
	return string(runes[:snippetLimit])
}
