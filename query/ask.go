package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mwestrom/plotline/graph"
	"github.com/mwestrom/plotline/llm"
)

// defaultMaxRows caps how many result rows reach the answer prompt.
const defaultMaxRows = 50

const answerPrompt = `Question: %s

Query Results: %s

Format these query results into a natural, conversational response that answers the original question.
Be concise but informative. If there are multiple results, organize them clearly.
Only state facts present in the results.`

// Answer is the full trace of one question: the generated query, the raw
// rows, and the phrased response.
type Answer struct {
	Question string           `json:"question"`
	Cypher   string           `json:"cypher,omitempty"`
	Rows     []map[string]any `json:"rows,omitempty"`
	Text     string           `json:"text"`
	Fallback bool             `json:"fallback,omitempty"`
}

// Engine answers questions against the graph store.
type Engine struct {
	store      graph.Store
	translator *Translator
	chat       llm.Provider
	maxRows    int
}

// NewEngine creates a question-answering engine.
func NewEngine(store graph.Store, chat llm.Provider) *Engine {
	return &Engine{
		store:      store,
		translator: NewTranslator(chat),
		chat:       chat,
		maxRows:    defaultMaxRows,
	}
}

// Ask translates the question, executes it, and phrases the rows as an
// answer. A query that fails to execute gets one corrected retry with the
// error fed back to the translator; if that also fails, a deterministic
// keyword search answers instead so the question never dead-ends.
func (e *Engine) Ask(ctx context.Context, question string) (*Answer, error) {
	ans := &Answer{Question: question}

	cypher, rows, err := e.translateAndRun(ctx, question)
	if err != nil {
		var unsafe *UnsafeQueryError
		if errors.As(err, &unsafe) || errors.Is(err, llm.ErrUnavailable) {
			return nil, err
		}
		slog.Warn("query: translation failed twice, falling back to keyword search",
			"question", question, "error", err)
		rows, err = e.keywordFallback(ctx, question)
		if err != nil {
			return nil, err
		}
		ans.Fallback = true
	}
	ans.Cypher = cypher

	if len(rows) > e.maxRows {
		rows = rows[:e.maxRows]
	}
	ans.Rows = rows

	ans.Text = e.phrase(ctx, question, rows)
	return ans, nil
}

// translateAndRun is the translate-execute loop with a single
// error-feedback retry.
func (e *Engine) translateAndRun(ctx context.Context, question string) (string, []map[string]any, error) {
	feedback := ""
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		cypher, err := e.translator.Translate(ctx, question, feedback)
		if err != nil {
			return "", nil, err
		}
		slog.Debug("query: generated cypher", "question", question, "cypher", cypher, "attempt", attempt)

		rows, err := e.store.Run(ctx, cypher, nil)
		if err == nil {
			return cypher, rows, nil
		}
		lastErr = err
		feedback = err.Error()
	}
	return "", nil, lastErr
}

// keywordFallback runs a fixed name-contains search over every node using
// the longest words of the question as terms.
func (e *Engine) keywordFallback(ctx context.Context, question string) ([]map[string]any, error) {
	terms := keywordTerms(question)
	if len(terms) == 0 {
		return nil, nil
	}
	return e.store.Run(ctx,
		`MATCH (n) WHERE any(term IN $terms WHERE toLower(n.name) CONTAINS term)
		 RETURN labels(n)[0] AS kind, n.name AS name, n.description AS description
		 LIMIT $limit`,
		map[string]any{"terms": terms, "limit": e.maxRows})
}

var stopwords = map[string]bool{
	"the": true, "and": true, "are": true, "does": true, "do": true,
	"what": true, "which": true, "who": true, "where": true, "when": true,
	"how": true, "have": true, "has": true, "with": true, "about": true,
	"show": true, "list": true, "all": true, "any": true, "that": true,
	"this": true, "from": true, "for": true, "can": true, "you": true, "tell": true,
}

func keywordTerms(question string) []string {
	var terms []string
	for _, w := range strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		if len(w) < 3 || stopwords[w] {
			continue
		}
		terms = append(terms, w)
	}
	return terms
}

// phrase asks the model to narrate the rows. If the model is unreachable
// the rows are enumerated plainly; an answer degrades, it never disappears.
func (e *Engine) phrase(ctx context.Context, question string, rows []map[string]any) string {
	if len(rows) == 0 {
		return "I didn't find any results for that question."
	}

	rowsJSON, err := json.Marshal(rows)
	if err != nil {
		return plainFormat(rows)
	}

	resp, err := e.chat.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: "You are a helpful writing assistant. Format database query results into natural, conversational responses."},
			{Role: "user", Content: fmt.Sprintf(answerPrompt, question, string(rowsJSON))},
		},
		Temperature: 0.3,
	})
	if err != nil {
		slog.Warn("query: answer phrasing failed, returning plain rows", "error", err)
		return plainFormat(rows)
	}
	return strings.TrimSpace(resp.Content)
}

func plainFormat(rows []map[string]any) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d results:\n", len(rows))
	for i, row := range rows {
		fmt.Fprintf(&sb, "%d. %v\n", i+1, row)
	}
	return sb.String()
}
