// Package query answers natural-language questions by translating them to
// Cypher, running them read-only against the graph, and phrasing the rows
// back as prose.
package query

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/mwestrom/plotline/graph"
	"github.com/mwestrom/plotline/llm"
)

// UnsafeQueryError is returned when a generated query contains a mutation
// keyword. Translated queries are never allowed to write.
type UnsafeQueryError struct {
	Query   string
	Keyword string
}

func (e *UnsafeQueryError) Error() string {
	return fmt.Sprintf("plotline: generated query contains mutation keyword %q: %s", e.Keyword, e.Query)
}

const translationPrompt = `You are an expert at converting natural language questions about creative writing into Neo4j Cypher queries.

The database schema includes these node types:
%s
Common relationships:
%s
Question: %s
%s
Convert this to a read-only Cypher query. Return ONLY the Cypher query, no explanation.`

// relationshipHints documents the edge patterns the ingestion pipeline
// produces, in the shape the translator should echo.
var relationshipHints = []string{
	"- Character -[:APPEARS_IN]-> Scene",
	"- Character -[:KNOWS]-> Character",
	"- Character -[:LIVES_IN]-> Location",
	"- Character -[:HAS]-> Tag (for abilities, powers, skills; Tag.name is category:value like power:hardening)",
	"- Scene -[:TAKES_PLACE_IN]-> Location",
	"- Scene -[:PART_OF]-> Story",
	"- Scene -[:FOLLOWS]-> Scene",
	"- Story -[:EXPLORES]-> Theme",
	"- Character -[:EMBODIES]-> Theme",
	"- Location -[:CONTAINS]-> Location",
	"- PlotPoint -[:PART_OF]-> Story",
	"- WorldElement -[:RELATED_TO]-> any",
}

// mutationRe matches Cypher keywords that write. Word-bounded so names
// like "reset" or "settings" in string literals do not trip it.
var mutationRe = regexp.MustCompile(`(?i)\b(CREATE|MERGE|DELETE|DETACH|REMOVE|SET|DROP)\b`)

// Translator converts questions into Cypher via the completion service.
type Translator struct {
	chat llm.Provider
}

// NewTranslator creates a translator over the given provider.
func NewTranslator(chat llm.Provider) *Translator {
	return &Translator{chat: chat}
}

// Translate converts a question into a validated read-only Cypher query.
// feedback carries the execution error from a failed prior attempt so the
// model can correct itself; empty on the first attempt.
func (t *Translator) Translate(ctx context.Context, question, feedback string) (string, error) {
	var feedbackSection string
	if feedback != "" {
		feedbackSection = fmt.Sprintf("\nA previous attempt failed with this error, fix the query:\n%s\n", feedback)
	}

	prompt := fmt.Sprintf(translationPrompt, schemaSummary(), strings.Join(relationshipHints, "\n"), question, feedbackSection)

	resp, err := t.chat.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: "You are an expert at converting natural language to Cypher queries. Return only valid Cypher syntax."},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return "", fmt.Errorf("translation chat: %w", err)
	}

	cypher := stripFences(resp.Content)
	if cypher == "" {
		return "", fmt.Errorf("empty query from translation")
	}
	if m := mutationRe.FindString(cypher); m != "" {
		return "", &UnsafeQueryError{Query: cypher, Keyword: strings.ToUpper(m)}
	}
	return cypher, nil
}

// schemaSummary renders the node-type section of the prompt from the kind
// registry, so kinds registered at runtime are queryable too.
func schemaSummary() string {
	var sb strings.Builder
	for _, k := range graph.Kinds() {
		fields := append([]string{"name"}, graph.FieldsFor(k)...)
		sb.WriteString(fmt.Sprintf("- %s (%s)\n", k, strings.Join(fields, ", ")))
	}
	return sb.String()
}

var fenceRe = regexp.MustCompile("(?s)```(?:cypher|sql)?\\s*\\n?(.*?)\\n?```")

// stripFences removes markdown fences and surrounding prose from a
// generated query.
func stripFences(raw string) string {
	if m := fenceRe.FindStringSubmatch(raw); len(m) > 1 {
		raw = m[1]
	}
	return strings.TrimSpace(raw)
}
