package query

import (
	"context"
	"fmt"
	"strings"
)

// Insights runs the canned overview queries against the graph. storyTitle
// narrows the report to one story; empty covers everything ingested.
func (e *Engine) Insights(ctx context.Context, storyTitle string) (string, error) {
	params := map[string]any{"title": storyTitle}
	filter := ""
	if storyTitle != "" {
		// Story titles are stored under the common name property.
		filter = "{name: $title}"
	}

	var lines []string

	rows, err := e.store.Run(ctx, fmt.Sprintf(
		`MATCH (c:Character)-[:APPEARS_IN]->(s:Scene)-[:PART_OF]->(story:Story %s)
		 RETURN count(DISTINCT c) AS character_count, story.name AS title`, filter), params)
	if err != nil {
		return "", fmt.Errorf("character count query: %w", err)
	}
	if len(rows) > 0 {
		title, _ := rows[0]["title"].(string)
		if title == "" {
			title = "Your writing"
		}
		lines = append(lines, fmt.Sprintf("%s has %v characters", title, rows[0]["character_count"]))
	}

	rows, err = e.store.Run(ctx, fmt.Sprintf(
		`MATCH (s:Scene)-[:PART_OF]->(story:Story %s)
		 RETURN count(s) AS scene_count`, filter), params)
	if err != nil {
		return "", fmt.Errorf("scene count query: %w", err)
	}
	if len(rows) > 0 {
		lines = append(lines, fmt.Sprintf("%v scenes recorded", rows[0]["scene_count"]))
	}

	rows, err = e.store.Run(ctx, fmt.Sprintf(
		`MATCH (c:Character)-[:APPEARS_IN]->(s:Scene)-[:PART_OF]->(story:Story %s)
		 WITH c, count(s) AS scene_count
		 ORDER BY scene_count DESC
		 LIMIT 1
		 RETURN c.name AS name, scene_count`, filter), params)
	if err != nil {
		return "", fmt.Errorf("most connected character query: %w", err)
	}
	if len(rows) > 0 {
		lines = append(lines, fmt.Sprintf("%v appears in %v scenes", rows[0]["name"], rows[0]["scene_count"]))
	}

	if len(lines) == 0 {
		return "No story structure in the graph yet. Process some documents first.", nil
	}
	return strings.Join(lines, "\n"), nil
}

// CharacterConnections lists everything directly linked to a character.
func (e *Engine) CharacterConnections(ctx context.Context, name string) ([]map[string]any, error) {
	return e.store.Run(ctx,
		`MATCH (c:Character {name: $name})-[r]->(other)
		 RETURN type(r) AS relationship, labels(other)[0] AS kind, other.name AS name
		 ORDER BY relationship, name
		 LIMIT $limit`,
		map[string]any{"name": name, "limit": e.maxRows})
}

// TagsByCategory lists every tag in a category and who carries it.
func (e *Engine) TagsByCategory(ctx context.Context, category string) ([]map[string]any, error) {
	return e.store.Run(ctx,
		`MATCH (c)-[:HAS]->(t:Tag {category: $category})
		 RETURN t.name AS tag, c.name AS carrier
		 ORDER BY tag, carrier
		 LIMIT $limit`,
		map[string]any{"category": category, "limit": e.maxRows})
}

// SuggestedQuestions returns starter questions for the interactive mode.
func SuggestedQuestions() []string {
	return []string{
		"Who are the main characters in my story?",
		"Which characters appear together most often?",
		"What locations are used in my story?",
		"Show me the scene sequence",
		"Which themes am I exploring?",
		"What abilities does each character have?",
		"Which characters haven't interacted yet?",
		"What plot points need development?",
		"Show me character relationship networks",
		"Which scenes take place in each location?",
	}
}
