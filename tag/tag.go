// Package tag extracts @category:value annotations from narrative text.
// Parsing is pure and total: malformed tags are skipped, never errors.
package tag

import "regexp"

// Tag is a single @category:value annotation found in a document.
type Tag struct {
	Category string `json:"category"`
	Value    string `json:"value"`
	// Offset is the byte offset of the '@' in the source text, for the
	// first occurrence of this tag.
	Offset int `json:"offset"`
	// Mentions counts how many times the tag occurred in the document.
	// Duplicate occurrences are evidence of relationship strength, not
	// additional tag references.
	Mentions int `json:"mentions"`
}

// Pattern: category and value are token strings (alnum + underscore).
// A missing colon or empty value simply fails to match and is skipped.
var tagPattern = regexp.MustCompile(`@(\w+):(\w+)`)

// Parse returns the tags in text in first-seen order. Each (category, value)
// pair appears once with its occurrence count.
func Parse(text string) []Tag {
	matches := tagPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[[2]string]int)
	var tags []Tag
	for _, m := range matches {
		category := text[m[2]:m[3]]
		value := text[m[4]:m[5]]
		key := [2]string{category, value}

		if idx, ok := seen[key]; ok {
			tags[idx].Mentions++
			continue
		}
		seen[key] = len(tags)
		tags = append(tags, Tag{
			Category: category,
			Value:    value,
			Offset:   m[0],
			Mentions: 1,
		})
	}
	return tags
}
