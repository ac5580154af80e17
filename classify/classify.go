// Package classify assigns a document kind from filename and content
// heuristics. Classification is pure text matching, kept cheap and
// deterministic so the completion service only runs on documents likely to
// contain structured fields.
package classify

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mwestrom/plotline/graph"
)

// Unclassified is the verdict for documents with no recognizable markers.
// They are routed to generic free-text ingestion: tag-parsed but never
// entity-extracted.
const Unclassified graph.Kind = "Unclassified"

// Verdict is the classifier's output.
type Verdict struct {
	Kind       graph.Kind `json:"kind"`
	Confidence float64    `json:"confidence"`
	// Basis records which rule fired: "frontmatter", "filename",
	// "heading", or "none".
	Basis string `json:"basis"`
}

var frontmatterRe = regexp.MustCompile(`(?s)\A---\s*\n(.*?)\n---\s*\n`)
var frontmatterTypeRe = regexp.MustCompile(`(?m)^type:\s*(\w+)`)
var titleRe = regexp.MustCompile(`(?m)^#\s+(.+)$`)
var frontmatterTitleRe = regexp.MustCompile(`(?m)^title:\s*(.+)$`)

// filenameSuffixes are explicit markers authors put in draft filenames.
// They outrank content heuristics.
var filenameSuffixes = []struct {
	suffix string
	kind   graph.Kind
}{
	{"_character", graph.KindCharacter},
	{"_location", graph.KindLocation},
	{"_scene", graph.KindScene},
	{"_story", graph.KindStory},
	{"_world", graph.KindWorldElement},
	{"_theme", graph.KindTheme},
	{"_plot", graph.KindPlotPoint},
}

// headingMarkers are content cues, checked in order so that a character
// sheet containing an incidental "setting:" line still classifies as a
// character. Markers ending in a colon are heading patterns and must open
// a line; bare phrases match anywhere.
var headingMarkers = []struct {
	words []string
	kind  graph.Kind
}{
	{[]string{"character:", "personality:", "backstory:", "appearance:"}, graph.KindCharacter},
	{[]string{"location:", "setting:", "geography:", "architecture:"}, graph.KindLocation},
	{[]string{"scene:", "dialogue:", "pov:"}, graph.KindScene},
	{[]string{"theme:", "motif:", "symbolism:"}, graph.KindTheme},
	{[]string{"plot point:", "plot:", "conflict:", "turning point:"}, graph.KindPlotPoint},
	{[]string{"magic system", "world:", "culture:", "religion:", "technology:"}, graph.KindWorldElement},
	{[]string{"story:", "chapter", "narrative:"}, graph.KindStory},
}

// typeNames maps frontmatter type values onto kinds.
var typeNames = map[string]graph.Kind{
	"character":     graph.KindCharacter,
	"location":      graph.KindLocation,
	"scene":         graph.KindScene,
	"story":         graph.KindStory,
	"theme":         graph.KindTheme,
	"plotpoint":     graph.KindPlotPoint,
	"plot_point":    graph.KindPlotPoint,
	"worldbuilding": graph.KindWorldElement,
	"world":         graph.KindWorldElement,
}

// Classify infers a document's kind. Precedence: an explicit frontmatter
// type marker, then filename suffix markers, then heading heuristics.
// Anything else is Unclassified.
func Classify(filename, content string) Verdict {
	if fm := frontmatterRe.FindStringSubmatch(content); fm != nil {
		if m := frontmatterTypeRe.FindStringSubmatch(fm[1]); m != nil {
			if kind, ok := typeNames[strings.ToLower(m[1])]; ok {
				return Verdict{Kind: kind, Confidence: 1.0, Basis: "frontmatter"}
			}
		}
	}

	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	stemLower := strings.ToLower(stem)
	for _, s := range filenameSuffixes {
		if strings.HasSuffix(stemLower, s.suffix) {
			return Verdict{Kind: s.kind, Confidence: 0.9, Basis: "filename"}
		}
	}

	contentLower := strings.ToLower(content)
	lines := strings.Split(contentLower, "\n")
	for _, h := range headingMarkers {
		for _, w := range h.words {
			if !strings.HasSuffix(w, ":") {
				if strings.Contains(contentLower, w) {
					return Verdict{Kind: h.kind, Confidence: 0.6, Basis: "heading"}
				}
				continue
			}
			for _, line := range lines {
				// Allow markdown heading and emphasis prefixes, but an
				// inline mention like "@theme:trust" must not classify.
				if strings.HasPrefix(strings.TrimLeft(line, "#*- \t"), w) {
					return Verdict{Kind: h.kind, Confidence: 0.6, Basis: "heading"}
				}
			}
		}
	}

	return Verdict{Kind: Unclassified, Confidence: 0, Basis: "none"}
}

// Title extracts a display title from a markdown heading or frontmatter
// title line. Returns "" when neither is present.
func Title(content string) string {
	if m := titleRe.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1])
	}
	if fm := frontmatterRe.FindStringSubmatch(content); fm != nil {
		if m := frontmatterTitleRe.FindStringSubmatch(fm[1]); m != nil {
			return strings.Trim(strings.TrimSpace(m[1]), `"'`)
		}
	}
	return ""
}

var unsafeFilenameRe = regexp.MustCompile(`[^\w\s-]`)
var whitespaceRe = regexp.MustCompile(`\s+`)

// Filename derives an archive filename from a document's title, falling
// back to the original name when no title is found.
func Filename(original, content string) string {
	title := Title(content)
	if title == "" {
		return filepath.Base(original)
	}
	clean := unsafeFilenameRe.ReplaceAllString(title, "")
	clean = whitespaceRe.ReplaceAllString(strings.TrimSpace(clean), "_")
	if clean == "" {
		return filepath.Base(original)
	}
	return strings.ToLower(clean) + ".md"
}
