package graph

// Kind is the label of a node in the knowledge graph.
type Kind string

// Known node kinds. KindUnknown is reserved for placeholder stubs created
// when a relationship endpoint has never been independently profiled.
const (
	KindCharacter    Kind = "Character"
	KindLocation     Kind = "Location"
	KindScene        Kind = "Scene"
	KindStory        Kind = "Story"
	KindTheme        Kind = "Theme"
	KindPlotPoint    Kind = "PlotPoint"
	KindWorldElement Kind = "WorldElement"
	KindTag          Kind = "Tag"
	KindUnknown      Kind = "Unknown"
)

// RelType is the label of a directed edge between two nodes.
type RelType string

// The closed relationship vocabulary. Relation types returned by the
// completion service that are not in this set are coerced to RelRelatedTo.
const (
	RelAppearsIn    RelType = "APPEARS_IN"
	RelKnows        RelType = "KNOWS"
	RelRelatedTo    RelType = "RELATED_TO"
	RelHas          RelType = "HAS"
	RelTakesPlaceIn RelType = "TAKES_PLACE_IN"
	RelPartOf       RelType = "PART_OF"
	RelFollows      RelType = "FOLLOWS"
	RelExplores     RelType = "EXPLORES"
	RelEmbodies     RelType = "EMBODIES"
	RelLivesIn      RelType = "LIVES_IN"
	RelContains     RelType = "CONTAINS"
	RelMentions     RelType = "MENTIONS"
)

// kindFields maps each kind to the attribute names the extractor may fill.
// Attributes outside this set are dropped with a warning, never stored.
var kindFields = map[Kind][]string{
	KindCharacter:    {"description", "age", "role", "appearance", "goals", "traits"},
	KindLocation:     {"description", "type", "significance"},
	KindScene:        {"summary", "pov", "setting", "mood", "status"},
	KindStory:        {"summary", "genre", "status"},
	KindTheme:        {"description"},
	KindPlotPoint:    {"description", "importance", "type"},
	KindWorldElement: {"description", "category"},
	KindTag:          {"description", "category", "value"},
	KindUnknown:      nil,
}

var relTypes = map[RelType]bool{
	RelAppearsIn:    true,
	RelKnows:        true,
	RelRelatedTo:    true,
	RelHas:          true,
	RelTakesPlaceIn: true,
	RelPartOf:       true,
	RelFollows:      true,
	RelExplores:     true,
	RelEmbodies:     true,
	RelLivesIn:      true,
	RelContains:     true,
	RelMentions:     true,
}

// RegisterKind adds a new kind and its attribute schema to the registry.
// New kinds must be registered before extraction attempts to populate them;
// registration is expected at startup, before any ingestion runs.
func RegisterKind(k Kind, fields []string) {
	kindFields[k] = fields
}

// RegisterRelType adds a new relationship type to the closed vocabulary.
func RegisterRelType(t RelType) {
	relTypes[t] = true
}

// KnownKind reports whether k has a registered schema.
func KnownKind(k Kind) bool {
	_, ok := kindFields[k]
	return ok
}

// KnownRelType reports whether t is in the relationship vocabulary.
func KnownRelType(t RelType) bool {
	return relTypes[t]
}

// FieldsFor returns the attribute names registered for a kind.
func FieldsFor(k Kind) []string {
	return kindFields[k]
}

// Kinds returns all registered kinds except KindUnknown, in a stable order.
func Kinds() []Kind {
	ordered := []Kind{
		KindCharacter, KindLocation, KindScene, KindStory,
		KindTheme, KindPlotPoint, KindWorldElement, KindTag,
	}
	for k := range kindFields {
		if k == KindUnknown {
			continue
		}
		known := false
		for _, o := range ordered {
			if o == k {
				known = true
				break
			}
		}
		if !known {
			ordered = append(ordered, k)
		}
	}
	return ordered
}

// RelTypes returns the relationship vocabulary in a stable order.
func RelTypes() []RelType {
	ordered := []RelType{
		RelAppearsIn, RelKnows, RelRelatedTo, RelHas, RelTakesPlaceIn,
		RelPartOf, RelFollows, RelExplores, RelEmbodies, RelLivesIn,
		RelContains, RelMentions,
	}
	for t := range relTypes {
		known := false
		for _, o := range ordered {
			if o == t {
				known = true
				break
			}
		}
		if !known {
			ordered = append(ordered, t)
		}
	}
	return ordered
}

// CoerceRelType maps an arbitrary relation label from the completion service
// onto the vocabulary. Unknown labels become RelRelatedTo.
func CoerceRelType(raw string) (RelType, bool) {
	t := RelType(raw)
	if relTypes[t] {
		return t, true
	}
	return RelRelatedTo, false
}
