package plotline

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// draftTemplates seed new notes with the frontmatter type marker and the
// section headings the extractor reads best.
var draftTemplates = map[string]string{
	"character": `---
type: character
---

# %s

## Description



## Appearance



## Goals



## Relationships


<!-- Tag abilities like @power:hardening or @skill:debugging -->
`,
	"location": `---
type: location
---

# %s

## Description



## Significance


`,
	"scene": `---
type: scene
---

# %s

## Setting



## Summary



## Mood


`,
	"story": `---
type: story
---

# %s

## Summary



## Themes


`,
	"worldbuilding": `---
type: worldbuilding
---

# %s

## Description


`,
	"theme": `---
type: theme
---

# %s

## Description


`,
	"plot": `---
type: plot
---

# %s

## What happens



## Importance


`,
}

// TemplateKinds lists the draft types NewDraft accepts.
func TemplateKinds() []string {
	kinds := make([]string, 0, len(draftTemplates))
	for k := range draftTemplates {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// NewDraft creates a templated note in the drafts directory and returns
// its path. It refuses to overwrite an existing draft.
func (e *Engine) NewDraft(kind, title string) (string, error) {
	tmpl, ok := draftTemplates[strings.ToLower(kind)]
	if !ok {
		return "", fmt.Errorf("%w: %q (have %s)", ErrUnknownTemplate, kind, strings.Join(TemplateKinds(), ", "))
	}
	if strings.TrimSpace(title) == "" {
		return "", fmt.Errorf("%w: draft title", ErrMissingConfig)
	}

	slug := strings.Trim(slugRe.ReplaceAllString(strings.ToLower(title), "_"), "_")
	path := filepath.Join(e.cfg.DraftsDir, slug+".md")

	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("%w: %s", ErrDraftExists, path)
	}
	if err := os.MkdirAll(e.cfg.DraftsDir, 0755); err != nil {
		return "", fmt.Errorf("creating drafts dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(fmt.Sprintf(tmpl, title)), 0o644); err != nil {
		return "", fmt.Errorf("writing draft: %w", err)
	}
	return path, nil
}

// ListDrafts returns the names of files waiting in the drafts directory.
func (e *Engine) ListDrafts() ([]string, error) {
	entries, err := os.ReadDir(e.cfg.DraftsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading drafts dir: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
