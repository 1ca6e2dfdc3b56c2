package checklist

import (
	"bytes"

	"gopkg.in/yaml.v3"
)

// Frontmatter is the optional YAML header of a markdown checklist.
// The engine does not act on it; it is surfaced by the list command.
type Frontmatter struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
}

// ParseFrontmatter extracts YAML frontmatter from markdown content.
// Returns the frontmatter, the remaining content, and the number of lines consumed.
func ParseFrontmatter(content []byte) (*Frontmatter, []byte, int, error) {
	if !bytes.HasPrefix(content, []byte("---\n")) {
		return &Frontmatter{}, content, 0, nil
	}

	rest := content[4:]
	endIdx := bytes.Index(rest, []byte("\n---"))
	if endIdx == -1 {
		return &Frontmatter{}, content, 0, nil
	}

	fmData := rest[:endIdx]
	remaining := rest[endIdx+4:] // skip \n---
	if nl := bytes.IndexByte(remaining, '\n'); nl >= 0 {
		remaining = remaining[nl+1:]
	} else {
		remaining = nil
	}

	var fm Frontmatter
	if err := yaml.Unmarshal(fmData, &fm); err != nil {
		return nil, nil, 0, err
	}

	consumed := bytes.Count(content[:len(content)-len(remaining)], []byte("\n"))
	return &fm, remaining, consumed, nil
}

// ReadFrontmatter returns the frontmatter of a markdown checklist, or an empty one
func ReadFrontmatter(content []byte) *Frontmatter {
	fm, _, _, err := ParseFrontmatter(content)
	if err != nil {
		return &Frontmatter{}
	}
	return fm
}
