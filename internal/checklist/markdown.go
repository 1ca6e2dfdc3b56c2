package checklist

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hochfrequenz/checklist-orch/internal/domain"
)

var (
	// ## Tier 1: Installation & Setup Verification
	// ## Document Lifecycle Operations
	tierHeading = regexp.MustCompile(`^##\s+(?:Tier\s+(\d+)\s*[:.\-–—]?\s*)?(.*?)\s*#*\s*$`)

	// - [ ] **SET-001**: Install the SDK
	// - [x] SET-002 - Check the version
	itemLine = regexp.MustCompile(`^[-*+]\s+\[([ xX!\-])\]\s+(?:\*\*)?([A-Za-z0-9][\w.\-]*)(?:\*\*)?(?:\s*[:—–]|\s+-)(?:\*\*)?\s*(.*)$`)

	checkbox = regexp.MustCompile(`^[-*+]\s+\[[ xX!\-]\]`)
)

type markdownParser struct {
	path  string
	items []*domain.ChecklistItem
	tier  *domain.Tier
	tiers int

	current *domain.ChecklistItem
	body    []string
	indent  string
}

func parseMarkdown(path string, content []byte) ([]*domain.ChecklistItem, error) {
	_, body, offset, err := ParseFrontmatter(content)
	if err != nil {
		return nil, &LoadError{Path: path, Line: 1, Reason: "invalid front matter", Err: err}
	}

	p := &markdownParser{path: path}
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := offset
	for scanner.Scan() {
		lineNo++
		if err := p.line(lineNo, strings.TrimRight(scanner.Text(), "\r")); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &LoadError{Path: path, Reason: "reading checklist", Err: err}
	}
	if err := p.flush(); err != nil {
		return nil, err
	}
	return p.items, nil
}

func (p *markdownParser) line(n int, text string) error {
	if m := tierHeading.FindStringSubmatch(text); m != nil {
		if err := p.flush(); err != nil {
			return err
		}
		p.tiers++
		index := p.tiers
		if m[1] != "" {
			index, _ = strconv.Atoi(m[1])
		}
		p.tier = &domain.Tier{Index: index, Name: m[2]}
		return nil
	}

	if m := itemLine.FindStringSubmatch(text); m != nil {
		if err := p.flush(); err != nil {
			return err
		}
		if p.tier == nil {
			return &LoadError{Path: p.path, Line: n, Reason: fmt.Sprintf("item %s appears before any tier heading", m[2])}
		}
		p.current = domain.NewItem(m[2], *p.tier, "")
		p.current.Line = n
		p.current.PriorStatus = domain.ToStatus(strings.TrimSpace(m[1]))
		p.body = []string{m[3]}
		p.indent = ""
		return nil
	}

	if checkbox.MatchString(text) {
		return &LoadError{Path: p.path, Line: n, Reason: "checklist entry has no item id"}
	}

	if p.current == nil {
		// prose between headings and items carries no work
		return nil
	}

	switch {
	case strings.TrimSpace(text) == "":
		p.body = append(p.body, "")
	case text[0] == ' ' || text[0] == '\t':
		if p.indent == "" {
			p.indent = text[:len(text)-len(strings.TrimLeft(text, " \t"))]
		}
		p.body = append(p.body, strings.TrimPrefix(text, p.indent))
	default:
		// unindented text or a sub-heading closes the item
		return p.flush()
	}
	return nil
}

func (p *markdownParser) flush() error {
	if p.current == nil {
		return nil
	}
	item := p.current
	item.Instructions = strings.TrimSpace(strings.Join(p.body, "\n"))
	p.current, p.body, p.indent = nil, nil, ""

	if err := validateItem(p.path, item); err != nil {
		return err
	}
	p.items = append(p.items, item)
	return nil
}
