package checklist

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/hochfrequenz/checklist-orch/internal/domain"
)

const sampleMarkdown = `---
title: UCP SDK verification
description: checks run against the published SDK
---
# UCP SDK Checklist

Intro prose that belongs to no item.

## Tier 1: Installation & Setup Verification

- [ ] **SET-001**: Install the Python package
  Use a fresh virtualenv.
  Record the installed version.
- [x] **SET-002**: Verify the reported version
- [!] SET-003 - Import every public module

## Tier 2: Document Lifecycle Operations

- [ ] **DOC-001**: Create, update and delete a document
`

func writeChecklist(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

var ignoreLine = cmpopts.IgnoreFields(domain.ChecklistItem{}, "Line")

func TestLoad_Markdown(t *testing.T) {
	path := writeChecklist(t, "checklist.md", sampleMarkdown)

	items, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	tier1 := domain.Tier{Index: 1, Name: "Installation & Setup Verification"}
	tier2 := domain.Tier{Index: 2, Name: "Document Lifecycle Operations"}
	want := []*domain.ChecklistItem{
		{ID: "SET-001", Tier: tier1, Instructions: "Install the Python package\nUse a fresh virtualenv.\nRecord the installed version.", PriorStatus: domain.StatusPending, Status: domain.StatusPending},
		{ID: "SET-002", Tier: tier1, Instructions: "Verify the reported version", PriorStatus: domain.StatusCompleted, Status: domain.StatusPending},
		{ID: "SET-003", Tier: tier1, Instructions: "Import every public module", PriorStatus: domain.StatusFailed, Status: domain.StatusPending},
		{ID: "DOC-001", Tier: tier2, Instructions: "Create, update and delete a document", PriorStatus: domain.StatusPending, Status: domain.StatusPending},
	}
	if diff := cmp.Diff(want, items, ignoreLine); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}

	// line numbers account for the front matter
	if items[0].Line != 11 {
		t.Errorf("SET-001 line = %d, want 11", items[0].Line)
	}
}

func TestLoad_MarkdownUntitledTiers(t *testing.T) {
	path := writeChecklist(t, "list.markdown", `## Smoke
- [ ] A-1: first
## Deep
- [ ] B-1: second
`)
	items, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	got := []domain.Tier{items[0].Tier, items[1].Tier}
	want := []domain.Tier{{Index: 1, Name: "Smoke"}, {Index: 2, Name: "Deep"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tiers mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeChecklist(t, "checklist.yaml", `
title: sdk
tiers:
  - name: Installation
    items:
      - id: SET-001
        instructions: |
          Install it.
      - id: SET-002
        instructions: Check version
        status: passed
  - name: Documents
    index: 5
    items:
      - id: DOC-001
        instructions: Create one
`)
	items, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	want := []*domain.ChecklistItem{
		{ID: "SET-001", Tier: domain.Tier{Index: 1, Name: "Installation"}, Instructions: "Install it.", PriorStatus: domain.StatusPending, Status: domain.StatusPending},
		{ID: "SET-002", Tier: domain.Tier{Index: 1, Name: "Installation"}, Instructions: "Check version", PriorStatus: domain.StatusCompleted, Status: domain.StatusPending},
		{ID: "DOC-001", Tier: domain.Tier{Index: 5, Name: "Documents"}, Instructions: "Create one", PriorStatus: domain.StatusPending, Status: domain.StatusPending},
	}
	if diff := cmp.Diff(want, items, ignoreLine); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_FreshItemsEachCall(t *testing.T) {
	path := writeChecklist(t, "checklist.md", sampleMarkdown)

	first, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	first[0].Status = domain.StatusRunning

	second, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if second[0] == first[0] || second[0].Status != domain.StatusPending {
		t.Error("Load() must return fresh pending items on every call")
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		content  string
		wantLine int
		wantText string
	}{
		{"duplicate id", "c.md", "## Tier 1: A\n- [ ] X-1: one\n- [ ] X-1: two\n", 3, "duplicate item id X-1"},
		{"item before tier", "c.md", "- [ ] X-1: one\n", 1, "before any tier"},
		{"empty instructions", "c.md", "## Tier 1: A\n- [ ] X-1:\n", 2, "no instructions"},
		{"checkbox without id", "c.md", "## Tier 1: A\n- [ ] just some words\n", 2, "no item id"},
		{"empty checklist", "c.md", "# Nothing here\n", 0, "no items"},
		{"unsupported format", "c.txt", "- [ ] X-1: one\n", 0, "unsupported"},
		{"yaml missing id", "c.yaml", "tiers:\n  - name: A\n    items:\n      - instructions: go\n", 4, "empty id"},
		{"yaml malformed", "c.yml", "tiers: {name: [\n", 0, "invalid YAML"},
		{"yaml duplicate id", "c.yml", "tiers:\n  - name: A\n    items:\n      - {id: Y, instructions: a}\n  - name: B\n    items:\n      - {id: Y, instructions: b}\n", 7, "duplicate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeChecklist(t, tt.file, tt.content)
			_, err := Load(path)
			if !errors.Is(err, ErrChecklistLoad) {
				t.Fatalf("Load() error = %v, want ErrChecklistLoad", err)
			}
			var lerr *LoadError
			if !errors.As(err, &lerr) {
				t.Fatalf("error is %T, want *LoadError", err)
			}
			if lerr.Line != tt.wantLine {
				t.Errorf("Line = %d, want %d (%v)", lerr.Line, tt.wantLine, err)
			}
			if !strings.Contains(lerr.Reason, tt.wantText) {
				t.Errorf("Reason = %q, want it to contain %q", lerr.Reason, tt.wantText)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "checklist.md"))
	if !errors.Is(err, ErrChecklistLoad) {
		t.Fatalf("Load() error = %v, want ErrChecklistLoad", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load() error = %v, want it to wrap os.ErrNotExist", err)
	}
}

func TestSource_HonoursContext(t *testing.T) {
	path := writeChecklist(t, "checklist.md", sampleMarkdown)
	src := Source(path)

	items, err := src(context.Background())
	if err != nil || len(items) != 4 {
		t.Fatalf("Source() = %d items, %v", len(items), err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Source() with cancelled ctx error = %v", err)
	}
}

func TestParseFrontmatter(t *testing.T) {
	fm, body, consumed, err := ParseFrontmatter([]byte("---\ntitle: X\n---\n## Tier 1\n"))
	if err != nil {
		t.Fatal(err)
	}
	if fm.Title != "X" {
		t.Errorf("Title = %q, want X", fm.Title)
	}
	if string(body) != "## Tier 1\n" {
		t.Errorf("body = %q", body)
	}
	if consumed != 3 {
		t.Errorf("consumed = %d, want 3", consumed)
	}

	fm, body, consumed, err = ParseFrontmatter([]byte("no front matter"))
	if err != nil || fm.Title != "" || string(body) != "no front matter" || consumed != 0 {
		t.Errorf("ParseFrontmatter() without header = %+v, %q, %d, %v", fm, body, consumed, err)
	}
}
