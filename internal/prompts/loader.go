package prompts

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"
)

// ItemTemplate is the template rendered for every dispatched checklist item
const ItemTemplate = "checklist/item.md"

// OriginEmbedded is reported by Origin for templates compiled into the binary
const OriginEmbedded = "embedded"

// TemplateMeta is the optional front matter of a template
type TemplateMeta struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type compiled struct {
	tmpl   *template.Template
	meta   *TemplateMeta
	origin string
}

// Loader resolves templates from override directories before the embedded
// defaults, and caches what it compiled.
type Loader struct {
	dirs []string

	mu     sync.Mutex
	parsed map[string]*compiled
}

// NewLoader creates a loader. dirs are searched in order; the first hit wins.
func NewLoader(dirs ...string) *Loader {
	return &Loader{dirs: dirs, parsed: make(map[string]*compiled)}
}

// DefaultLoader searches <agentResources>/prompts, then <agentResources>,
// then ~/.config/checklist-orch/prompts.
func DefaultLoader(agentResourcesDir string) *Loader {
	var dirs []string
	if agentResourcesDir != "" {
		dirs = append(dirs, filepath.Join(agentResourcesDir, "prompts"), agentResourcesDir)
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".config", "checklist-orch", "prompts"))
	}
	return NewLoader(dirs...)
}

func (l *Loader) read(name string) ([]byte, string, error) {
	for _, dir := range l.dirs {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if data, err := os.ReadFile(path); err == nil {
			return data, path, nil
		}
	}
	data, err := fs.ReadFile(embeddedFS, name)
	return data, OriginEmbedded, err
}

// splitFrontmatter separates a leading YAML block from the template body.
// Content without a complete block is returned whole.
func splitFrontmatter(content []byte) (*TemplateMeta, []byte, error) {
	normalized := bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	rest, ok := bytes.CutPrefix(normalized, []byte("---\n"))
	if !ok {
		return nil, content, nil
	}
	head, body, ok := bytes.Cut(rest, []byte("\n---\n"))
	if !ok {
		return nil, content, nil
	}

	var meta TemplateMeta
	if err := yaml.Unmarshal(head, &meta); err != nil {
		return nil, nil, fmt.Errorf("front matter: %w", err)
	}
	return &meta, body, nil
}

func (l *Loader) load(name string) (*compiled, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if c, ok := l.parsed[name]; ok {
		return c, nil
	}

	content, origin, err := l.read(name)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", name, err)
	}
	meta, body, err := splitFrontmatter(content)
	if err != nil {
		return nil, fmt.Errorf("template %s (%s): %w", name, origin, err)
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(string(body))
	if err != nil {
		return nil, fmt.Errorf("template %s (%s): %w", name, origin, err)
	}

	c := &compiled{tmpl: tmpl, meta: meta, origin: origin}
	l.parsed[name] = c
	return c, nil
}

// LoadTemplate returns the compiled template and its front matter, which may be nil
func (l *Loader) LoadTemplate(name string) (*template.Template, *TemplateMeta, error) {
	c, err := l.load(name)
	if err != nil {
		return nil, nil, err
	}
	return c.tmpl, c.meta, nil
}

// Origin returns the file the template was read from, or OriginEmbedded
func (l *Loader) Origin(name string) (string, error) {
	c, err := l.load(name)
	if err != nil {
		return "", err
	}
	return c.origin, nil
}

// Execute renders the named template with data
func (l *Loader) Execute(name string, data any) (string, error) {
	c, err := l.load(name)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := c.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s (%s): %w", name, c.origin, err)
	}
	return buf.String(), nil
}

// ItemData is what the item template can refer to
type ItemData struct {
	ItemID            string
	Tier              string
	TierSlug          string
	Instructions      string
	WorkDir           string
	AgentResourcesDir string
	SessionID         string
	Runtime           string
	Model             string
}

// BuildItemPrompt renders ItemTemplate
func (l *Loader) BuildItemPrompt(data ItemData) (string, error) {
	return l.Execute(ItemTemplate, data)
}

// ClearCache forgets compiled templates so edits on disk are picked up
func (l *Loader) ClearCache() {
	l.mu.Lock()
	clear(l.parsed)
	l.mu.Unlock()
}
