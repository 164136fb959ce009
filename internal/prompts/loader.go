package prompts

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Loader loads prompt templates from override directories first, falling
// back to the templates embedded in the binary. Overrides let an operator
// tune wording without a rebuild.
type Loader struct {
	overrideDirs []string
	mu           sync.RWMutex
	cache        map[string]*template.Template
	metaCache    map[string]*TemplateMeta
}

// TemplateMeta is the YAML frontmatter carried by every template file.
type TemplateMeta struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// NewLoader creates a Loader that checks overrideDirs, in order, before
// falling back to the embedded templates.
func NewLoader(overrideDirs ...string) *Loader {
	return &Loader{
		overrideDirs: overrideDirs,
		cache:        make(map[string]*template.Template),
		metaCache:    make(map[string]*TemplateMeta),
	}
}

// DefaultLoader returns a Loader with the standard override path:
// $XDG_CONFIG_HOME/llm-merge-orchestrator/prompts (or ~/.config/... if
// XDG_CONFIG_HOME is unset).
func DefaultLoader() *Loader {
	home, _ := os.UserHomeDir()
	dir := filepath.Join(home, ".config", "llm-merge-orchestrator", "prompts")
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		dir = filepath.Join(xdg, "llm-merge-orchestrator", "prompts")
	}
	return NewLoader(dir)
}

func (l *Loader) loadContent(path string) ([]byte, error) {
	for _, dir := range l.overrideDirs {
		full := filepath.Join(dir, path)
		if data, err := os.ReadFile(full); err == nil {
			return data, nil
		}
	}
	return fs.ReadFile(embeddedFS, "templates/"+path)
}

func parseFrontmatter(content []byte) (*TemplateMeta, string, error) {
	str := string(content)
	if !strings.HasPrefix(str, "---\n") {
		return nil, str, nil
	}

	end := strings.Index(str[4:], "\n---\n")
	if end == -1 {
		return nil, str, nil
	}

	frontmatter := str[4 : 4+end]
	body := str[4+end+len("\n---\n"):]

	var meta TemplateMeta
	if err := yaml.Unmarshal([]byte(frontmatter), &meta); err != nil {
		return nil, "", fmt.Errorf("parse frontmatter: %w", err)
	}
	return &meta, body, nil
}

// Load loads and compiles a template by path (e.g. "judge/system.md"),
// returning its parsed frontmatter alongside it.
func (l *Loader) Load(path string) (*template.Template, *TemplateMeta, error) {
	l.mu.RLock()
	tmpl, ok := l.cache[path]
	meta := l.metaCache[path]
	l.mu.RUnlock()
	if ok {
		return tmpl, meta, nil
	}

	content, err := l.loadContent(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load %s: %w", path, err)
	}

	meta, body, err := parseFrontmatter(content)
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}

	tmpl, err = template.New(path).Parse(body)
	if err != nil {
		return nil, nil, fmt.Errorf("compile %s: %w", path, err)
	}

	l.mu.Lock()
	l.cache[path] = tmpl
	l.metaCache[path] = meta
	l.mu.Unlock()

	return tmpl, meta, nil
}

// Render loads the template at path and executes it against data.
func (l *Loader) Render(path string, data interface{}) (string, error) {
	tmpl, _, err := l.Load(path)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute %s: %w", path, err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// Global default loader, lazily initialized.
var (
	defaultLoader     *Loader
	defaultLoaderOnce sync.Once
)

// Default returns the process-wide default Loader.
func Default() *Loader {
	defaultLoaderOnce.Do(func() {
		defaultLoader = DefaultLoader()
	})
	return defaultLoader
}
