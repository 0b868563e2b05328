// Package prompts holds the model prompt templates. Defaults are compiled
// in; a directory of <name>.tmpl files may override any of them.
package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"
)

//go:embed templates/*.tmpl
var defaultTemplates embed.FS

type Name string

const (
	Assistant       Name = "assistant"
	Tone            Name = "tone"
	ClaimAnalysis   Name = "claim_analysis"
	AgentRetrieval  Name = "agent_retrieval"
	BatchEvaluation Name = "batch_evaluation"
	Criterion       Name = "criterion"
	FinalVerdict    Name = "final_verdict"
)

var names = []Name{Assistant, Tone, ClaimAnalysis, AgentRetrieval, BatchEvaluation, Criterion, FinalVerdict}

// Renderer renders a named prompt.
type Renderer interface {
	Render(name Name, data any) (string, error)
}

// Store is safe for concurrent Render calls while a Reload swaps templates.
type Store struct {
	dir string

	mu    sync.RWMutex
	tmpls map[Name]*template.Template
}

// Load parses the compiled-in templates and applies overrides from dir.
// An empty dir means defaults only.
func Load(dir string) (*Store, error) {
	s := &Store{dir: dir}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Default returns a Store with the compiled-in templates only.
func Default() *Store {
	s, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("prompts: compiled-in templates are invalid: %v", err))
	}
	return s
}

// Dir returns the override directory, if any.
func (s *Store) Dir() string { return s.dir }

// Reload re-reads all templates. On error the previous set stays active.
func (s *Store) Reload() error {
	tmpls := make(map[Name]*template.Template, len(names))
	for _, name := range names {
		text, err := s.source(name)
		if err != nil {
			return err
		}
		t, err := template.New(string(name)).Option("missingkey=error").Parse(text)
		if err != nil {
			return fmt.Errorf("parsing prompt %s: %w", name, err)
		}
		tmpls[name] = t
	}

	s.mu.Lock()
	s.tmpls = tmpls
	s.mu.Unlock()
	return nil
}

func (s *Store) source(name Name) (string, error) {
	file := string(name) + ".tmpl"
	if s.dir != "" {
		data, err := os.ReadFile(filepath.Join(s.dir, file))
		switch {
		case err == nil:
			return string(data), nil
		case !errors.Is(err, fs.ErrNotExist):
			return "", fmt.Errorf("reading prompt override %s: %w", file, err)
		}
	}
	data, err := defaultTemplates.ReadFile("templates/" + file)
	if err != nil {
		return "", fmt.Errorf("reading built-in prompt %s: %w", file, err)
	}
	return string(data), nil
}

// Render executes the named template with data.
func (s *Store) Render(name Name, data any) (string, error) {
	s.mu.RLock()
	t, ok := s.tmpls[name]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("unknown prompt %q", name)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering prompt %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}
