package prompts

import (
	"embed"
	"fmt"
	"strings"
)

//go:embed templates/*.txt
var templateFS embed.FS

// templateNames is the full set a Store must load. A missing template file
// is a configuration error at startup, not at call time.
var templateNames = []string{
	NamespaceOptimizeSemantic,
	NamespaceAnalysis,
	NamespaceExtractStandard,
	NamespaceOptimizeTextual,
	NamespaceAnswer,
	NamespaceExtractFromMemory,
}

// Vars carries the named substitution values a template may reference.
type Vars struct {
	LastUtterance      string
	Chunks             string
	ConversationMemory string
}

// Store holds the rendered-ready prompt templates.
type Store struct {
	templates map[string]string
}

// NewStore loads every template from the embedded filesystem.
func NewStore() (*Store, error) {
	s := &Store{templates: make(map[string]string, len(templateNames))}
	for _, name := range templateNames {
		raw, err := templateFS.ReadFile("templates/" + name + ".txt")
		if err != nil {
			return nil, fmt.Errorf("loading prompt template %q: %w", name, err)
		}
		s.templates[name] = string(raw)
	}
	return s, nil
}

// Render substitutes the named variables into the template for namespace.
// Unknown namespaces are an error so typos fail loudly.
func (s *Store) Render(namespace string, vars Vars) (string, error) {
	tmpl, ok := s.templates[namespace]
	if !ok {
		return "", fmt.Errorf("unknown prompt template %q", namespace)
	}
	r := strings.NewReplacer(
		"{last_utterance}", vars.LastUtterance,
		"{chunks}", vars.Chunks,
		"{conversation_memory}", vars.ConversationMemory,
	)
	return r.Replace(tmpl), nil
}

// Names returns the loaded template names, for diagnostics.
func (s *Store) Names() []string {
	out := make([]string, 0, len(s.templates))
	for name := range s.templates {
		out = append(out, name)
	}
	return out
}
