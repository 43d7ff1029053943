package conversation

import (
	"fmt"
	"os"
	"strings"

	"github.com/ashureev/agentdesk/internal/domain"
	"gopkg.in/yaml.v3"
)

// Styles is an ordered catalog of response styles.
type Styles struct {
	order  []string
	byName map[string]domain.Style
}

var defaultStyles = []domain.Style{
	{
		Name:        "concise",
		Description: "Short, direct answers",
		Instruction: "Answer in at most three short sentences. Skip preamble.",
	},
	{
		Name:        "detailed",
		Description: "Thorough explanations with examples",
		Instruction: "Give a thorough answer. Explain your reasoning and include a concrete example where it helps.",
	},
	{
		Name:        "friendly",
		Description: "Warm and conversational",
		Instruction: "Use a warm, conversational tone, as if chatting with a friend.",
	},
	{
		Name:        "formal",
		Description: "Professional and precise",
		Instruction: "Use a formal, professional register. Avoid slang and contractions.",
	},
	{
		Name:        "spoken",
		Description: "Suited to being read aloud",
		Instruction: "Your reply will be spoken aloud. Use plain sentences, no markdown, lists, code or emoji.",
	},
}

// NewStyles builds a catalog. Names are matched case-insensitively.
func NewStyles(styles []domain.Style) (*Styles, error) {
	s := &Styles{byName: make(map[string]domain.Style, len(styles))}
	for _, st := range styles {
		key := strings.ToLower(strings.TrimSpace(st.Name))
		if key == "" {
			return nil, fmt.Errorf("style without name")
		}
		if _, dup := s.byName[key]; dup {
			return nil, fmt.Errorf("duplicate style %q", st.Name)
		}
		if strings.TrimSpace(st.Instruction) == "" {
			return nil, fmt.Errorf("style %q has no instruction", st.Name)
		}
		st.Name = key
		s.order = append(s.order, key)
		s.byName[key] = st
	}
	return s, nil
}

// DefaultStyles returns the built-in catalog.
func DefaultStyles() *Styles {
	s, err := NewStyles(defaultStyles)
	if err != nil {
		panic(err)
	}
	return s
}

type stylesFile struct {
	Styles []domain.Style `yaml:"styles"`
}

// LoadStyles reads a YAML catalog of the form
//
//	styles:
//	  - name: pirate
//	    description: Talks like a pirate
//	    instruction: Answer like a pirate would.
//
// An empty path returns the built-in catalog.
func LoadStyles(path string) (*Styles, error) {
	if path == "" {
		return DefaultStyles(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read styles file: %w", err)
	}
	var f stylesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse styles file: %w", err)
	}
	if len(f.Styles) == 0 {
		return nil, fmt.Errorf("styles file %s defines no styles", path)
	}
	return NewStyles(f.Styles)
}

// List returns the styles in catalog order.
func (s *Styles) List() []domain.Style {
	out := make([]domain.Style, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.byName[name])
	}
	return out
}

// Lookup finds a style by name.
func (s *Styles) Lookup(name string) (domain.Style, bool) {
	st, ok := s.byName[strings.ToLower(strings.TrimSpace(name))]
	return st, ok
}
