// Package prompts holds the versioned prompt catalog the synthesis pipeline renders its model
// calls from. Templates use text/template syntax with the placeholder names as map keys
// ({{.chat_history}}); any key can be replaced from a YAML file without rebuilding.
package prompts

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

const (
	IntentSystem           = "intent_system"
	IntentUser             = "intent_user"
	CategorySystem         = "category_system"
	CategoryUser           = "category_user"
	CategoryGTSystem       = "category_gt_system"
	CategoryGTUser         = "category_gt_user"
	InsightSystem          = "insight_system"
	InsightUser            = "insight_user"
	EvaluateSystem         = "evaluate_system"
	EvaluateUser           = "evaluate_user"
	GTPathSystem           = "gt_path_system"
	GTPathUser             = "gt_path_user"
	MiningReviseSystem     = "mining_revise_system"
	MiningReviseUser       = "mining_revise_user"
	ExploreReviseSystem    = "explore_revise_system"
	ExploreReviseUser      = "explore_revise_user"
	IncorrectPathSystem    = "incorrect_path_system"
	IncorrectPathUser      = "incorrect_path_user"
	IncorrectPathRefSystem = "incorrect_path_ref_system"
	IncorrectPathRefUser   = "incorrect_path_ref_user"
	Infer                  = "infer"
	Output                 = "output"
)

// Catalog maps template keys to template text.
type Catalog map[string]string

func Default() Catalog {
	return Catalog{
		IntentSystem:           intentSystem,
		IntentUser:             intentUser,
		CategorySystem:         categorySystem,
		CategoryUser:           categoryUser,
		CategoryGTSystem:       categoryGTSystem,
		CategoryGTUser:         categoryGTUser,
		InsightSystem:          insightSystem,
		InsightUser:            insightUser,
		EvaluateSystem:         evaluateSystem,
		EvaluateUser:           evaluateUser,
		GTPathSystem:           gtPathSystem,
		GTPathUser:             gtPathUser,
		MiningReviseSystem:     miningReviseSystem,
		MiningReviseUser:       miningReviseUser,
		ExploreReviseSystem:    exploreReviseSystem,
		ExploreReviseUser:      exploreReviseUser,
		IncorrectPathSystem:    incorrectPathSystem,
		IncorrectPathUser:      incorrectPathUser,
		IncorrectPathRefSystem: incorrectPathRefSystem,
		IncorrectPathRefUser:   incorrectPathRefUser,
		Infer:                  inferTemplate,
		Output:                 outputTemplate,
	}
}

// LoadOverrides reads a YAML mapping of key -> template text and applies it on top of c.
// Unknown keys are rejected so a typo cannot silently leave the default in place.
func (c Catalog) LoadOverrides(path string) (Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts file: %w", err)
	}
	var overrides map[string]string
	if err := yaml.Unmarshal(b, &overrides); err != nil {
		return nil, fmt.Errorf("parse prompts file: %w", err)
	}

	out := make(Catalog, len(c))
	for k, v := range c {
		out[k] = v
	}
	var unknown []string
	for k, v := range overrides {
		if _, ok := c[k]; !ok {
			unknown = append(unknown, k)
			continue
		}
		if strings.TrimSpace(v) == "" {
			return nil, fmt.Errorf("prompts file: %s is empty", k)
		}
		out[k] = v
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("prompts file: unknown keys %s", strings.Join(unknown, ", "))
	}
	return out, nil
}

// Set is a compiled catalog. It is immutable and safe for concurrent use.
type Set struct {
	templates map[string]*template.Template
}

func (c Catalog) Compile() (*Set, error) {
	s := &Set{templates: make(map[string]*template.Template, len(c))}
	for k, text := range c {
		t, err := template.New(k).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("compile prompt %s: %w", k, err)
		}
		s.templates[k] = t
	}
	return s, nil
}

// MustDefault compiles the built-in catalog.
func MustDefault() *Set {
	s, err := Default().Compile()
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Set) Render(key string, vars map[string]any) (string, error) {
	if s == nil {
		return "", errors.New("prompts: nil set")
	}
	t, ok := s.templates[key]
	if !ok {
		return "", fmt.Errorf("prompts: unknown template %q", key)
	}
	var b strings.Builder
	if err := t.Execute(&b, vars); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", key, err)
	}
	return b.String(), nil
}
