// Package flow implements the session-scoped conversation workflow engine:
// declarative flow definitions, the input classifier, the accumulator loop
// helper, and the generic workflow router.
package flow

import (
	_ "embed"
	"fmt"
	"log/slog"
	"strings"

	"gopkg.in/yaml.v3"
)

// Class tags the classification of an operator's raw input against a
// transition. Synonym lists live in embedded YAML so the router itself never
// branches on string content.
type Class string

// Classes shared across flows.
const (
	// ClassAccept and ClassReject are the two outward edges of every
	// confirm state.
	ClassAccept Class = "accept"
	ClassReject Class = "reject"
	// ClassMore and ClassDone answer the accumulator's "add another?".
	ClassMore Class = "more"
	ClassDone Class = "done"
	// ClassText matches any text input; the transition validator decides.
	ClassText Class = "text"
	// ClassPhoto matches photo events.
	ClassPhoto Class = "photo"
)

//go:embed classifier.yaml
var classifierYAML []byte

type classifierConfig struct {
	Cancel  []string            `yaml:"cancel"`
	Classes map[string][]string `yaml:"classes"`
}

// Classifier resolves raw operator input to declared classes using pure
// synonym data.
type Classifier struct {
	cancel  map[string]struct{}
	classes map[Class]map[string]struct{}
}

// NewClassifier loads the embedded synonym tables.
func NewClassifier() (*Classifier, error) {
	var cfg classifierConfig
	if err := yaml.Unmarshal(classifierYAML, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse classifier synonyms: %w", err)
	}
	c := &Classifier{
		cancel:  make(map[string]struct{}),
		classes: make(map[Class]map[string]struct{}),
	}
	for _, tok := range cfg.Cancel {
		c.cancel[normalize(tok)] = struct{}{}
	}
	for name, syns := range cfg.Classes {
		set := make(map[string]struct{}, len(syns))
		for _, tok := range syns {
			set[normalize(tok)] = struct{}{}
		}
		c.classes[Class(name)] = set
	}
	slog.Debug("Classifier loaded", "classes", len(c.classes), "cancel_tokens", len(c.cancel))
	return c, nil
}

// IsCancel reports whether raw is the user-facing cancel token.
func (c *Classifier) IsCancel(raw string) bool {
	_, ok := c.cancel[normalize(raw)]
	return ok
}

// Matches reports whether raw belongs to the synonym set of class. ClassText
// and ClassPhoto are structural and never match through synonym data.
func (c *Classifier) Matches(class Class, raw string) bool {
	set, ok := c.classes[class]
	if !ok {
		return false
	}
	_, ok = set[normalize(raw)]
	return ok
}

func normalize(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
