// Package actions resolves a content type into ordered intents and the
// concrete actions implementing them. The tables are data, not code: defaults
// are embedded YAML and can be replaced wholesale from a file.
package actions

import (
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/snaplens/snaplens/internal/classify"
)

//go:embed tables.yaml
var defaultTablesYAML []byte

// Action is one presentable operation implementing an intent.
type Action struct {
	Label string `yaml:"label" json:"label"`
	Kind  string `yaml:"kind" json:"kind"`
}

// Tables holds the two fixed mappings: content type -> ordered intents, and
// intent -> ordered actions.
type Tables struct {
	Intents map[string][]string `yaml:"intents"`
	Actions map[string][]Action `yaml:"actions"`
}

// Resolver answers intent/action lookups against one immutable table set.
type Resolver struct {
	tables Tables
}

// NewResolver returns a resolver over the embedded default tables.
func NewResolver() *Resolver {
	t, err := parseTables(defaultTablesYAML)
	if err != nil {
		// The embedded tables are compiled in; a parse failure is a build defect.
		panic(fmt.Sprintf("actions: embedded tables invalid: %v", err))
	}
	return &Resolver{tables: *t}
}

// LoadTables reads a replacement table set from YAML.
func LoadTables(r io.Reader) (*Tables, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read tables: %w", err)
	}
	return parseTables(b)
}

// LoadTablesFile reads a replacement table set from a YAML file.
func LoadTablesFile(path string) (*Tables, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tables file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	return LoadTables(f)
}

// NewResolverWithTables returns a resolver over a custom table set.
func NewResolverWithTables(t Tables) *Resolver {
	return &Resolver{tables: t}
}

func parseTables(b []byte) (*Tables, error) {
	var t Tables
	if err := yaml.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("parse tables yaml: %w", err)
	}
	if t.Intents == nil {
		t.Intents = map[string][]string{}
	}
	if t.Actions == nil {
		t.Actions = map[string][]Action{}
	}
	return &t, nil
}

// Resolve looks up the ordered intents for a content type and concatenates,
// in intent order, each intent's actions. A content type with no entry yields
// an empty intent list; an intent with no entry contributes no actions.
// Duplicates are preserved: callers wanting uniqueness deduplicate themselves.
func (r *Resolver) Resolve(ct classify.ContentType) ([]string, []Action) {
	intents := r.tables.Intents[string(ct)]
	var acts []Action
	for _, intent := range intents {
		acts = append(acts, r.tables.Actions[intent]...)
	}
	return intents, acts
}
