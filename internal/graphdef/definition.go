// Package graphdef loads decision graphs from YAML definitions.
//
// A definition lists named nodes. Each node either holds business rules or
// an experiment block, and points to its successors by name. Build turns the
// definition into a static graph of decision nodes where a node referenced
// from several places is a single shared instance.
package graphdef

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rafaeljc/arbiter/internal/ruleengine"
)

// Definition is the root of a graph file.
type Definition struct {
	// Root names the node where every walk starts.
	Root string `yaml:"root"`

	// Defaults seeds the result fields before the walk.
	Defaults map[string]any `yaml:"defaults"`

	Nodes []NodeDef `yaml:"nodes"`
}

// NodeDef declares one node.
type NodeDef struct {
	Name       string            `yaml:"name"`
	Rules      []ruleengine.Rule `yaml:"rules"`
	OnSuccess  string            `yaml:"on_success"`
	OnFailure  string            `yaml:"on_failure"`
	Experiment *ExperimentDef    `yaml:"experiment"`
}

// ExperimentDef declares the gate of an experiment node.
type ExperimentDef struct {
	ID          int64  `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Version     int    `yaml:"version"`

	// Ratio and Active default to 1 and true when omitted.
	Ratio  *float64 `yaml:"ratio"`
	Active *bool    `yaml:"active"`

	// CounterLimit caps participation using the shared counter store.
	CounterLimit *int64 `yaml:"counter_limit"`

	// CountEveryAdvance consumes quota for every created advance instead of
	// only the subject's first one.
	CountEveryAdvance bool `yaml:"count_every_advance"`

	// SuccessField is the boolean result field that marks a visit successful.
	SuccessField string `yaml:"success_field"`

	Treatment map[string]any `yaml:"treatment"`
}

// Parse decodes a YAML definition. Unknown keys are rejected.
func Parse(r io.Reader) (*Definition, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var def Definition
	if err := dec.Decode(&def); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("graph definition is empty")
		}
		return nil, fmt.Errorf("failed to parse graph definition: %w", err)
	}
	return &def, nil
}

// ParseBytes is Parse over an in-memory document.
func ParseBytes(data []byte) (*Definition, error) {
	return Parse(bytes.NewReader(data))
}

// LoadFile reads and parses the definition stored at path.
func LoadFile(path string) (*Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open graph definition: %w", err)
	}
	defer f.Close()

	def, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}
