package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"prep-service/internal/model"
)

//go:embed default_steps.yaml
var defaultSteps []byte

// Catalog is the ordered list of step definitions every preparation is measured against.
type Catalog struct {
	steps []model.StepDefinition
	index map[model.StepKind]int
}

type catalogFile struct {
	Steps []model.StepDefinition `yaml:"steps"`
}

func Default() *Catalog {
	c, err := Parse(defaultSteps)
	if err != nil {
		panic(fmt.Sprintf("default step catalog: %v", err))
	}
	return c
}

// Load reads a catalog file, falling back to the embedded default when path is empty.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read step catalog: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse step catalog: %w", err)
	}
	return New(file.Steps)
}

func New(steps []model.StepDefinition) (*Catalog, error) {
	c := &Catalog{
		steps: make([]model.StepDefinition, 0, len(steps)),
		index: make(map[model.StepKind]int, len(steps)),
	}
	for _, def := range steps {
		kind := model.StepKind(strings.TrimSpace(string(def.Step)))
		if kind == "" {
			return nil, fmt.Errorf("step catalog entry %d has no step kind", len(c.steps)+1)
		}
		if _, dup := c.index[kind]; dup {
			return nil, fmt.Errorf("step %q defined twice", kind)
		}
		def.Step = kind
		if def.Label == "" {
			def.Label = string(kind)
		}
		c.index[kind] = len(c.steps)
		c.steps = append(c.steps, def)
	}
	return c, nil
}

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.steps)
}

func (c *Catalog) Steps() []model.StepDefinition {
	if c == nil {
		return nil
	}
	out := make([]model.StepDefinition, len(c.steps))
	copy(out, c.steps)
	return out
}

func (c *Catalog) Lookup(kind model.StepKind) (model.StepDefinition, int, bool) {
	if c == nil {
		return model.StepDefinition{}, -1, false
	}
	i, ok := c.index[kind]
	if !ok {
		return model.StepDefinition{}, -1, false
	}
	return c.steps[i], i, true
}

func (c *Catalog) Contains(kind model.StepKind) bool {
	_, _, ok := c.Lookup(kind)
	return ok
}
