package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/tabletop/internal/engine"
)

// Scenario is a scripted game: a table, a sequence of player requests and
// assertions on the final state.
type Scenario struct {
	// Name uniquely identifies this scenario. It is also the game id.
	Name string `yaml:"name"`

	// Description explains what this scenario checks.
	Description string `yaml:"description"`

	// Setup is an optional CUE setup file, relative to the scenario file.
	// Without it the table is built from Players and Seed.
	Setup string `yaml:"setup,omitempty"`

	Players []string `yaml:"players,omitempty"`
	Seed    int64    `yaml:"seed,omitempty"`

	// Golden marks scenarios whose trace is compared against
	// testdata/golden/<name>.golden.
	Golden bool `yaml:"golden,omitempty"`

	Steps []Step `yaml:"steps"`

	// Assertions are checked once every step has run.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one request submitted to the engine.
type Step struct {
	Op      string              `yaml:"op"`
	Player  string              `yaml:"player"`
	Action  string              `yaml:"action,omitempty"`
	Choices map[string][]string `yaml:"choices,omitempty"`

	// Expect is checked against the step's outcome. A step without an
	// expect clause must succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect is a subset match on a step's outcome.
type Expect struct {
	// Error is the expected resolution code, e.g. INVALID_SELECTION.
	Error string `yaml:"error,omitempty"`

	Done    *bool    `yaml:"done,omitempty"`
	Active  string   `yaml:"active,omitempty"`
	Pending string   `yaml:"pending,omitempty"`
	Selects []string `yaml:"selects,omitempty"`
	Applied []string `yaml:"applied,omitempty"`
	Consent *bool    `yaml:"consent,omitempty"`
}

// Assertion checks the final state of the game.
type Assertion struct {
	// Type is one of prop, node, history, available, replay.
	Type string `yaml:"type"`

	// Node is "type/id" (prop, node).
	Node string `yaml:"node,omitempty"`

	// Prop and Equals (prop): Equals is compared as an IR value.
	Prop   string `yaml:"prop,omitempty"`
	Equals any    `yaml:"equals,omitempty"`

	// Exists and Parent (node): Parent is "type/id".
	Exists *bool  `yaml:"exists,omitempty"`
	Parent string `yaml:"parent,omitempty"`

	// Nodes and Events (history) count history nodes and events.
	Nodes  *int `yaml:"nodes,omitempty"`
	Events *int `yaml:"events,omitempty"`

	// Player and Actions (available) list what the player may start.
	Player  string   `yaml:"player,omitempty"`
	Actions []string `yaml:"actions,omitempty"`
}

// Assertion type constants.
const (
	AssertProp      = "prop"
	AssertNode      = "node"
	AssertHistory   = "history"
	AssertAvailable = "available"
	AssertReplay    = "replay"
)

var stepOps = []engine.Op{
	engine.OpStart, engine.OpContinue, engine.OpCancel,
	engine.OpConsent, engine.OpDecline, engine.OpView,
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected and the setup path is resolved against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if s.Setup != "" && !filepath.IsAbs(s.Setup) {
		s.Setup = filepath.Join(filepath.Dir(path), s.Setup)
	}
	return s, nil
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

// LoadDir loads every *.yaml scenario of dir, sorted by file name.
func LoadDir(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	slices.Sort(paths)

	out := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Setup == "" && len(s.Players) == 0 {
		return fmt.Errorf("players are required without a setup file")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step) error {
	if !slices.Contains(stepOps, engine.Op(step.Op)) {
		return fmt.Errorf("unknown op %q", step.Op)
	}
	if step.Player == "" {
		return fmt.Errorf("player is required")
	}
	switch engine.Op(step.Op) {
	case engine.OpStart:
		if step.Action == "" {
			return fmt.Errorf("start requires an action")
		}
	case engine.OpContinue:
		if step.Action != "" {
			return fmt.Errorf("continue takes choices, not an action")
		}
	}
	if step.Op != string(engine.OpContinue) && len(step.Choices) > 0 {
		return fmt.Errorf("only continue takes choices")
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertProp:
		if a.Node == "" || a.Prop == "" {
			return fmt.Errorf("prop requires node and prop")
		}
		if a.Equals == nil {
			return fmt.Errorf("prop requires equals")
		}
	case AssertNode:
		if a.Node == "" {
			return fmt.Errorf("node requires node")
		}
		if a.Exists == nil && a.Parent == "" {
			return fmt.Errorf("node requires exists or parent")
		}
	case AssertHistory:
		if a.Nodes == nil && a.Events == nil {
			return fmt.Errorf("history requires nodes or events")
		}
	case AssertAvailable:
		if a.Player == "" {
			return fmt.Errorf("available requires player")
		}
	case AssertReplay:
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
