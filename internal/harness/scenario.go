package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/tally/internal/eval"
)

// Scenario defines a conformance test scenario: one program run against
// one input, with an expected outcome and optional trace assertions.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Program is a .cue file or directory. Relative paths are resolved
	// against the scenario file's directory.
	Program string `yaml:"program"`

	// Bindings are extra globals, layered over the program's data block.
	Bindings yaml.Node `yaml:"bindings,omitempty"`

	// Input is the value the program runs against. Absent means null.
	Input yaml.Node `yaml:"input,omitempty"`

	// Expect is the expected outcome.
	Expect Expect `yaml:"expect"`

	// Assertions validate the stage trace.
	// Supported types: trace_contains, trace_order, trace_count, stage_count
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// RunID is an optional fixed run ID. Defaults to "test-run-default".
	RunID string `yaml:"run_id,omitempty"`

	// MaxSteps overrides the evaluator's step quota when non-zero.
	MaxSteps int `yaml:"max_steps,omitempty"`
}

// Expect holds exactly one of Value or Error.
type Expect struct {
	// Value is the expected result. Bags compare as multisets.
	Value yaml.Node `yaml:"value,omitempty"`

	// Error is the expected evaluation error code, e.g. "MISSING_FIELD".
	Error string `yaml:"error,omitempty"`
}

// HasValue reports whether a value is expected. A YAML null counts.
func (e Expect) HasValue() bool {
	return e.Value.Kind != 0
}

// Assertion validates the trace.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": a stage with Expr ran, optionally producing Output
	// - "trace_order": the Exprs stages ran in this relative order
	// - "trace_count": a stage with Expr ran exactly Count times
	// - "stage_count": exactly Count stages completed
	Type string `yaml:"type"`

	// Expr is the rendered stage, e.g. "<term count>".
	Expr string `yaml:"expr,omitempty"`

	// Output is the expected stage output (used by trace_contains).
	Output yaml.Node `yaml:"output,omitempty"`

	// Count is the expected number of occurrences or stages.
	Count int `yaml:"count,omitempty"`

	// Exprs is the expected stage order (used by trace_order).
	Exprs []string `yaml:"exprs,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertStageCount    = "stage_count"
)

// LoadScenario reads and parses a scenario YAML file. The program path is
// resolved against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the program path relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.Program != "" && !filepath.IsAbs(scenario.Program) && basePath != "" {
		scenario.Program = filepath.Join(basePath, scenario.Program)
	}
	if _, err := os.Stat(scenario.Program); err != nil {
		return nil, fmt.Errorf("invalid scenario: program not found: %s", scenario.Program)
	}

	return scenario, nil
}

// ParseScenario decodes scenario YAML without touching the filesystem.
// Unknown fields are rejected so typos surface as errors.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every .yaml/.yml scenario under dir, sorted by path.
// filter is an optional glob matched against the file name without its
// extension.
func LoadScenarios(dir, filter string) ([]*Scenario, error) {
	paths, err := FindScenarioFiles(dir, filter)
	if err != nil {
		return nil, err
	}

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// FindScenarioFiles lists scenario files under dir in sorted order.
func FindScenarioFiles(dir, filter string) ([]string, error) {
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			if ok, _ := filepath.Match(filter, name); !ok {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.Sort(files)
	return files, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Program == "" {
		return fmt.Errorf("program is required")
	}

	if s.Bindings.Kind != 0 && s.Bindings.Kind != yaml.MappingNode {
		return fmt.Errorf("bindings must be a mapping of name to value")
	}

	if s.MaxSteps < 0 {
		return fmt.Errorf("max_steps must be non-negative")
	}

	switch {
	case s.Expect.HasValue() && s.Expect.Error != "":
		return fmt.Errorf("expect: value and error are mutually exclusive")
	case !s.Expect.HasValue() && s.Expect.Error == "":
		return fmt.Errorf("expect: one of value or error is required")
	case s.Expect.Error != "" && !slices.Contains(eval.AllCodes, eval.ErrorCode(s.Expect.Error)):
		return fmt.Errorf("expect: unknown error code %q", s.Expect.Error)
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)

	case AssertTraceContains:
		if a.Expr == "" {
			return fmt.Errorf("assertions[%d]: trace_contains requires expr", index)
		}

	case AssertTraceOrder:
		if len(a.Exprs) < 2 {
			return fmt.Errorf("assertions[%d]: trace_order requires at least 2 exprs", index)
		}

	case AssertTraceCount:
		if a.Expr == "" {
			return fmt.Errorf("assertions[%d]: trace_count requires expr", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}

	case AssertStageCount:
		if a.Count <= 0 {
			return fmt.Errorf("assertions[%d]: stage_count requires a positive count", index)
		}

	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
