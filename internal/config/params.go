package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/vaxsim/internal/calibration"
	"github.com/banshee-data/vaxsim/internal/model"
)

// DefaultParamsPath is where the CLI looks for the parameter file.
const DefaultParamsPath = "params.yaml"

// Top-level keys of the parameter file.
const (
	keyBounds   = "bounds"
	keyBaseline = "baseline"
	keySweep    = "sweep"

	scenarioPrefix = "scenario_"
)

// Scenario keys that are not model parameters.
const (
	fieldRemarks     = "Remarks"
	fieldSeedMethod  = "seed_method"
	fieldEventSeries = "event_series"
	fieldStrategy    = "strategy"
)

// Scenario is one named parameter block of the file.
type Scenario struct {
	Name        string
	Params      model.Params
	Remarks     string
	SeedMethod  model.SeedMethod
	EventSeries []int
	Strategy    string
}

// Options returns model options for running the scenario.
func (s Scenario) Options() model.Options {
	return model.Options{
		Scenario: s.Name,
		Seeding: model.SeedingConfig{
			Method:      s.SeedMethod,
			EventSeries: s.EventSeries,
		},
	}
}

// ParamsFile is the parsed parameter file.
type ParamsFile struct {
	Bounds    calibration.Bounds
	Baseline  *Scenario
	Scenarios map[string]*Scenario // baseline and every scenario_* block
	Sweep     *Scenario
}

// LoadParamsFile reads a YAML parameter file. Only .yaml and .yml files up
// to 1MB are accepted.
func LoadParamsFile(path string) (*ParamsFile, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("params file must have .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat params file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("params file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read params file: %w", err)
	}
	pf, err := ParseParams(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cleanPath, err)
	}
	return pf, nil
}

// ParseParams decodes and validates parameter file contents.
func ParseParams(data []byte) (*ParamsFile, error) {
	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse params YAML: %w", err)
	}

	pf := &ParamsFile{Scenarios: make(map[string]*Scenario)}
	for key, node := range raw {
		switch {
		case key == keyBounds:
			b, err := decodeBounds(&node)
			if err != nil {
				return nil, err
			}
			pf.Bounds = b
		case key == keyBaseline || key == keySweep || strings.HasPrefix(key, scenarioPrefix):
			sc, err := decodeScenario(key, &node)
			if err != nil {
				return nil, err
			}
			if key == keySweep {
				pf.Sweep = sc
				continue
			}
			pf.Scenarios[key] = sc
			if key == keyBaseline {
				pf.Baseline = sc
			}
		}
	}

	if err := pf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	return pf, nil
}

func decodeBounds(node *yaml.Node) (calibration.Bounds, error) {
	var raw map[string][]float64
	if err := node.Decode(&raw); err != nil {
		return nil, fmt.Errorf("bounds: %w", err)
	}
	out := make(calibration.Bounds, len(raw))
	for name, v := range raw {
		if len(v) != 2 {
			return nil, fmt.Errorf("%w: bound %s needs [low, high], got %d values", model.ErrConfig, name, len(v))
		}
		out[name] = calibration.Bound{Low: v[0], High: v[1]}
	}
	return out, nil
}

func decodeScenario(name string, node *yaml.Node) (*Scenario, error) {
	var raw map[string]yaml.Node
	if err := node.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	sc := &Scenario{Name: name, Params: make(model.Params)}
	for key, v := range raw {
		var err error
		switch key {
		case fieldRemarks:
			err = v.Decode(&sc.Remarks)
		case fieldSeedMethod:
			var m string
			err = v.Decode(&m)
			sc.SeedMethod = model.SeedMethod(m)
		case fieldEventSeries:
			err = v.Decode(&sc.EventSeries)
		case fieldStrategy:
			err = v.Decode(&sc.Strategy)
		default:
			var f float64
			if err = v.Decode(&f); err != nil {
				err = fmt.Errorf("parameter must be numeric: %w", err)
			}
			sc.Params[key] = f
		}
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", name, key, err)
		}
	}
	return sc, nil
}

// Validate checks that a baseline exists and that every bound is ordered.
func (pf *ParamsFile) Validate() error {
	if pf.Baseline == nil {
		return fmt.Errorf("%w: missing baseline block", model.ErrConfig)
	}
	for _, name := range pf.Bounds.Names() {
		b := pf.Bounds[name]
		if b.Low > b.High {
			return fmt.Errorf("%w: bound %s has low %g above high %g", model.ErrConfig, name, b.Low, b.High)
		}
	}
	for _, sc := range pf.Scenarios {
		if sc.Strategy != "" {
			if _, err := model.ParseStrategy(sc.Strategy); err != nil {
				return fmt.Errorf("%s: %w", sc.Name, err)
			}
		}
	}
	return nil
}

// Scenario returns the named block; baseline and sweep are valid names.
func (pf *ParamsFile) Scenario(name string) (*Scenario, error) {
	if name == keySweep && pf.Sweep != nil {
		return pf.Sweep, nil
	}
	sc, ok := pf.Scenarios[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown scenario %q", model.ErrConfig, name)
	}
	return sc, nil
}

// ScenarioNames returns baseline first, then scenario_* blocks sorted.
func (pf *ParamsFile) ScenarioNames() []string {
	var names []string
	for name := range pf.Scenarios {
		if name != keyBaseline {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if pf.Baseline != nil {
		names = append([]string{keyBaseline}, names...)
	}
	return names
}

// OrderedScenarios returns the scenarios in ScenarioNames order.
func (pf *ParamsFile) OrderedScenarios() []*Scenario {
	names := pf.ScenarioNames()
	out := make([]*Scenario, len(names))
	for i, n := range names {
		out[i] = pf.Scenarios[n]
	}
	return out
}
