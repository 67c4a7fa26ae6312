package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/danielpatrickdp/track1-autonomy/internal/orchestrator"
	"github.com/danielpatrickdp/track1-autonomy/internal/world"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a scripted episode.
type Fixture struct {
	Description string          `json:"description"`
	Goal        FixtureGoal     `json:"goal"`
	Config      FixtureConfig   `json:"config"`
	Objects     []FixtureObject `json:"objects"`
	Script      Script          `json:"script"`
	Expected    FixtureExpected `json:"expected"`

	name string
}

// FixtureGoal names the target class; the container defaults to bin.
type FixtureGoal struct {
	Target    string `json:"target"`
	Container string `json:"container,omitempty"`
}

// FixtureConfig overrides orchestrator budgets. Zero values keep defaults.
type FixtureConfig struct {
	MaxRetriesPerStep *int `json:"max_retries_per_step,omitempty"`
	MaxReplans        *int `json:"max_replans,omitempty"`
	MaxTicks          *int `json:"max_ticks,omitempty"`
}

// FixtureObject is one ground-truth object of the scripted scene.
type FixtureObject struct {
	ID          string     `json:"id"`
	Class       string     `json:"cls"`
	Confidence  float64    `json:"confidence"`
	Visible     bool       `json:"visible"`
	InContainer bool       `json:"in_container"`
	Position    [3]float64 `json:"position"`
	// Hidden objects are not observed until a successful search for their class.
	Hidden bool `json:"hidden,omitempty"`
}

// Script lists per-action results consumed in order; exhausted queues succeed.
// AlwaysFail actions fail on every call.
type Script struct {
	Results    map[string][]bool `json:"results,omitempty"`
	AlwaysFail []string          `json:"always_fail,omitempty"`
}

// FixtureExpected is the outcome the episode must reproduce.
type FixtureExpected struct {
	Success       bool     `json:"success"`
	FailReason    string   `json:"fail_reason"`
	StepsExecuted *int     `json:"steps_executed,omitempty"`
	Retries       *int     `json:"retries,omitempty"`
	Replans       *int     `json:"replans,omitempty"`
	Actions       []string `json:"actions,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("fixture %s: %w", path, err)
	}
	f.name = filepath.Base(path)
	return &f, nil
}

// LoadDir loads every *.json fixture in dir, sorted by file name.
func LoadDir(dir string) ([]*Fixture, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", dir, err)
	}
	sort.Strings(paths)
	out := make([]*Fixture, 0, len(paths))
	for _, p := range paths {
		f, err := LoadFixture(p)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// Name returns the fixture's file name, or its description when built in code.
func (f *Fixture) Name() string {
	if f.name != "" {
		return f.name
	}
	return f.Description
}

func (f *Fixture) validate() error {
	if _, ok := world.ParseObjectClass(f.Goal.Target); !ok {
		return fmt.Errorf("unknown goal target %q", f.Goal.Target)
	}
	if f.Goal.Container != "" {
		if _, ok := world.ParseObjectClass(f.Goal.Container); !ok {
			return fmt.Errorf("unknown goal container %q", f.Goal.Container)
		}
	}
	seen := make(map[string]bool, len(f.Objects))
	for _, o := range f.Objects {
		if o.ID == "" || seen[o.ID] {
			return fmt.Errorf("object id %q empty or duplicated", o.ID)
		}
		seen[o.ID] = true
		if _, ok := world.ParseObjectClass(o.Class); !ok {
			return fmt.Errorf("object %s: unknown class %q", o.ID, o.Class)
		}
	}
	for name := range f.Script.Results {
		if err := checkScriptedAction(name); err != nil {
			return err
		}
	}
	for _, name := range f.Script.AlwaysFail {
		if err := checkScriptedAction(name); err != nil {
			return err
		}
	}
	return nil
}

func checkScriptedAction(name string) error {
	if name == ActionApply {
		return nil
	}
	_, err := world.ParseActionKind(name)
	return err
}

// ToGoal converts the fixture goal to a domain Goal.
func (f *Fixture) ToGoal() world.Goal {
	target, _ := world.ParseObjectClass(f.Goal.Target)
	g := world.NewGoal(target)
	if c, ok := world.ParseObjectClass(f.Goal.Container); ok {
		g.ContainerClass = c
	}
	return g
}

// ToConfig applies the fixture overrides to the default orchestrator config.
func (f *Fixture) ToConfig() orchestrator.Config {
	c := orchestrator.DefaultConfig()
	if f.Config.MaxRetriesPerStep != nil {
		c.MaxRetriesPerStep = *f.Config.MaxRetriesPerStep
	}
	if f.Config.MaxReplans != nil {
		c.MaxReplans = *f.Config.MaxReplans
	}
	if f.Config.MaxTicks != nil {
		c.MaxTicks = *f.Config.MaxTicks
	}
	return c
}

// ToObject converts a fixture object to a detection.
func (o FixtureObject) ToObject() world.DetectedObject {
	class, _ := world.ParseObjectClass(o.Class)
	return world.DetectedObject{
		ID:          o.ID,
		Class:       class,
		Position:    world.Vec3(o.Position),
		Confidence:  o.Confidence,
		Visible:     o.Visible,
		InContainer: o.InContainer,
	}
}

// #endregion fixture-loader
