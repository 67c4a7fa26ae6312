// Package config loads controller settings.
// Precedence, highest first: command-line flags, TRACK1_* environment
// variables, the config file (.yaml, .yml or .toml), defaults.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/track1-autonomy/internal/orchestrator"
	"github.com/danielpatrickdp/track1-autonomy/internal/perception"
	"github.com/danielpatrickdp/track1-autonomy/internal/planner"
	"github.com/danielpatrickdp/track1-autonomy/internal/policy"
	"github.com/danielpatrickdp/track1-autonomy/internal/world"
)

// #region types

// Config holds every controller setting.
type Config struct {
	Loop       LoopConfig       `yaml:"loop" toml:"loop"`
	Goal       GoalConfig       `yaml:"goal" toml:"goal"`
	Sim        SimConfig        `yaml:"sim" toml:"sim"`
	Perception PerceptionConfig `yaml:"perception" toml:"perception"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" toml:"telemetry"`
	Policy     PolicyConfig     `yaml:"policy" toml:"policy"`
	Store      StoreConfig      `yaml:"store" toml:"store"`
}

// LoopConfig holds the orchestrator budgets.
type LoopConfig struct {
	MaxRetriesPerStep int    `yaml:"max_retries_per_step" toml:"max_retries_per_step"`
	MaxReplans        int    `yaml:"max_replans" toml:"max_replans"`
	MaxTicks          int    `yaml:"max_ticks" toml:"max_ticks"`
	SuccessWindow     int    `yaml:"success_window" toml:"success_window"`
	Instruction       string `yaml:"instruction" toml:"instruction"`
}

// GoalConfig names the object class to move and where to put it.
type GoalConfig struct {
	Target    string `yaml:"target" toml:"target"`
	Container string `yaml:"container" toml:"container"`
}

// SimConfig seeds the simulated robot. A nil Seed draws a random one.
type SimConfig struct {
	Seed     *int64 `yaml:"seed" toml:"seed"`
	Episodes int    `yaml:"episodes" toml:"episodes"`
}

// PerceptionConfig tunes fusion and the planner's search threshold.
type PerceptionConfig struct {
	ConfidenceDecay        float64 `yaml:"confidence_decay" toml:"confidence_decay"`
	BlendPrevious          float64 `yaml:"blend_previous" toml:"blend_previous"`
	BlendNew               float64 `yaml:"blend_new" toml:"blend_new"`
	MinConfidence          float64 `yaml:"min_confidence" toml:"min_confidence"`
	PruneBelow             float64 `yaml:"prune_below" toml:"prune_below"`
	LowConfidenceThreshold float64 `yaml:"low_confidence_threshold" toml:"low_confidence_threshold"`
}

// TelemetryConfig selects frame consumers. Empty strings disable a sink.
type TelemetryConfig struct {
	JSONLPath   string `yaml:"jsonl_path" toml:"jsonl_path"`
	Stdout      bool   `yaml:"stdout" toml:"stdout"`
	UDPAddr     string `yaml:"udp_addr" toml:"udp_addr"`
	FeedAddr    string `yaml:"feed_addr" toml:"feed_addr"`
	FeedHistory int    `yaml:"feed_history" toml:"feed_history"`
	AsyncBuffer int    `yaml:"async_buffer" toml:"async_buffer"`
}

// PolicyConfig selects the step router.
type PolicyConfig struct {
	Mode      string `yaml:"mode" toml:"mode"`
	Addr      string `yaml:"addr" toml:"addr"`
	TimeoutMs int    `yaml:"timeout_ms" toml:"timeout_ms"`
}

// StoreConfig locates the sqlite episode store. An empty path disables it.
type StoreConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// #endregion types

// #region defaults

// Default returns the built-in settings.
func Default() Config {
	oc := orchestrator.DefaultConfig()
	pc := perception.DefaultConfig()
	return Config{
		Loop: LoopConfig{
			MaxRetriesPerStep: oc.MaxRetriesPerStep,
			MaxReplans:        oc.MaxReplans,
			MaxTicks:          oc.MaxTicks,
			SuccessWindow:     oc.SuccessWindow,
			Instruction:       oc.Instruction,
		},
		Goal: GoalConfig{
			Target:    string(world.ClassCup),
			Container: string(world.ClassBin),
		},
		Sim: SimConfig{Episodes: 1},
		Perception: PerceptionConfig{
			ConfidenceDecay:        pc.ConfidenceDecay,
			BlendPrevious:          pc.BlendPrevious,
			BlendNew:               pc.BlendNew,
			MinConfidence:          pc.MinConfidence,
			PruneBelow:             pc.PruneBelow,
			LowConfidenceThreshold: planner.DefaultConfig().LowConfidenceThreshold,
		},
		Telemetry: TelemetryConfig{
			Stdout:      true,
			FeedHistory: 1000,
			AsyncBuffer: 256,
		},
		Policy: PolicyConfig{
			Mode:      string(policy.ModeSymbolic),
			TimeoutMs: int(policy.DefaultTimeout / time.Millisecond),
		},
	}
}

// #endregion defaults

// #region load

// Load reads path (if non-empty) over the defaults, applies TRACK1_*
// environment overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return fmt.Errorf("config %s: unsupported extension %q", path, ext)
	}
	log.Printf("[CFG] loaded %s", path)
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("TRACK1_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Sim.Seed = &n
		} else {
			log.Printf("[CFG] ignoring TRACK1_SEED=%q: %v", v, err)
		}
	}
	envInt("TRACK1_EPISODES", &cfg.Sim.Episodes)
	envInt("TRACK1_MAX_TICKS", &cfg.Loop.MaxTicks)
	envInt("TRACK1_MAX_RETRIES", &cfg.Loop.MaxRetriesPerStep)
	envInt("TRACK1_MAX_REPLANS", &cfg.Loop.MaxReplans)
	envInt("TRACK1_POLICY_TIMEOUT_MS", &cfg.Policy.TimeoutMs)
	envStr("TRACK1_GOAL_TARGET", &cfg.Goal.Target)
	envStr("TRACK1_GOAL_CONTAINER", &cfg.Goal.Container)
	envStr("TRACK1_DB", &cfg.Store.Path)
	envStr("TRACK1_POLICY_MODE", &cfg.Policy.Mode)
	envStr("TRACK1_POLICY_ADDR", &cfg.Policy.Addr)
	envStr("TRACK1_JSONL", &cfg.Telemetry.JSONLPath)
	envStr("TRACK1_UDP", &cfg.Telemetry.UDPAddr)
	envStr("TRACK1_FEED_ADDR", &cfg.Telemetry.FeedAddr)
	if v := os.Getenv("TRACK1_STDOUT"); v != "" {
		cfg.Telemetry.Stdout = v == "true" || v == "1"
	}
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[CFG] ignoring %s=%q: %v", key, v, err)
		return
	}
	*dst = n
}

// #endregion load

// #region validate

// Validate rejects settings the loop cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Loop.MaxRetriesPerStep < 0 {
		errs = append(errs, fmt.Errorf("loop.max_retries_per_step must be >= 0, got %d", c.Loop.MaxRetriesPerStep))
	}
	if c.Loop.MaxReplans < 0 {
		errs = append(errs, fmt.Errorf("loop.max_replans must be >= 0, got %d", c.Loop.MaxReplans))
	}
	if c.Loop.MaxTicks < 0 {
		errs = append(errs, fmt.Errorf("loop.max_ticks must be >= 0, got %d", c.Loop.MaxTicks))
	}
	if c.Loop.SuccessWindow < 1 {
		errs = append(errs, fmt.Errorf("loop.success_window must be >= 1, got %d", c.Loop.SuccessWindow))
	}
	if c.Sim.Episodes < 1 {
		errs = append(errs, fmt.Errorf("sim.episodes must be >= 1, got %d", c.Sim.Episodes))
	}
	if _, ok := world.ParseObjectClass(c.Goal.Target); !ok {
		errs = append(errs, fmt.Errorf("goal.target: unknown class %q", c.Goal.Target))
	}
	if _, ok := world.ParseObjectClass(c.Goal.Container); !ok {
		errs = append(errs, fmt.Errorf("goal.container: unknown class %q", c.Goal.Container))
	}
	p := c.Perception
	if p.ConfidenceDecay <= 0 || p.ConfidenceDecay > 1 {
		errs = append(errs, fmt.Errorf("perception.confidence_decay must be in (0,1], got %v", p.ConfidenceDecay))
	}
	if p.MinConfidence < 0 || p.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("perception.min_confidence must be in [0,1], got %v", p.MinConfidence))
	}
	if p.BlendPrevious < 0 || p.BlendNew < 0 {
		errs = append(errs, errors.New("perception blend weights must be >= 0"))
	}
	mode, err := policy.ParseMode(c.Policy.Mode)
	if err != nil {
		errs = append(errs, fmt.Errorf("policy.mode: %w", err))
	} else if mode == policy.ModeGRPC && c.Policy.Addr == "" {
		errs = append(errs, errors.New("policy.addr is required for grpc mode"))
	}
	if c.Policy.TimeoutMs < 0 {
		errs = append(errs, fmt.Errorf("policy.timeout_ms must be >= 0, got %d", c.Policy.TimeoutMs))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// #endregion validate

// #region conversions

// Orchestrator returns the loop budgets.
func (c Config) Orchestrator() orchestrator.Config {
	return orchestrator.Config{
		MaxRetriesPerStep: c.Loop.MaxRetriesPerStep,
		MaxReplans:        c.Loop.MaxReplans,
		MaxTicks:          c.Loop.MaxTicks,
		SuccessWindow:     c.Loop.SuccessWindow,
		Instruction:       c.Loop.Instruction,
	}
}

// Fusion returns the perception fusion constants.
func (c Config) Fusion() perception.Config {
	pc := perception.DefaultConfig()
	pc.ConfidenceDecay = c.Perception.ConfidenceDecay
	pc.BlendPrevious = c.Perception.BlendPrevious
	pc.BlendNew = c.Perception.BlendNew
	pc.MinConfidence = c.Perception.MinConfidence
	pc.PruneBelow = c.Perception.PruneBelow
	return pc
}

// Planner returns the planner thresholds.
func (c Config) Planner() planner.Config {
	return planner.Config{LowConfidenceThreshold: c.Perception.LowConfidenceThreshold}
}

// GoalValue returns the episode goal. Call after Validate.
func (c Config) GoalValue() world.Goal {
	target, _ := world.ParseObjectClass(c.Goal.Target)
	g := world.NewGoal(target)
	if container, ok := world.ParseObjectClass(c.Goal.Container); ok {
		g.ContainerClass = container
	}
	return g
}

// PolicyTimeout returns the per-call policy deadline.
func (c Config) PolicyTimeout() time.Duration {
	return time.Duration(c.Policy.TimeoutMs) * time.Millisecond
}

// #endregion conversions
