package main

import (
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/track1-autonomy/internal/config"
	"github.com/danielpatrickdp/track1-autonomy/internal/logging"
	"github.com/danielpatrickdp/track1-autonomy/internal/orchestrator"
	"github.com/danielpatrickdp/track1-autonomy/internal/perception"
	"github.com/danielpatrickdp/track1-autonomy/internal/planner"
	"github.com/danielpatrickdp/track1-autonomy/internal/policy"
	"github.com/danielpatrickdp/track1-autonomy/internal/robot"
	"github.com/danielpatrickdp/track1-autonomy/internal/store"
	"github.com/danielpatrickdp/track1-autonomy/internal/telemetry"
	"github.com/danielpatrickdp/track1-autonomy/internal/world"
)

// #region loop-flags

// loopFlags override config values when set on the command line.
type loopFlags struct {
	seed       int64
	episodes   int
	target     string
	maxTicks   int
	maxRetries int
	maxReplans int
	jsonl      string
	udp        string
	feedAddr   string
	db         string
	policyMode string
	policyAddr string
}

func (f *loopFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.Int64Var(&f.seed, "seed", defaultSeed, "base random seed (episode i uses seed+i)")
	fs.IntVar(&f.episodes, "episodes", 1, "number of episodes")
	fs.StringVar(&f.target, "target", "", "target object class")
	fs.IntVar(&f.maxTicks, "max-ticks", 0, "tick budget per episode")
	fs.IntVar(&f.maxRetries, "max-retries-step", 0, "retries allowed per plan step")
	fs.IntVar(&f.maxReplans, "max-replans", 0, "replans allowed per episode")
	fs.StringVar(&f.jsonl, "jsonl", "", "write frames to this JSONL file")
	fs.StringVar(&f.udp, "udp", "", "send frames to this UDP host:port")
	fs.StringVar(&f.feedAddr, "feed", "", "serve the HTTP telemetry feed on this address")
	fs.StringVar(&f.db, "db", "", "record episodes in this sqlite database")
	fs.StringVar(&f.policyMode, "policy", "", "policy mode (symbolic or grpc)")
	fs.StringVar(&f.policyAddr, "policy-addr", "", "gRPC policy server address")
}

// apply copies every flag the user set onto cfg and revalidates it.
func (f *loopFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	fs := cmd.Flags()
	if fs.Changed("seed") {
		seed := f.seed
		cfg.Sim.Seed = &seed
	}
	if fs.Changed("episodes") {
		cfg.Sim.Episodes = f.episodes
	}
	if fs.Changed("target") {
		cfg.Goal.Target = f.target
	}
	if fs.Changed("max-ticks") {
		cfg.Loop.MaxTicks = f.maxTicks
	}
	if fs.Changed("max-retries-step") {
		cfg.Loop.MaxRetriesPerStep = f.maxRetries
	}
	if fs.Changed("max-replans") {
		cfg.Loop.MaxReplans = f.maxReplans
	}
	if fs.Changed("jsonl") {
		cfg.Telemetry.JSONLPath = f.jsonl
	}
	if fs.Changed("udp") {
		cfg.Telemetry.UDPAddr = f.udp
	}
	if fs.Changed("feed") {
		cfg.Telemetry.FeedAddr = f.feedAddr
	}
	if fs.Changed("db") {
		cfg.Store.Path = f.db
	}
	if fs.Changed("policy") {
		cfg.Policy.Mode = f.policyMode
	}
	if fs.Changed("policy-addr") {
		cfg.Policy.Addr = f.policyAddr
	}
	return cfg.Validate()
}

// defaultSeed is the base seed when neither config nor flags set one.
const defaultSeed = 7

func baseSeed(cfg config.Config) int64 {
	if cfg.Sim.Seed != nil {
		return *cfg.Sim.Seed
	}
	return defaultSeed
}

// #endregion loop-flags

// #region runtime

// runtime owns every resource one command builds from config.
type runtime struct {
	cfg    config.Config
	sink   *telemetry.MultiSink
	feed   *telemetry.Feed
	store  *store.Store
	policy *policy.Router
	client *policy.Client
	logger *log.Logger
}

// newRuntime builds sinks, store and policy from cfg. stdout receives the
// compact frame lines when cfg.Telemetry.Stdout is set. extra sinks are
// appended after the configured ones.
func newRuntime(cfg config.Config, stdout io.Writer, logger *log.Logger, extra ...telemetry.Sink) (rt *runtime, err error) {
	rt = &runtime{cfg: cfg, sink: telemetry.NewMultiSink(), logger: logger}
	defer func() {
		if err != nil {
			rt.Close()
			rt = nil
		}
	}()

	if cfg.Telemetry.Stdout && stdout != nil {
		rt.sink.Add(telemetry.NewStdoutSink(stdout))
	}
	if cfg.Telemetry.JSONLPath != "" {
		js, err := telemetry.NewJSONLSink(cfg.Telemetry.JSONLPath)
		if err != nil {
			return rt, err
		}
		rt.sink.Add(js)
	}
	if cfg.Telemetry.UDPAddr != "" {
		us, err := telemetry.NewUDPSink(cfg.Telemetry.UDPAddr)
		if err != nil {
			return rt, err
		}
		rt.sink.Add(telemetry.NewAsyncSink(us, cfg.Telemetry.AsyncBuffer))
	}
	if cfg.Telemetry.FeedAddr != "" {
		rt.feed = telemetry.NewFeed(cfg.Telemetry.FeedHistory)
		if err := rt.feed.Start(cfg.Telemetry.FeedAddr); err != nil {
			logger.Printf("[FEED] disabled: %v", err)
			rt.feed = nil
		} else {
			rt.sink.Add(rt.feed)
		}
	}
	if cfg.Store.Path != "" {
		st, err := store.NewStore(cfg.Store.Path)
		if err != nil {
			return rt, fmt.Errorf("open store: %w", err)
		}
		rt.store = st
		rt.sink.Add(store.NewFrameSink(st))
		rt.sink.Add(logging.NewTransitionLog(st.DB()))
	}
	for _, s := range extra {
		rt.sink.Add(s)
	}

	mode, err := policy.ParseMode(cfg.Policy.Mode)
	if err != nil {
		return rt, err
	}
	switch mode {
	case policy.ModeGRPC:
		client, err := policy.Dial(cfg.Policy.Addr)
		if err != nil {
			return rt, err
		}
		rt.client = client
		rt.policy, err = policy.NewRouter(mode, client, cfg.PolicyTimeout())
		if err != nil {
			return rt, err
		}
	default:
		rt.policy = policy.Symbolic()
	}
	return rt, nil
}

// errPolicyNeedsApplier rejects a learned policy for a robot that cannot apply raw actions.
var errPolicyNeedsApplier = errors.New("policy mode requires a robot that applies raw actions")

// orchestrator wires an orchestrator for r with the configured components.
// A non-symbolic policy is only accepted when r implements robot.ActionApplier;
// the simulated robot does not.
func (rt *runtime) orchestrator(r robot.Robot) (*orchestrator.Orchestrator, error) {
	if rt.policy.Mode() != policy.ModeSymbolic {
		if _, ok := r.(robot.ActionApplier); !ok {
			return nil, fmt.Errorf("%w: %s with %T", errPolicyNeedsApplier, rt.policy.Mode(), r)
		}
	}
	return orchestrator.New(r, rt.sink,
		orchestrator.WithConfig(rt.cfg.Orchestrator()),
		orchestrator.WithFusion(perception.NewFusion(rt.cfg.Fusion())),
		orchestrator.WithPlanner(planner.New(rt.cfg.Planner())),
		orchestrator.WithPolicy(rt.policy),
		orchestrator.WithLogger(rt.logger),
	), nil
}

// record stores the episode row. Frames were already streamed by the frame sink.
func (rt *runtime) record(res orchestrator.EpisodeResult) error {
	if rt.store == nil {
		return nil
	}
	_, err := rt.store.RecordEpisode(store.EpisodeRecord{
		ID:        res.ID,
		Target:    res.Goal.TargetClass,
		Container: res.Goal.ContainerClass,
		Seed:      res.Seed,
		Metrics:   res.Metrics,
	}, nil)
	return err
}

func (rt *runtime) goal() world.Goal { return rt.cfg.GoalValue() }

func episodeOptions(seed int64) orchestrator.EpisodeOptions {
	return orchestrator.EpisodeOptions{Seed: &seed}
}

// Close flushes sinks, then stops the feed, store and policy connection.
func (rt *runtime) Close() error {
	errs := []error{rt.sink.Close()}
	if rt.store != nil {
		errs = append(errs, rt.store.Close())
	}
	if rt.client != nil {
		errs = append(errs, rt.client.Close())
	}
	return errors.Join(errs...)
}

// #endregion runtime
