package cli

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	gferrors "github.com/vnykmshr/flowgraph/pkg/common/errors"
	"github.com/vnykmshr/flowgraph/pkg/common/validation"
)

// Duration is a time.Duration that decodes from TOML strings like "50us".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config is the taskbench configuration. It is read from an optional TOML
// file; command-line flags override file values.
//
//	workers = 8
//	metrics_addr = ":9090"
//
//	[redis]
//	addr = "localhost:6379"
//
//	[pipeline]
//	lines = 4
//	layout = "spsp"
//	tokens = 100000
type Config struct {
	Workers     int    `toml:"workers"`
	MetricsAddr string `toml:"metrics_addr"`
	// Hold keeps the metrics endpoint up after the workload finished.
	Hold        bool   `toml:"hold"`

	// Trace is a file the Chrome trace of the last round is written to.
	Trace    string `toml:"trace"`
	LogTasks bool   `toml:"log_tasks"`

	Redis    RedisConfig    `toml:"redis"`
	Graph    GraphConfig    `toml:"graph"`
	Pipeline PipelineConfig `toml:"pipeline"`
}

// RedisConfig enables the Redis stream observer when Addr is set.
type RedisConfig struct {
	Addr   string `toml:"addr"`
	Stream string `toml:"stream"`
	MaxLen int64  `toml:"max_len"`
}

// GraphConfig describes the graph workload used by graph and compare.
type GraphConfig struct {
	// Shape is one of independent, chain or layered.
	Shape  string   `toml:"shape"`
	Tasks  int      `toml:"tasks"`
	Width  int      `toml:"width"`
	Work   Duration `toml:"work"`
	Rounds int      `toml:"rounds"`
}

// PipelineConfig describes the pipeline workload.
type PipelineConfig struct {
	Lines  int      `toml:"lines"`
	Layout string   `toml:"layout"`
	Tokens uint64   `toml:"tokens"`
	Work   Duration `toml:"work"`
	Rounds int      `toml:"rounds"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Workers: runtime.NumCPU(),
		Redis: RedisConfig{
			Stream: "flowgraph:tasks",
		},
		Graph: GraphConfig{
			Shape:  "independent",
			Tasks:  10000,
			Width:  32,
			Rounds: 5,
		},
		Pipeline: PipelineConfig{
			Lines:  4,
			Layout: "spsp",
			Tokens: 10000,
			Rounds: 3,
		},
	}
}

// LoadConfig reads path over the defaults. Unknown keys are rejected.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return cfg, fmt.Errorf("config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	return cfg, nil
}

func (c Config) validate() error {
	const module = "taskbench"
	checks := []error{
		validation.ValidatePositive(module, "workers", c.Workers),
		validation.ValidatePositive(module, "graph.tasks", c.Graph.Tasks),
		validation.ValidatePositive(module, "graph.width", c.Graph.Width),
		validation.ValidatePositive(module, "graph.rounds", c.Graph.Rounds),
		validation.ValidateNonNegativeDuration(module, "graph.work", c.Graph.Work.Duration),
		validation.ValidatePositive(module, "pipeline.lines", c.Pipeline.Lines),
		validation.ValidatePositive(module, "pipeline.rounds", c.Pipeline.Rounds),
		validation.ValidateNonNegativeDuration(module, "pipeline.work", c.Pipeline.Work.Duration),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	switch c.Graph.Shape {
	case shapeIndependent, shapeChain, shapeLayered:
	default:
		return gferrors.NewValidationError(module, "graph.shape", c.Graph.Shape, "unknown shape").
			WithHint("use independent, chain or layered")
	}
	if c.Pipeline.Tokens == 0 {
		return gferrors.NewValidationError(module, "pipeline.tokens", c.Pipeline.Tokens, "must be positive")
	}
	return nil
}
