// Package cli implements the taskbench command-line interface.
package cli

import (
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configPath string
	// flags holds flag values; only flags set on the command line are
	// copied over config.
	flags  Config
	config Config
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: log.NewWithOptions(w, log.Options{
			ReportTimestamp: true,
			TimeFormat:      "15:04:05.00",
			Level:           level,
		}),
		flags:  DefaultConfig(),
		config: DefaultConfig(),
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "taskbench",
		Short: "taskbench runs and measures flowgraph workloads",
		Long: `taskbench exercises the flowgraph work-stealing executor and pipeline
engine with synthetic workloads, compares the executor with goroutine pools,
and dumps sample task graphs in DOT format.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.loadConfig(cmd.Flags().Changed)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&c.configPath, "config", "c", "", "TOML config file")
	pf.IntVarP(&c.flags.Workers, "workers", "w", c.flags.Workers, "number of executor workers")
	pf.StringVar(&c.flags.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	pf.BoolVar(&c.flags.Hold, "hold", false, "keep serving metrics after the workload until interrupted")
	pf.StringVar(&c.flags.Trace, "trace", "", "write a Chrome trace of the last round to this file")
	pf.BoolVar(&c.flags.LogTasks, "log-tasks", false, "log every task entry and exit at debug level")
	pf.StringVar(&c.flags.Redis.Addr, "redis-addr", "", "append task events to a Redis stream at this address")
	pf.StringVar(&c.flags.Redis.Stream, "redis-stream", c.flags.Redis.Stream, "Redis stream key")

	root.AddCommand(c.graphCommand())
	root.AddCommand(c.pipelineCommand())
	root.AddCommand(c.compareCommand())
	root.AddCommand(c.dumpCommand())

	return root
}

// loadConfig reads the config file, if any, and applies the flags that
// were set explicitly.
func (c *CLI) loadConfig(changed func(name string) bool) error {
	cfg := DefaultConfig()
	if c.configPath != "" {
		var err error
		if cfg, err = LoadConfig(c.configPath); err != nil {
			return err
		}
		c.Logger.Debug("config loaded", "path", c.configPath)
	}

	f := c.flags
	overlay := map[string]func(){
		"workers":      func() { cfg.Workers = f.Workers },
		"metrics-addr": func() { cfg.MetricsAddr = f.MetricsAddr },
		"hold":         func() { cfg.Hold = f.Hold },
		"trace":        func() { cfg.Trace = f.Trace },
		"log-tasks":    func() { cfg.LogTasks = f.LogTasks },
		"redis-addr":   func() { cfg.Redis.Addr = f.Redis.Addr },
		"redis-stream": func() { cfg.Redis.Stream = f.Redis.Stream },
		"shape":        func() { cfg.Graph.Shape = f.Graph.Shape },
		"tasks":        func() { cfg.Graph.Tasks = f.Graph.Tasks },
		"width":        func() { cfg.Graph.Width = f.Graph.Width },
		"work":         func() { cfg.Graph.Work = f.Graph.Work; cfg.Pipeline.Work = f.Pipeline.Work },
		"rounds":       func() { cfg.Graph.Rounds = f.Graph.Rounds; cfg.Pipeline.Rounds = f.Pipeline.Rounds },
		"lines":        func() { cfg.Pipeline.Lines = f.Pipeline.Lines },
		"layout":       func() { cfg.Pipeline.Layout = f.Pipeline.Layout },
		"tokens":       func() { cfg.Pipeline.Tokens = f.Pipeline.Tokens },
	}
	for name, apply := range overlay {
		if changed(name) {
			apply()
		}
	}

	if err := cfg.validate(); err != nil {
		return err
	}
	c.config = cfg
	return nil
}
