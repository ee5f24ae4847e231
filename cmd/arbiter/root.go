package main

import (
	"github.com/spf13/cobra"

	"github.com/rafaeljc/arbiter/internal/config"
	"github.com/rafaeljc/arbiter/internal/logger"
)

// rootFlags override the matching ARBITER_ENGINE_* settings when set.
type rootFlags struct {
	graphPath      string
	storeDriver    string
	counterBackend string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	a := &app{}

	cmd := &cobra.Command{
		Use:   "arbiter",
		Short: "Decision graph engine with embedded experiments",
		Long: `Arbiter walks a decision graph of business rules for a subject,
records an audit trail of every case and node, and runs experiments embedded
in the graph with ratio, quota and grandfathering limits.

Configuration is read from ARBITER_* environment variables. The flags below
take precedence over the matching variables.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.apply(cmd))
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logger.NewWithWriter(&cfg.App, cmd.ErrOrStderr())
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&flags.graphPath, "graph", "g", "", "decision graph definition (YAML)")
	pf.StringVar(&flags.storeDriver, "store", "", "audit store driver: postgres, sqlite, memory")
	pf.StringVar(&flags.counterBackend, "counters", "", "experiment counter backend: redis, memory")

	cmd.AddCommand(
		newEvaluateCmd(a),
		newGraphCmd(a),
		newAdvanceCmd(a),
		newWorkerCmd(a),
	)
	return cmd
}

func (f *rootFlags) apply(cmd *cobra.Command) func(*config.Config) {
	return func(cfg *config.Config) {
		pf := cmd.Flags()
		if pf.Changed("graph") {
			cfg.Engine.GraphPath = f.graphPath
		}
		if pf.Changed("store") {
			cfg.Engine.StoreDriver = f.storeDriver
		}
		if pf.Changed("counters") {
			cfg.Engine.CounterBackend = f.counterBackend
		}
	}
}
