package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rafaeljc/arbiter/internal/counter"
	"github.com/rafaeljc/arbiter/internal/decision"
)

func newGraphCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "graph",
		Short: "Print the decision graph in Graphviz DOT format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer a.close()

			// Rendering never touches quota, so the graph is built on local counters.
			g, err := a.graph(counter.NewMemory())
			if err != nil {
				return err
			}

			dot, err := decision.RenderDOT(g.Root)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), dot)
			return err
		},
	}
}
