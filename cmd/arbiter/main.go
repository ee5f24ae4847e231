// Package main is the arbiter command line.
//
// It loads a YAML decision graph and wires the engine to its audit store,
// the experiment counters and the outcome queue.
//
// Usage:
//
//	# Evaluate the graph for one subject and print the result
//	arbiter evaluate --graph graph.yaml --subject user-1 --attr score=720
//
//	# Print the graph in DOT format
//	arbiter graph --graph graph.yaml | dot -Tsvg > graph.svg
//
//	# Report an advance created for a run, directly or through the queue
//	arbiter advance RUN_ID OUTCOME_ID [--enqueue]
//
//	# Drain the outcome queue and serve health and metrics endpoints
//	arbiter worker
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
