package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rafaeljc/arbiter/internal/decision"
	"github.com/rafaeljc/arbiter/internal/logger"
	"github.com/rafaeljc/arbiter/internal/observability"
)

type evaluateFlags struct {
	subjectID  string
	accountID  string
	trigger    string
	runID      string
	audit      bool
	attributes []string
}

// evaluation is the JSON document printed by the evaluate command.
type evaluation struct {
	RunID  string          `json:"run_id,omitempty"`
	Result decision.Result `json:"result"`
}

func newEvaluateCmd(a *app) *cobra.Command {
	flags := &evaluateFlags{}

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate the decision graph for one subject",
		Long: `Walk the decision graph from its root for the given subject and print the
final result as JSON.

Attributes are passed as key=value pairs. Values that parse as JSON (numbers,
booleans, objects) keep their type, anything else is a string.

Examples:
  arbiter evaluate --subject user-1 --attr score=720 --attr kyc_verified=true
  arbiter evaluate --subject user-1 --trigger background --audit=false`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer a.close()
			ctx := logger.WithContext(cmd.Context(), a.logger)

			attrs, err := parseAttributes(flags.attributes)
			if err != nil {
				return err
			}

			engine, g, err := a.engine(ctx)
			if err != nil {
				return err
			}

			audit := a.cfg.Engine.AuditEnabled
			if cmd.Flags().Changed("audit") {
				audit = flags.audit
			}
			dctx := &decision.Context{
				SubjectID:    flags.subjectID,
				AccountID:    flags.accountID,
				Trigger:      decision.Trigger(flags.trigger),
				AuditEnabled: audit,
				RunID:        flags.runID,
				Attributes:   attrs,
			}

			start := time.Now()
			result, err := engine.Evaluate(ctx, dctx, g.InitialResult())
			observability.ObserveEvaluation(start, err)
			if err != nil {
				return fmt.Errorf("evaluation failed: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(evaluation{RunID: dctx.RunID, Result: result})
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.subjectID, "subject", "", "subject id (required)")
	f.StringVar(&flags.accountID, "account", "", "account id")
	f.StringVar(&flags.trigger, "trigger", string(decision.TriggerUserRequest), "trigger: user_request, background, scheduled")
	f.StringVar(&flags.runID, "run-id", "", "run id to reuse instead of generating one")
	f.BoolVar(&flags.audit, "audit", true, "write the audit trail (defaults to ARBITER_ENGINE_AUDIT_ENABLED)")
	f.StringArrayVarP(&flags.attributes, "attr", "a", nil, "attribute as key=value (repeatable)")
	_ = cmd.MarkFlagRequired("subject")

	return cmd
}

func parseAttributes(pairs []string) (map[string]any, error) {
	attrs := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid attribute %q: expected key=value", pair)
		}

		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		attrs[key] = v
	}
	return attrs, nil
}
