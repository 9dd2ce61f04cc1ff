package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/aretw0/baton/internal/presentation/graph"
	"github.com/aretw0/baton/pkg/domain"
	"github.com/spf13/cobra"
)

var invokeCmd = &cobra.Command{
	Use:   "invoke <stage>",
	Short: "Run one stage and print its response",
	Long: `Runs a stage in this process. Without a gateway the rest of the chain runs here
too, and the command returns once every triggered stage has finished.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadEnv(cmd)
		if err != nil {
			return err
		}
		next, _ := cmd.Flags().GetString("next")
		runID, _ := cmd.Flags().GetString("run-id")
		raw, _ := cmd.Flags().GetStringArray("param")
		graphOut, _ := cmd.Flags().GetString("graph-out")
		params, err := parseParams(raw)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		var hooks []domain.LifecycleHooks
		rec := &graph.Recorder{}
		if graphOut != "" {
			hooks = append(hooks, rec.Hooks())
		}

		p, err := env.Pipeline(ctx, hooks...)
		if err != nil {
			return err
		}
		resp, invokeErr := p.Invoke(ctx, args[0], domain.InvocationRequest{NextStage: next, RunID: runID, Params: params})
		if err := p.Shutdown(ctx); err != nil {
			env.Logger.Warn("pending triggers were not drained", "err", err)
		}

		if graphOut != "" {
			out := graph.GenerateMermaid(env.Graph, rec.Overlay())
			if err := os.WriteFile(graphOut, []byte(out), 0o644); err != nil {
				return fmt.Errorf("write graph: %w", err)
			}
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			return err
		}
		return invokeErr
	},
}

var triggerCmd = &cobra.Command{
	Use:   "trigger <next-stage>",
	Short: "Hand the baton to a stage through the trigger function",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadEnv(cmd)
		if err != nil {
			return err
		}
		current, _ := cmd.Flags().GetString("current")
		runID, _ := cmd.Flags().GetString("run-id")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		p, err := env.Pipeline(ctx)
		if err != nil {
			return err
		}
		resp, triggerErr := p.Trigger(ctx, domain.TriggerRequest{CurrentStage: current, NextStage: args[0], RunID: runID})
		if err := p.Shutdown(ctx); err != nil {
			env.Logger.Warn("pending triggers were not drained", "err", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
		return triggerErr
	},
}

func parseParams(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	params := make(map[string]string, len(raw))
	for _, kv := range raw {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: param %q is not key=value", domain.ErrInvalidRequest, kv)
		}
		params[k] = v
	}
	return params, nil
}

func init() {
	rootCmd.AddCommand(invokeCmd)
	invokeCmd.Flags().String("next", "", "Override the next stage for this invocation")
	invokeCmd.Flags().String("run-id", "", "Run ID for run-scoped artifact keys")
	invokeCmd.Flags().StringArrayP("param", "p", nil, "Work parameter as key=value (repeatable)")
	invokeCmd.Flags().String("graph-out", "", "Write a Mermaid diagram marking the stages that ran to this file")

	rootCmd.AddCommand(triggerCmd)
	triggerCmd.Flags().String("current", "", "Stage handing off the baton")
	triggerCmd.Flags().String("run-id", "", "Run ID to carry along")
}
