package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/aqakit/brain/pkg/adapter"
	"github.com/aqakit/brain/pkg/runner"
	"github.com/aqakit/brain/pkg/storage"
	"github.com/aqakit/brain/pkg/utdl"
	"github.com/aqakit/brain/pkg/validator"
)

func newExecuteCommand() *cobra.Command {
	var (
		runnerPath string
		timeoutS   int
		dryRun     bool
		tags       []string
	)

	cmd := &cobra.Command{
		Use:   "execute <plan-file>",
		Short: "Execute a UTDL plan via the external executor",
		Long: `Validate a plan file and hand it to the executor binary. The outcome
is recorded in the execution history. The executor's report decides
success; its exit code is informational.`,
		Example: `  brain execute plan.json
  brain execute plan.json --timeout 60 --tags smoke,ci
  brain execute plan.json --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			plan, err := loadPlan(args[0])
			if err != nil {
				return err
			}

			if dryRun {
				log.Info().Str("plan", plan.Meta.Name).Int("steps", len(plan.Steps)).
					Msg("Plan is valid, skipping execution")
				if jsonOutput {
					return printJSON(plan)
				}
				return nil
			}

			r, err := a.runner(runnerPath, nil)
			if err != nil {
				return err
			}

			var opts runner.RunOptions
			if timeoutS > 0 {
				opts.Timeout = time.Duration(timeoutS) * time.Second
			}

			log.Info().Str("plan", plan.Meta.Name).Msg("Executing plan")
			result, runErr := r.Run(cmd.Context(), plan, opts)

			history, err := a.history(cmd.Context())
			if err != nil {
				log.Warn().Err(err).Msg("History backend unavailable, outcome not recorded")
			} else {
				defer history.Close()
				recorded := result
				if recorded == nil {
					recorded = &runner.Result{Status: runner.StatusError}
				}
				rec := storage.NewRecord(plan, recorded)
				rec.PlanFile = args[0]
				rec.Tags = append(rec.Tags, tags...)
				if payload, err := plan.MarshalCanonical(); err == nil {
					rec.PlanHash = storage.PlanHash(payload)
				}
				if err := history.Save(cmd.Context(), rec); err != nil {
					log.Warn().Err(err).Msg("Failed to record execution history")
				}
			}

			if runErr != nil {
				return runErr
			}

			if jsonOutput {
				return printJSON(result)
			}
			fmt.Printf("Status: %s\n", result.Status)
			fmt.Printf("Steps:  %d total, %d passed, %d failed, %d skipped\n",
				result.Summary.Total, result.Summary.Passed,
				result.Summary.Failed, result.Summary.Skipped)
			fmt.Printf("Time:   %dms\n", result.TotalDurationMs)
			if !result.Success {
				return fmt.Errorf("execution finished with failures")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&runnerPath, "runner", "", "executor binary path")
	cmd.Flags().IntVar(&timeoutS, "timeout", 0, "execution timeout in seconds")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate only, do not execute")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "tags recorded with the execution")

	return cmd
}

// loadPlan normalizes and validates a plan document from disk.
func loadPlan(path string) (*utdl.Plan, error) {
	doc, err := adapter.New().LoadAndNormalize(path)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	result := validator.New().ValidateJSON(string(payload))
	if !result.OK {
		for _, e := range result.Errors {
			log.Error().Str("code", e.Code.String()).Msg(e.Message)
		}
		return nil, fmt.Errorf("plan %s is invalid (%d errors)", path, len(result.Errors))
	}
	return result.Plan, nil
}
