package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aqakit/brain/pkg/adapter"
	"github.com/aqakit/brain/pkg/validator"
)

func newValidateCommand() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "validate <plan-file>",
		Short: "Validate a UTDL plan file",
		Long: `Normalize and validate a plan document.

Modes:
  strict   promote every warning to an error
  default  block on errors, surface warnings
  lenient  demote recoverable issues to warnings`,
		Example: `  brain validate plan.json
  brain validate --mode strict plan.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := adapter.New().LoadAndNormalize(args[0])
			if err != nil {
				return err
			}
			payload, err := json.Marshal(doc)
			if err != nil {
				return err
			}

			v := validator.New(validator.WithMode(validator.ParseMode(mode)))
			result := v.ValidateJSON(string(payload))

			if jsonOutput {
				return printJSON(map[string]interface{}{
					"valid":    result.OK,
					"errors":   result.Errors,
					"warnings": result.Warnings,
					"stats":    result.Stats,
				})
			}

			for _, warn := range result.Warnings {
				fmt.Printf("warning %s: %s\n", warn.Code, warn.Message)
			}
			if !result.OK {
				for _, e := range result.Errors {
					fmt.Printf("error %s: %s\n", e.Code, e.Message)
					if e.Suggestion != "" {
						fmt.Printf("  suggestion: %s\n", e.Suggestion)
					}
				}
				return fmt.Errorf("plan is invalid (%d errors)", len(result.Errors))
			}

			fmt.Printf("Plan is valid: %d steps, %d assertions, %d extractions\n",
				result.Stats.Steps, result.Stats.Assertions, result.Stats.Extractions)
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "default", "validation mode: strict, default, or lenient")

	return cmd
}
