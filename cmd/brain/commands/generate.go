package commands

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/aqakit/brain/pkg/generator"
	"github.com/aqakit/brain/pkg/plans"
)

func newGenerateCommand() *cobra.Command {
	var (
		baseURL   string
		output    string
		save      bool
		skipCache bool
	)

	cmd := &cobra.Command{
		Use:   "generate <requirement>",
		Short: "Generate a UTDL test plan from a requirement",
		Long: `Generate a validated UTDL plan from a natural-language requirement.
The configured LLM provider produces the plan; invalid output goes
through a bounded correction loop before the command fails.`,
		Example: `  # Generate a plan against a local API
  brain generate "smoke test the auth endpoints" --base-url http://localhost:8000

  # Write the plan to a file and version it in the plan store
  brain generate "full CRUD for /items" --base-url http://localhost:8000 -o items.json --save`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			requirement := strings.Join(args, " ")
			if baseURL == "" {
				return fmt.Errorf("--base-url is required")
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			provider, err := a.provider()
			if err != nil {
				return err
			}
			gen, err := a.generator(provider, nil)
			if err != nil {
				return err
			}

			log.Info().
				Str("provider", provider.Name()).
				Bool("skip_cache", skipCache).
				Msg("Generating plan")

			result, err := gen.Generate(cmd.Context(), requirement, baseURL,
				generator.GenerateOptions{SkipCache: skipCache})
			if err != nil {
				return err
			}

			payload, err := result.Plan.MarshalCanonical()
			if err != nil {
				return err
			}
			if err := writeOutput(output, payload); err != nil {
				return err
			}

			if save {
				store, err := a.planStore()
				if err != nil {
					return err
				}
				version, err := store.Save(result.Plan, plans.SaveOptions{
					Source:      plans.SourceLLM,
					LLMProvider: result.Metadata.Provider,
					LLMModel:    result.Metadata.Model,
					Description: requirement,
				})
				if err != nil {
					return err
				}
				log.Info().
					Str("plan", result.Plan.Meta.Name).
					Int("version", version.Version).
					Msg("Plan saved")
			}

			log.Info().
				Str("provider", result.Metadata.Provider).
				Bool("cached", result.Metadata.Cached).
				Int("attempts", result.Metadata.Attempts).
				Int64("elapsed_ms", result.Metadata.ElapsedMs).
				Msg("Plan generated")
			return nil
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "", "base URL of the API under test (required)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the plan to a file instead of stdout")
	cmd.Flags().BoolVar(&save, "save", false, "version the plan in the plan store")
	cmd.Flags().BoolVar(&skipCache, "skip-cache", false, "bypass the plan cache")

	return cmd
}
