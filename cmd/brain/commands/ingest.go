package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/aqakit/brain/pkg/ingest"
	"github.com/aqakit/brain/pkg/utdl"
)

func newIngestCommand() *cobra.Command {
	var (
		validate    bool
		strict      bool
		requirement bool
		baseURL     string
		negative    bool
		robustness  bool
		latency     bool
		auth        bool
		output      string
	)

	cmd := &cobra.Command{
		Use:   "ingest <spec-path-or-url>",
		Short: "Ingest an OpenAPI spec and derive test cases",
		Long: `Parse an OpenAPI v2/v3 document (JSON or YAML, local file or URL) and
either summarize it, render it as a generation requirement, or derive
a plan directly:

  --negative    invalid-input cases from request body schemas
  --robustness  malformed payloads, wrong content types, oversized bodies
  --latency     response-time SLA assertions on every derived step
  --auth        login steps and header propagation for detected schemes`,
		Example: `  # Summarize a spec
  brain ingest openapi.yaml

  # Render the requirement text handed to the generator
  brain ingest openapi.yaml --requirement

  # Derive a negative-testing plan with latency SLAs
  brain ingest openapi.yaml --negative --latency -o negative-plan.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := ingest.Parse(cmd.Context(), args[0], ingest.ParseOptions{
				Validate: validate || strict,
				Strict:   strict,
			})
			if err != nil {
				return err
			}
			if baseURL != "" {
				spec.BaseURL = baseURL
			}

			if requirement {
				fmt.Println(spec.RequirementText())
				if spec.Security.HasSecurity {
					fmt.Println(ingest.SecurityText(spec.Security))
				}
				return nil
			}

			if negative || robustness || auth {
				return deriveAndWrite(spec, negative, robustness, latency, auth, output)
			}

			if jsonOutput {
				return printJSON(spec)
			}
			fmt.Printf("Title:     %s\n", spec.Title)
			fmt.Printf("Base URL:  %s\n", spec.BaseURL)
			fmt.Printf("Endpoints: %d\n", len(spec.Endpoints))
			for _, ep := range spec.Endpoints {
				fmt.Printf("  %-6s %s\n", ep.Method, ep.Path)
			}
			if spec.Security.HasSecurity && spec.Security.PrimaryScheme != nil {
				fmt.Printf("Security:  %s\n", spec.Security.PrimaryScheme.Type)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&validate, "validate", false, "run full OpenAPI validation")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail on validation findings")
	cmd.Flags().BoolVar(&requirement, "requirement", false, "print the generation requirement text")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "override the spec's base URL")
	cmd.Flags().BoolVar(&negative, "negative", false, "derive negative test cases")
	cmd.Flags().BoolVar(&robustness, "robustness", false, "derive robustness test cases")
	cmd.Flags().BoolVar(&latency, "latency", false, "inject latency SLA assertions")
	cmd.Flags().BoolVar(&auth, "auth", false, "derive auth flow steps")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the derived plan to a file")

	return cmd
}

// deriveAndWrite composes the selected derivations into one plan.
func deriveAndWrite(spec *ingest.Spec, negative, robustness, latency, auth bool, output string) error {
	name := spec.Title
	if name == "" {
		name = "API"
	}
	plan := utdl.NewPlan(name+" derived tests", spec.BaseURL)

	var steps []utdl.Step
	var authHeader map[string]string

	if auth {
		authSteps := ingest.GenerateAuthSteps(spec.Security, ingest.AuthOptions{})
		for _, as := range authSteps {
			if as.Step != nil {
				steps = append(steps, *as.Step)
			}
			if len(as.UsageHeader) > 0 {
				authHeader = as.UsageHeader
			}
		}
		if len(authSteps) == 0 {
			log.Warn().Msg("No security schemes detected, skipping auth derivation")
		}
	}

	if negative {
		result := ingest.GenerateNegativeCases(spec, ingest.NegativeOptions{})
		derived := ingest.NegativeSteps(spec, result.Cases)
		log.Info().
			Int("endpoints", result.EndpointsAnalyzed).
			Int("cases", len(result.Cases)).
			Msg("Derived negative cases")
		steps = append(steps, derived...)
	}

	if robustness {
		derived := ingest.GenerateRobustnessSteps(spec)
		log.Info().Int("steps", len(derived)).Msg("Derived robustness cases")
		steps = append(steps, derived...)
	}

	if len(authHeader) > 0 {
		steps = ingest.InjectAuth(steps, authHeader)
	}
	if latency {
		injected := ingest.InjectLatencyAssertions(steps)
		log.Info().Int("assertions", injected).Msg("Injected latency SLAs")
	}

	if len(steps) == 0 {
		return fmt.Errorf("no test cases could be derived from the spec")
	}
	plan.Steps = steps

	payload, err := plan.MarshalCanonical()
	if err != nil {
		return err
	}
	return writeOutput(output, payload)
}
