package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/aqakit/brain/pkg/adapter"
	"github.com/aqakit/brain/pkg/api"
	"github.com/aqakit/brain/pkg/validator"
)

func newServeCommand(version string) *cobra.Command {
	var (
		listen     string
		runnerPath string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST + WebSocket control API",
		Long: `Start the control API: plan generation, validation, execution,
history, plan versioning and the live execution event stream on
/ws/execute. Prometheus metrics are exposed on /metrics.`,
		Example: `  # Serve on the configured address
  brain serve

  # Override the listen address and executor binary
  brain serve --listen :9000 --runner ./target/release/aqa-runner`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if err := a.ws.Init(); err != nil {
				return err
			}
			if listen != "" {
				a.cfg.Server.ListenAddress = listen
			}

			tel, err := a.telemetry(version, true)
			if err != nil {
				return err
			}

			provider, err := a.provider()
			if err != nil {
				return err
			}
			gen, err := a.generator(provider, tel)
			if err != nil {
				return err
			}
			store, err := a.planStore()
			if err != nil {
				return err
			}
			history, err := a.history(cmd.Context())
			if err != nil {
				return err
			}
			defer history.Close()

			deps := api.Deps{
				Config:    a.cfg.Server,
				Telemetry: tel,
				Generator: gen,
				Validator: validator.New(),
				Adapter:   adapter.New(),
				History:   history,
				Plans:     store,
				Workspace: a.ws,
				Provider:  provider,
				Version:   version,
			}

			// A missing executor degrades /execute but the rest of the
			// API still serves.
			if r, err := a.runner(runnerPath, tel); err != nil {
				log.Warn().Err(err).Msg("Executor binary not found, /execute is unavailable")
				deps.RunnerErr = err
			} else {
				deps.Runner = r
			}

			log.Info().
				Str("addr", a.cfg.Server.ListenAddress).
				Str("provider", provider.Name()).
				Msg("Starting control API")
			return api.New(deps).ListenAndServe(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&runnerPath, "runner", "", "executor binary path")

	return cmd
}
