package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the workspace",
		Long: `Create the workspace directory tree under ~/.aqa (or AQA_HOME):
the plan cache, the plan version store, execution history and reports.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if err := a.ws.Init(); err != nil {
				return fmt.Errorf("workspace init failed: %w", err)
			}
			status := a.ws.Status()
			if jsonOutput {
				return printJSON(status)
			}
			log.Info().Str("root", a.ws.Root).Msg("Workspace initialized")
			fmt.Printf("Workspace ready at %s\n", a.ws.Root)
			return nil
		},
	}
}
