package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/aqakit/brain/pkg/plans"
)

func newPlansCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plans",
		Short: "Manage versioned plans",
	}

	cmd.AddCommand(newPlansListCommand())
	cmd.AddCommand(newPlansShowCommand())
	cmd.AddCommand(newPlansVersionsCommand())
	cmd.AddCommand(newPlansDiffCommand())
	cmd.AddCommand(newPlansRollbackCommand())
	cmd.AddCommand(newPlansDeleteCommand())

	return cmd
}

func openPlanStore() (*plans.Store, error) {
	a, err := newApp()
	if err != nil {
		return nil, err
	}
	return a.planStore()
}

func newPlansListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored plans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openPlanStore()
			if err != nil {
				return err
			}
			index, err := store.ListPlans()
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(index)
			}
			if len(index) == 0 {
				fmt.Println("No plans stored")
				return nil
			}
			for _, entry := range index {
				fmt.Printf("%-30s  v%d (%d versions)  updated %s\n",
					entry.Name, entry.CurrentVersion, entry.TotalVersions,
					entry.UpdatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newPlansShowCommand() *cobra.Command {
	var version int

	cmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Print a plan's current or given version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openPlanStore()
			if err != nil {
				return err
			}
			var v *plans.Version
			if version > 0 {
				v, err = store.Get(args[0], version)
			} else {
				v, err = store.GetCurrent(args[0])
			}
			if err != nil {
				return err
			}
			payload, err := v.Plan.MarshalCanonical()
			if err != nil {
				return err
			}
			fmt.Println(string(payload))
			return nil
		},
	}

	cmd.Flags().IntVar(&version, "version", 0, "version to show (default: current)")

	return cmd
}

func newPlansVersionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "versions <name>",
		Short: "List a plan's versions, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openPlanStore()
			if err != nil {
				return err
			}
			versions, err := store.ListVersions(args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(versions)
			}
			for _, v := range versions {
				fmt.Printf("v%-4d  %s  %s  %s\n",
					v.Version, v.CreatedAt.Format(time.RFC3339), v.Source, v.Description)
			}
			return nil
		},
	}
}

func newPlansDiffCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "diff <name> <a> <b>",
		Short: "Compare two versions of a plan",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, errA := strconv.Atoi(args[1])
			b, errB := strconv.Atoi(args[2])
			if errA != nil || errB != nil || a < 1 || b < 1 {
				return fmt.Errorf("versions must be positive integers")
			}
			store, err := openPlanStore()
			if err != nil {
				return err
			}
			diff, err := store.DiffVersions(args[0], a, b)
			if err != nil {
				return err
			}
			return printJSON(diff)
		},
	}
}

func newPlansRollbackCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rollback <name> <version>",
		Short: "Restore an older version as a new version",
		Long: `Create a new version whose payload equals the target version. Version
history is append-only and never rewritten.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := strconv.Atoi(args[1])
			if err != nil || target < 1 {
				return fmt.Errorf("version must be a positive integer")
			}
			store, err := openPlanStore()
			if err != nil {
				return err
			}
			v, err := store.Rollback(args[0], target)
			if err != nil {
				return err
			}
			fmt.Printf("Restored %s v%d as v%d\n", args[0], target, v.Version)
			return nil
		},
	}
}

func newPlansDeleteCommand() *cobra.Command {
	var version int

	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a plan or one of its versions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openPlanStore()
			if err != nil {
				return err
			}
			if version > 0 {
				if err := store.DeleteVersion(args[0], version); err != nil {
					return err
				}
				fmt.Printf("Deleted %s v%d\n", args[0], version)
				return nil
			}
			if err := store.DeletePlan(args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().IntVar(&version, "version", 0, "delete a single version")

	return cmd
}
