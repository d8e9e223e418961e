package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aqakit/brain/pkg/storage"
)

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the execution history",
	}

	cmd.AddCommand(newHistoryListCommand())
	cmd.AddCommand(newHistoryShowCommand())
	cmd.AddCommand(newHistoryDeleteCommand())
	cmd.AddCommand(newHistoryStatsCommand())
	cmd.AddCommand(newHistoryClearCommand())

	return cmd
}

func newHistoryListCommand() *cobra.Command {
	var (
		limit  int
		offset int
		status string
		tags   []string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded executions, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			backend, err := a.history(cmd.Context())
			if err != nil {
				return err
			}
			defer backend.Close()

			records, err := backend.List(cmd.Context(), storage.ListFilter{
				Limit:  limit,
				Offset: offset,
				Status: status,
				Tags:   tags,
			})
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(records)
			}
			if len(records) == 0 {
				fmt.Println("No executions recorded")
				return nil
			}
			for _, rec := range records {
				fmt.Printf("%s  %s  %-7s  %s  %d/%d passed\n",
					rec.ID,
					rec.Timestamp.Format(time.RFC3339),
					rec.Status,
					rec.PlanName,
					rec.PassedSteps, rec.TotalSteps)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum records to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "records to skip")
	cmd.Flags().StringVar(&status, "status", "", "filter by status: success, failure, or error")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "filter by tags (all must match)")

	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one execution record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			backend, err := a.history(cmd.Context())
			if err != nil {
				return err
			}
			defer backend.Close()

			rec, err := backend.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(rec)
			}
			fmt.Printf("ID:       %s\n", rec.ID)
			fmt.Printf("Plan:     %s\n", rec.PlanName)
			fmt.Printf("Status:   %s\n", rec.Status)
			fmt.Printf("Time:     %s\n", rec.Timestamp.Format(time.RFC3339))
			fmt.Printf("Duration: %dms\n", rec.DurationMs)
			fmt.Printf("Steps:    %d total, %d passed, %d failed\n",
				rec.TotalSteps, rec.PassedSteps, rec.FailedSteps)
			if len(rec.Tags) > 0 {
				fmt.Printf("Tags:     %s\n", strings.Join(rec.Tags, ", "))
			}
			return nil
		},
	}
}

func newHistoryDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one execution record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			backend, err := a.history(cmd.Context())
			if err != nil {
				return err
			}
			defer backend.Close()

			ok, err := backend.Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("execution record not found: %s", args[0])
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		},
	}
}

func newHistoryStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the execution history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			backend, err := a.history(cmd.Context())
			if err != nil {
				return err
			}
			defer backend.Close()

			stats, err := backend.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(stats)
			}
			fmt.Printf("Backend:  %s\n", stats.Backend)
			fmt.Printf("Total:    %d (%d success, %d failure, %d error)\n",
				stats.Total, stats.SuccessCount, stats.FailureCount, stats.ErrorCount)
			if stats.Oldest != nil && stats.Newest != nil {
				fmt.Printf("Range:    %s .. %s\n",
					stats.Oldest.Format(time.RFC3339), stats.Newest.Format(time.RFC3339))
			}
			if stats.SizeBytes > 0 {
				fmt.Printf("Size:     %d bytes\n", stats.SizeBytes)
			}
			return nil
		},
	}
}

func newHistoryClearCommand() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every execution record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear history without --yes")
			}
			a, err := newApp()
			if err != nil {
				return err
			}
			backend, err := a.history(cmd.Context())
			if err != nil {
				return err
			}
			defer backend.Close()

			n, err := backend.Clear(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d records\n", n)
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")

	return cmd
}
