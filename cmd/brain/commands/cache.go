package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the plan cache",
	}

	cmd.AddCommand(newCacheStatsCommand())
	cmd.AddCommand(newCacheCleanupCommand())
	cmd.AddCommand(newCacheClearCommand())

	return cmd
}

func newCacheStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache contents and size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			c, err := a.cache()
			if err != nil {
				return err
			}
			if c == nil {
				fmt.Println("Cache is disabled")
				return nil
			}
			stats, err := c.Stats()
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(stats)
			}
			fmt.Printf("Entries: %d\n", stats.Entries)
			fmt.Printf("Size:    %d bytes\n", stats.TotalBytes)
			fmt.Printf("Hits:    %d\n", stats.TotalHits)
			if !stats.Oldest.IsZero() {
				fmt.Printf("Oldest:  %s\n", stats.Oldest.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newCacheCleanupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove expired cache entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			c, err := a.cache()
			if err != nil {
				return err
			}
			if c == nil {
				fmt.Println("Cache is disabled")
				return nil
			}
			n, err := c.Cleanup()
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d expired entries\n", n)
			return nil
		},
	}
}

func newCacheClearCommand() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every cache entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear the cache without --yes")
			}
			a, err := newApp()
			if err != nil {
				return err
			}
			c, err := a.cache()
			if err != nil {
				return err
			}
			if c == nil {
				fmt.Println("Cache is disabled")
				return nil
			}
			if err := c.Clear(); err != nil {
				return err
			}
			fmt.Println("Cache cleared")
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")

	return cmd
}
