package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/doeshing/preauth-guard/internal/app"
)

// NewCacheCommand creates the cache command with all subcommands
func NewCacheCommand(container *app.Container) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the verification cache",
	}

	cacheCmd.AddCommand(
		newCacheClearCommand(container),
		newCacheStatsCommand(container),
	)

	return cacheCmd
}

// newCacheClearCommand creates the 'cache clear' subcommand
func newCacheClearCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear cache directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if container.Cache == nil {
				return errors.New(ErrCacheDisabled)
			}
			if err := container.Cache.Clear(); err != nil {
				return fmt.Errorf("failed to clear cache: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), MsgCacheCleared)
			return nil
		},
	}
}

// newCacheStatsCommand creates the 'cache stats' subcommand
func newCacheStatsCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache settings and entry counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showCacheStats(cmd.OutOrStdout(), container)
		},
	}
}

func showCacheStats(out io.Writer, container *app.Container) error {
	if container.Cache == nil {
		return errors.New(ErrCacheDisabled)
	}

	stats, err := container.Cache.Stats()
	if err != nil {
		return fmt.Errorf("failed to read cache: %w", err)
	}

	fmt.Fprintf(out, "Cache directory: %s\nCache TTL: %s\nMax entries: %d\n",
		stats.Dir,
		container.Config.CacheTTL(),
		container.Config.GetCacheMaxEntries())
	fmt.Fprintf(out, "Entries: %d (%d expired)\nSize: %d bytes\n", stats.Entries, stats.Expired, stats.Bytes)
	if stats.Entries > 0 {
		fmt.Fprintf(out, "Oldest: %s\nNewest: %s\n",
			stats.Oldest.Local().Format(TimestampFormat),
			stats.Newest.Local().Format(TimestampFormat))
	}
	return nil
}
