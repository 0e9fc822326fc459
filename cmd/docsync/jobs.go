package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/memorykeep/docsync/internal/engine"
)

var (
	forceStartup bool
	cleanKinds   []string
)

var startupCmd = &cobra.Command{
	Use:   "startup <owner>",
	Short: "Read every kind for an owner without writing",
	Long: `Run the startup sync for an owner: read every kind for the default
partition and the merged display names, concurrently. Nothing is written to
the blob store.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(rt *runtime) error {
			report := rt.hub.StartupSync(cmd.Context(), args[0], forceStartup)
			return printJSON(cmd.OutOrStdout(), report)
		})
	},
}

var cleanCmd = &cobra.Command{
	Use:   "clean <owner>",
	Short: "Delete superseded document versions",
	Long: `Delete every candidate document ranked below the retention threshold for
an owner and partition. Runs for every kind unless --kind is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner := args[0]
		return withRuntime(cmd, func(rt *runtime) error {
			kinds := cleanKinds
			if len(kinds) == 0 {
				kinds = rt.hub.Kinds()
			}

			reports := make(map[string]engine.CleanReport, len(kinds))
			var failed []string
			for _, kind := range kinds {
				if err := requireKind(rt, kind); err != nil {
					return err
				}
				report, err := rt.hub.Clean(cmd.Context(), kind, owner, partition)
				if err != nil {
					rt.logger.Error("cleanup failed", "kind", kind, "owner", owner, "error", err)
					failed = append(failed, kind)
					continue
				}
				reports[kind] = report
			}

			if err := printJSON(cmd.OutOrStdout(), reports); err != nil {
				return err
			}
			if len(failed) > 0 {
				return fmt.Errorf("cleanup failed for %v", failed)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(startupCmd, cleanCmd)

	startupCmd.Flags().BoolVar(&forceStartup, "force", false, "Sync even if the owner was already synced")
	cleanCmd.Flags().StringVarP(&partition, "partition", "p", engine.DefaultPartition, "Partition to clean")
	cleanCmd.Flags().StringSliceVarP(&cleanKinds, "kind", "k", nil, "Kinds to clean (default all)")
}
