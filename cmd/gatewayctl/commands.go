package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show resident model cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := client.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if len(stats.Resident) == 0 {
				fmt.Println("No resident models.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "NAME\tKIND\tDEVICE\tMEMORY GB\tLOAD MS\tLAST ERROR\n")
			for _, e := range stats.Resident {
				lastErr := e.LastError
				if lastErr == "" {
					lastErr = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%.1f\t%d\t%s\n", e.Name, e.Kind, e.Device, e.MemoryGB, e.LoadDurationMs, lastErr)
			}
			return w.Flush()
		},
	}
}

func modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models currently resident in the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			models, err := client.ListModels(cmd.Context())
			if err != nil {
				return err
			}
			for _, m := range models.Data {
				fmt.Println(m.ID)
			}
			return nil
		},
	}
}

func unloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unload [model]",
		Short: "Evict a resident model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Unload(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if resp.WasResident {
				fmt.Printf("Unloaded %s\n", resp.Model)
			} else {
				fmt.Printf("%s was not resident\n", resp.Model)
			}
			return nil
		},
	}
}

func invalidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate [model]",
		Short: "Drop a model's cached version resolution and unload it if resident",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.InvalidateCache(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s: version cache dropped=%v, model unloaded=%v\n", resp.Model, resp.VersionCacheDropped, resp.ModelUnloaded)
			return nil
		},
	}
}

func clearVersionCacheCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-version-cache",
		Short: "Drop every cached version resolution",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.ClearAllVersionCache(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Cleared %d version cache entries\n", resp.EntriesCleared)
			return nil
		},
	}
}

func versionCacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version-cache-stats",
		Short: "Show version resolution cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.VersionCacheStats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("TTL: %.0fs\n", resp.TTLSeconds)
			fmt.Printf("Entries: %v\n", resp.Entries)
			return nil
		},
	}
}

func prewarmCmd() *cobra.Command {
	var parallel bool
	cmd := &cobra.Command{
		Use:   "prewarm [model...]",
		Short: "Eagerly load one or more models into the resident cache",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Prewarm(cmd.Context(), args, parallel)
			if err != nil {
				return err
			}
			for model, result := range resp.Results {
				fmt.Printf("%s: %s\n", model, result)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&parallel, "parallel", false, "load models concurrently")
	return cmd
}
