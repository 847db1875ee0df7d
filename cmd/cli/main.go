package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/trippixn/mediagrab/internal/app"
	"github.com/trippixn/mediagrab/pkg/logger"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "mediagrab",
		Short: "mediagrab - Download and normalize media from Instagram, Twitter/X, and TikTok",
		Long:  `A command-line tool that downloads media posts, enforces a size ceiling with automatic compression, and delivers the files locally.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")

	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(statsCmd)
}

// buildPipeline loads config and wires the pipeline for in-process use.
func buildPipeline() *app.Pipeline {
	config, err := app.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:      "warn", // keep CLI output clean
		Format:     config.Logging.Format,
		OutputPath: "stderr",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	pipeline, err := app.BuildPipeline(config, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return pipeline
}

var getCmd = &cobra.Command{
	Use:   "get [url]",
	Short: "Download media from a URL",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		pipeline := buildPipeline()
		defer pipeline.Close()

		timeout, _ := cmd.Flags().GetDuration("timeout")
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		result, err := pipeline.Orchestrator.SubmitDownload(ctx, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Println(app.Summarize(result))
		for _, item := range result.Ready {
			fmt.Printf("  [%d] %s (%s, %.1f MB)\n",
				item.File.Index,
				item.File.Path,
				item.File.MediaType,
				float64(item.File.SizeBytes)/(1024*1024))
		}
		for _, failure := range result.Failures {
			fmt.Printf("  [%d] failed: %s\n", failure.Index, failure.Reason)
		}

		pipeline.Logger.Debug("request finished",
			zap.String("request_id", result.RequestID),
			zap.String("state", string(result.State)))
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent download requests",
	Run: func(cmd *cobra.Command, args []string) {
		pipeline := buildPipeline()
		defer pipeline.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		records, err := pipeline.History.FindRecent(limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tURL\tPLATFORM\tSTATE\tREADY\tFAILED\tCREATED")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
				truncate(r.ID, 8),
				truncate(r.URL, 40),
				r.Platform,
				r.State,
				r.ReadyCount,
				r.FailureCount,
				r.CreatedAt.Format(time.RFC3339))
		}
		w.Flush()
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show download statistics",
	Run: func(cmd *cobra.Command, args []string) {
		pipeline := buildPipeline()
		defer pipeline.Close()

		stats, err := pipeline.History.Stats()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Println("Download Statistics:")
		fmt.Printf("  Total:     %d\n", stats.Total)
		fmt.Printf("  Succeeded: %d\n", stats.Succeeded)
		fmt.Printf("  Partial:   %d\n", stats.Partial)
		fmt.Printf("  Failed:    %d\n", stats.Failed)
	},
}

// truncate truncates a string to the specified length
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func main() {
	getCmd.Flags().Duration("timeout", 10*time.Minute, "Overall request timeout")
	historyCmd.Flags().Int("limit", 20, "Number of records to show")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
