package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var ingestRetryLimit int

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest spooled chunk files without scraping",
	Long: `Processes every pending chunk file left on disk, including ones
orphaned by a crashed run, then retries failed media downloads.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}

		result, err := a.pipeline.ProcessPendingChunks(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("ingested %d files: %d posts, %d articles, %d media\n",
			result.Files, result.Posts, result.Articles, result.Media)

		retried, err := a.pipeline.RetryFailedMedia(cmd.Context(), ingestRetryLimit)
		if err != nil {
			return err
		}
		if retried > 0 {
			fmt.Printf("retried media for %d posts\n", retried)
		}
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete finished jobs older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}

		deleted, err := a.jobs.CleanupOld(cmd.Context(), a.cfg.Jobs.RetentionDays)
		if err != nil {
			return err
		}
		fmt.Printf("deleted %d old jobs\n", deleted)
		return nil
	},
}

func init() {
	ingestCmd.Flags().IntVar(&ingestRetryLimit, "retry-limit", 100, "max posts per media retry pass")
}
