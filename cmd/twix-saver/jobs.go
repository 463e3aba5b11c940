package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AkaakuHub/twix-saver/pkg/models"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and manage scraping jobs",
}

var jobsStatusFilter string

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}

		jobs, err := a.jobs.List(cmd.Context(), models.JobStatus(jobsStatusFilter), 50, 0)
		if err != nil {
			return err
		}

		for _, job := range jobs {
			fmt.Printf("%s  %-10s  targets=%v  posts=%d  errors=%d\n",
				job.JobID, job.Status, job.TargetUsernames,
				job.Stats.PostsCollected, job.Stats.ErrorsCount)
		}
		return nil
	},
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show one job with its logs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}

		job, err := a.jobs.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("job:      %s\n", job.JobID)
		fmt.Printf("status:   %s\n", job.Status)
		fmt.Printf("targets:  %v\n", job.TargetUsernames)
		fmt.Printf("account:  %s\n", job.ScraperAccount)
		fmt.Printf("stats:    posts=%d articles=%d media=%d errors=%d time=%.1fs\n",
			job.Stats.PostsCollected, job.Stats.ArticlesExtracted,
			job.Stats.MediaDownloaded, job.Stats.ErrorsCount,
			job.Stats.ProcessingTimeSeconds)
		fmt.Println("logs:")
		for _, line := range job.Logs {
			fmt.Printf("  %s\n", line)
		}
		return nil
	},
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Flag a pending or running job cancelled",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		if err := a.jobs.Cancel(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("job %s cancelled\n", args[0])
		return nil
	},
}

var jobsResetCmd = &cobra.Command{
	Use:   "reset <job-id>",
	Short: "Return a finished job to pending for a rerun",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		if err := a.jobs.ResetToPending(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("job %s reset to pending\n", args[0])
		return nil
	},
}

func init() {
	jobsListCmd.Flags().StringVar(&jobsStatusFilter, "status", "", "filter by status")
	jobsCmd.AddCommand(jobsListCmd, jobsShowCmd, jobsCancelCmd, jobsResetCmd)
}
