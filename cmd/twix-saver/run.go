package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	runArticles bool
	runMaxPosts int
	runPostIDs  []string
)

var runCmd = &cobra.Command{
	Use:   "run [target]...",
	Short: "Create and execute a scraping job for the given targets",
	Long: `Creates a job for the given target usernames and runs it to a
terminal state. With --post-id, targets may be omitted entirely to refetch
just those posts.`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateRunArgs(args, runPostIDs); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}

		var maxPosts *int
		if runMaxPosts > 0 {
			maxPosts = &runMaxPosts
		}

		job, err := a.orch.CreateJob(ctx, args, runPostIDs, runArticles, maxPosts)
		if err != nil {
			return err
		}

		fmt.Printf("job %s created (%d target(s), %d post id(s))\n", job.JobID, len(args), len(runPostIDs))
		if err := a.orch.Run(ctx, job.JobID); err != nil {
			return fmt.Errorf("job %s failed: %w", job.JobID, err)
		}

		final, err := a.jobs.Get(ctx, job.JobID)
		if err != nil {
			return err
		}
		fmt.Printf("job %s %s: %d posts, %d articles, %d media, %d errors\n",
			final.JobID, final.Status,
			final.Stats.PostsCollected, final.Stats.ArticlesExtracted,
			final.Stats.MediaDownloaded, final.Stats.ErrorsCount)
		return nil
	},
}

// validateRunArgs requires at least one target username or one explicit
// post id; a refetch-only job is legitimate
func validateRunArgs(targets, postIDs []string) error {
	if len(targets) == 0 && len(postIDs) == 0 {
		return fmt.Errorf("provide at least one target or --post-id")
	}
	return nil
}

func init() {
	runCmd.Flags().BoolVar(&runArticles, "articles", false, "extract linked articles")
	runCmd.Flags().IntVar(&runMaxPosts, "max-posts", 0, "cap posts per target (0 = unlimited)")
	runCmd.Flags().StringSliceVar(&runPostIDs, "post-id", nil, "refetch specific post ids")
}
