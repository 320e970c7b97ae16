package cli

import (
	"fmt"
	"media-bundler/internal/blobstore"
	"media-bundler/internal/bootstrap"
	"media-bundler/internal/models"
	"strings"

	"github.com/spf13/cobra"
)

func EnqueueCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue <project-ref>",
		Short: "Request an artifact for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, _ := cmd.Flags().GetString("filter")
			req := &models.CreateJobRequest{
				ProjectRef:  args[0],
				MediaFilter: models.MediaFilter(strings.ToUpper(filter)),
			}
			if cmd.Flags().Changed("max-retries") {
				n, _ := cmd.Flags().GetInt("max-retries")
				req.MaxRetries = &n
			}

			job, err := app.Jobs.CreateJob(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("failed to enqueue job: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s is %s.\n", job.ID, job.Status)
			return nil
		},
	}
	cmd.Flags().String("filter", "ALL", "Media to include (ALL, PHOTOS, VIDEOS)")
	cmd.Flags().Int("max-retries", 0, "Override the default retry budget")
	return cmd
}

func StatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := app.Jobs.GetJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), job)
		},
	}
}

func ListCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, _ := cmd.Flags().GetString("status")

			jobs, err := app.Jobs.ListJobsByStatus(cmd.Context(), models.JobStatus(strings.ToUpper(status)))
			if err != nil {
				return fmt.Errorf("failed to list jobs: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(jobs) == 0 {
				fmt.Fprintf(out, "No jobs found in status: %s\n", strings.ToUpper(status))
				return nil
			}

			fmt.Fprintln(out, "ID\tPROJECT\tFILTER\tRETRIES\tERROR")
			for _, job := range jobs {
				fmt.Fprintf(out, "%s\t%s\t%s\t%d/%d\t%s\n",
					job.ID, job.ProjectRef, job.MediaFilter, job.RetryCount, job.MaxRetries, job.Error)
			}
			return nil
		},
	}
	cmd.Flags().String("status", "", "Job status (PENDING, GENERATING, READY, FAILED)")
	cmd.MarkFlagRequired("status")
	return cmd
}

func RetryCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <job-id>",
		Short: "Reset a FAILED job to PENDING",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := app.Jobs.RetryJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s moved to %s.\n", job.ID, job.Status)
			return nil
		},
	}
}

func StatsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show job counts per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := app.Jobs.Stats(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, st := range []models.JobStatus{models.StatusPending, models.StatusGenerating, models.StatusReady, models.StatusFailed} {
				fmt.Fprintf(out, "%s:\t%d\n", st, stats.Jobs[st])
			}
			return nil
		},
	}
}

// TickCmd runs a single reap, claim and process cycle in this process
func TickCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Run one scheduler cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			pipeline, err := bootstrap.NewPipeline(cmd.Context(), app.Config, app.Store, app.Metrics, app.Logger)
			if err != nil {
				return err
			}
			defer pipeline.Close()

			res := pipeline.Scheduler.Tick(cmd.Context())
			if res.Disabled {
				return blobstore.ErrNotConfigured
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}
