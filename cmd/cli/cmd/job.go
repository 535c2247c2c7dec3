package cmd

import (
	"sort"
	"time"

	"github.com/spf13/cobra"
)

var jobCmd = &cobra.Command{
	Use:   "job [job_id]",
	Short: "Show a publish job",
	Long:  `Show a publish job: its state (pending, in_flight, succeeded, failed), target time, attempts and failure reason.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := clientFromConfig(cmd)
		if client == nil {
			return
		}
		job, err := client.GetJob(args[0])
		if err != nil {
			printError(cmd, err)
			return
		}
		printJob(cmd, job)
	},
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List publish jobs, soonest first",
	Long:  `List publish jobs by target time. By default only upcoming (pending) jobs are shown; use --status all for every job.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		client := clientFromConfig(cmd)
		if client == nil {
			return
		}
		status, _ := cmd.Flags().GetString("status")
		if status == "all" {
			status = ""
		}
		limit, _ := cmd.Flags().GetInt("limit")

		resp, err := client.ListJobs(status, limit)
		if err != nil {
			printError(cmd, err)
			return
		}
		if len(resp.Jobs) == 0 {
			cmd.Println("No jobs")
			return
		}
		cmd.Printf("%-36s  %-36s  %-14s  %s\n", "JOB", "ARTIFACT", "STATUS", "TARGET")
		for _, j := range resp.Jobs {
			cmd.Printf("%-36s  %-36s  %-14s  %s\n", j.ID, j.ArtifactID, j.Status, formatTime(j.TargetPublishTime))
		}
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [job_id]",
	Short: "Cancel a pending publish job",
	Long:  `Cancel a pending publish job. A job that is already publishing cannot be cancelled.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := clientFromConfig(cmd)
		if client == nil {
			return
		}
		job, err := client.CancelJob(args[0])
		if err != nil {
			printError(cmd, err)
			return
		}
		cmd.Printf("✓ Job %s cancelled\n", job.ID)
	},
}

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots [post_ref]",
	Short: "Show the engagement history of a published post",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := clientFromConfig(cmd)
		if client == nil {
			return
		}
		resp, err := client.Snapshots(args[0])
		if err != nil {
			printError(cmd, err)
			return
		}
		if len(resp.Snapshots) == 0 {
			cmd.Println("No snapshots yet")
			return
		}
		cmd.Printf("%-28s %8s %8s %8s\n", "CAPTURED", "LIKES", "COMMENTS", "REACH")
		for _, s := range resp.Snapshots {
			cmd.Printf("%-28s %8d %8d %8d\n", formatTime(s.CapturedAt), s.Likes, s.Comments, s.Reach)
		}
	},
}

var sweepCmd = &cobra.Command{
	Use:       "sweep [generation|engagement|weekly|cleanup]",
	Short:     "Run one periodic sweep now",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"generation", "engagement", "weekly", "cleanup"},
	Run: func(cmd *cobra.Command, args []string) {
		client := clientFromConfig(cmd)
		if client == nil {
			return
		}
		resp, err := client.RunSweep(args[0])
		if err != nil {
			printError(cmd, err)
			return
		}
		cmd.Printf("✓ %s sweep finished in %s\n", resp.Name, resp.FinishedAt.Sub(resp.StartedAt).Round(time.Millisecond))
		keys := make([]string, 0, len(resp.Counts))
		for k := range resp.Counts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			cmd.Printf("  %s: %d\n", k, resp.Counts[k])
		}
	},
}

func init() {
	jobsCmd.Flags().String("status", "pending", "Filter by status: pending, in_flight, succeeded, failed or all")
	jobsCmd.Flags().Int("limit", 0, "Maximum jobs to list (default: server limit)")

	rootCmd.AddCommand(jobCmd, jobsCmd, cancelCmd, snapshotsCmd, sweepCmd)
}
