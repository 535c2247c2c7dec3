package cmd

import (
	"time"

	"github.com/spf13/cobra"
)

var artifactCmd = &cobra.Command{
	Use:   "artifact [artifact_id]",
	Short: "Show a content artifact",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := clientFromConfig(cmd)
		if client == nil {
			return
		}
		a, err := client.GetArtifact(args[0])
		if err != nil {
			printError(cmd, err)
			return
		}
		printArtifact(cmd, a)
	},
}

var mediaCmd = &cobra.Command{
	Use:   "media [artifact_id]",
	Short: "Attach rendered media to an artifact",
	Long: `Attach rendered media URLs to an artifact before it is published.
Carousels take one URL per slide, videos one URL, stories one URL per frame.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		urls, _ := cmd.Flags().GetStringSlice("url")
		if len(urls) == 0 {
			cmd.Println("Error: at least one --url is required")
			return
		}

		client := clientFromConfig(cmd)
		if client == nil {
			return
		}
		a, err := client.SetMedia(args[0], urls)
		if err != nil {
			printError(cmd, err)
			return
		}
		cmd.Printf("✓ %d media attached to %s\n", len(a.MediaURLs), a.ID)
	},
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule [artifact_id]",
	Short: "Schedule a draft artifact into its theme's posting window",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var earliest *time.Time
		if s, _ := cmd.Flags().GetString("earliest"); s != "" {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				cmd.Printf("Error: --earliest must be RFC3339, e.g. 2026-10-21T00:00:00Z\n")
				return
			}
			earliest = &t
		}

		client := clientFromConfig(cmd)
		if client == nil {
			return
		}
		job, err := client.Schedule(args[0], earliest)
		if err != nil {
			printError(cmd, err)
			return
		}
		cmd.Printf("✓ Scheduled for %s\nJob: %s\n", formatTime(job.TargetPublishTime), job.ID)
	},
}

var publishCmd = &cobra.Command{
	Use:   "publish [artifact_id]",
	Short: "Publish a scheduled artifact now",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := clientFromConfig(cmd)
		if client == nil {
			return
		}
		resp, err := client.Publish(args[0])
		if err != nil {
			printError(cmd, err)
			return
		}
		if resp.Post != nil {
			cmd.Printf("🚀 Published!\nPost: %s\n", resp.Post.PostRef)
			if resp.Post.Permalink != "" {
				cmd.Printf("Link: %s\n", resp.Post.Permalink)
			}
			return
		}
		cmd.Printf("%sPublish failed:%s %s\n", colorRed, colorReset, resp.Error)
		if resp.Job != nil {
			printJob(cmd, resp.Job)
		}
	},
}

func init() {
	mediaCmd.Flags().StringSlice("url", []string{}, "Media URL, repeat or comma separate (required)")
	scheduleCmd.Flags().String("earliest", "", "Do not schedule before this RFC3339 time (default: now)")

	rootCmd.AddCommand(artifactCmd, mediaCmd, scheduleCmd, publishCmd)
}
