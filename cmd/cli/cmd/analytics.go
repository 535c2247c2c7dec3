package cmd

import (
	"github.com/spf13/cobra"
)

var analyticsCmd = &cobra.Command{
	Use:   "analytics [artifact_id]",
	Short: "Show the engagement of a published artifact",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := clientFromConfig(cmd)
		if client == nil {
			return
		}
		resp, err := client.ArtifactAnalytics(args[0])
		if err != nil {
			printError(cmd, err)
			return
		}
		cmd.Printf("%sPost:%s        %s\n", colorDim, colorReset, resp.Post.PostRef)
		if resp.Post.Permalink != "" {
			cmd.Printf("%sLink:%s        %s\n", colorDim, colorReset, resp.Post.Permalink)
		}
		cmd.Printf("%sPublished:%s   %s\n", colorDim, colorReset, formatTimeWithRelative(&resp.Post.PublishedAt))
		if resp.Latest == nil {
			cmd.Println("No snapshots yet")
			return
		}
		cmd.Printf("%sLikes:%s       %d\n", colorDim, colorReset, resp.Latest.Likes)
		cmd.Printf("%sComments:%s    %d\n", colorDim, colorReset, resp.Latest.Comments)
		cmd.Printf("%sReach:%s       %d\n", colorDim, colorReset, resp.Latest.Reach)
		cmd.Printf("%sSnapshots:%s   %d, latest %s\n", colorDim, colorReset, len(resp.Snapshots), formatTime(resp.Latest.CapturedAt))
	},
}

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Show today's account insights",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		client := clientFromConfig(cmd)
		if client == nil {
			return
		}
		resp, err := client.AccountInsights()
		if err != nil {
			printError(cmd, err)
			return
		}
		cmd.Printf("%sImpressions:%s    %d\n", colorDim, colorReset, resp.Impressions)
		cmd.Printf("%sReach:%s          %d\n", colorDim, colorReset, resp.Reach)
		cmd.Printf("%sProfile views:%s  %d\n", colorDim, colorReset, resp.ProfileViews)
		cmd.Printf("%sNew followers:%s  %d\n", colorDim, colorReset, resp.FollowerCount)
	},
}

func init() {
	rootCmd.AddCommand(analyticsCmd, accountCmd)
}
