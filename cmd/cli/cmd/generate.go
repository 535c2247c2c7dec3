package cmd

import (
	"contentplane/pkg/api"

	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate and schedule content",
}

var generateDailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Generate and schedule one post for today's theme",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		client := clientFromConfig(cmd)
		if client == nil {
			return
		}
		out, err := client.GenerateDaily()
		if err != nil {
			printError(cmd, err)
			return
		}
		printOutcome(cmd, out)
	},
}

var generateWeeklyCmd = &cobra.Command{
	Use:   "weekly",
	Short: "Generate and schedule one post for every theme of the coming week",
	Long: `Generate one post per weekday theme and schedule each on its own weekday.
Days fail independently: a failed day is reported and the others still run.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		client := clientFromConfig(cmd)
		if client == nil {
			return
		}
		resp, err := client.GenerateWeekly()
		if err != nil {
			printError(cmd, err)
			return
		}
		scheduled := 0
		for i := range resp.Outcomes {
			printOutcome(cmd, &resp.Outcomes[i])
			if resp.Outcomes[i].Job != nil {
				scheduled++
			}
		}
		cmd.Printf("\n%d of %d days scheduled\n", scheduled, len(resp.Outcomes))
	},
}

var generateCustomCmd = &cobra.Command{
	Use:   "custom",
	Short: "Generate and schedule one post for an explicit theme",
	Long: `Generate one post for the given theme and schedule it on that theme's next weekday.

Example:
  contentctl generate custom --theme story_saturday --topic "bedtime routines" --type story`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		themeID, _ := flags.GetString("theme")
		topic, _ := flags.GetString("topic")
		contentType, _ := flags.GetString("type")

		if themeID == "" {
			cmd.Println("Error: --theme is required")
			return
		}

		client := clientFromConfig(cmd)
		if client == nil {
			return
		}
		out, err := client.GenerateCustom(api.GenerateCustomRequest{
			ThemeID:     themeID,
			Topic:       topic,
			ContentType: contentType,
		})
		if err != nil {
			printError(cmd, err)
			return
		}
		printOutcome(cmd, out)
	},
}

var themesCmd = &cobra.Command{
	Use:   "themes",
	Short: "List the weekday themes",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		client := clientFromConfig(cmd)
		if client == nil {
			return
		}
		resp, err := client.Themes()
		if err != nil {
			printError(cmd, err)
			return
		}
		for _, t := range resp.Themes {
			cmd.Printf("%-10s %-24s %-9s %02d:00-%02d:00  %s\n",
				t.Weekday, t.ID, t.ContentType, t.WindowStart, t.WindowEnd, t.DisplayName)
		}
	},
}

func init() {
	flags := generateCustomCmd.Flags()
	flags.String("theme", "", "Theme id, see 'contentctl themes' (required)")
	flags.String("topic", "", "Topic (optional, a theme fallback is used when empty)")
	flags.String("type", "", "Content type: carousel, video or story (default: the theme's)")

	generateCmd.AddCommand(generateDailyCmd, generateWeeklyCmd, generateCustomCmd)
	rootCmd.AddCommand(generateCmd, themesCmd)
}
