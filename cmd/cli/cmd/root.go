package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "contentctl",
	Short: "contentctl is a command line tool for operating the contentplane pipeline",
	Long: `contentctl is the command-line interface for contentplane, the themed content
pipeline of the parenting blog.

Every weekday has a theme. contentplane generates content for it, schedules it into
the theme's posting window and publishes it, then tracks engagement:

  - Controller: HTTP API for generation, scheduling and manual operations
  - Worker: publishes due jobs and runs the periodic sweeps

Common workflows:

  Generate and schedule today's post:
    contentctl generate daily

  Generate the whole week:
    contentctl generate weekly

  Generate for an explicit theme:
    contentctl generate custom --theme story_saturday --topic "bedtime routines" --type story

  Attach rendered media and publish now:
    contentctl media <artifact-id> --url https://cdn.example/1.jpg --url https://cdn.example/2.jpg
    contentctl publish <artifact-id>

  Inspect a publish job or cancel it while pending:
    contentctl job <job-id>
    contentctl cancel <job-id>

Configuration:
  Set the API endpoint and token via flags, environment variables or a config file:
    CONTENTPLANE_URL      API endpoint (default: http://localhost:6161)
    CONTENTPLANE_TOKEN    API token for authentication`,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".contentctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".contentctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "CONTENTPLANE_VARNAME"
	viper.SetEnvPrefix("CONTENTPLANE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

// clientFromConfig builds a client, or reports a missing token and returns nil.
func clientFromConfig(cmd *cobra.Command) *ContentClient {
	token := viper.GetString("token")
	if token == "" {
		cmd.Println("API token not found. Please set it using the --token flag or the CONTENTPLANE_TOKEN environment variable")
		return nil
	}
	return NewContentClient(viper.GetString("url"), token)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.contentctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:6161", "contentplane controller URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().StringP("token", "t", "", "API token for authentication")
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
}
