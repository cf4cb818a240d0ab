package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	// cfgPath is the YAML or JSON config file.
	cfgPath string

	// envFile is loaded before the config so secrets can live outside it.
	envFile string
)

var rootCmd = &cobra.Command{
	Use:   "dolphinbot",
	Short: "Relay OpenProject activity to Slack or Telegram",
	Long: `dolphinbot polls the Atom activity feed of an OpenProject project and
posts every new entry to a Slack webhook or a Telegram chat. Bursts of
activity are folded into a single summary message.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is normal; only the default file may be absent.
		if err := godotenv.Load(envFile); err != nil && cmd.Flags().Changed("env-file") {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(
		&cfgPath, "config", "c", "./config.yaml",
		"Path to the config file (YAML or JSON)",
	)
	rootCmd.PersistentFlags().StringVar(
		&envFile, "env-file", ".env",
		"Dotenv file with DOLPHIN_* secrets",
	)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(projectsCmd)
	rootCmd.AddCommand(versionCmd)
}
