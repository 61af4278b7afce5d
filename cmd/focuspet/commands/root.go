package commands

import (
	"fmt"
	"os"

	"github.com/bryanchriswhite/focuspet/internal/config"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
	rootCmd  = &cobra.Command{
		Use:   "focuspet",
		Short: "focuspet - a desktop pet that shows up when you look away",
		Long: `focuspet watches your webcam and, whenever you look away from the screen,
brings up an always-on-top animated pet that stays until you dismiss it.

  • Samples the camera every couple of seconds on a background goroutine
  • Classifies gaze with an external gaze tracking worker process
  • Only distraction shows the pet; looking back never hides it
  • Press Escape on the pet to close it; drag it anywhere on screen`,
		Example: `  # Run the pet with defaults
  focuspet

  # Run with debug logging and a specific config file
  focuspet --log-level debug --config ~/pet.yaml`,
		Args:          cobra.NoArgs,
		RunE:          runPet,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/focuspet/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
}

// loadConfig builds the config manager and applies command line overrides
func loadConfig(cmd *cobra.Command) (*config.Manager, error) {
	configMgr, err := config.NewManager(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cmd.Flags().Changed("log-level") && logLevel != "" {
		if err := configMgr.Set("log_level", logLevel); err != nil {
			return nil, fmt.Errorf("invalid --log-level: %w", err)
		}
	}

	return configMgr, nil
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
