package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Saisumanthklv/weapp-starter-template/cmd/configcmd"
	"github.com/Saisumanthklv/weapp-starter-template/cmd/run"
	"github.com/Saisumanthklv/weapp-starter-template/cmd/simulate"
	"github.com/Saisumanthklv/weapp-starter-template/internal/conf"
)

// RootCommand creates and returns the root command. settings is filled
// from the config file before any subcommand runs.
func RootCommand(settings *conf.Settings) *cobra.Command {
	var (
		configFile string
		debug      bool
	)

	rootCmd := &cobra.Command{
		Use:           "weapp",
		Short:         "Instrumentation substrate for mini-program style clients",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config.yaml (default: ./config.yaml or the user config directory)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug mode (state logging and page timing)")

	initCmd := configcmd.InitCommand()

	rootCmd.AddCommand(
		run.Command(settings),
		simulate.Command(settings),
		configcmd.Command(settings, initCmd),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// init writes the config file, so there may be nothing to load yet
		if cmd.Name() == initCmd.Name() {
			return nil
		}
		loaded, err := conf.Load(configFile)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("debug") {
			loaded.Main.Debug = debug
		}
		*settings = *loaded
		return nil
	}

	return rootCmd
}
