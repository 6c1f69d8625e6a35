// Package configcmd implements the config command.
package configcmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Saisumanthklv/weapp-starter-template/internal/conf"
)

// Command prints the effective settings with secrets redacted. init is
// attached as a subcommand.
func Command(settings *conf.Settings, initCmd *cobra.Command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long:  "Print the settings after merging defaults, the config file and WEAPP_* environment variables.",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := settings.RedactedYAML()
			if err != nil {
				return fmt.Errorf("error rendering settings: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.AddCommand(initCmd)
	return cmd
}

// InitCommand writes the commented default configuration.
func InitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default config.yaml",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "config.yaml"
			if len(args) == 1 {
				path = args[0]
			} else if dir, err := os.UserConfigDir(); err == nil {
				path = filepath.Join(dir, "weapp", "config.yaml")
			}
			if err := conf.WriteDefaultConfig(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote default configuration to %s\n", path)
			return nil
		},
	}
}
