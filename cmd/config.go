package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"caterpillar/pkg/config"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const defaultConfigFile = "config.yaml"

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a config file with default settings",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := defaultConfigFile
		switch {
		case len(args) == 1:
			path = args[0]
		case cfgFile != "":
			path = cfgFile
		}

		if err := writeDefaultConfig(path, configForce); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Wrote default config to %s\n", path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func writeDefaultConfig(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	raw, err := yaml.Marshal(config.DefaultConfig())
	if err != nil {
		return fmt.Errorf("encode default config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	// The file will hold the bot token.
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}

	return nil
}
