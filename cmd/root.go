package cmd

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const dotEnvFile = ".env"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "caterpillar",
	Short: "Telegram relay for the Ask The Caterpillar harm reduction service",
	Long: `caterpillar answers Telegram messages by forwarding each one to the
Ask The Caterpillar query service and replying with its answer.

Configuration is read from a YAML file, CATERPILLAR_* variables and
TELEGRAM_BOT_TOKEN. A .env file in the working directory is loaded first.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadDotEnv(dotEnvFile)
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default $CATERPILLAR_CONFIG, ./config.yaml or ./config/config.yaml)")
}

// loadDotEnv exports variables from path without overriding the environment.
// A missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}

	return nil
}
