// Command register runs the travel register: an SMS webhook that turns
// compact position reports into register entries, plus a small JSON API
// over the stored register.
//
//	@title						Travel Register API
//	@version					1.0
//	@description				Inbound SMS ingestion and register views.
//	@BasePath					/api/v1
//	@schemes					http https
//	@produce					json
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	_ "github.com/tbourn/go-travel-register/docs"
	"github.com/tbourn/go-travel-register/internal/config"
	"github.com/tbourn/go-travel-register/internal/sysutil"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	rootCmd := &cobra.Command{
		Use:           "register",
		Short:         "Travel register service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// A missing .env is normal outside development.
			if err := godotenv.Load(envFile); err != nil && cmd.Flags().Changed("env-file") {
				return fmt.Errorf("load %s: %w", envFile, err)
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}

	rootCmd.AddCommand(newServeCmd(), newImportCmd(), versionCmd)
	return rootCmd
}

// loadConfig reads the environment and configures the global logger.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	sysutil.ConfigureLogger(cfg.LogLevel, cfg.LogPretty, os.Stdout)
	log.Debug().Str("version", version).Msg("configuration loaded")
	return cfg, nil
}
