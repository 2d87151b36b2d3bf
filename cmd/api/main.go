// cmd/api/main.go
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pickup-map-api-server/config"
	"pickup-map-api-server/internal/logger"
)

var (
	cfg        config.Config
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "pickup-map-api",
	Short: "API server for the 30MinPickup map",
	Long:  "Accepts geotagged photo pickups, lets an admin approve or reject them, and serves approved pickups to the map.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// a missing .env is fine, real deployments use the environment
		_ = godotenv.Load()

		c, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		cfg = c

		return logger.Init(cfg.Log)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./config", "directory containing config.yaml")
	rootCmd.AddCommand(serveCmd, seedAdminCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
