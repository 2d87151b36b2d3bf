package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pickup-map-api-server/internal/database"
)

var seedAdminCmd = &cobra.Command{
	Use:   "seed-admin",
	Short: "Create the configured admin account if it does not exist",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		client, err := database.ConnectMongo(ctx, cfg.Mongo)
		if err != nil {
			return err
		}
		defer client.Disconnect(context.Background())

		users := database.NewUserRepository(client.Database(cfg.Mongo.DBName))
		if err := users.EnsureIndexes(ctx); err != nil {
			return err
		}
		created, err := database.SeedAdmin(ctx, users, cfg.Admin)
		if err != nil {
			return err
		}
		zap.L().Info("seed-admin finished", zap.String("email", cfg.Admin.Email), zap.Bool("created", created))
		return nil
	},
}
