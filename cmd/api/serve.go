package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"pickup-map-api-server/internal/api/handlers"
	"pickup-map-api-server/internal/api/routes"
	"pickup-map-api-server/internal/auth"
	"pickup-map-api-server/internal/database"
	"pickup-map-api-server/internal/geocode"
	"pickup-map-api-server/internal/s3"
	"pickup-map-api-server/internal/socket"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.JWT.Secret == "" {
		return errors.New("jwt.secret (JWT_SECRET) must be set")
	}

	mongoClient, err := database.ConnectMongo(ctx, cfg.Mongo)
	if err != nil {
		return err
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			zap.L().Warn("mongo disconnect", zap.Error(err))
		}
	}()
	db := mongoClient.Database(cfg.Mongo.DBName)
	zap.L().Info("connected to MongoDB", zap.String("db", cfg.Mongo.DBName))

	rdb, err := database.NewRedisClient(cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()
	zap.L().Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))

	pickups := database.NewPickupRepository(db)
	users := database.NewUserRepository(db)
	if err := pickups.EnsureIndexes(ctx); err != nil {
		return err
	}
	if err := users.EnsureIndexes(ctx); err != nil {
		return err
	}
	if cfg.Admin.Email != "" {
		if _, err := database.SeedAdmin(ctx, users, cfg.Admin); err != nil {
			return err
		}
	}

	uploader, err := s3.NewUploader(ctx, cfg.S3)
	if err != nil {
		return err
	}

	geocoder := geocode.NewClient(cfg.Nominatim, geocode.WithCache(rdb, cfg.Geocode.CacheTTL))

	router := routes.SetupRouter(routes.Dependencies{
		Config:   cfg,
		Pickups:  pickups,
		Users:    users,
		Storage:  uploader,
		Geocoder: geocoder,
		Tokens:   auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.Expiration),
		Hub:      socket.NewHub(),
		Redis:    rdb,
		HealthChecks: []handlers.HealthCheck{
			{Name: "mongo", Check: func(ctx context.Context) error { return mongoClient.Ping(ctx, readpref.Primary()) }},
			{Name: "redis", Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
		},
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("starting API server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zap.L().Info("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
