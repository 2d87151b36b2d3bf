// internal/database/seeder.go
package database

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"pickup-map-api-server/config"
	"pickup-map-api-server/internal/auth"
	"pickup-map-api-server/internal/models"
)

// UserStore is the subset of UserRepository the seeder needs.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, u *models.User) error
}

// SeedAdmin makes sure the configured admin account exists.
// It returns true when a new account was created.
func SeedAdmin(ctx context.Context, users UserStore, cfg config.AdminConfig) (bool, error) {
	email := strings.ToLower(strings.TrimSpace(cfg.Email))
	if email == "" || cfg.Password == "" {
		return false, eris.New("database: admin email and password must be configured")
	}

	_, err := users.FindByEmail(ctx, email)
	if err == nil {
		zap.L().Info("admin already exists, seeding skipped", zap.String("email", email))
		return false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return false, err
	}

	zap.L().Info("admin not found, seeding", zap.String("email", email))
	hashedPassword, err := auth.HashPassword(cfg.Password)
	if err != nil {
		return false, err
	}

	admin := &models.User{
		Email:     email,
		Name:      cfg.Name,
		Password:  hashedPassword,
		Role:      models.RoleAdmin,
		Status:    models.UserStatusActive,
		CreatedAt: time.Now().UTC(),
	}
	if err := users.Create(ctx, admin); err != nil {
		return false, err
	}

	zap.L().Info("admin seeded", zap.String("email", email))
	return true, nil
}
