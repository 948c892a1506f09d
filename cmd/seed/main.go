// Command seed bootstraps a verified super-admin account. Roles and default
// genres come from the migrations; this only creates the first account able
// to manage them. Running it twice is harmless.
package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/iliyamo/scydb-api/internal/config"
	"github.com/iliyamo/scydb-api/internal/database"
	"github.com/iliyamo/scydb-api/internal/logging"
	"github.com/iliyamo/scydb-api/internal/model"
	"github.com/iliyamo/scydb-api/internal/repository"
	"github.com/iliyamo/scydb-api/internal/utils"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.Env)
	defer func() { _ = log.Sync() }()

	email := os.Getenv("SEED_SUPERADMIN_EMAIL")
	password := os.Getenv("SEED_SUPERADMIN_PASSWORD")
	name := os.Getenv("SEED_SUPERADMIN_NAME")
	if name == "" {
		name = "Super Admin"
	}
	if email == "" || len(password) < 8 {
		log.Fatal("SEED_SUPERADMIN_EMAIL and SEED_SUPERADMIN_PASSWORD (8+ chars) are required")
	}

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatal("database unavailable", zap.Error(err))
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := database.Migrate(ctx, db); err != nil {
		log.Fatal("migrations failed", zap.Error(err))
	}

	users := repository.NewUserRepo(db)
	if u, err := users.GetByEmail(ctx, email); err == nil {
		log.Info("account exists, nothing to do", zap.Uint64("user_id", u.ID), zap.String("role", string(u.Role)))
		return
	} else if !errors.Is(err, repository.ErrNotFound) {
		log.Fatal("lookup failed", zap.Error(err))
	}

	hash, err := utils.HashPassword(password, cfg.BcryptCost)
	if err != nil {
		log.Fatal("hash password", zap.Error(err))
	}
	u := model.User{Name: name, Email: email, PasswordHash: hash, Role: model.RoleSuperAdmin, EmailVerified: true}
	if err := users.Create(ctx, &u); err != nil {
		log.Fatal("create super-admin", zap.Error(err))
	}
	log.Info("super-admin created", zap.Uint64("user_id", u.ID), zap.String("email", u.Email))
}
