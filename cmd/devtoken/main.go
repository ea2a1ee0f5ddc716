// Command devtoken upserts a local user and prints an access token for it.
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/creditshop/creditshop-api/internal/config"
	"github.com/creditshop/creditshop-api/internal/domain/user"
	"github.com/creditshop/creditshop-api/internal/pkg/database"
	"github.com/creditshop/creditshop-api/internal/pkg/jwt"
	"github.com/creditshop/creditshop-api/internal/pkg/logger"
)

func main() {
	id := flag.String("id", "", "user id (random when empty)")
	name := flag.String("name", "Dev User", "display name")
	role := flag.String("role", jwt.RoleUser, "user or admin")
	flag.Parse()

	cfg := config.Load()
	logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env})

	if !cfg.IsDevelopment() {
		log.Fatal().Str("env", cfg.Env).Msg("devtoken only runs in development")
	}

	userID := uuid.New()
	if *id != "" {
		parsed, err := uuid.Parse(*id)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid user id")
		}
		userID = parsed
	}
	if *role != jwt.RoleUser && *role != jwt.RoleAdmin {
		log.Fatal().Str("role", *role).Msg("Unknown role")
	}

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	u := &user.User{ID: userID, Name: *name, Role: user.Role(*role)}
	if err := user.NewRepository(db).Upsert(ctx, u); err != nil {
		log.Fatal().Err(err).Msg("Failed to upsert user")
	}

	token, err := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL).GenerateAccessToken(u.ID, string(u.Role), u.Name)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to sign token")
	}

	fmt.Printf("user:  %s (%s)\n", u.ID, u.Role)
	fmt.Printf("token: %s\n", token)
}
