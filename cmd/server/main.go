package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/apnisec/trackify/internal/auth"
	"github.com/apnisec/trackify/internal/config"
	"github.com/apnisec/trackify/internal/database"
	"github.com/apnisec/trackify/internal/handler"
	"github.com/apnisec/trackify/internal/queue"
	"github.com/apnisec/trackify/internal/repository"
	"github.com/apnisec/trackify/internal/router"
	queue_publisher "github.com/apnisec/trackify/internal/service"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(context.Background(), db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Println("redis unavailable, rate limiting disabled")
	}

	users := &repository.UserRepo{DB: db}
	tokens := &repository.TokenRepo{DB: db}
	issues := &repository.IssueRepo{DB: db}

	notifier := queue_publisher.EmailNotifier{}

	svc := auth.NewService(auth.Config{
		JWTSecret:      cfg.JWTSecret,
		AccessTTLMin:   cfg.AccessTTLMin,
		RefreshTTLDays: cfg.RefreshTTLDays,
		BcryptCost:     cfg.BcryptCost,
	}, users, tokens, notifier)

	// Background email consumer.  Runs its own reconnect loop forever.
	go func() {
		mailer := queue.NewMailer(config.LoadSMTPConfig())
		if err := queue.StartEmailConsumer(mailer); err != nil {
			log.Printf("email consumer stopped: %v", err)
		}
	}()

	// Periodic purge of expired and revoked refresh tokens.  Revocation and
	// rotation checks never depend on this; it only keeps the table small.
	go func() {
		ticker := time.NewTicker(cfg.CleanupInterval)
		defer ticker.Stop()
		for range ticker.C {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			n, err := tokens.CleanupExpired(ctx)
			cancel()
			if err != nil {
				log.Printf("token cleanup: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("token cleanup: removed %d rows", n)
			}
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.Logger())

	router.Register(e, router.Deps{
		Auth:      handler.NewAuthHandler(svc, cfg.AccessTTLMin, cfg.RefreshTTLDays),
		Issues:    handler.NewIssueHandler(issues, notifier),
		Profile:   handler.NewProfileHandler(users, notifier),
		JWTSecret: cfg.JWTSecret,
		Redis:     rdb,
	})

	log.Printf("listening on :%s (env=%s)", cfg.Port, cfg.Env)
	if err := e.Start(":" + cfg.Port); err != nil {
		log.Fatalf("server: %v", err)
	}
}
