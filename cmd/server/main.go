// Package main is the entry point for the wallet and settlement API. It
// initializes all dependencies, starts the settlement poller and the HTTP
// server, and shuts both down cleanly on SIGINT/SIGTERM.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tiketi/internal/config"
	"tiketi/internal/repositories"
	"tiketi/internal/routes"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/sirupsen/logrus"
)

func main() {
	config.LoadEnv()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if !config.IsProduction() {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		log.SetLevel(logrus.DebugLevel)
	}

	if err := repositories.InitDB(); err != nil {
		log.WithError(err).Fatal("failed to initialize storage")
	}
	defer func() {
		if sqlDB, err := repositories.DB.DB(); err == nil {
			sqlDB.Close()
		}
		if repositories.CacheService != nil {
			repositories.CacheService.Close()
		}
	}()

	if sqlDB, err := repositories.DB.DB(); err == nil {
		go func() {
			ticker := time.NewTicker(1 * time.Minute)
			defer ticker.Stop()
			for range ticker.C {
				stats := sqlDB.Stats()
				log.WithFields(logrus.Fields{
					"open":          stats.OpenConnections,
					"idle":          stats.Idle,
					"in_use":        stats.InUse,
					"wait_count":    stats.WaitCount,
					"wait_duration": stats.WaitDuration.String(),
				}).Debug("db pool stats")
			}
		}()
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  config.GetDurationEnv("HTTP_READ_TIMEOUT", 10*time.Second),
		WriteTimeout: config.GetDurationEnv("HTTP_WRITE_TIMEOUT", 30*time.Second),
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins: config.GetEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173"),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Device-Id",
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH",
	}))

	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Money-movement endpoints are rate limited per client IP.
	for _, path := range []string{"/api/transfer", "/api/agent/deposit", "/api/company/withdraw", "/api/wallet/topup"} {
		app.Use(path, limiter.New(limiter.Config{
			Max:        config.GetIntEnv("RATE_LIMIT_PER_MINUTE", 30),
			Expiration: 1 * time.Minute,
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"error": "too many requests, please try again later",
				})
			},
		}))
	}

	poller, err := routes.SetupRoutes(app, log)
	if err != nil {
		log.WithError(err).Fatal("failed to set up routes (is the platform wallet seeded?)")
	}

	pollerCtx, stopPoller := context.WithCancel(context.Background())
	go poller.Start(pollerCtx)

	go func() {
		if err := app.Listen(":" + config.GetEnv("PORT", "3000")); err != nil {
			log.WithError(err).Fatal("server stopped")
		}
	}()
	log.WithField("port", config.GetEnv("PORT", "3000")).Info("server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	stopPoller()
	if err := app.ShutdownWithTimeout(15 * time.Second); err != nil {
		log.WithError(err).Error("forced shutdown")
	}
}
