package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"officetrack-backend/internal/config"
	"officetrack-backend/internal/database"
	"officetrack-backend/internal/handlers"
	"officetrack-backend/internal/middleware"
	"officetrack-backend/internal/repository"
	"officetrack-backend/internal/router"
	"officetrack-backend/internal/services"
	"officetrack-backend/internal/websocket"
)

func main() {
	log.Println("🚀 Starting OfficeTrack Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClients.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, "migrations"); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Initialize Repositories ────
	userRepo := repository.NewUserRepo(pool)
	eventRepo := repository.NewPresenceEventRepo(pool)

	// ──── Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	authService := services.NewAuthService(userRepo, redisClients.Tokens, jwtAuth)
	reportService := services.NewReportService(eventRepo, userRepo, cfg.SessionTimeoutMinutes)

	// ──── Initialize Handlers ────
	authHandler := handlers.NewAuthHandler(authService, userRepo)
	presenceHandler := handlers.NewPresenceHandler(eventRepo, userRepo, redisClients.PubSub)
	adminHandler := handlers.NewAdminHandler(userRepo, reportService)

	// ──── Step 5: Start WebSocket Hub ────
	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()

	wsHub := websocket.NewHub(redisClients.PubSub, cfg.JWTSecret)
	go wsHub.Run(hubCtx)
	log.Println("✓ WebSocket hub started")

	// ──── Step 6: Start HTTP Server ────
	r := router.New(
		jwtAuth,
		authHandler,
		presenceHandler,
		adminHandler,
		wsHub,
		cfg.FrontendURL,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		hubCancel()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ OfficeTrack Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
