package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/rpsarena/backend/internal/api"
	"github.com/rpsarena/backend/internal/config"
	"github.com/rpsarena/backend/internal/database"
	"github.com/rpsarena/backend/internal/game"
	"github.com/rpsarena/backend/internal/migrations"
	"github.com/rpsarena/backend/internal/redis"
	"github.com/rpsarena/backend/internal/store"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Initialize configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Run migrations on start if requested
	if cfg.MigrateOnStart {
		if err := migrations.RunMigrations(cfg.DatabaseURL); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
	}

	// Initialize Redis
	rdb, err := redis.Connect(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer rdb.Close()

	// Persistence surface shared by the game engine and the WS upgrade path
	st := store.New(db)

	// Start the matchmaker loop
	matchmaker := game.NewMatchmaker(st)
	go matchmaker.Run(context.Background())

	// Set up Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	api.SetupRoutes(router, db, rdb, st, matchmaker, cfg)

	log.Printf("Starting rps-arena server on port %s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
