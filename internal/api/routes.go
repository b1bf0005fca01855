package api

import (
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/rpsarena/backend/internal/api/handlers"
	"github.com/rpsarena/backend/internal/config"
	"github.com/rpsarena/backend/internal/game"
	"github.com/rpsarena/backend/internal/middleware"
	"github.com/rpsarena/backend/internal/store"
	"github.com/rpsarena/backend/internal/ws"
)

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, db *sqlx.DB, rdb *redis.Client, st *store.Store, matchmaker *game.Matchmaker, cfg *config.Config) {
	router.Use(middleware.CORSMiddleware(cfg))

	// Game WebSocket; ?token= authenticates, its absence starts a guest.
	router.GET("/ws", ws.HandleWebSocket(st, matchmaker, cfg))

	authRoutes := router.Group("/auth")
	{
		authRoutes.POST("/register", handlers.Register(db, cfg))
		authRoutes.POST("/login", handlers.Login(db, cfg))
		authRoutes.GET("/me", handlers.AuthRequired(db, cfg), handlers.Me())
		authRoutes.GET("/google", handlers.GoogleLogin(rdb, cfg))
		authRoutes.GET("/google/callback", handlers.GoogleCallback(db, rdb, cfg))
	}

	apiRoutes := router.Group("/api")
	{
		apiRoutes.GET("/health", handlers.HealthCheck)
		apiRoutes.GET("/leaderboard", handlers.Leaderboard(db, rdb))
		apiRoutes.GET("/users/:id", handlers.GetUser(db))

		authed := apiRoutes.Group("", handlers.AuthRequired(db, cfg))
		{
			authed.GET("/dashboard", handlers.Dashboard(db))
			authed.DELETE("/account", handlers.DeleteAccount(db))
		}

		admin := apiRoutes.Group("/admin", handlers.AuthRequired(db, cfg), handlers.AdminRequired())
		{
			admin.GET("/stats", handlers.AdminStats(db))
			admin.GET("/users", handlers.AdminListUsers(db))
			admin.PUT("/users/:id", handlers.AdminUpdateUser(db))
			admin.POST("/users/:id/ban", handlers.AdminBanUser(db))
			admin.POST("/users/:id/unban", handlers.AdminUnbanUser(db))
			admin.DELETE("/users/:id", handlers.AdminDeleteUser(db))
		}
	}
}
