package handlers

import (
	"encoding/json"
	"log"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/rpsarena/backend/internal/models"
)

const (
	leaderboardSize     = 10
	leaderboardCacheKey = "leaderboard:top"
	leaderboardCacheTTL = 30 * time.Second
)

// Leaderboard returns the top players by rating, cache-aside through Redis
// so the hot path rarely touches Postgres.
func Leaderboard(db *sqlx.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if cached, err := rdb.Get(ctx, leaderboardCacheKey).Result(); err == nil {
			var entries []models.PublicUser
			if json.Unmarshal([]byte(cached), &entries) == nil {
				c.JSON(http.StatusOK, gin.H{"leaderboard": entries})
				return
			}
		}

		var users []models.User
		err := db.SelectContext(ctx, &users,
			"SELECT * FROM users WHERE is_banned = FALSE ORDER BY elo DESC LIMIT $1", leaderboardSize)
		if err != nil {
			log.Printf("[API] Leaderboard query failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load leaderboard"})
			return
		}

		entries := make([]models.PublicUser, 0, len(users))
		for i := range users {
			entries = append(entries, users[i].Public())
		}

		if data, err := json.Marshal(entries); err == nil {
			if err := rdb.Set(ctx, leaderboardCacheKey, data, leaderboardCacheTTL).Err(); err != nil {
				log.Printf("[API] Leaderboard cache write failed: %v", err)
			}
		}

		c.JSON(http.StatusOK, gin.H{"leaderboard": entries})
	}
}

// Dashboard returns the authenticated user's profile, recent finished
// matches, and win rate.
func Dashboard(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		if user == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}

		var matches []models.Match
		err := db.SelectContext(c.Request.Context(), &matches, `
			SELECT * FROM matches
			WHERE (player1_id = $1 OR player2_id = $1) AND finished_at IS NOT NULL
			ORDER BY finished_at DESC
			LIMIT 10`, user.ID)
		if err != nil {
			log.Printf("[API] Dashboard matches query failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load dashboard"})
			return
		}

		winRate := 0.0
		if user.TotalGames > 0 {
			winRate = math.Round(float64(user.Wins) / float64(user.TotalGames) * 100)
		}

		c.JSON(http.StatusOK, gin.H{
			"user":           user.Public(),
			"recent_matches": matches,
			"win_rate":       winRate,
		})
	}
}

// GetUser returns a public profile by id.
func GetUser(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := findUserByID(c.Request.Context(), db, c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user"})
			return
		}
		if user == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": user.Public()})
	}
}

// DeleteAccount removes the authenticated user and everything attached.
func DeleteAccount(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		if user == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}
		if err := deleteUserCascade(c.Request.Context(), db, user.ID); err != nil {
			log.Printf("[API] Account delete for %s failed: %v", user.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete account"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Account deleted successfully"})
	}
}
