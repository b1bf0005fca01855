package handlers

import (
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/rpsarena/backend/internal/models"
)

// AdminStats returns platform-wide aggregates for the admin dashboard.
func AdminStats(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var stats models.PlatformStats
		err := db.GetContext(c.Request.Context(), &stats, `
			SELECT
				(SELECT COUNT(*) FROM users) AS total_users,
				(SELECT COUNT(DISTINCT user_id) FROM elo_history
				 WHERE created_at > NOW() - INTERVAL '30 days') AS active_users,
				(SELECT COUNT(*) FROM matches) AS total_matches,
				(SELECT COUNT(*) FROM users WHERE is_banned) AS banned_users`)
		if err != nil {
			log.Printf("[ADMIN] Stats query failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load stats"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"stats": stats})
	}
}

// AdminListUsers returns a filtered, sorted, paginated user listing.
func AdminListUsers(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		if page < 1 {
			page = 1
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		if limit < 1 {
			limit = 1
		}
		if limit > 100 {
			limit = 100
		}

		// The sort column is chosen from a fixed set, never interpolated from
		// raw input.
		orderBy := "created_at DESC"
		switch c.Query("sort_by") {
		case "elo":
			orderBy = "elo DESC"
		case "total_games":
			orderBy = "total_games DESC"
		case "created_at", "":
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid sort field"})
			return
		}

		search := "%" + strings.TrimSpace(c.Query("search")) + "%"

		var users []models.User
		err := db.SelectContext(ctx, &users, `
			SELECT * FROM users
			WHERE username ILIKE $1 OR email ILIKE $1
			ORDER BY `+orderBy+`
			LIMIT $2 OFFSET $3`,
			search, limit, (page-1)*limit)
		if err != nil {
			log.Printf("[ADMIN] User listing failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list users"})
			return
		}

		var total int
		err = db.GetContext(ctx, &total,
			"SELECT COUNT(*) FROM users WHERE username ILIKE $1 OR email ILIKE $1", search)
		if err != nil {
			log.Printf("[ADMIN] User count failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list users"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"users": users,
			"total": total,
			"page":  page,
			"limit": limit,
		})
	}
}

// AdminUpdateUser edits a user's profile and counters. The update is a
// read-modify-write inside one transaction: the row is locked, absent fields
// keep their current values, and total_games is recomputed from the final
// counters so it cannot drift from concurrent live increments.
func AdminUpdateUser(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		admin := currentUser(c)
		targetID := c.Param("id")
		if admin != nil && admin.ID == targetID {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot edit your own account"})
			return
		}

		var req struct {
			Username *string `json:"username"`
			Email    *string `json:"email"`
			Elo      *int    `json:"elo"`
			Wins     *int    `json:"wins"`
			Losses   *int    `json:"losses"`
			Draws    *int    `json:"draws"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}

		if req.Username != nil {
			name := strings.TrimSpace(*req.Username)
			if len(name) < 3 || len(name) > 20 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Username must be between 3 and 20 characters"})
				return
			}
			if !validUsername(name) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Username can only contain alphanumeric characters and underscores"})
				return
			}
			req.Username = &name
		}
		if req.Elo != nil && (*req.Elo < 0 || *req.Elo > 5000) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Elo must be between 0 and 5000"})
			return
		}
		for _, counter := range []*int{req.Wins, req.Losses, req.Draws} {
			if counter != nil && *counter < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Counters cannot be negative"})
				return
			}
		}

		ctx := c.Request.Context()
		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
			return
		}
		defer tx.Rollback()

		var user models.User
		err = tx.GetContext(ctx, &user, "SELECT * FROM users WHERE id = $1 FOR UPDATE", targetID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		if user.IsAdmin {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot edit admin accounts"})
			return
		}

		if req.Username != nil {
			user.Username = *req.Username
		}
		if req.Email != nil {
			user.Email = strings.TrimSpace(*req.Email)
		}
		if req.Elo != nil {
			user.Elo = *req.Elo
		}
		if req.Wins != nil {
			user.Wins = *req.Wins
		}
		if req.Losses != nil {
			user.Losses = *req.Losses
		}
		if req.Draws != nil {
			user.Draws = *req.Draws
		}
		user.TotalGames = user.Wins + user.Losses + user.Draws

		_, err = tx.ExecContext(ctx, `
			UPDATE users
			SET username = $1, email = $2, elo = $3, wins = $4, losses = $5,
			    draws = $6, total_games = $7, updated_at = NOW()
			WHERE id = $8`,
			user.Username, user.Email, user.Elo, user.Wins, user.Losses,
			user.Draws, user.TotalGames, targetID)
		if err != nil {
			if msg, ok := uniqueViolationMessage(err); ok {
				c.JSON(http.StatusBadRequest, gin.H{"error": msg})
				return
			}
			log.Printf("[ADMIN] Update user %s failed: %v", targetID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
			return
		}
		if err := tx.Commit(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
			return
		}

		c.JSON(http.StatusOK, user)
	}
}

// AdminBanUser bans a non-admin user with a required reason.
func AdminBanUser(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		admin := currentUser(c)
		targetID := c.Param("id")
		if admin != nil && admin.ID == targetID {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot ban yourself"})
			return
		}

		var req struct {
			Reason string `json:"reason"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		reason := strings.TrimSpace(req.Reason)
		if reason == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Ban reason is required"})
			return
		}
		if len(reason) > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Ban reason must be less than 500 characters"})
			return
		}

		ctx := c.Request.Context()
		target, err := findUserByID(ctx, db, targetID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to ban user"})
			return
		}
		if target == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		if target.IsAdmin {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot ban admin accounts"})
			return
		}

		_, err = db.ExecContext(ctx, `
			UPDATE users
			SET is_banned = TRUE, banned_at = NOW(), banned_reason = $1, updated_at = NOW()
			WHERE id = $2`, reason, targetID)
		if err != nil {
			log.Printf("[ADMIN] Ban user %s failed: %v", targetID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to ban user"})
			return
		}

		log.Printf("[ADMIN] %s banned %s: %s", admin.Username, target.Username, reason)
		c.JSON(http.StatusOK, gin.H{"message": "User banned successfully"})
	}
}

// AdminUnbanUser lifts a ban; a no-op target is rejected.
func AdminUnbanUser(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		targetID := c.Param("id")

		target, err := findUserByID(ctx, db, targetID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to unban user"})
			return
		}
		if target == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		if !target.IsBanned {
			c.JSON(http.StatusBadRequest, gin.H{"error": "User is not banned"})
			return
		}

		_, err = db.ExecContext(ctx, `
			UPDATE users
			SET is_banned = FALSE, banned_at = NULL, banned_reason = NULL, updated_at = NOW()
			WHERE id = $1`, targetID)
		if err != nil {
			log.Printf("[ADMIN] Unban user %s failed: %v", targetID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to unban user"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "User unbanned successfully"})
	}
}

// AdminDeleteUser removes a non-admin user and their data.
func AdminDeleteUser(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		admin := currentUser(c)
		targetID := c.Param("id")
		if admin != nil && admin.ID == targetID {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot delete yourself"})
			return
		}

		ctx := c.Request.Context()
		target, err := findUserByID(ctx, db, targetID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete user"})
			return
		}
		if target == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		if target.IsAdmin {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot delete admin accounts"})
			return
		}

		if err := deleteUserCascade(ctx, db, targetID); err != nil {
			log.Printf("[ADMIN] Delete user %s failed: %v", targetID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete user"})
			return
		}

		log.Printf("[ADMIN] %s deleted user %s", admin.Username, target.Username)
		c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
	}
}

func validUsername(name string) bool {
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_':
		default:
			return false
		}
	}
	return true
}
