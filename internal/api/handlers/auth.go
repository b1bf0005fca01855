package handlers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/rpsarena/backend/internal/auth"
	"github.com/rpsarena/backend/internal/config"
	"github.com/rpsarena/backend/internal/models"
)

const (
	bcryptCost    = 10
	oauthStateTTL = 10 * time.Minute
)

// Register creates a password-based account and returns a signed token.
func Register(db *sqlx.DB, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Username string `json:"username"`
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}

		username := strings.TrimSpace(req.Username)
		email := strings.TrimSpace(req.Email)
		if len(username) < 3 || len(username) > 20 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Username must be between 3 and 20 characters"})
			return
		}
		if len(req.Password) < 6 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Password must be at least 6 characters"})
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create account"})
			return
		}

		user := models.User{ID: newID()}
		err = db.GetContext(c.Request.Context(), &user, `
			INSERT INTO users (id, username, email, password_hash)
			VALUES ($1, $2, $3, $4)
			RETURNING *`,
			user.ID, username, email, string(hash))
		if err != nil {
			if msg, ok := uniqueViolationMessage(err); ok {
				c.JSON(http.StatusBadRequest, gin.H{"error": msg})
				return
			}
			log.Printf("[AUTH] Register failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create account"})
			return
		}

		token, err := auth.CreateToken(user.ID, cfg.JWTSecret, tokenTTL(cfg))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create token"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"token": token, "user": user.Public()})
	}
}

// Login validates email/password credentials.
func Login(db *sqlx.DB, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}

		user, err := findUserByEmail(c.Request.Context(), db, strings.TrimSpace(req.Email))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
			return
		}
		if user == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
			return
		}
		if user.IsBanned {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Account banned: " + bannedReason(user)})
			return
		}
		if !user.PasswordHash.Valid {
			c.JSON(http.StatusBadRequest, gin.H{"error": "This account uses Google sign-in"})
			return
		}
		if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash.String), []byte(req.Password)) != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
			return
		}

		token, err := auth.CreateToken(user.ID, cfg.JWTSecret, tokenTTL(cfg))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create token"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"token": token, "user": user.Public()})
	}
}

// Me returns the authenticated user's public profile.
func Me() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		if user == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": user.Public()})
	}
}

// GoogleLogin redirects to the Google consent screen with a fresh state
// nonce. The nonce lives in Redis so the callback can reject forged states.
func GoogleLogin(rdb *redis.Client, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.GoogleClientID == "" || cfg.GoogleRedirectURI == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Google OAuth not configured"})
			return
		}

		state := newID()
		if err := rdb.Set(c.Request.Context(), oauthStateKey(state), "1", oauthStateTTL).Err(); err != nil {
			log.Printf("[OAUTH] Failed to store state: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start Google sign-in"})
			return
		}

		q := url.Values{}
		q.Set("client_id", cfg.GoogleClientID)
		q.Set("redirect_uri", cfg.GoogleRedirectURI)
		q.Set("response_type", "code")
		q.Set("scope", "openid email profile")
		q.Set("state", state)
		c.Redirect(http.StatusFound, "https://accounts.google.com/o/oauth2/v2/auth?"+q.Encode())
	}
}

// GoogleCallback finishes the OAuth handshake: verify state, exchange the
// code, fetch userinfo, then find-or-create the account and hand the browser
// back to the frontend with a token.
func GoogleCallback(db *sqlx.DB, rdb *redis.Client, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		state := c.Query("state")
		if state == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing state"})
			return
		}
		// Single use: delete on sight so a replayed state fails.
		deleted, err := rdb.Del(ctx, oauthStateKey(state)).Result()
		if err != nil || deleted == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or expired state"})
			return
		}

		code := c.Query("code")
		if code == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing code"})
			return
		}

		info, err := exchangeGoogleCode(ctx, cfg, code)
		if err != nil {
			log.Printf("[OAUTH] Exchange failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Google sign-in failed"})
			return
		}

		user, err := findOrCreateGoogleUser(ctx, db, info)
		if err != nil {
			log.Printf("[OAUTH] Find-or-create failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Google sign-in failed"})
			return
		}
		if user.IsBanned {
			c.Redirect(http.StatusFound, cfg.FrontendURL+"/?error=banned")
			return
		}

		token, err := auth.CreateToken(user.ID, cfg.JWTSecret, tokenTTL(cfg))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create token"})
			return
		}
		c.Redirect(http.StatusFound, cfg.FrontendURL+"/?token="+url.QueryEscape(token))
	}
}

type googleUserInfo struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// exchangeGoogleCode trades the authorization code for an access token and
// fetches the user's profile.
func exchangeGoogleCode(ctx context.Context, cfg *config.Config, code string) (*googleUserInfo, error) {
	client := &http.Client{Timeout: 10 * time.Second}

	form := url.Values{}
	form.Set("code", code)
	form.Set("client_id", cfg.GoogleClientID)
	form.Set("client_secret", cfg.GoogleClientSecret)
	form.Set("redirect_uri", cfg.GoogleRedirectURI)
	form.Set("grant_type", "authorization_code")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		"https://oauth2.googleapis.com/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}
	defer resp.Body.Close()

	var tokenResp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("token exchange returned no access token (status %d)", resp.StatusCode)
	}

	infoReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"https://www.googleapis.com/oauth2/v2/userinfo", nil)
	if err != nil {
		return nil, err
	}
	infoReq.Header.Set("Authorization", "Bearer "+tokenResp.AccessToken)

	infoResp, err := client.Do(infoReq)
	if err != nil {
		return nil, fmt.Errorf("fetch userinfo: %w", err)
	}
	defer infoResp.Body.Close()

	var info googleUserInfo
	if err := json.NewDecoder(infoResp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	if info.ID == "" || info.Email == "" {
		return nil, fmt.Errorf("userinfo missing id or email")
	}
	return &info, nil
}

// findOrCreateGoogleUser resolves an identity in order: by google id, by
// email (attaching the google id to an existing account), or by creating a
// new row with a generated username.
func findOrCreateGoogleUser(ctx context.Context, db *sqlx.DB, info *googleUserInfo) (*models.User, error) {
	var user models.User
	err := db.GetContext(ctx, &user, "SELECT * FROM users WHERE google_id = $1", info.ID)
	if err == nil {
		return &user, nil
	}

	existing, err := findUserByEmail(ctx, db, info.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		_, err = db.ExecContext(ctx,
			"UPDATE users SET google_id = $1, updated_at = NOW() WHERE id = $2", info.ID, existing.ID)
		if err != nil {
			return nil, err
		}
		existing.GoogleID.String, existing.GoogleID.Valid = info.ID, true
		return existing, nil
	}

	username := googleUsername(info)
	user = models.User{ID: newID()}
	err = db.GetContext(ctx, &user, `
		INSERT INTO users (id, username, email, google_id, avatar_url)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
		RETURNING *`,
		user.ID, username, info.Email, info.ID, info.Picture)
	if err != nil {
		// Username collision: retry once with a random suffix.
		if msg, ok := uniqueViolationMessage(err); ok && msg == "Username already taken" {
			err = db.GetContext(ctx, &user, `
				INSERT INTO users (id, username, email, google_id, avatar_url)
				VALUES ($1, $2, $3, $4, NULLIF($5, ''))
				RETURNING *`,
				user.ID, username+"_"+newID()[:4], info.Email, info.ID, info.Picture)
		}
		if err != nil {
			return nil, err
		}
	}
	return &user, nil
}

// googleUsername derives a username from the Google display name, falling
// back to the Google account id when too little survives the filter.
func googleUsername(info *googleUserInfo) string {
	var b strings.Builder
	for _, r := range strings.ToLower(info.Name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	name := b.String()
	if len(name) < 3 {
		id := info.ID
		if len(id) > 8 {
			id = id[:8]
		}
		return "user_" + id
	}
	if len(name) > 16 {
		name = name[:16]
	}
	return name
}

func oauthStateKey(state string) string {
	return "oauth_state:" + state
}

func tokenTTL(cfg *config.Config) time.Duration {
	return time.Duration(cfg.TokenExpiryHrs) * time.Hour
}

func bannedReason(user *models.User) string {
	if user.BannedReason.Valid && user.BannedReason.String != "" {
		return user.BannedReason.String
	}
	return "No reason provided"
}

// uniqueViolationMessage maps Postgres unique violations to user-facing
// messages for the users table.
func uniqueViolationMessage(err error) (string, bool) {
	pqErr, ok := err.(*pq.Error)
	if !ok || pqErr.Code != "23505" {
		return "", false
	}
	switch {
	case strings.Contains(pqErr.Constraint, "username"):
		return "Username already taken", true
	case strings.Contains(pqErr.Constraint, "email"):
		return "Email already registered", true
	}
	return "Already exists", true
}

// newID returns a 32-char hex identifier for new rows.
func newID() string {
	bytes := make([]byte, 16)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
