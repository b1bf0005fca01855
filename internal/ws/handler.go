package ws

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/rpsarena/backend/internal/auth"
	"github.com/rpsarena/backend/internal/config"
	"github.com/rpsarena/backend/internal/game"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins; identity comes from the token, and guests are
		// allowed by design.
		return true
	},
}

// HandleWebSocket upgrades the connection and binds it to a player identity.
// A missing or unverifiable token degrades to a fresh guest identity instead
// of rejecting the socket.
func HandleWebSocket(st game.Store, matchmaker *game.Matchmaker, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := resolveIdentity(c.Request.Context(), st, c.Query("token"), cfg.JWTSecret)

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("[WS] Upgrade failed: %v", err)
			return
		}

		client := &Client{
			conn:       conn,
			send:       make(chan []byte, sendBufferSize),
			done:       make(chan struct{}),
			identity:   identity,
			matchmaker: matchmaker,
		}

		log.Printf("[WS] %s connected (guest=%v)", identity.Username, identity.IsGuest)

		go client.writePump()
		go client.readPump()
	}
}

// resolveIdentity maps a token to a registered identity. Invalid tokens,
// unknown users, and banned users all fall back to guest play.
func resolveIdentity(ctx context.Context, st game.Store, token, secret string) game.Identity {
	if token == "" {
		return guestIdentity()
	}
	userID, err := auth.ParseToken(token, secret)
	if err != nil {
		return guestIdentity()
	}
	user, err := st.FindUserByID(ctx, userID)
	if err != nil || user == nil || user.IsBanned {
		return guestIdentity()
	}
	return game.Identity{
		ID:       user.ID,
		Username: user.Username,
		Elo:      user.Elo,
		IsFiller: user.IsFiller,
	}
}

// guestIdentity mints a throwaway identity. Guests never touch the database;
// the id exists only for this connection's lifetime.
func guestIdentity() game.Identity {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	suffix := hex.EncodeToString(bytes)
	return game.Identity{
		ID:       "guest_" + suffix,
		Username: "Guest_" + suffix[:4],
		Elo:      1000,
		IsGuest:  true,
	}
}
