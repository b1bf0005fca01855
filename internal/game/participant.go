package game

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"github.com/rpsarena/backend/internal/models"
	"github.com/rpsarena/backend/internal/protocol"
)

// Identity is the immutable snapshot of who a participant is, taken when the
// connection is authenticated (or the filler user is fetched). Elo here is
// the rating carried into the match, used as the before-value on settlement.
type Identity struct {
	ID       string
	Username string
	Elo      int
	IsGuest  bool
	IsFiller bool
}

// Participant is one side of a match: a live player connection or a filler
// opponent. Send must never block; implementations queue or drop.
// AttachSession is called by the matchmaker before the match_found frame is
// emitted, so a participant always knows its session before play starts.
type Participant interface {
	Identity() Identity
	Send(msg protocol.ServerMessage)
	AttachSession(s *Session)
}

// Store is the persistence surface the engine needs. Implemented by
// internal/store. FindUserByID returns (nil, nil) when no row exists.
type Store interface {
	FindUserByID(ctx context.Context, id string) (*models.User, error)
	RandomFillerUser(ctx context.Context) (*models.User, error)
	UpdateRating(ctx context.Context, userID string, elo int) error
	IncrementCounters(ctx context.Context, userID, outcome string) error
	CreateMatch(ctx context.Context, player1ID, player2ID string, ranked bool, p1Elo, p2Elo int) (string, error)
	FinalizeMatch(ctx context.Context, matchID string, winnerID *string, p1Score, p2Score int, roundsJSON string, p1EloAfter, p2EloAfter int, status string) error
	AppendRatingHistory(ctx context.Context, userID, matchID string, eloBefore, eloAfter int) error
}

// newToken returns length random bytes hex-encoded.
func newToken(length int) string {
	bytes := make([]byte, length)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
