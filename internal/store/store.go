// Package store implements the persistence operations the game engine
// performs on settlement and pairing. HTTP handlers run their own queries;
// this is only the surface sessions and the matchmaker depend on.
package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/rpsarena/backend/internal/models"
)

type Store struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// newID returns a 32-char hex row id.
func newID() string {
	bytes := make([]byte, 16)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

// FindUserByID returns (nil, nil) when the user does not exist, so callers
// can tell "missing" apart from a failing database.
func (s *Store) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, "SELECT * FROM users WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// RandomFillerUser picks a uniformly random filler identity. It is an error
// for none to exist; the matchmaker surfaces that to the waiting player.
func (s *Store) RandomFillerUser(ctx context.Context) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user,
		"SELECT * FROM users WHERE is_filler = TRUE ORDER BY RANDOM() LIMIT 1")
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no filler users available")
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) UpdateRating(ctx context.Context, userID string, elo int) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE users SET elo = $1, updated_at = NOW() WHERE id = $2", elo, userID)
	return err
}

// IncrementCounters bumps exactly one of wins/losses/draws together with
// total_games. Unknown ids (guests) update zero rows without error.
func (s *Store) IncrementCounters(ctx context.Context, userID, outcome string) error {
	var column string
	switch outcome {
	case "win":
		column = "wins"
	case "loss":
		column = "losses"
	case "draw":
		column = "draws"
	default:
		return fmt.Errorf("invalid outcome %q", outcome)
	}
	query := fmt.Sprintf(
		"UPDATE users SET %s = %s + 1, total_games = total_games + 1, updated_at = NOW() WHERE id = $1",
		column, column)
	_, err := s.db.ExecContext(ctx, query, userID)
	return err
}

// CreateMatch inserts the in-progress match row and returns its id.
func (s *Store) CreateMatch(ctx context.Context, player1ID, player2ID string, ranked bool, p1Elo, p2Elo int) (string, error) {
	id := newID()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO matches (id, player1_id, player2_id, is_ranked, player1_elo_before, player2_elo_before, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'in_progress')`,
		id, player1ID, player2ID, ranked, p1Elo, p2Elo)
	if err != nil {
		return "", err
	}
	return id, nil
}

// FinalizeMatch records the terminal result. winnerID nil means a draw.
func (s *Store) FinalizeMatch(ctx context.Context, matchID string, winnerID *string, p1Score, p2Score int, roundsJSON string, p1EloAfter, p2EloAfter int, status string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE matches
		SET winner_id = $1, player1_score = $2, player2_score = $3, rounds_json = $4,
		    player1_elo_after = $5, player2_elo_after = $6, status = $7, finished_at = NOW()
		WHERE id = $8`,
		winnerID, p1Score, p2Score, roundsJSON, p1EloAfter, p2EloAfter, status, matchID)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err == nil && rows == 0 {
		return fmt.Errorf("match %s not found", matchID)
	}
	return nil
}

func (s *Store) AppendRatingHistory(ctx context.Context, userID, matchID string, eloBefore, eloAfter int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO elo_history (id, user_id, match_id, elo_before, elo_after, elo_change)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		newID(), userID, matchID, eloBefore, eloAfter, eloAfter-eloBefore)
	return err
}
