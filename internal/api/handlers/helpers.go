package handlers

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/rpsarena/backend/internal/models"
)

// findUserByID returns (nil, nil) for a missing user.
func findUserByID(ctx context.Context, db *sqlx.DB, id string) (*models.User, error) {
	var user models.User
	err := db.GetContext(ctx, &user, "SELECT * FROM users WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// findUserByEmail returns (nil, nil) for a missing user.
func findUserByEmail(ctx context.Context, db *sqlx.DB, email string) (*models.User, error) {
	var user models.User
	err := db.GetContext(ctx, &user, "SELECT * FROM users WHERE email = $1", email)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// deleteUserCascade removes a user together with their rating history and
// matches. elo_history cascades on the foreign key; matches reference both
// sides by id without a constraint, so they are cleaned up explicitly.
func deleteUserCascade(ctx context.Context, db *sqlx.DB, userID string) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM elo_history WHERE user_id = $1", userID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM matches WHERE player1_id = $1 OR player2_id = $1", userID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM users WHERE id = $1", userID); err != nil {
		return err
	}
	return tx.Commit()
}
