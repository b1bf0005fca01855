package models

import (
	"database/sql"
	"time"
)

// User represents an account in the system. Filler users (is_filler) are
// server-driven opponents seeded into the table; they hold ratings like
// everyone else but never gain or lose them.
type User struct {
	ID           string         `db:"id" json:"id"`
	Username     string         `db:"username" json:"username"`
	Email        string         `db:"email" json:"email"`
	PasswordHash sql.NullString `db:"password_hash" json:"-"`
	GoogleID     sql.NullString `db:"google_id" json:"-"`
	AvatarURL    sql.NullString `db:"avatar_url" json:"avatar_url,omitempty"`
	Elo          int            `db:"elo" json:"elo"`
	TotalGames   int            `db:"total_games" json:"total_games"`
	Wins         int            `db:"wins" json:"wins"`
	Losses       int            `db:"losses" json:"losses"`
	Draws        int            `db:"draws" json:"draws"`
	IsAdmin      bool           `db:"is_admin" json:"is_admin"`
	IsBanned     bool           `db:"is_banned" json:"is_banned"`
	BannedAt     sql.NullTime   `db:"banned_at" json:"banned_at,omitempty"`
	BannedReason sql.NullString `db:"banned_reason" json:"banned_reason,omitempty"`
	IsFiller     bool           `db:"is_filler" json:"is_filler"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// PublicUser is the subset of User safe to show other players.
type PublicUser struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	AvatarURL  string    `json:"avatar_url,omitempty"`
	Elo        int       `json:"elo"`
	TotalGames int       `json:"total_games"`
	Wins       int       `json:"wins"`
	Losses     int       `json:"losses"`
	Draws      int       `json:"draws"`
	CreatedAt  time.Time `json:"created_at"`
}

// Public strips credentials and moderation fields from a User.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:         u.ID,
		Username:   u.Username,
		AvatarURL:  u.AvatarURL.String,
		Elo:        u.Elo,
		TotalGames: u.TotalGames,
		Wins:       u.Wins,
		Losses:     u.Losses,
		Draws:      u.Draws,
		CreatedAt:  u.CreatedAt,
	}
}

// Match represents one best-of-three match between two participants.
// rounds_json holds the per-round record as a JSON array.
type Match struct {
	ID               string         `db:"id" json:"id"`
	Player1ID        string         `db:"player1_id" json:"player1_id"`
	Player2ID        string         `db:"player2_id" json:"player2_id"`
	WinnerID         sql.NullString `db:"winner_id" json:"winner_id,omitempty"`
	IsRanked         bool           `db:"is_ranked" json:"is_ranked"`
	Player1Score     int            `db:"player1_score" json:"player1_score"`
	Player2Score     int            `db:"player2_score" json:"player2_score"`
	RoundsJSON       sql.NullString `db:"rounds_json" json:"rounds_json,omitempty"`
	Player1EloBefore int            `db:"player1_elo_before" json:"player1_elo_before"`
	Player2EloBefore int            `db:"player2_elo_before" json:"player2_elo_before"`
	Player1EloAfter  sql.NullInt64  `db:"player1_elo_after" json:"player1_elo_after,omitempty"`
	Player2EloAfter  sql.NullInt64  `db:"player2_elo_after" json:"player2_elo_after,omitempty"`
	Status           string         `db:"status" json:"status"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	FinishedAt       sql.NullTime   `db:"finished_at" json:"finished_at,omitempty"`
}

// EloHistory is one rating movement, appended per ranked match per player.
type EloHistory struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	MatchID   string    `db:"match_id" json:"match_id"`
	EloBefore int       `db:"elo_before" json:"elo_before"`
	EloAfter  int       `db:"elo_after" json:"elo_after"`
	EloChange int       `db:"elo_change" json:"elo_change"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// PlatformStats is the admin dashboard aggregate.
type PlatformStats struct {
	TotalUsers   int `db:"total_users" json:"total_users"`
	ActiveUsers  int `db:"active_users" json:"active_users"`
	TotalMatches int `db:"total_matches" json:"total_matches"`
	BannedUsers  int `db:"banned_users" json:"banned_users"`
}
