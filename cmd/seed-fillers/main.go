package main

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"github.com/rpsarena/backend/internal/config"
	"github.com/rpsarena/backend/internal/database"
)

// fillerProfiles are the server-driven opponents handed out when nobody else
// is waiting. Ratings are spread so early players meet plausible opposition.
var fillerProfiles = []struct {
	Username string
	Elo      int
}{
	{"RockSolid", 850},
	{"PaperTrail", 950},
	{"SharpScissors", 1000},
	{"StoneColdPlayer", 1050},
	{"WrapStar", 1100},
	{"CutAbove", 1150},
	{"BoulderDash", 1250},
	{"OrigamiMaster", 1400},
}

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	seedFillers(db)
	seedAdmin(db)
}

// seedFillers inserts the filler roster. Existing usernames are left alone so
// reruns never reset ratings the admin may have tuned.
func seedFillers(db *sqlx.DB) {
	for _, p := range fillerProfiles {
		res, err := db.Exec(`
			INSERT INTO users (id, username, email, elo, is_filler)
			VALUES ($1, $2, $3, $4, TRUE)
			ON CONFLICT (username) DO NOTHING`,
			newID(), p.Username, p.Username+"@fillers.rpsarena.local", p.Elo)
		if err != nil {
			log.Fatalf("Failed to seed filler %s: %v", p.Username, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			log.Printf("Seeded filler %s (elo %d)", p.Username, p.Elo)
		}
	}
	log.Printf("✓ Filler roster ready (%d profiles)", len(fillerProfiles))
}

// seedAdmin creates the initial admin account from ADMIN_EMAIL and
// ADMIN_PASSWORD. Skipped when unset or when the account already exists.
func seedAdmin(db *sqlx.DB) {
	email := os.Getenv("ADMIN_EMAIL")
	password := os.Getenv("ADMIN_PASSWORD")
	if email == "" || password == "" {
		log.Println("ADMIN_EMAIL/ADMIN_PASSWORD not set, skipping admin seed")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), 10)
	if err != nil {
		log.Fatalf("Failed to hash admin password: %v", err)
	}

	res, err := db.Exec(`
		INSERT INTO users (id, username, email, password_hash, is_admin)
		VALUES ($1, 'admin', $2, $3, TRUE)
		ON CONFLICT (email) DO NOTHING`,
		newID(), email, string(hash))
	if err != nil {
		log.Fatalf("Failed to seed admin: %v", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		log.Printf("✓ Admin account created (%s)", email)
	} else {
		log.Printf("Admin account already exists (%s)", email)
	}
}

func newID() string {
	bytes := make([]byte, 16)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
