package ws

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rpsarena/backend/internal/auth"
	"github.com/rpsarena/backend/internal/models"
)

// stubStore serves identity lookups for upgrade-path tests; the engine
// operations are never reached from here.
type stubStore struct {
	users map[string]*models.User
}

func (s *stubStore) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.users[id], nil
}

func (s *stubStore) RandomFillerUser(ctx context.Context) (*models.User, error) {
	return nil, nil
}

func (s *stubStore) UpdateRating(ctx context.Context, userID string, elo int) error { return nil }

func (s *stubStore) IncrementCounters(ctx context.Context, userID, outcome string) error { return nil }

func (s *stubStore) CreateMatch(ctx context.Context, p1, p2 string, ranked bool, e1, e2 int) (string, error) {
	return "", nil
}

func (s *stubStore) FinalizeMatch(ctx context.Context, matchID string, winnerID *string, p1, p2 int, roundsJSON string, a1, a2 int, status string) error {
	return nil
}

func (s *stubStore) AppendRatingHistory(ctx context.Context, userID, matchID string, before, after int) error {
	return nil
}

func TestResolveIdentityValidToken(t *testing.T) {
	st := &stubStore{users: map[string]*models.User{
		"u1": {ID: "u1", Username: "alice", Elo: 1234},
	}}
	token, err := auth.CreateToken("u1", "secret", time.Hour)
	if err != nil {
		t.Fatalf("create token: %v", err)
	}

	id := resolveIdentity(context.Background(), st, token, "secret")
	if id.IsGuest {
		t.Fatal("valid token resolved to a guest")
	}
	if id.ID != "u1" || id.Username != "alice" || id.Elo != 1234 {
		t.Errorf("identity = %+v, want alice's row", id)
	}
}

func TestResolveIdentityFallsBackToGuest(t *testing.T) {
	st := &stubStore{users: map[string]*models.User{
		"banned": {ID: "banned", Username: "cheater", IsBanned: true},
	}}
	goodToken, _ := auth.CreateToken("missing", "secret", time.Hour)
	bannedToken, _ := auth.CreateToken("banned", "secret", time.Hour)
	wrongSecret, _ := auth.CreateToken("u1", "other", time.Hour)

	for name, token := range map[string]string{
		"empty token":  "",
		"bad token":    "garbage",
		"wrong secret": wrongSecret,
		"unknown user": goodToken,
		"banned user":  bannedToken,
	} {
		id := resolveIdentity(context.Background(), st, token, "secret")
		if !id.IsGuest {
			t.Errorf("%s: expected guest fallback, got %+v", name, id)
		}
		if !strings.HasPrefix(id.ID, "guest_") {
			t.Errorf("%s: guest id = %q, want guest_ prefix", name, id.ID)
		}
		if id.Elo != 1000 {
			t.Errorf("%s: guest elo = %d, want 1000", name, id.Elo)
		}
	}
}

func TestGuestIdentitiesAreUnique(t *testing.T) {
	a, b := guestIdentity(), guestIdentity()
	if a.ID == b.ID {
		t.Errorf("two guests minted the same id %q", a.ID)
	}
}

func TestEffectiveRankedForcedOffForGuests(t *testing.T) {
	guest := &Client{identity: guestIdentity()}
	yes := true
	if guest.effectiveRanked(&yes) {
		t.Error("guest must never play ranked")
	}

	registered := &Client{}
	if !registered.effectiveRanked(nil) {
		t.Error("ranked defaults on when omitted")
	}
	no := false
	if registered.effectiveRanked(&no) {
		t.Error("explicit false must stick")
	}
}
