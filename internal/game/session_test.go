package game

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rpsarena/backend/internal/models"
	"github.com/rpsarena/backend/internal/protocol"
)

// fakeParticipant records everything the engine sends it.
type fakeParticipant struct {
	id Identity

	mu                   sync.Mutex
	msgs                 []protocol.ServerMessage
	session              *Session
	attachedAtMatchFound bool
	sawMatchFound        bool
}

func newFakeParticipant(id, username string, elo int) *fakeParticipant {
	return &fakeParticipant{id: Identity{ID: id, Username: username, Elo: elo}}
}

func (f *fakeParticipant) Identity() Identity { return f.id }

func (f *fakeParticipant) Send(msg protocol.ServerMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := msg.(protocol.MatchFound); ok {
		f.sawMatchFound = true
		f.attachedAtMatchFound = f.session != nil
	}
	f.msgs = append(f.msgs, msg)
}

func (f *fakeParticipant) AttachSession(s *Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.session = s
}

func (f *fakeParticipant) messages() []protocol.ServerMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.ServerMessage(nil), f.msgs...)
}

func (f *fakeParticipant) attachedSession() *Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session
}

func (f *fakeParticipant) matchComplete() (protocol.MatchComplete, bool) {
	for _, m := range f.messages() {
		if mc, ok := m.(protocol.MatchComplete); ok {
			return mc, true
		}
	}
	return protocol.MatchComplete{}, false
}

func (f *fakeParticipant) matchCompleteCount() int {
	n := 0
	for _, m := range f.messages() {
		if _, ok := m.(protocol.MatchComplete); ok {
			n++
		}
	}
	return n
}

func (f *fakeParticipant) roundResults() []protocol.RoundResult {
	var out []protocol.RoundResult
	for _, m := range f.messages() {
		if rr, ok := m.(protocol.RoundResult); ok {
			out = append(out, rr)
		}
	}
	return out
}

func (f *fakeParticipant) opponentChoseCount() int {
	n := 0
	for _, m := range f.messages() {
		if _, ok := m.(protocol.OpponentChose); ok {
			n++
		}
	}
	return n
}

func (f *fakeParticipant) errorMessages() []string {
	var out []string
	for _, m := range f.messages() {
		if e, ok := m.(protocol.ErrorMessage); ok {
			out = append(out, e.Message)
		}
	}
	return out
}

type finalizeRecord struct {
	matchID    string
	winnerID   *string
	p1Score    int
	p2Score    int
	roundsJSON string
	p1After    int
	p2After    int
	status     string
}

type counterRecord struct {
	userID  string
	outcome string
}

// fakeStore records engine persistence calls, with switches for failures.
type fakeStore struct {
	mu sync.Mutex

	users       map[string]*models.User
	filler      *models.User
	fillerErr   error
	fillerSleep time.Duration
	createErr   error

	created   int
	ranked    []bool
	finalized []finalizeRecord
	ratings   map[string]int
	history   []string
	counters  []counterRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:   make(map[string]*models.User),
		ratings: make(map[string]int),
	}
}

func (f *fakeStore) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[id], nil
}

func (f *fakeStore) RandomFillerUser(ctx context.Context) (*models.User, error) {
	f.mu.Lock()
	sleep := f.fillerSleep
	filler := f.filler
	err := f.fillerErr
	f.mu.Unlock()
	if sleep > 0 {
		time.Sleep(sleep)
	}
	if err != nil {
		return nil, err
	}
	if filler == nil {
		return nil, errors.New("no filler users available")
	}
	return filler, nil
}

func (f *fakeStore) UpdateRating(ctx context.Context, userID string, elo int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ratings[userID] = elo
	return nil
}

func (f *fakeStore) IncrementCounters(ctx context.Context, userID, outcome string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters = append(f.counters, counterRecord{userID: userID, outcome: outcome})
	return nil
}

func (f *fakeStore) CreateMatch(ctx context.Context, p1ID, p2ID string, ranked bool, p1Elo, p2Elo int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created++
	f.ranked = append(f.ranked, ranked)
	return "match1", nil
}

func (f *fakeStore) FinalizeMatch(ctx context.Context, matchID string, winnerID *string, p1Score, p2Score int, roundsJSON string, p1After, p2After int, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalized = append(f.finalized, finalizeRecord{
		matchID: matchID, winnerID: winnerID,
		p1Score: p1Score, p2Score: p2Score,
		roundsJSON: roundsJSON,
		p1After:    p1After, p2After: p2After,
		status: status,
	})
	return nil
}

func (f *fakeStore) AppendRatingHistory(ctx context.Context, userID, matchID string, before, after int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = append(f.history, userID)
	return nil
}

func (f *fakeStore) snapshot() fakeStore {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fakeStore{
		created:   f.created,
		ranked:    append([]bool(nil), f.ranked...),
		finalized: append([]finalizeRecord(nil), f.finalized...),
		ratings:   copyRatings(f.ratings),
		history:   append([]string(nil), f.history...),
		counters:  append([]counterRecord(nil), f.counters...),
	}
}

func copyRatings(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// waitFor polls cond until it holds or the timeout passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}

func TestSessionRankedWinUpdatesEverything(t *testing.T) {
	st := newFakeStore()
	p1 := newFakeParticipant("p1", "alice", 1000)
	p2 := newFakeParticipant("p2", "bob", 1000)
	s := NewSession(st, p1, p2, true)
	s.Start()

	// Two straight wins for p1.
	for round := 1; round <= 2; round++ {
		s.PlayerChoice("p1", "rock")
		s.PlayerChoice("p2", "scissors")
		r := round
		if !waitFor(t, time.Second, func() bool { return len(p1.roundResults()) >= r }) {
			t.Fatalf("round %d never resolved", round)
		}
	}

	if !waitFor(t, time.Second, func() bool { _, ok := p1.matchComplete(); return ok }) {
		t.Fatal("p1 never received match_complete")
	}
	if !waitFor(t, time.Second, func() bool { _, ok := p2.matchComplete(); return ok }) {
		t.Fatal("p2 never received match_complete")
	}

	mc1, _ := p1.matchComplete()
	if mc1.Result != "win" || mc1.YourScore != 2 || mc1.OpponentScore != 0 {
		t.Errorf("p1 match_complete = %+v, want win 2-0", mc1)
	}
	if mc1.EloChange == nil || *mc1.EloChange != 20 || mc1.NewElo == nil || *mc1.NewElo != 1020 {
		t.Errorf("p1 rating fields = %v/%v, want +20/1020", mc1.EloChange, mc1.NewElo)
	}
	mc2, _ := p2.matchComplete()
	if mc2.Result != "loss" || mc2.EloChange == nil || *mc2.EloChange != -20 || *mc2.NewElo != 980 {
		t.Errorf("p2 match_complete = %+v, want loss -20/980", mc2)
	}

	snap := st.snapshot()
	if snap.created != 1 || len(snap.finalized) != 1 {
		t.Fatalf("created=%d finalized=%d, want 1/1", snap.created, len(snap.finalized))
	}
	fin := snap.finalized[0]
	if fin.status != "completed" || fin.winnerID == nil || *fin.winnerID != "p1" {
		t.Errorf("finalize = %+v, want completed winner p1", fin)
	}
	if fin.p1After != 1020 || fin.p2After != 980 {
		t.Errorf("ratings after = %d/%d, want 1020/980", fin.p1After, fin.p2After)
	}
	if snap.ratings["p1"] != 1020 || snap.ratings["p2"] != 980 {
		t.Errorf("persisted ratings = %v, want p1:1020 p2:980", snap.ratings)
	}
	if len(snap.history) != 2 {
		t.Errorf("history entries = %d, want 2", len(snap.history))
	}
	if len(snap.counters) != 2 ||
		snap.counters[0] != (counterRecord{userID: "p1", outcome: "win"}) ||
		snap.counters[1] != (counterRecord{userID: "p2", outcome: "loss"}) {
		t.Errorf("counters = %v, want p1 win / p2 loss", snap.counters)
	}
}

func TestSessionRoundTimeoutResolvesWithUnsetChoices(t *testing.T) {
	st := newFakeStore()
	p1 := newFakeParticipant("p1", "alice", 1000)
	p2 := newFakeParticipant("p2", "bob", 1000)
	s := NewSession(st, p1, p2, false)
	s.roundTimeout = 40 * time.Millisecond
	s.Start()

	// Only p1 chooses in round one; every later round times out unset.
	s.PlayerChoice("p1", "paper")

	if !waitFor(t, 2*time.Second, func() bool { _, ok := p1.matchComplete(); return ok }) {
		t.Fatal("match never completed")
	}

	results := p1.roundResults()
	if len(results) == 0 {
		t.Fatal("no round results")
	}
	first := results[0]
	if first.YourChoice != "paper" || first.OpponentChoice != "none" || first.Winner != "you" {
		t.Errorf("round 1 = %+v, want paper beats none", first)
	}

	// 1-0 after five rounds: p1 wins the match.
	mc, _ := p1.matchComplete()
	if mc.Result != "win" || mc.YourScore != 1 || mc.OpponentScore != 0 {
		t.Errorf("match_complete = %+v, want win 1-0", mc)
	}
	if mc.EloChange != nil || mc.NewElo != nil {
		t.Errorf("unranked match must omit rating fields, got %+v", mc)
	}
	if len(results) != 5 {
		t.Errorf("rounds played = %d, want 5", len(results))
	}
}

func TestSessionForfeitOnDisconnect(t *testing.T) {
	st := newFakeStore()
	p1 := newFakeParticipant("p1", "alice", 1000)
	p2 := newFakeParticipant("p2", "bob", 1000)
	s := NewSession(st, p1, p2, true)
	s.Start()

	s.PlayerChoice("p1", "rock")
	s.PlayerDisconnected("p2")

	if !waitFor(t, time.Second, func() bool { _, ok := p1.matchComplete(); return ok }) {
		t.Fatal("survivor never received match_complete")
	}

	// opponent_disconnected must precede match_complete.
	var sawDisconnected bool
	for _, m := range p1.messages() {
		switch m.(type) {
		case protocol.OpponentDisconnected:
			sawDisconnected = true
		case protocol.MatchComplete:
			if !sawDisconnected {
				t.Error("match_complete arrived before opponent_disconnected")
			}
		}
	}
	if !sawDisconnected {
		t.Error("survivor never told opponent disconnected")
	}

	mc, _ := p1.matchComplete()
	if mc.Result != "win" || mc.YourScore != 2 || mc.OpponentScore != 0 {
		t.Errorf("match_complete = %+v, want win 2-0", mc)
	}
	if mc.EloChange == nil || *mc.EloChange != 20 {
		t.Errorf("forfeit win elo change = %v, want +20", mc.EloChange)
	}

	if n := p2.matchCompleteCount(); n != 0 {
		t.Errorf("disconnected side got %d match_complete frames, want 0", n)
	}

	snap := st.snapshot()
	if len(snap.finalized) != 1 || snap.finalized[0].status != "forfeit" {
		t.Fatalf("finalized = %+v, want one forfeit", snap.finalized)
	}
	if fin := snap.finalized[0]; fin.p1Score != 2 || fin.p2Score != 0 {
		t.Errorf("forfeit scores = %d-%d, want 2-0", fin.p1Score, fin.p2Score)
	}
}

func TestSessionSettlementExactlyOnce(t *testing.T) {
	st := newFakeStore()
	p1 := newFakeParticipant("p1", "alice", 1000)
	p2 := newFakeParticipant("p2", "bob", 1000)
	s := NewSession(st, p1, p2, true)
	s.Start()

	for round := 1; round <= 2; round++ {
		s.PlayerChoice("p1", "rock")
		s.PlayerChoice("p2", "scissors")
		r := round
		waitFor(t, time.Second, func() bool { return len(p1.roundResults()) >= r })
	}
	if !waitFor(t, time.Second, func() bool { _, ok := p1.matchComplete(); return ok }) {
		t.Fatal("match never completed")
	}

	// Disconnects and stray choices after settlement change nothing.
	s.PlayerDisconnected("p2")
	s.PlayerDisconnected("p1")
	s.PlayerChoice("p1", "rock")
	time.Sleep(30 * time.Millisecond)

	if n := p1.matchCompleteCount(); n != 1 {
		t.Errorf("p1 match_complete count = %d, want exactly 1", n)
	}
	snap := st.snapshot()
	if snap.created != 1 || len(snap.finalized) != 1 {
		t.Errorf("created=%d finalized=%d, want 1/1", snap.created, len(snap.finalized))
	}
	if snap.finalized[0].status != "completed" {
		t.Errorf("status = %q, forfeit must not override completion", snap.finalized[0].status)
	}
}

func TestSessionDuplicateChoiceKeepsFirst(t *testing.T) {
	st := newFakeStore()
	p1 := newFakeParticipant("p1", "alice", 1000)
	p2 := newFakeParticipant("p2", "bob", 1000)
	s := NewSession(st, p1, p2, false)
	s.Start()

	s.PlayerChoice("p1", "rock")
	s.PlayerChoice("p1", "paper") // dropped
	s.PlayerChoice("p2", "scissors")

	if !waitFor(t, time.Second, func() bool { return len(p1.roundResults()) >= 1 }) {
		t.Fatal("round never resolved")
	}
	rr := p1.roundResults()[0]
	if rr.YourChoice != "rock" || rr.Winner != "you" {
		t.Errorf("round result = %+v, want first choice rock to stand", rr)
	}
	// Only the first choice fires opponent_chose at the other side.
	if n := p2.opponentChoseCount(); n != 1 {
		t.Errorf("p2 opponent_chose count = %d, want 1", n)
	}
}

func TestSessionIgnoresInvalidAndForeignChoices(t *testing.T) {
	st := newFakeStore()
	p1 := newFakeParticipant("p1", "alice", 1000)
	p2 := newFakeParticipant("p2", "bob", 1000)
	s := NewSession(st, p1, p2, false)
	s.Start()

	s.PlayerChoice("p1", "spock")
	s.PlayerChoice("intruder", "rock")
	time.Sleep(30 * time.Millisecond)

	if n := p2.opponentChoseCount(); n != 0 {
		t.Errorf("invalid/foreign choices leaked: opponent_chose count = %d", n)
	}
	if len(p1.roundResults()) != 0 {
		t.Error("round resolved from invalid input")
	}

	// A valid pair still plays normally afterwards.
	s.PlayerChoice("p1", "rock")
	s.PlayerChoice("p2", "paper")
	if !waitFor(t, time.Second, func() bool { return len(p2.roundResults()) >= 1 }) {
		t.Fatal("round never resolved after valid choices")
	}
	if rr := p2.roundResults()[0]; rr.Winner != "you" {
		t.Errorf("round result = %+v, want paper over rock", rr)
	}
}

func TestSessionStaleRoundTimerIgnored(t *testing.T) {
	st := newFakeStore()
	p1 := newFakeParticipant("p1", "alice", 1000)
	p2 := newFakeParticipant("p2", "bob", 1000)
	s := NewSession(st, p1, p2, false)
	s.roundTimeout = 150 * time.Millisecond
	s.Start()

	// Resolve round one late enough that its timer outlives it into round two.
	time.Sleep(80 * time.Millisecond)
	s.PlayerChoice("p1", "rock")
	s.PlayerChoice("p2", "rock")
	if !waitFor(t, time.Second, func() bool { return len(p1.roundResults()) >= 1 }) {
		t.Fatal("round one never resolved")
	}

	// Round one's timer fires ~70ms into round two; round two must survive it.
	time.Sleep(110 * time.Millisecond)
	if n := len(p1.roundResults()); n != 1 {
		t.Fatalf("stale timer resolved round two early (results=%d)", n)
	}

	// Round two's own timer still fires.
	if !waitFor(t, time.Second, func() bool { return len(p1.roundResults()) >= 2 }) {
		t.Fatal("round two never timed out")
	}
}

func TestSessionDrawAfterMaxRounds(t *testing.T) {
	st := newFakeStore()
	p1 := newFakeParticipant("p1", "alice", 1000)
	p2 := newFakeParticipant("p2", "bob", 1000)
	s := NewSession(st, p1, p2, true)
	s.Start()

	// 1-1 after two decided rounds, then three mirrored rounds.
	plays := [][2]string{
		{"rock", "scissors"},
		{"scissors", "rock"},
		{"paper", "paper"},
		{"rock", "rock"},
		{"scissors", "scissors"},
	}
	for i, p := range plays {
		s.PlayerChoice("p1", p[0])
		s.PlayerChoice("p2", p[1])
		r := i + 1
		if !waitFor(t, time.Second, func() bool { return len(p1.roundResults()) >= r }) {
			t.Fatalf("round %d never resolved", r)
		}
	}

	if !waitFor(t, time.Second, func() bool { _, ok := p1.matchComplete(); return ok }) {
		t.Fatal("match never completed")
	}
	mc, _ := p1.matchComplete()
	if mc.Result != "draw" || mc.YourScore != 1 || mc.OpponentScore != 1 {
		t.Errorf("match_complete = %+v, want draw 1-1", mc)
	}
	if mc.EloChange == nil || *mc.EloChange != 0 {
		t.Errorf("equal-rating draw elo change = %v, want 0", mc.EloChange)
	}

	snap := st.snapshot()
	if snap.finalized[0].winnerID != nil {
		t.Errorf("draw must persist nil winner, got %v", *snap.finalized[0].winnerID)
	}
	if len(snap.counters) != 2 || snap.counters[0].outcome != "draw" || snap.counters[1].outcome != "draw" {
		t.Errorf("counters = %v, want two draws", snap.counters)
	}
}

func TestSessionPersistFailureStillNotifiesClients(t *testing.T) {
	st := newFakeStore()
	st.createErr = errors.New("db down")
	p1 := newFakeParticipant("p1", "alice", 1000)
	p2 := newFakeParticipant("p2", "bob", 1000)
	s := NewSession(st, p1, p2, true)
	s.Start()

	for round := 1; round <= 2; round++ {
		s.PlayerChoice("p1", "rock")
		s.PlayerChoice("p2", "scissors")
		r := round
		waitFor(t, time.Second, func() bool { return len(p1.roundResults()) >= r })
	}

	if !waitFor(t, time.Second, func() bool { _, ok := p1.matchComplete(); return ok }) {
		t.Fatal("p1 stranded: no match_complete after persistence failure")
	}
	if !waitFor(t, time.Second, func() bool { _, ok := p2.matchComplete(); return ok }) {
		t.Fatal("p2 stranded: no match_complete after persistence failure")
	}

	mc, _ := p1.matchComplete()
	if mc.NewElo == nil || *mc.NewElo != 1020 {
		t.Errorf("computed rating still reported, got %v", mc.NewElo)
	}

	snap := st.snapshot()
	if len(snap.finalized) != 0 || len(snap.history) != 0 || len(snap.counters) != 0 || len(snap.ratings) != 0 {
		t.Errorf("dependent writes ran despite create failure: %+v", &snap)
	}
}

func TestSessionGuestAndFillerCountersSkipped(t *testing.T) {
	st := newFakeStore()
	p1 := newFakeParticipant("p1", "alice", 1000)
	guest := newFakeParticipant("guest_abc123", "Guest_abc1", 1000)
	guest.id.IsGuest = true
	s := NewSession(st, p1, guest, false)
	s.Start()

	for round := 1; round <= 2; round++ {
		s.PlayerChoice("p1", "rock")
		s.PlayerChoice("guest_abc123", "scissors")
		r := round
		waitFor(t, time.Second, func() bool { return len(p1.roundResults()) >= r })
	}
	if !waitFor(t, time.Second, func() bool { _, ok := p1.matchComplete(); return ok }) {
		t.Fatal("match never completed")
	}

	snap := st.snapshot()
	if len(snap.counters) != 1 || snap.counters[0].userID != "p1" {
		t.Errorf("counters = %v, want only p1", snap.counters)
	}
	if len(snap.history) != 0 || len(snap.ratings) != 0 {
		t.Errorf("unranked guest match wrote ratings: history=%v ratings=%v", snap.history, snap.ratings)
	}
	if snap.created != 1 || !waitFor(t, time.Second, func() bool { return len(st.snapshot().finalized) == 1 }) {
		t.Errorf("guest match must still persist a match row")
	}
}
