package game

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/rpsarena/backend/internal/protocol"
)

const (
	// RoundTimeoutSecs is how long both sides have to lock a choice.
	RoundTimeoutSecs = 15

	winningScore = 2
	maxRounds    = 5

	sessionInboxSize = 32
)

// Round is one resolved round as recorded in match history. A nil choice
// means that side never chose before the round resolved.
type Round struct {
	RoundNumber   int     `json:"round_number"`
	Player1Choice *string `json:"player1_choice"`
	Player2Choice *string `json:"player2_choice"`
	Winner        string  `json:"winner"`
}

type roundWinner int

const (
	winnerDraw roundWinner = iota
	winnerP1
	winnerP2
)

// beats reports whether choice a defeats choice b.
func beats(a, b string) bool {
	return (a == protocol.ChoiceRock && b == protocol.ChoiceScissors) ||
		(a == protocol.ChoiceScissors && b == protocol.ChoicePaper) ||
		(a == protocol.ChoicePaper && b == protocol.ChoiceRock)
}

// determineWinner resolves a round. An unset choice loses to a set one; two
// unset choices draw.
func determineWinner(p1, p2 *string) roundWinner {
	switch {
	case p1 == nil && p2 == nil:
		return winnerDraw
	case p1 == nil:
		return winnerP2
	case p2 == nil:
		return winnerP1
	case *p1 == *p2:
		return winnerDraw
	case beats(*p1, *p2):
		return winnerP1
	default:
		return winnerP2
	}
}

type sessionEvent interface{ isSessionEvent() }

type choiceEvent struct {
	playerID string
	choice   string
}

type disconnectEvent struct {
	playerID string
}

type timeoutEvent struct {
	round int
}

func (choiceEvent) isSessionEvent()     {}
func (disconnectEvent) isSessionEvent() {}
func (timeoutEvent) isSessionEvent()    {}

type side struct {
	participant Participant
	identity    Identity
	choice      *string
	score       int
}

// Session runs one best-of-three match between two participants. All state
// is owned by the run goroutine; the exported methods only post events into
// the inbox and never block.
type Session struct {
	ID     string
	store  Store
	ranked bool

	p1 *side
	p2 *side

	currentRound int
	rounds       []Round
	finished     bool

	roundTimeout time.Duration
	events       chan sessionEvent
}

// NewSession pairs two participants. ranked should already account for
// guests and fillers (the matchmaker forces it false for those).
func NewSession(st Store, p1, p2 Participant, ranked bool) *Session {
	return &Session{
		ID:           newToken(8),
		store:        st,
		ranked:       ranked,
		p1:           &side{participant: p1, identity: p1.Identity()},
		p2:           &side{participant: p2, identity: p2.Identity()},
		currentRound: 1,
		roundTimeout: RoundTimeoutSecs * time.Second,
		events:       make(chan sessionEvent, sessionInboxSize),
	}
}

// Start begins round one and the event loop. Call exactly once, after both
// participants have had the session attached.
func (s *Session) Start() {
	log.Printf("[SESSION] %s: %s vs %s (ranked=%v)",
		s.ID, s.p1.identity.Username, s.p2.identity.Username, s.ranked)
	go s.run()
}

// PlayerChoice posts a choice event. Safe to call from any goroutine; events
// arriving after the match finished are dropped.
func (s *Session) PlayerChoice(playerID, choice string) {
	s.deliver(choiceEvent{playerID: playerID, choice: choice})
}

// PlayerDisconnected posts a disconnect event, forfeiting the match if it is
// still running.
func (s *Session) PlayerDisconnected(playerID string) {
	s.deliver(disconnectEvent{playerID: playerID})
}

// deliver posts without blocking. The inbox is serviced promptly while the
// match runs; once it finishes the loop is gone and events fall on the floor,
// which is the intended behavior for a dead match.
func (s *Session) deliver(ev sessionEvent) {
	select {
	case s.events <- ev:
	default:
	}
}

func (s *Session) run() {
	s.startRound()
	for ev := range s.events {
		switch ev := ev.(type) {
		case choiceEvent:
			s.handleChoice(ev.playerID, ev.choice)
		case disconnectEvent:
			s.forfeit(ev.playerID)
		case timeoutEvent:
			s.handleTimeout(ev.round)
		}
		if s.finished {
			return
		}
	}
}

func (s *Session) startRound() {
	s.p1.choice = nil
	s.p2.choice = nil

	s.broadcast(protocol.NewRoundStart(s.currentRound, int(s.roundTimeout/time.Second)))

	// Fire and forget; the handler re-validates the round number so a timer
	// for an already-resolved round is a no-op.
	round := s.currentRound
	time.AfterFunc(s.roundTimeout, func() {
		s.deliver(timeoutEvent{round: round})
	})
}

func (s *Session) handleChoice(playerID, choice string) {
	if s.finished || !protocol.ValidChoice(choice) {
		return
	}

	var me, other *side
	switch playerID {
	case s.p1.identity.ID:
		me, other = s.p1, s.p2
	case s.p2.identity.ID:
		me, other = s.p2, s.p1
	default:
		return
	}

	// First valid choice per round sticks.
	if me.choice != nil {
		return
	}
	c := choice
	me.choice = &c

	other.participant.Send(protocol.NewOpponentChose())

	if s.p1.choice != nil && s.p2.choice != nil {
		s.resolveRound()
	}
}

func (s *Session) handleTimeout(round int) {
	if s.finished || round != s.currentRound {
		return
	}
	s.resolveRound()
}

func (s *Session) resolveRound() {
	p1Choice := s.p1.choice
	p2Choice := s.p2.choice
	s.p1.choice = nil
	s.p2.choice = nil

	winner := determineWinner(p1Choice, p2Choice)
	switch winner {
	case winnerP1:
		s.p1.score++
	case winnerP2:
		s.p2.score++
	}

	record := Round{
		RoundNumber:   s.currentRound,
		Player1Choice: p1Choice,
		Player2Choice: p2Choice,
	}
	switch winner {
	case winnerP1:
		record.Winner = s.p1.identity.ID
	case winnerP2:
		record.Winner = s.p2.identity.ID
	default:
		record.Winner = "draw"
	}
	s.rounds = append(s.rounds, record)

	p1Str := choiceOrNone(p1Choice)
	p2Str := choiceOrNone(p2Choice)
	s.p1.participant.Send(protocol.NewRoundResult(
		s.currentRound, p1Str, p2Str, relativeWinner(winner, true), s.p1.score, s.p2.score))
	s.p2.participant.Send(protocol.NewRoundResult(
		s.currentRound, p2Str, p1Str, relativeWinner(winner, false), s.p2.score, s.p1.score))

	if s.p1.score >= winningScore || s.p2.score >= winningScore || s.currentRound >= maxRounds {
		s.finishMatch()
		return
	}
	s.currentRound++
	s.startRound()
}

func choiceOrNone(c *string) string {
	if c == nil {
		return "none"
	}
	return *c
}

func relativeWinner(w roundWinner, forP1 bool) string {
	switch {
	case w == winnerDraw:
		return "draw"
	case (w == winnerP1) == forP1:
		return "you"
	default:
		return "opponent"
	}
}

// finishMatch settles a match that ran to completion.
func (s *Session) finishMatch() {
	s.finished = true

	var winnerID *string
	p1Result, p2Result := "draw", "draw"
	outcome := 0.5
	switch {
	case s.p1.score > s.p2.score:
		id := s.p1.identity.ID
		winnerID, outcome = &id, 1.0
		p1Result, p2Result = "win", "loss"
	case s.p2.score > s.p1.score:
		id := s.p2.identity.ID
		winnerID, outcome = &id, 0.0
		p1Result, p2Result = "loss", "win"
	}

	newP1, newP2 := s.computeNewRatings(outcome)
	s.persistMatch(winnerID, newP1, newP2, p1Result, p2Result, "completed")

	// Clients always learn the result, even if persistence failed above.
	s.p1.participant.Send(s.matchComplete(s.p1, s.p2, p1Result, newP1))
	s.p2.participant.Send(s.matchComplete(s.p2, s.p1, p2Result, newP2))

	log.Printf("[SESSION] %s: completed %d-%d (ranked=%v)", s.ID, s.p1.score, s.p2.score, s.ranked)
}

// forfeit settles a match abandoned by one side. The survivor wins 2-0 and is
// told the opponent left before receiving the final result; the leaver's wire
// is already gone, so it gets nothing.
func (s *Session) forfeit(disconnectedID string) {
	if s.finished {
		return
	}
	if disconnectedID != s.p1.identity.ID && disconnectedID != s.p2.identity.ID {
		return
	}
	s.finished = true

	loserIsP1 := disconnectedID == s.p1.identity.ID
	winner, loser := s.p2, s.p1
	outcome := 0.0
	if !loserIsP1 {
		winner, loser = s.p1, s.p2
		outcome = 1.0
	}

	winner.participant.Send(protocol.NewOpponentDisconnected())

	winner.score, loser.score = winningScore, 0
	winnerID := winner.identity.ID

	newP1, newP2 := s.computeNewRatings(outcome)
	p1Result, p2Result := "win", "loss"
	if loserIsP1 {
		p1Result, p2Result = "loss", "win"
	}
	s.persistMatch(&winnerID, newP1, newP2, p1Result, p2Result, "forfeit")

	winnerNew := newP1
	if loserIsP1 {
		winnerNew = newP2
	}
	winner.participant.Send(s.matchComplete(winner, loser, "win", winnerNew))

	log.Printf("[SESSION] %s: forfeit by %s", s.ID, loser.identity.Username)
}

// computeNewRatings applies Elo for ranked matches; unranked matches keep
// both ratings as they came in.
func (s *Session) computeNewRatings(outcome float64) (int, int) {
	if !s.ranked {
		return s.p1.identity.Elo, s.p2.identity.Elo
	}
	p1Games := s.fetchGameCount(s.p1.identity.ID)
	p2Games := s.fetchGameCount(s.p2.identity.ID)
	return CalculateElo(s.p1.identity.Elo, p1Games, s.p2.identity.Elo, p2Games, outcome)
}

// fetchGameCount tolerates lookup failures; a missing count only affects the
// K-factor tier.
func (s *Session) fetchGameCount(userID string) int {
	user, err := s.store.FindUserByID(context.Background(), userID)
	if err != nil {
		log.Printf("[SESSION] %s: fetch games for %s failed: %v", s.ID, userID, err)
		return 0
	}
	if user == nil {
		return 0
	}
	return user.TotalGames
}

// persistMatch writes the match row and its dependent rows. If the match row
// itself cannot be created the dependent writes are skipped; individual
// failures after that are logged and do not stop the rest.
func (s *Session) persistMatch(winnerID *string, newP1, newP2 int, p1Result, p2Result, status string) {
	ctx := context.Background()

	matchID, err := s.store.CreateMatch(ctx, s.p1.identity.ID, s.p2.identity.ID,
		s.ranked, s.p1.identity.Elo, s.p2.identity.Elo)
	if err != nil {
		log.Printf("[SESSION] %s: create match failed: %v", s.ID, err)
		return
	}

	if err := s.store.FinalizeMatch(ctx, matchID, winnerID, s.p1.score, s.p2.score,
		s.roundsJSON(), newP1, newP2, status); err != nil {
		log.Printf("[SESSION] %s: finalize match failed: %v", s.ID, err)
	}

	if s.ranked {
		if err := s.store.UpdateRating(ctx, s.p1.identity.ID, newP1); err != nil {
			log.Printf("[SESSION] %s: update rating for %s failed: %v", s.ID, s.p1.identity.ID, err)
		}
		if err := s.store.UpdateRating(ctx, s.p2.identity.ID, newP2); err != nil {
			log.Printf("[SESSION] %s: update rating for %s failed: %v", s.ID, s.p2.identity.ID, err)
		}
		if err := s.store.AppendRatingHistory(ctx, s.p1.identity.ID, matchID, s.p1.identity.Elo, newP1); err != nil {
			log.Printf("[SESSION] %s: rating history for %s failed: %v", s.ID, s.p1.identity.ID, err)
		}
		if err := s.store.AppendRatingHistory(ctx, s.p2.identity.ID, matchID, s.p2.identity.Elo, newP2); err != nil {
			log.Printf("[SESSION] %s: rating history for %s failed: %v", s.ID, s.p2.identity.ID, err)
		}
	}

	s.incrementCounters(ctx, s.p1, p1Result)
	s.incrementCounters(ctx, s.p2, p2Result)
}

// incrementCounters skips fillers and guests: fillers never accumulate
// stats, guests have no row to update.
func (s *Session) incrementCounters(ctx context.Context, sd *side, outcome string) {
	if sd.identity.IsFiller || sd.identity.IsGuest {
		return
	}
	if err := s.store.IncrementCounters(ctx, sd.identity.ID, outcome); err != nil {
		log.Printf("[SESSION] %s: increment counters for %s failed: %v", s.ID, sd.identity.ID, err)
	}
}

func (s *Session) matchComplete(me, other *side, result string, newElo int) protocol.MatchComplete {
	var changePtr, newPtr *int
	if s.ranked {
		change := newElo - me.identity.Elo
		n := newElo
		changePtr, newPtr = &change, &n
	}
	return protocol.NewMatchComplete(result, me.score, other.score, changePtr, newPtr)
}

func (s *Session) roundsJSON() string {
	if len(s.rounds) == 0 {
		return "[]"
	}
	data, err := json.Marshal(s.rounds)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func (s *Session) broadcast(msg protocol.ServerMessage) {
	s.p1.participant.Send(msg)
	s.p2.participant.Send(msg)
}
