package game

import (
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/rpsarena/backend/internal/protocol"
)

// FillerThinkDelay is the pause before a filler opponent submits its choice,
// so rounds do not resolve instantly against it.
const FillerThinkDelay = 3 * time.Second

var fillerChoices = [...]string{protocol.ChoiceRock, protocol.ChoicePaper, protocol.ChoiceScissors}

// FillerOpponent stands in for a missing human. It implements Participant
// and reacts to the same frames a live connection would render: match_found
// arms auto-play, each round_start schedules one delayed random choice.
// Attaching the session submits one immediate choice so round one cannot
// stall on a silent opponent.
type FillerOpponent struct {
	identity Identity
	delay    time.Duration

	mu       sync.Mutex
	session  *Session
	autoPlay bool
}

func NewFillerOpponent(identity Identity, delay time.Duration) *FillerOpponent {
	identity.IsFiller = true
	return &FillerOpponent{identity: identity, delay: delay}
}

func (f *FillerOpponent) Identity() Identity { return f.identity }

// AttachSession implements Participant. Only the first attach counts.
func (f *FillerOpponent) AttachSession(s *Session) {
	f.mu.Lock()
	if f.session != nil {
		f.mu.Unlock()
		return
	}
	f.session = s
	f.mu.Unlock()
	f.play(s)
}

// Send is the filler's inbox; the session and matchmaker talk to it exactly
// like they talk to a live connection.
func (f *FillerOpponent) Send(msg protocol.ServerMessage) {
	switch msg.(type) {
	case protocol.MatchFound:
		f.mu.Lock()
		f.autoPlay = true
		f.mu.Unlock()
	case protocol.RoundStart:
		f.mu.Lock()
		enabled := f.autoPlay
		s := f.session
		f.mu.Unlock()
		if enabled && s != nil {
			time.AfterFunc(f.delay, func() { f.play(s) })
		}
	}
}

// play submits one random choice. Duplicates within a round are the
// session's to drop.
func (f *FillerOpponent) play(s *Session) {
	choice := fillerChoices[rand.Intn(len(fillerChoices))]
	log.Printf("[FILLER] %s chose %s", f.identity.Username, choice)
	s.PlayerChoice(f.identity.ID, choice)
}
