package game

import (
	"testing"
	"time"

	"github.com/rpsarena/backend/internal/protocol"
)

func TestFillerPlaysImmediatelyOnAttach(t *testing.T) {
	st := newFakeStore()
	human := newFakeParticipant("h", "alice", 1000)
	filler := NewFillerOpponent(Identity{ID: "f", Username: "RockSolid", Elo: 900}, time.Hour)

	s := NewSession(st, human, filler, false)
	human.AttachSession(s)
	filler.AttachSession(s)
	s.Start()

	// The attach-time choice covers round one without waiting out the think
	// delay (an hour here, so only the immediate path can fire).
	if !waitFor(t, time.Second, func() bool { return human.opponentChoseCount() >= 1 }) {
		t.Fatal("filler never chose on attach")
	}
}

func TestFillerSecondAttachIgnored(t *testing.T) {
	st := newFakeStore()
	human := newFakeParticipant("h", "alice", 1000)
	filler := NewFillerOpponent(Identity{ID: "f", Username: "RockSolid", Elo: 900}, time.Hour)

	s := NewSession(st, human, filler, false)
	human.AttachSession(s)
	filler.AttachSession(s)
	s.Start()

	waitFor(t, time.Second, func() bool { return human.opponentChoseCount() >= 1 })
	filler.AttachSession(s)
	time.Sleep(30 * time.Millisecond)

	// A duplicate attach must not submit a second choice for the round.
	if n := human.opponentChoseCount(); n != 1 {
		t.Errorf("opponent_chose count = %d, want 1", n)
	}
}

func TestFillerAutoPlaysRoundsAfterMatchFound(t *testing.T) {
	st := newFakeStore()
	human := newFakeParticipant("h", "alice", 1000)
	filler := NewFillerOpponent(Identity{ID: "f", Username: "RockSolid", Elo: 900}, 5*time.Millisecond)

	s := NewSession(st, human, filler, false)
	human.AttachSession(s)
	filler.AttachSession(s)
	filler.Send(protocol.NewMatchFound(s.ID, "alice", 1000))
	s.Start()

	// With the human answering too, auto-play carries the match to its end.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				s.PlayerChoice("h", "paper")
			}
		}
	}()

	if !waitFor(t, 5*time.Second, func() bool { _, ok := human.matchComplete(); return ok }) {
		t.Fatal("auto-playing filler never finished the match")
	}
}

func TestFillerIdentityMarkedFiller(t *testing.T) {
	filler := NewFillerOpponent(Identity{ID: "f", Username: "RockSolid", Elo: 900}, time.Second)
	if !filler.Identity().IsFiller {
		t.Error("filler identity must carry IsFiller")
	}
}
