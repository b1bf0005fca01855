package game

import (
	"context"
	"log"
	"time"

	"github.com/rpsarena/backend/internal/models"
	"github.com/rpsarena/backend/internal/protocol"
)

// PairingDeadline is how long a player may wait in the queue before a filler
// opponent is summoned for them.
const PairingDeadline = 3 * time.Second

const matchmakerInboxSize = 64

type queueEntry struct {
	participant Participant
	ranked      bool
	joinedAt    time.Time
}

type matchmakerCmd interface{ isMatchmakerCmd() }

type joinCmd struct {
	participant Participant
	ranked      bool
}

type leaveCmd struct {
	playerID string
}

// fillerCheckCmd fires after the pairing deadline; the handler re-validates
// queue membership and elapsed wait, so stale checks are no-ops.
type fillerCheckCmd struct {
	playerID string
}

// fillerReadyCmd carries the result of the detached filler-identity fetch
// back onto the loop. filler is nil when the fetch failed.
type fillerReadyCmd struct {
	entry  queueEntry
	filler *models.User
	err    error
}

func (joinCmd) isMatchmakerCmd()        {}
func (leaveCmd) isMatchmakerCmd()       {}
func (fillerCheckCmd) isMatchmakerCmd() {}
func (fillerReadyCmd) isMatchmakerCmd() {}

// Matchmaker pairs queued players first-come first-served and falls back to
// a filler opponent for anyone waiting past the deadline. The queue and the
// pending-filler set are owned exclusively by the Run goroutine; everything
// reaches them through the command channel.
type Matchmaker struct {
	store Store
	cmds  chan matchmakerCmd

	queue []queueEntry
	// pendingFiller marks players removed from the queue whose filler fetch
	// is still in flight. A join or leave from the player meanwhile clears
	// the mark and supersedes the pairing.
	pendingFiller map[string]queueEntry

	pairingDeadline time.Duration
	fillerDelay     time.Duration
}

func NewMatchmaker(st Store) *Matchmaker {
	return &Matchmaker{
		store:           st,
		cmds:            make(chan matchmakerCmd, matchmakerInboxSize),
		pendingFiller:   make(map[string]queueEntry),
		pairingDeadline: PairingDeadline,
		fillerDelay:     FillerThinkDelay,
	}
}

// Run processes commands until ctx is cancelled. Start once from main:
//
//	go matchmaker.Run(ctx)
func (m *Matchmaker) Run(ctx context.Context) {
	log.Printf("[MATCHMAKER] Started")
	for {
		select {
		case <-ctx.Done():
			log.Printf("[MATCHMAKER] Stopped")
			return
		case cmd := <-m.cmds:
			switch cmd := cmd.(type) {
			case joinCmd:
				m.handleJoin(cmd.participant, cmd.ranked)
			case leaveCmd:
				m.handleLeave(cmd.playerID)
			case fillerCheckCmd:
				m.handleFillerCheck(cmd.playerID)
			case fillerReadyCmd:
				m.handleFillerReady(cmd)
			}
		}
	}
}

// JoinQueue enqueues a player. Callers coerce ranked to false for guests
// before it gets here.
func (m *Matchmaker) JoinQueue(p Participant, ranked bool) {
	m.send(joinCmd{participant: p, ranked: ranked})
}

// LeaveQueue removes a player if queued; harmless otherwise.
func (m *Matchmaker) LeaveQueue(playerID string) {
	m.send(leaveCmd{playerID: playerID})
}

func (m *Matchmaker) send(cmd matchmakerCmd) {
	m.cmds <- cmd
}

func (m *Matchmaker) handleJoin(p Participant, ranked bool) {
	id := p.Identity().ID
	for _, e := range m.queue {
		if e.participant.Identity().ID == id {
			p.Send(protocol.NewError("Already in queue"))
			return
		}
	}
	// A rejoin during the filler fetch window supersedes the pending pairing.
	delete(m.pendingFiller, id)

	m.queue = append(m.queue, queueEntry{participant: p, ranked: ranked, joinedAt: time.Now()})
	p.Send(protocol.NewQueued())
	log.Printf("[MATCHMAKER] %s queued (ranked=%v, depth=%d)", p.Identity().Username, ranked, len(m.queue))

	m.tryMatch()

	// Never cancelled; the handler re-validates before acting.
	time.AfterFunc(m.pairingDeadline, func() {
		m.send(fillerCheckCmd{playerID: id})
	})
}

func (m *Matchmaker) handleLeave(playerID string) {
	delete(m.pendingFiller, playerID)
	if m.removeFromQueue(playerID) {
		log.Printf("[MATCHMAKER] %s left queue (depth=%d)", playerID, len(m.queue))
	}
}

func (m *Matchmaker) tryMatch() {
	for len(m.queue) >= 2 {
		e1, e2 := m.queue[0], m.queue[1]
		m.queue = append(m.queue[:0], m.queue[2:]...)
		m.startMatch(e1.participant, e2.participant, e1.ranked && e2.ranked)
	}
}

func (m *Matchmaker) handleFillerCheck(playerID string) {
	idx := -1
	for i, e := range m.queue {
		if e.participant.Identity().ID == playerID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return // left or already paired
	}
	entry := m.queue[idx]
	if time.Since(entry.joinedAt) < m.pairingDeadline {
		return // requeued since this check was scheduled
	}
	m.queue = append(m.queue[:idx], m.queue[idx+1:]...)
	m.pendingFiller[playerID] = entry

	// Identity selection hits the database; do it off the loop and post the
	// result back as a command.
	go func() {
		filler, err := m.store.RandomFillerUser(context.Background())
		m.send(fillerReadyCmd{entry: entry, filler: filler, err: err})
	}()
}

func (m *Matchmaker) handleFillerReady(cmd fillerReadyCmd) {
	id := cmd.entry.participant.Identity().ID
	if _, ok := m.pendingFiller[id]; !ok {
		return // player joined, left, or dropped while we fetched
	}
	delete(m.pendingFiller, id)

	if cmd.err != nil || cmd.filler == nil {
		log.Printf("[MATCHMAKER] No filler available for %s: %v", id, cmd.err)
		cmd.entry.participant.Send(protocol.NewError("Failed to find opponent"))
		return
	}

	filler := NewFillerOpponent(Identity{
		ID:       cmd.filler.ID,
		Username: cmd.filler.Username,
		Elo:      cmd.filler.Elo,
		IsFiller: true,
	}, m.fillerDelay)

	// Human is player one, filler player two. Filler matches never rank.
	m.startMatch(cmd.entry.participant, filler, false)
}

// startMatch wires up a session: attach first so a choice can never race
// ahead of the session reference, then announce, then begin round one.
func (m *Matchmaker) startMatch(p1, p2 Participant, ranked bool) {
	session := NewSession(m.store, p1, p2, ranked)
	p1.AttachSession(session)
	p2.AttachSession(session)

	id1, id2 := p1.Identity(), p2.Identity()
	p1.Send(protocol.NewMatchFound(session.ID, id2.Username, id2.Elo))
	p2.Send(protocol.NewMatchFound(session.ID, id1.Username, id1.Elo))

	session.Start()
	log.Printf("[MATCHMAKER] Matched %s vs %s (ranked=%v)", id1.Username, id2.Username, ranked)
}

func (m *Matchmaker) removeFromQueue(playerID string) bool {
	for i, e := range m.queue {
		if e.participant.Identity().ID == playerID {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			return true
		}
	}
	return false
}
