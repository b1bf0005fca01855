// Package protocol defines the JSON frames exchanged with game clients over
// the WebSocket. Every frame is a text message with a "type" discriminator.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Round choices.
const (
	ChoiceRock     = "rock"
	ChoicePaper    = "paper"
	ChoiceScissors = "scissors"
)

// ValidChoice reports whether c is a playable choice.
func ValidChoice(c string) bool {
	return c == ChoiceRock || c == ChoicePaper || c == ChoiceScissors
}

// Client to server frame types.
const (
	TypeJoinQueue  = "join_queue"
	TypeLeaveQueue = "leave_queue"
	TypeChoice     = "choice"
)

// ClientMessage is a frame sent by the client. Fields beyond Type are only
// meaningful for certain types.
type ClientMessage struct {
	Type   string `json:"type"`
	Ranked *bool  `json:"ranked,omitempty"`
	Choice string `json:"choice,omitempty"`
}

// ParseClientMessage decodes a client frame and rejects unknown types.
func ParseClientMessage(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, err
	}
	switch msg.Type {
	case TypeJoinQueue, TypeLeaveQueue, TypeChoice:
		return msg, nil
	}
	return ClientMessage{}, fmt.Errorf("unknown message type %q", msg.Type)
}

// ServerMessage is implemented by every server-to-client frame.
type ServerMessage interface {
	isServerMessage()
}

// Marshal encodes a server frame for the wire.
func Marshal(msg ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

// Queued acknowledges a successful queue join.
type Queued struct {
	Type string `json:"type"`
}

func NewQueued() Queued { return Queued{Type: "queued"} }

// OpponentInfo is the public view of the other side shown on match start.
type OpponentInfo struct {
	Username string `json:"username"`
	Elo      int    `json:"elo"`
}

// MatchFound tells a queued player a match has started.
type MatchFound struct {
	Type      string       `json:"type"`
	SessionID string       `json:"session_id"`
	Opponent  OpponentInfo `json:"opponent"`
}

func NewMatchFound(sessionID, opponentName string, opponentElo int) MatchFound {
	return MatchFound{
		Type:      "match_found",
		SessionID: sessionID,
		Opponent:  OpponentInfo{Username: opponentName, Elo: opponentElo},
	}
}

// RoundStart opens a round and starts the choice timer on both sides.
type RoundStart struct {
	Type        string `json:"type"`
	Round       int    `json:"round"`
	TimeoutSecs int    `json:"timeout_secs"`
}

func NewRoundStart(round, timeoutSecs int) RoundStart {
	return RoundStart{Type: "round_start", Round: round, TimeoutSecs: timeoutSecs}
}

// OpponentChose signals the other side locked a choice (without revealing it).
type OpponentChose struct {
	Type string `json:"type"`
}

func NewOpponentChose() OpponentChose { return OpponentChose{Type: "opponent_chose"} }

// RoundResult reveals both choices once a round resolves. Choices a side
// never made are rendered as "none". Winner is relative to the receiver.
type RoundResult struct {
	Type           string `json:"type"`
	Round          int    `json:"round"`
	YourChoice     string `json:"your_choice"`
	OpponentChoice string `json:"opponent_choice"`
	Winner         string `json:"winner"`
	YourScore      int    `json:"your_score"`
	OpponentScore  int    `json:"opponent_score"`
}

func NewRoundResult(round int, yourChoice, opponentChoice, winner string, yourScore, opponentScore int) RoundResult {
	return RoundResult{
		Type:           "round_result",
		Round:          round,
		YourChoice:     yourChoice,
		OpponentChoice: opponentChoice,
		Winner:         winner,
		YourScore:      yourScore,
		OpponentScore:  opponentScore,
	}
}

// MatchComplete is the terminal frame of a match. Rating fields are omitted
// entirely for unranked matches.
type MatchComplete struct {
	Type          string `json:"type"`
	Result        string `json:"result"`
	YourScore     int    `json:"your_score"`
	OpponentScore int    `json:"opponent_score"`
	EloChange     *int   `json:"elo_change,omitempty"`
	NewElo        *int   `json:"new_elo,omitempty"`
}

func NewMatchComplete(result string, yourScore, opponentScore int, eloChange, newElo *int) MatchComplete {
	return MatchComplete{
		Type:          "match_complete",
		Result:        result,
		YourScore:     yourScore,
		OpponentScore: opponentScore,
		EloChange:     eloChange,
		NewElo:        newElo,
	}
}

// OpponentDisconnected precedes the forfeit MatchComplete on the surviving side.
type OpponentDisconnected struct {
	Type string `json:"type"`
}

func NewOpponentDisconnected() OpponentDisconnected {
	return OpponentDisconnected{Type: "opponent_disconnected"}
}

// ErrorMessage reports a rejected frame or failed request. It never closes
// the connection by itself.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewError(message string) ErrorMessage {
	return ErrorMessage{Type: "error", Message: message}
}

func (Queued) isServerMessage()               {}
func (MatchFound) isServerMessage()           {}
func (RoundStart) isServerMessage()           {}
func (OpponentChose) isServerMessage()        {}
func (RoundResult) isServerMessage()          {}
func (MatchComplete) isServerMessage()        {}
func (OpponentDisconnected) isServerMessage() {}
func (ErrorMessage) isServerMessage()         {}
