package domain

import (
	"time"
)

// GameType identifies a supported game.
type GameType string

const (
	GameChess       GameType = "CHESS"
	GameConnectFour GameType = "CONNECT_FOUR"
)

// ParseGameType normalizes a user-supplied game tag.
func ParseGameType(s string) (GameType, bool) {
	switch GameType(s) {
	case GameChess, GameConnectFour:
		return GameType(s), true
	}
	return "", false
}

// MatchStatus represents the match lifecycle state.
type MatchStatus string

const (
	MatchInProgress MatchStatus = "IN_PROGRESS"
	MatchFinished   MatchStatus = "FINISHED"
	MatchAborted    MatchStatus = "ABORTED"
)

// Participant binds a bot to one side of a match. PlayerIndex is fixed for
// the match lifetime and determines move order. Score stays nil until the
// match concludes.
type Participant struct {
	MatchID     string   `json:"match_id"`
	BotID       string   `json:"bot_id"`
	PlayerIndex int      `json:"player_index"`
	Score       *float64 `json:"score,omitempty"`
}

// Match is one bot-vs-bot game. It owns its two Participants.
type Match struct {
	ID            string        `json:"id"`
	Game          GameType      `json:"game"`
	Status        MatchStatus   `json:"status"`
	ForfeitReason string        `json:"forfeit_reason,omitempty"`
	Participants  []Participant `json:"participants"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    *time.Time    `json:"finished_at,omitempty"`
}

// ParticipantAt returns the participant with the given player index.
func (m *Match) ParticipantAt(idx int) *Participant {
	for i := range m.Participants {
		if m.Participants[i].PlayerIndex == idx {
			return &m.Participants[i]
		}
	}
	return nil
}

// GameState is the current board of a match, keyed by match id. The encoded
// payload is owned by the game's rule engine and replaced wholesale on each
// move.
type GameState struct {
	MatchID   string    `json:"match_id"`
	Game      GameType  `json:"game"`
	Encoded   []byte    `json:"encoded"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MatchMove is one immutable ply record.
type MatchMove struct {
	ID          int64     `json:"id"`
	MatchID     string    `json:"match_id"`
	PlayerIndex int       `json:"player_index"`
	Notation    string    `json:"notation"`
	FromSquare  string    `json:"from_square,omitempty"`
	ToSquare    string    `json:"to_square,omitempty"`
	Promotion   string    `json:"promotion,omitempty"`
	Column      *int      `json:"column,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// GameResult assigns a final score per player index. Scores sum to 1.0.
// Lookups on an absent index yield 0.0, which the forfeit path relies on.
type GameResult struct {
	Scores map[int]float64 `json:"scores"`
}

// WinResult scores the given player index 1.0 and the opponent 0.0.
func WinResult(winner int) GameResult {
	return GameResult{Scores: map[int]float64{winner: 1.0, 1 - winner: 0.0}}
}

// DrawResult scores both sides 0.5.
func DrawResult() GameResult {
	return GameResult{Scores: map[int]float64{0: 0.5, 1: 0.5}}
}

// Winner reports the index scoring 1.0, if any.
func (r GameResult) Winner() (int, bool) {
	for idx, s := range r.Scores {
		if s == 1.0 {
			return idx, true
		}
	}
	return 0, false
}
