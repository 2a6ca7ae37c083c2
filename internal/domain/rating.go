package domain

import "time"

// MatchResultKind is the categorical outcome recorded in rating history.
type MatchResultKind string

const (
	ResultWin  MatchResultKind = "WIN"
	ResultLoss MatchResultKind = "LOSS"
	ResultDraw MatchResultKind = "DRAW"
)

// BotRating is one row per (bot, game, leaderboard scope). Scope is nil for
// the global leaderboard. Created lazily on the first rated match.
type BotRating struct {
	ID            string    `json:"id"`
	BotID         string    `json:"bot_id"`
	Game          GameType  `json:"game"`
	Scope         *string   `json:"scope,omitempty"`
	Rating        int       `json:"rating"`
	MatchesPlayed int       `json:"matches_played"`
	Wins          int       `json:"wins"`
	Losses        int       `json:"losses"`
	Draws         int       `json:"draws"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// RatingHistory is an append-only audit record for one rating update.
type RatingHistory struct {
	ID             string          `json:"id"`
	RatingID       string          `json:"rating_id"`
	MatchID        string          `json:"match_id"`
	OldRating      int             `json:"old_rating"`
	NewRating      int             `json:"new_rating"`
	RatingChange   int             `json:"rating_change"`
	OpponentBotID  string          `json:"opponent_bot_id"`
	OpponentRating int             `json:"opponent_rating"`
	Result         MatchResultKind `json:"result"`
	CreatedAt      time.Time       `json:"created_at"`
}
