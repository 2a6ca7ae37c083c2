// Package botapi defines the wire contract between the arena and registered
// bot endpoints.
package botapi

// StatePayload is the game-type-tagged board snapshot sent with each move
// request. Chess fills the FEN/PGN/clock fields; connect-four fills the board
// string and last column.
type StatePayload struct {
	FEN            string `json:"fen,omitempty"`
	PGN            string `json:"pgn,omitempty"`
	HalfmoveClock  int    `json:"halfmove_clock,omitempty"`
	FullmoveNumber int    `json:"fullmove_number,omitempty"`

	Board      string `json:"board,omitempty"`
	LastColumn *int   `json:"last_column,omitempty"`
}

// MoveRequest asks a bot for its next move. LegalMoves is a hint computed by
// the rule engine, not ground truth; the returned move is validated again.
type MoveRequest struct {
	MatchID     string       `json:"match_id"`
	Game        string       `json:"game"`
	PlayerIndex int          `json:"player_index"`
	State       StatePayload `json:"state"`
	LegalMoves  []string     `json:"legal_moves"`
}

// MoveResponse carries a single move in the game's notation: UCI-like
// algebraic for chess, a column index string for connect-four.
type MoveResponse struct {
	Move string `json:"move"`
}
