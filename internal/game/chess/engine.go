// Package chess implements the chess rule engine on top of
// corentings/chess/v2. The encoded state keeps the full UCI move list; the
// position is always reconstructed from the start position by replaying it,
// so the FEN field is presentation-only and can never drift from the moves.
package chess

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	nchess "github.com/corentings/chess/v2"

	"github.com/botarena/arena-go/internal/domain"
	"github.com/botarena/arena-go/internal/game"
	"github.com/botarena/arena-go/pkg/botapi"
)

type state struct {
	FEN            string   `json:"fen"`
	MovesUCI       []string `json:"moves_uci"`
	MovesSAN       []string `json:"moves_san"`
	HalfmoveClock  int      `json:"halfmove_clock"`
	FullmoveNumber int      `json:"fullmove_number"`
}

// Engine is stateless; all game data travels in the encoded state.
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

func (e *Engine) NewGame() ([]byte, error) {
	g := nchess.NewGame()
	return encodeState(&state{
		FEN:            g.FEN(),
		MovesUCI:       []string{},
		MovesSAN:       []string{},
		HalfmoveClock:  0,
		FullmoveNumber: 1,
	})
}

// Turn derives the player to move from the active-color field of the FEN.
// White is player index 0.
func (e *Engine) Turn(raw []byte) (int, error) {
	st, err := decodeState(raw)
	if err != nil {
		return 0, err
	}
	color, err := activeColor(st.FEN)
	if err != nil {
		return 0, err
	}
	if color == "w" {
		return 0, nil
	}
	return 1, nil
}

// LegalMoves enumerates every legal move in UCI notation. Legality checks go
// through this full enumeration; a per-move decode check alone accepts
// syntactically well-formed but impossible moves.
func (e *Engine) LegalMoves(raw []byte) ([]string, error) {
	st, err := decodeState(raw)
	if err != nil {
		return nil, err
	}
	g := reconstruct(st.MovesUCI)
	if g == nil {
		return nil, fmt.Errorf("reconstruct chess game")
	}
	valid := g.ValidMoves()
	moves := make([]string, 0, len(valid))
	for i := range valid {
		moves = append(moves, valid[i].String())
	}
	return moves, nil
}

func (e *Engine) ApplyMove(raw []byte, move string, player int) ([]byte, *game.MoveRecord, error) {
	st, err := decodeState(raw)
	if err != nil {
		return nil, nil, err
	}

	turn, err := e.Turn(raw)
	if err != nil {
		return nil, nil, err
	}
	if turn != player {
		return nil, nil, &game.RuleViolation{Reason: game.ReasonOutOfTurn, Detail: fmt.Sprintf("player %d moved on player %d's turn", player, turn)}
	}

	g := reconstruct(st.MovesUCI)
	if g == nil {
		return nil, nil, fmt.Errorf("reconstruct chess game")
	}
	pos := g.Position()

	uci := strings.ToLower(strings.TrimSpace(move))
	if uci == "" {
		return nil, nil, &game.RuleViolation{Reason: game.ReasonIllegalMove, Detail: "empty move"}
	}
	mv, derr := nchess.UCINotation{}.Decode(pos, uci)
	if derr != nil {
		return nil, nil, &game.RuleViolation{Reason: game.ReasonIllegalMove, Detail: uci}
	}

	legal := false
	valid := g.ValidMoves()
	for i := range valid {
		if valid[i].String() == mv.String() {
			legal = true
			break
		}
	}
	if !legal {
		return nil, nil, &game.RuleViolation{Reason: game.ReasonIllegalMove, Detail: uci}
	}

	san := nchess.AlgebraicNotation{}.Encode(pos, mv)
	if err := g.PushNotationMove(mv.String(), nchess.UCINotation{}, nil); err != nil {
		return nil, nil, &game.RuleViolation{Reason: game.ReasonIllegalMove, Detail: uci}
	}

	next := &state{
		FEN:      g.FEN(),
		MovesUCI: append(append([]string{}, st.MovesUCI...), mv.String()),
		MovesSAN: append(append([]string{}, st.MovesSAN...), san),
	}
	next.HalfmoveClock, next.FullmoveNumber = clocksFromFEN(next.FEN)

	encoded, err := encodeState(next)
	if err != nil {
		return nil, nil, err
	}

	canonical := mv.String()
	rec := &game.MoveRecord{Notation: canonical}
	if len(canonical) >= 4 {
		rec.FromSquare = canonical[:2]
		rec.ToSquare = canonical[2:4]
		rec.Promotion = canonical[4:]
	}
	return encoded, rec, nil
}

func (e *Engine) Result(raw []byte) (domain.GameResult, bool, error) {
	st, err := decodeState(raw)
	if err != nil {
		return domain.GameResult{}, false, err
	}
	g := reconstruct(st.MovesUCI)
	if g == nil {
		return domain.GameResult{}, false, fmt.Errorf("reconstruct chess game")
	}
	switch g.Outcome() {
	case nchess.WhiteWon:
		return domain.WinResult(0), true, nil
	case nchess.BlackWon:
		return domain.WinResult(1), true, nil
	case nchess.Draw:
		return domain.DrawResult(), true, nil
	default:
		return domain.GameResult{}, false, nil
	}
}

func (e *Engine) WirePayload(raw []byte) (botapi.StatePayload, error) {
	st, err := decodeState(raw)
	if err != nil {
		return botapi.StatePayload{}, err
	}
	return botapi.StatePayload{
		FEN:            st.FEN,
		PGN:            buildPGN(st.MovesSAN),
		HalfmoveClock:  st.HalfmoveClock,
		FullmoveNumber: st.FullmoveNumber,
	}, nil
}

// PGN renders the SAN history of a finished or running game as a dated PGN
// document. Exposed for the match read API.
func (e *Engine) PGN(raw []byte, white, black, result string) (string, error) {
	st, err := decodeState(raw)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	now := time.Now()
	b.WriteString("[Event \"Bot Arena\"]\n")
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", now.Year(), int(now.Month()), now.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", sanitizePGN(white)))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", sanitizePGN(black)))
	if result == "" {
		result = "*"
	}
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", result))
	b.WriteString(buildPGN(st.MovesSAN))
	if result != "" {
		b.WriteString(result)
	}
	return b.String(), nil
}

func reconstruct(moves []string) *nchess.Game {
	g := nchess.NewGame()
	for _, mv := range moves {
		if err := g.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			return nil
		}
	}
	return g
}

func activeColor(fen string) (string, error) {
	fields := strings.Fields(fen)
	if len(fields) < 2 {
		return "", fmt.Errorf("malformed FEN: %q", fen)
	}
	return fields[1], nil
}

func clocksFromFEN(fen string) (halfmove, fullmove int) {
	fullmove = 1
	fields := strings.Fields(fen)
	if len(fields) >= 5 {
		if n, err := strconv.Atoi(fields[4]); err == nil {
			halfmove = n
		}
	}
	if len(fields) >= 6 {
		if n, err := strconv.Atoi(fields[5]); err == nil {
			fullmove = n
		}
	}
	return halfmove, fullmove
}

// buildPGN numbers the SAN move list pairwise: "1. e4 e5 2. Nf3 ...".
func buildPGN(san []string) string {
	var b strings.Builder
	for i := 0; i < len(san); i += 2 {
		b.WriteString(fmt.Sprintf("%d. %s", (i/2)+1, strings.TrimSpace(san[i])))
		if i+1 < len(san) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(san[i+1]))
		}
		b.WriteString(" ")
	}
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}

func encodeState(st *state) ([]byte, error) {
	raw, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("encode chess state: %w", err)
	}
	return raw, nil
}

func decodeState(raw []byte) (*state, error) {
	var st state
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode chess state: %w", err)
	}
	return &st, nil
}
