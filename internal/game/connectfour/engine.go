// Package connectfour implements the connect-four rule engine over a 6x7
// grid. The board is encoded linearly, row-major from the bottom row up, with
// '.' for empty cells and the player index digit for occupied ones.
package connectfour

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/botarena/arena-go/internal/domain"
	"github.com/botarena/arena-go/internal/game"
	"github.com/botarena/arena-go/pkg/botapi"
)

const (
	Rows    = 6
	Columns = 7
)

const emptyCell = '.'

type state struct {
	Board      string `json:"board"`
	LastColumn int    `json:"last_column"`
}

type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

func (e *Engine) NewGame() ([]byte, error) {
	return encodeState(&state{
		Board:      strings.Repeat(string(emptyCell), Rows*Columns),
		LastColumn: -1,
	})
}

// Turn derives the mover from the parity of filled cells: an even count means
// player 0 is to move.
func (e *Engine) Turn(raw []byte) (int, error) {
	st, err := decodeState(raw)
	if err != nil {
		return 0, err
	}
	return filledCells(st.Board) % 2, nil
}

func (e *Engine) LegalMoves(raw []byte) ([]string, error) {
	st, err := decodeState(raw)
	if err != nil {
		return nil, err
	}
	grid := gridFrom(st.Board)
	moves := make([]string, 0, Columns)
	for col := 0; col < Columns; col++ {
		if grid[Rows-1][col] == emptyCell {
			moves = append(moves, strconv.Itoa(col))
		}
	}
	return moves, nil
}

func (e *Engine) ApplyMove(raw []byte, move string, player int) ([]byte, *game.MoveRecord, error) {
	st, err := decodeState(raw)
	if err != nil {
		return nil, nil, err
	}

	turn := filledCells(st.Board) % 2
	if turn != player {
		return nil, nil, &game.RuleViolation{Reason: game.ReasonOutOfTurn, Detail: fmt.Sprintf("player %d moved on player %d's turn", player, turn)}
	}

	col, err := strconv.Atoi(strings.TrimSpace(move))
	if err != nil || col < 0 || col >= Columns {
		return nil, nil, &game.RuleViolation{Reason: game.ReasonIllegalMove, Detail: fmt.Sprintf("column %q", move)}
	}

	grid := gridFrom(st.Board)
	row := -1
	for r := 0; r < Rows; r++ {
		if grid[r][col] == emptyCell {
			row = r
			break
		}
	}
	if row < 0 {
		return nil, nil, &game.RuleViolation{Reason: game.ReasonIllegalMove, Detail: fmt.Sprintf("column %d is full", col)}
	}
	grid[row][col] = byte('0' + player)

	next := &state{Board: boardFrom(grid), LastColumn: col}
	encoded, err := encodeState(next)
	if err != nil {
		return nil, nil, err
	}
	c := col
	return encoded, &game.MoveRecord{Notation: strconv.Itoa(col), Column: &c}, nil
}

func (e *Engine) Result(raw []byte) (domain.GameResult, bool, error) {
	st, err := decodeState(raw)
	if err != nil {
		return domain.GameResult{}, false, err
	}
	grid := gridFrom(st.Board)
	if winner, ok := scanWinner(grid); ok {
		return domain.WinResult(winner), true, nil
	}
	if filledCells(st.Board) == Rows*Columns {
		return domain.DrawResult(), true, nil
	}
	return domain.GameResult{}, false, nil
}

func (e *Engine) WirePayload(raw []byte) (botapi.StatePayload, error) {
	st, err := decodeState(raw)
	if err != nil {
		return botapi.StatePayload{}, err
	}
	payload := botapi.StatePayload{Board: st.Board}
	if st.LastColumn >= 0 {
		last := st.LastColumn
		payload.LastColumn = &last
	}
	return payload, nil
}

// scanWinner checks the four axes. Start offsets are bounded so every
// candidate line of four stays in-grid: horizontal runs left to right per
// row, vertical bottom to top per column, and the two diagonal orientations
// each get their own column range.
func scanWinner(grid [Rows][Columns]byte) (int, bool) {
	// horizontal
	for r := 0; r < Rows; r++ {
		for c := 0; c+3 < Columns; c++ {
			if p, ok := line(grid[r][c], grid[r][c+1], grid[r][c+2], grid[r][c+3]); ok {
				return p, true
			}
		}
	}
	// vertical
	for c := 0; c < Columns; c++ {
		for r := 0; r+3 < Rows; r++ {
			if p, ok := line(grid[r][c], grid[r+1][c], grid[r+2][c], grid[r+3][c]); ok {
				return p, true
			}
		}
	}
	// diagonal, rising to the right
	for r := 0; r+3 < Rows; r++ {
		for c := 0; c+3 < Columns; c++ {
			if p, ok := line(grid[r][c], grid[r+1][c+1], grid[r+2][c+2], grid[r+3][c+3]); ok {
				return p, true
			}
		}
	}
	// diagonal, rising to the left
	for r := 0; r+3 < Rows; r++ {
		for c := 3; c < Columns; c++ {
			if p, ok := line(grid[r][c], grid[r+1][c-1], grid[r+2][c-2], grid[r+3][c-3]); ok {
				return p, true
			}
		}
	}
	return 0, false
}

func line(a, b, c, d byte) (int, bool) {
	if a != emptyCell && a == b && b == c && c == d {
		return int(a - '0'), true
	}
	return 0, false
}

func filledCells(board string) int {
	n := 0
	for i := 0; i < len(board); i++ {
		if board[i] != emptyCell {
			n++
		}
	}
	return n
}

// gridFrom indexes the linear encoding as [row][col] with row 0 at the
// bottom.
func gridFrom(board string) [Rows][Columns]byte {
	var grid [Rows][Columns]byte
	for r := 0; r < Rows; r++ {
		for c := 0; c < Columns; c++ {
			idx := r*Columns + c
			if idx < len(board) {
				grid[r][c] = board[idx]
			} else {
				grid[r][c] = emptyCell
			}
		}
	}
	return grid
}

func boardFrom(grid [Rows][Columns]byte) string {
	var b strings.Builder
	b.Grow(Rows * Columns)
	for r := 0; r < Rows; r++ {
		for c := 0; c < Columns; c++ {
			b.WriteByte(grid[r][c])
		}
	}
	return b.String()
}

func encodeState(st *state) ([]byte, error) {
	raw, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("encode connect-four state: %w", err)
	}
	return raw, nil
}

func decodeState(raw []byte) (*state, error) {
	var st state
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode connect-four state: %w", err)
	}
	return &st, nil
}
