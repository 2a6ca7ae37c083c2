package game

import (
	"errors"
	"fmt"

	"github.com/botarena/arena-go/internal/domain"
	"github.com/botarena/arena-go/pkg/botapi"
)

var ErrUnknownGameType = errors.New("unknown game type")

// Rule violation reason codes surfaced to the orchestrator's forfeit path.
const (
	ReasonIllegalMove = "ILLEGAL_MOVE"
	ReasonOutOfTurn   = "OUT_OF_TURN"
)

// RuleViolation is returned by ApplyMove when a move breaks the game rules
// or it is not the submitting player's turn. It is never retried.
type RuleViolation struct {
	Reason string
	Detail string
}

func (v *RuleViolation) Error() string {
	if v.Detail == "" {
		return v.Reason
	}
	return fmt.Sprintf("%s: %s", v.Reason, v.Detail)
}

// AsRuleViolation unwraps err into a RuleViolation, if it is one.
func AsRuleViolation(err error) (*RuleViolation, bool) {
	var rv *RuleViolation
	if errors.As(err, &rv) {
		return rv, true
	}
	return nil, false
}

// MoveRecord carries the canonical notation and the per-game detail fields
// persisted with each ply.
type MoveRecord struct {
	Notation   string
	FromSquare string
	ToSquare   string
	Promotion  string
	Column     *int
}

// Engine is the pure rule engine for one game type. State values are opaque
// encodings owned by the engine; every operation returns a fresh encoding and
// never mutates its input.
type Engine interface {
	// NewGame returns the encoded start position.
	NewGame() ([]byte, error)
	// Turn reports whose turn it is (player index 0 or 1).
	Turn(state []byte) (int, error)
	// LegalMoves enumerates every legal move in the engine's notation.
	LegalMoves(state []byte) ([]string, error)
	// ApplyMove validates and applies one ply for the given player. Rule
	// violations come back as *RuleViolation.
	ApplyMove(state []byte, move string, player int) ([]byte, *MoveRecord, error)
	// Result reports the terminal result, or ok=false while the game is on.
	Result(state []byte) (domain.GameResult, bool, error)
	// WirePayload renders the state for the bot-facing move request.
	WirePayload(state []byte) (botapi.StatePayload, error)
}

// Registry maps the closed set of game types to their engines. Unregistered
// types fail at first use, never silently.
type Registry struct {
	engines map[domain.GameType]Engine
}

func NewRegistry() *Registry {
	return &Registry{engines: make(map[domain.GameType]Engine)}
}

func (r *Registry) Register(game domain.GameType, engine Engine) {
	r.engines[game] = engine
}

func (r *Registry) Engine(game domain.GameType) (Engine, error) {
	e, ok := r.engines[game]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGameType, game)
	}
	return e, nil
}

// Games lists the registered game types.
func (r *Registry) Games() []domain.GameType {
	out := make([]domain.GameType, 0, len(r.engines))
	for g := range r.engines {
		out = append(out, g)
	}
	return out
}
