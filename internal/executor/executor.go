// Package executor advances a match by exactly one ply: ask the bot whose
// turn it is for a move, validate it against the rules, persist the new state
// and the move record.
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/botarena/arena-go/internal/botclient"
	"github.com/botarena/arena-go/internal/domain"
	"github.com/botarena/arena-go/internal/game"
	"github.com/botarena/arena-go/internal/obslog"
	"github.com/botarena/arena-go/internal/store"
	"github.com/botarena/arena-go/pkg/botapi"
)

// OutcomeKind classifies what one ply did to the match.
type OutcomeKind int

const (
	// KindAdvanced means the move was applied. Result is non-nil when the
	// ply ended the game.
	KindAdvanced OutcomeKind = iota
	// KindRuleRejected means the offender submitted an illegal or
	// out-of-turn move and forfeits.
	KindRuleRejected
	// KindCommFailed means the offender's bot could not produce a usable
	// response and forfeits.
	KindCommFailed
)

// PlyOutcome is the closed result of executing one ply. Reason is set for the
// two forfeit kinds.
type PlyOutcome struct {
	Kind     OutcomeKind
	Result   *domain.GameResult
	Offender int
	Reason   string
}

// Executor runs plies for every registered game type.
type Executor struct {
	games  *game.Registry
	repo   store.Repository
	client botclient.Caller
}

func New(games *game.Registry, repo store.Repository, client botclient.Caller) *Executor {
	return &Executor{games: games, repo: repo, client: client}
}

// ExecutePly advances the match one ply. It assumes the match is
// IN_PROGRESS; the caller re-checks status between plies. Any error return is
// an infrastructure fault, not a game outcome.
func (e *Executor) ExecutePly(ctx context.Context, m *domain.Match) (*PlyOutcome, error) {
	engine, err := e.games.Engine(m.Game)
	if err != nil {
		return nil, err
	}
	gs, err := e.repo.GetGameState(ctx, m.ID)
	if err != nil {
		return nil, fmt.Errorf("load game state: %w", err)
	}

	// The stored state may already be terminal if a previous run crashed
	// between persisting the move and finishing the match.
	if result, done, err := engine.Result(gs.Encoded); err != nil {
		return nil, fmt.Errorf("inspect state: %w", err)
	} else if done {
		return &PlyOutcome{Kind: KindAdvanced, Result: &result}, nil
	}

	player, err := engine.Turn(gs.Encoded)
	if err != nil {
		return nil, fmt.Errorf("determine turn: %w", err)
	}
	participant := m.ParticipantAt(player)
	if participant == nil {
		return nil, fmt.Errorf("match %s has no participant for player %d", m.ID, player)
	}
	bot, err := e.repo.GetBot(ctx, participant.BotID)
	if err != nil {
		return nil, fmt.Errorf("load bot %s: %w", participant.BotID, err)
	}

	legal, err := engine.LegalMoves(gs.Encoded)
	if err != nil {
		return nil, fmt.Errorf("enumerate legal moves: %w", err)
	}
	payload, err := engine.WirePayload(gs.Encoded)
	if err != nil {
		return nil, fmt.Errorf("render state: %w", err)
	}

	moveReq := &botapi.MoveRequest{
		MatchID:     m.ID,
		Game:        string(m.Game),
		PlayerIndex: player,
		State:       payload,
		LegalMoves:  legal,
	}

	resp, err := e.client.RequestMove(ctx, bot, moveReq)
	if err != nil {
		if cf, ok := botclient.AsCommFailure(err); ok {
			obslog.L().Info("ply_comm_failure",
				zap.String("match_id", m.ID),
				zap.String("bot_id", bot.ID),
				zap.Int("player", player),
				zap.String("reason", cf.Reason),
			)
			return &PlyOutcome{Kind: KindCommFailed, Offender: player, Reason: cf.Reason}, nil
		}
		return nil, fmt.Errorf("request move: %w", err)
	}

	move := strings.TrimSpace(resp.Move)
	next, record, err := engine.ApplyMove(gs.Encoded, move, player)
	if err != nil {
		if rv, ok := game.AsRuleViolation(err); ok {
			obslog.L().Info("ply_rule_rejected",
				zap.String("match_id", m.ID),
				zap.String("bot_id", bot.ID),
				zap.Int("player", player),
				zap.String("reason", rv.Reason),
				zap.String("move", move),
			)
			return &PlyOutcome{Kind: KindRuleRejected, Offender: player, Reason: rv.Reason}, nil
		}
		return nil, fmt.Errorf("apply move: %w", err)
	}

	newState := &domain.GameState{
		MatchID:   m.ID,
		Game:      m.Game,
		Encoded:   next,
		UpdatedAt: time.Now(),
	}
	mv := &domain.MatchMove{
		MatchID:     m.ID,
		PlayerIndex: player,
		Notation:    record.Notation,
		FromSquare:  record.FromSquare,
		ToSquare:    record.ToSquare,
		Promotion:   record.Promotion,
		Column:      record.Column,
	}
	if err := e.repo.SaveMoveAndState(ctx, newState, mv); err != nil {
		return nil, fmt.Errorf("persist ply: %w", err)
	}

	if result, done, err := engine.Result(next); err != nil {
		return nil, fmt.Errorf("inspect state: %w", err)
	} else if done {
		return &PlyOutcome{Kind: KindAdvanced, Result: &result}, nil
	}
	return &PlyOutcome{Kind: KindAdvanced}, nil
}
