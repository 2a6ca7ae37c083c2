// Package store persists matches, game states, moves, bots and ratings.
// Writes that the engine requires to be atomic (state + move, ratings +
// history) are single repository calls so each implementation can scope its
// own transaction.
package store

import (
	"context"
	"errors"

	"github.com/botarena/arena-go/internal/domain"
)

var (
	ErrMatchNotFound = errors.New("match not found")
	ErrStateNotFound = errors.New("game state not found")
	ErrBotNotFound   = errors.New("bot not found")
	ErrDuplicateBot  = errors.New("bot already exists")
)

// Repository is the persistence contract for the match engine.
type Repository interface {
	// Bots.
	InsertBot(ctx context.Context, bot *domain.Bot) error
	GetBot(ctx context.Context, id string) (*domain.Bot, error)
	ListBots(ctx context.Context, onlyActive bool) ([]*domain.Bot, error)

	// Matches. InsertMatch stores the match, both participants and the
	// initial game state together. GetMatch always resolves participants.
	InsertMatch(ctx context.Context, m *domain.Match, gs *domain.GameState) error
	GetMatch(ctx context.Context, id string) (*domain.Match, error)
	// UpdateMatch persists status, finish time, forfeit reason and any
	// participant scores in one unit of work.
	UpdateMatch(ctx context.Context, m *domain.Match) error
	// MarkAborted flips an IN_PROGRESS match to ABORTED. Reports false when
	// the match was already terminal.
	MarkAborted(ctx context.Context, id string) (bool, error)

	// Game state and moves. SaveMoveAndState replaces the state row and
	// appends the move record; both happen or neither does.
	GetGameState(ctx context.Context, matchID string) (*domain.GameState, error)
	SaveMoveAndState(ctx context.Context, gs *domain.GameState, mv *domain.MatchMove) error
	ListMoves(ctx context.Context, matchID string) ([]*domain.MatchMove, error)

	// Ratings. GetRating returns nil when no row exists yet.
	GetRating(ctx context.Context, botID string, game domain.GameType, scope *string) (*domain.BotRating, error)
	// SaveRatingUpdate upserts both rating rows and appends both history
	// rows in one unit of work.
	SaveRatingUpdate(ctx context.Context, ratings [2]*domain.BotRating, history [2]*domain.RatingHistory) error
	TopRatings(ctx context.Context, game domain.GameType, limit int) ([]*domain.BotRating, error)
}
