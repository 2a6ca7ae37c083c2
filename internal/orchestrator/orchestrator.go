// Package orchestrator owns the match lifecycle: creating matches, running
// them ply by ply on a bounded worker pool, and settling results.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/botarena/arena-go/internal/domain"
	"github.com/botarena/arena-go/internal/executor"
	"github.com/botarena/arena-go/internal/game"
	"github.com/botarena/arena-go/internal/obslog"
	"github.com/botarena/arena-go/internal/rating"
	"github.com/botarena/arena-go/internal/store"
)

var (
	ErrQueueFull      = errors.New("match queue is full")
	ErrAlreadyRunning = errors.New("match is already running")
	ErrBotInactive    = errors.New("bot is not active")
	ErrGameNotPlayed  = errors.New("bot is not registered for this game")
	ErrNotInProgress  = errors.New("match is not in progress")
)

type Option func(*Orchestrator)

func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// WithMoveCeiling caps the total plies per match before a forced draw.
func WithMoveCeiling(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.moveCeiling = n
		}
	}
}

// Orchestrator schedules match loops over a fixed pool of workers so a burst
// of match submissions cannot exhaust bot endpoints.
type Orchestrator struct {
	repo    store.Repository
	games   *game.Registry
	exec    *executor.Executor
	ratings *rating.Service

	workers     int
	queueSize   int
	moveCeiling int

	tasks chan string
	wg    sync.WaitGroup

	mu      sync.Mutex
	running map[string]chan struct{} // matchID -> closed on completion
	started bool
}

func New(repo store.Repository, games *game.Registry, exec *executor.Executor, ratings *rating.Service, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		repo:        repo,
		games:       games,
		exec:        exec,
		ratings:     ratings,
		workers:     8,
		queueSize:   64,
		moveCeiling: 500,
		running:     make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.tasks = make(chan string, o.queueSize)
	return o
}

// Start launches the worker pool. Workers exit when ctx is cancelled and the
// queue drains.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return
	}
	o.started = true
	o.mu.Unlock()

	for i := 0; i < o.workers; i++ {
		o.wg.Add(1)
		go o.worker(ctx)
	}
	obslog.L().Info("orchestrator_started",
		zap.Int("workers", o.workers),
		zap.Int("queue_size", o.queueSize),
		zap.Int("move_ceiling", o.moveCeiling),
	)
}

// Shutdown stops accepting work and waits for in-flight matches to finish
// their current ply loop.
func (o *Orchestrator) Shutdown() {
	close(o.tasks)
	o.wg.Wait()
}

// InFlight reports how many matches are queued or being played right now.
func (o *Orchestrator) InFlight() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.running)
}

// QueueDepth reports how many submitted matches are waiting for a worker.
func (o *Orchestrator) QueueDepth() int {
	return len(o.tasks)
}

// CreateMatch validates both bots and persists a new IN_PROGRESS match with
// its initial game state. It does not schedule the match.
func (o *Orchestrator) CreateMatch(ctx context.Context, gameType domain.GameType, botID0, botID1 string) (*domain.Match, error) {
	engine, err := o.games.Engine(gameType)
	if err != nil {
		return nil, err
	}
	for _, id := range []string{botID0, botID1} {
		bot, err := o.repo.GetBot(ctx, id)
		if err != nil {
			return nil, err
		}
		if !bot.Active {
			return nil, fmt.Errorf("%w: %s", ErrBotInactive, id)
		}
		if !bot.PlaysGame(gameType) {
			return nil, fmt.Errorf("%w: %s does not play %s", ErrGameNotPlayed, id, gameType)
		}
	}

	initial, err := engine.NewGame()
	if err != nil {
		return nil, fmt.Errorf("new game: %w", err)
	}

	now := time.Now()
	m := &domain.Match{
		ID:        uuid.NewString(),
		Game:      gameType,
		Status:    domain.MatchInProgress,
		StartedAt: now,
		Participants: []domain.Participant{
			{BotID: botID0, PlayerIndex: 0},
			{BotID: botID1, PlayerIndex: 1},
		},
	}
	for i := range m.Participants {
		m.Participants[i].MatchID = m.ID
	}
	gs := &domain.GameState{MatchID: m.ID, Game: gameType, Encoded: initial, UpdatedAt: now}

	if err := o.repo.InsertMatch(ctx, m, gs); err != nil {
		return nil, fmt.Errorf("insert match: %w", err)
	}
	obslog.L().Info("match_created",
		zap.String("match_id", m.ID),
		zap.String("game", string(gameType)),
		zap.String("bot_0", botID0),
		zap.String("bot_1", botID1),
	)
	return m, nil
}

// Submit enqueues an existing match for execution. The returned channel
// closes when the match loop finishes.
func (o *Orchestrator) Submit(ctx context.Context, matchID string) (<-chan struct{}, error) {
	m, err := o.repo.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if m.Status != domain.MatchInProgress {
		return nil, ErrNotInProgress
	}

	o.mu.Lock()
	if _, dup := o.running[matchID]; dup {
		o.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	done := make(chan struct{})
	o.running[matchID] = done
	o.mu.Unlock()

	select {
	case o.tasks <- matchID:
		return done, nil
	default:
		o.mu.Lock()
		delete(o.running, matchID)
		o.mu.Unlock()
		return nil, ErrQueueFull
	}
}

// AbortMatch cooperatively stops a running match. The match loop observes the
// status flip before its next ply.
func (o *Orchestrator) AbortMatch(ctx context.Context, matchID string) (bool, error) {
	flipped, err := o.repo.MarkAborted(ctx, matchID)
	if err != nil {
		return false, err
	}
	if flipped {
		obslog.L().Info("match_aborted", zap.String("match_id", matchID))
	}
	return flipped, nil
}

// LegalMoves lists the current legal moves of a match, empty unless the
// match is still in progress.
func (o *Orchestrator) LegalMoves(ctx context.Context, matchID string) ([]string, error) {
	m, err := o.repo.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if m.Status != domain.MatchInProgress {
		return []string{}, nil
	}
	engine, err := o.games.Engine(m.Game)
	if err != nil {
		return nil, err
	}
	gs, err := o.repo.GetGameState(ctx, matchID)
	if err != nil {
		return nil, err
	}
	return engine.LegalMoves(gs.Encoded)
}

func (o *Orchestrator) worker(ctx context.Context) {
	defer o.wg.Done()
	for matchID := range o.tasks {
		o.runMatch(ctx, matchID)
		o.mu.Lock()
		done := o.running[matchID]
		delete(o.running, matchID)
		o.mu.Unlock()
		if done != nil {
			close(done)
		}
	}
}

// runMatch plays a match to completion. The match row is re-read before
// every ply so an abort lands between plies, never mid-ply.
func (o *Orchestrator) runMatch(ctx context.Context, matchID string) {
	moves, err := o.repo.ListMoves(ctx, matchID)
	if err != nil {
		obslog.L().Error("match_resume_failed", zap.String("match_id", matchID), zap.Error(err))
		return
	}
	plies := len(moves)

	obslog.L().Info("match_start", zap.String("match_id", matchID), zap.Int("plies_resumed", plies))

	for {
		m, err := o.repo.GetMatch(ctx, matchID)
		if err != nil {
			obslog.L().Error("match_load_failed", zap.String("match_id", matchID), zap.Error(err))
			return
		}
		if m.Status != domain.MatchInProgress {
			obslog.L().Info("match_stopped",
				zap.String("match_id", matchID),
				zap.String("status", string(m.Status)),
			)
			return
		}
		if plies >= o.moveCeiling {
			o.finish(ctx, m, domain.DrawResult(), "")
			obslog.L().Info("match_drawn_at_ceiling",
				zap.String("match_id", matchID),
				zap.Int("plies", plies),
			)
			return
		}

		outcome, err := o.exec.ExecutePly(ctx, m)
		if err != nil {
			obslog.L().Error("match_ply_failed", zap.String("match_id", matchID), zap.Error(err))
			if _, aerr := o.repo.MarkAborted(ctx, matchID); aerr != nil {
				obslog.L().Error("match_abort_failed", zap.String("match_id", matchID), zap.Error(aerr))
			}
			return
		}

		switch outcome.Kind {
		case executor.KindAdvanced:
			if outcome.Result != nil {
				o.finish(ctx, m, *outcome.Result, "")
				return
			}
			plies++

		case executor.KindRuleRejected, executor.KindCommFailed:
			// Only the non-offender is scored; the offender's lookup
			// below defaults to zero.
			result := domain.GameResult{Scores: map[int]float64{1 - outcome.Offender: 1.0}}
			o.finish(ctx, m, result, outcome.Reason)
			return
		}
	}
}

// finish settles scores, marks the match FINISHED and triggers the rating
// update. Rating problems never undo a finished match.
func (o *Orchestrator) finish(ctx context.Context, m *domain.Match, result domain.GameResult, forfeitReason string) {
	now := time.Now()
	m.Status = domain.MatchFinished
	m.ForfeitReason = forfeitReason
	m.FinishedAt = &now
	for i := range m.Participants {
		score := result.Scores[m.Participants[i].PlayerIndex]
		m.Participants[i].Score = &score
	}

	if err := o.repo.UpdateMatch(ctx, m); err != nil {
		obslog.L().Error("match_finish_failed", zap.String("match_id", m.ID), zap.Error(err))
		return
	}

	fields := []zap.Field{
		zap.String("match_id", m.ID),
		zap.String("game", string(m.Game)),
	}
	if forfeitReason != "" {
		fields = append(fields, zap.String("forfeit_reason", forfeitReason))
	}
	if winner, ok := result.Winner(); ok {
		fields = append(fields, zap.Int("winner", winner))
	}
	obslog.L().Info("match_finished", fields...)

	if o.ratings != nil {
		o.ratings.UpdateAfterMatch(ctx, m)
	}
}
