package rating

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/botarena/arena-go/internal/domain"
	"github.com/botarena/arena-go/internal/obslog"
	"github.com/botarena/arena-go/internal/store"
)

// Refresher pushes the updated standings for a game to the leaderboard cache.
type Refresher interface {
	Refresh(ctx context.Context, game domain.GameType, rows []*domain.BotRating) error
}

// Service applies rating updates after finished matches. A rating failure
// never fails the match that triggered it; problems are logged and the match
// result stands.
type Service struct {
	repo  store.Repository
	board Refresher
}

func NewService(repo store.Repository, board Refresher) *Service {
	return &Service{repo: repo, board: board}
}

// UpdateAfterMatch recomputes both participants' ratings for a finished
// match. Aborted or unscored matches are skipped.
func (s *Service) UpdateAfterMatch(ctx context.Context, m *domain.Match) {
	if m.Status != domain.MatchFinished {
		obslog.L().Warn("rating_skip_not_finished",
			zap.String("match_id", m.ID),
			zap.String("status", string(m.Status)),
		)
		return
	}
	p0 := m.ParticipantAt(0)
	p1 := m.ParticipantAt(1)
	if p0 == nil || p1 == nil || p0.Score == nil || p1.Score == nil {
		obslog.L().Warn("rating_skip_unscored", zap.String("match_id", m.ID))
		return
	}

	r0, err := s.fetchOrSeed(ctx, p0.BotID, m.Game)
	if err != nil {
		obslog.L().Error("rating_load_failed", zap.String("match_id", m.ID), zap.String("bot_id", p0.BotID), zap.Error(err))
		return
	}
	r1, err := s.fetchOrSeed(ctx, p1.BotID, m.Game)
	if err != nil {
		obslog.L().Error("rating_load_failed", zap.String("match_id", m.ID), zap.String("bot_id", p1.BotID), zap.Error(err))
		return
	}

	old0, old1 := r0.Rating, r1.Rating
	new0, new1 := Compute(old0, r0.MatchesPlayed, old1, r1.MatchesPlayed, *p0.Score)

	h0 := historyRow(r0, m.ID, old0, new0, p1.BotID, old1, resultKind(*p0.Score))
	h1 := historyRow(r1, m.ID, old1, new1, p0.BotID, old0, resultKind(*p1.Score))

	applyOutcome(r0, new0, *p0.Score)
	applyOutcome(r1, new1, *p1.Score)

	if err := s.repo.SaveRatingUpdate(ctx, [2]*domain.BotRating{r0, r1}, [2]*domain.RatingHistory{h0, h1}); err != nil {
		obslog.L().Error("rating_save_failed", zap.String("match_id", m.ID), zap.Error(err))
		return
	}

	obslog.L().Info("rating_updated",
		zap.String("match_id", m.ID),
		zap.String("game", string(m.Game)),
		zap.String("bot_0", p0.BotID),
		zap.Int("rating_0", new0),
		zap.String("bot_1", p1.BotID),
		zap.Int("rating_1", new1),
	)

	if s.board != nil {
		go s.refreshBoard(m.Game)
	}
}

func (s *Service) fetchOrSeed(ctx context.Context, botID string, game domain.GameType) (*domain.BotRating, error) {
	r, err := s.repo.GetRating(ctx, botID, game, nil)
	if err != nil {
		return nil, err
	}
	if r != nil {
		return r, nil
	}
	return &domain.BotRating{
		ID:     uuid.NewString(),
		BotID:  botID,
		Game:   game,
		Rating: DefaultRating,
	}, nil
}

func (s *Service) refreshBoard(game domain.GameType) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rows, err := s.repo.TopRatings(ctx, game, 100)
	if err != nil {
		obslog.L().Warn("leaderboard_load_failed", zap.String("game", string(game)), zap.Error(err))
		return
	}
	if err := s.board.Refresh(ctx, game, rows); err != nil {
		obslog.L().Warn("leaderboard_refresh_failed", zap.String("game", string(game)), zap.Error(err))
	}
}

func historyRow(r *domain.BotRating, matchID string, oldRating, newRating int, opponentID string, opponentRating int, result domain.MatchResultKind) *domain.RatingHistory {
	return &domain.RatingHistory{
		ID:             uuid.NewString(),
		RatingID:       r.ID,
		MatchID:        matchID,
		OldRating:      oldRating,
		NewRating:      newRating,
		RatingChange:   newRating - oldRating,
		OpponentBotID:  opponentID,
		OpponentRating: opponentRating,
		Result:         result,
	}
}

func applyOutcome(r *domain.BotRating, newRating int, score float64) {
	r.Rating = newRating
	r.MatchesPlayed++
	switch {
	case score == 1.0:
		r.Wins++
	case score == 0.0:
		r.Losses++
	default:
		r.Draws++
	}
}

func resultKind(score float64) domain.MatchResultKind {
	switch {
	case score == 1.0:
		return domain.ResultWin
	case score == 0.0:
		return domain.ResultLoss
	default:
		return domain.ResultDraw
	}
}
