package rating

import (
	"context"
	"testing"
	"time"

	"github.com/botarena/arena-go/internal/domain"
	"github.com/botarena/arena-go/internal/store"
)

type historyPeeker interface {
	RatingHistoryForTests() []*domain.RatingHistory
}

func finishedMatch(score0, score1 float64) *domain.Match {
	now := time.Now()
	return &domain.Match{
		ID:     "m-1",
		Game:   domain.GameChess,
		Status: domain.MatchFinished,
		Participants: []domain.Participant{
			{MatchID: "m-1", BotID: "alpha", PlayerIndex: 0, Score: &score0},
			{MatchID: "m-1", BotID: "beta", PlayerIndex: 1, Score: &score1},
		},
		StartedAt:  now,
		FinishedAt: &now,
	}
}

func TestUpdateAfterMatchSeedsAndApplies(t *testing.T) {
	repo := store.NewMemoryRepository()
	svc := NewService(repo, nil)
	ctx := context.Background()

	svc.UpdateAfterMatch(ctx, finishedMatch(1.0, 0.0))

	winner, err := repo.GetRating(ctx, "alpha", domain.GameChess, nil)
	if err != nil || winner == nil {
		t.Fatalf("winner rating: %v %v", winner, err)
	}
	loser, err := repo.GetRating(ctx, "beta", domain.GameChess, nil)
	if err != nil || loser == nil {
		t.Fatalf("loser rating: %v %v", loser, err)
	}

	// Both fresh at 1200, provisional K.
	if winner.Rating != 1216 || loser.Rating != 1184 {
		t.Fatalf("ratings %d/%d, want 1216/1184", winner.Rating, loser.Rating)
	}
	if winner.MatchesPlayed != 1 || winner.Wins != 1 || winner.Losses != 0 || winner.Draws != 0 {
		t.Fatalf("winner counters: %+v", winner)
	}
	if loser.MatchesPlayed != 1 || loser.Losses != 1 {
		t.Fatalf("loser counters: %+v", loser)
	}
}

func TestUpdateAfterMatchWritesHistory(t *testing.T) {
	repo := store.NewMemoryRepository()
	svc := NewService(repo, nil)
	ctx := context.Background()

	svc.UpdateAfterMatch(ctx, finishedMatch(0.5, 0.5))

	hist := repo.(historyPeeker).RatingHistoryForTests()
	if len(hist) != 2 {
		t.Fatalf("history rows = %d, want 2", len(hist))
	}
	for _, h := range hist {
		if h.MatchID != "m-1" {
			t.Fatalf("history match id %q", h.MatchID)
		}
		if h.Result != domain.ResultDraw {
			t.Fatalf("history result %q, want DRAW", h.Result)
		}
		if h.RatingChange != h.NewRating-h.OldRating {
			t.Fatalf("rating change %d inconsistent with %d -> %d", h.RatingChange, h.OldRating, h.NewRating)
		}
		if h.OldRating != 1200 || h.NewRating != 1200 {
			t.Fatalf("draw between fresh bots moved rating: %d -> %d", h.OldRating, h.NewRating)
		}
	}
}

func TestUpdateAfterMatchCountersStayConsistent(t *testing.T) {
	repo := store.NewMemoryRepository()
	svc := NewService(repo, nil)
	ctx := context.Background()

	svc.UpdateAfterMatch(ctx, finishedMatch(1.0, 0.0))
	svc.UpdateAfterMatch(ctx, finishedMatch(0.0, 1.0))
	svc.UpdateAfterMatch(ctx, finishedMatch(0.5, 0.5))

	r, err := repo.GetRating(ctx, "alpha", domain.GameChess, nil)
	if err != nil || r == nil {
		t.Fatalf("rating: %v %v", r, err)
	}
	if r.MatchesPlayed != r.Wins+r.Losses+r.Draws {
		t.Fatalf("counters drifted: %+v", r)
	}
	if r.MatchesPlayed != 3 || r.Wins != 1 || r.Losses != 1 || r.Draws != 1 {
		t.Fatalf("counters: %+v", r)
	}
}

func TestUpdateAfterMatchSkipsAbortedAndUnscored(t *testing.T) {
	repo := store.NewMemoryRepository()
	svc := NewService(repo, nil)
	ctx := context.Background()

	aborted := finishedMatch(1.0, 0.0)
	aborted.Status = domain.MatchAborted
	svc.UpdateAfterMatch(ctx, aborted)

	unscored := finishedMatch(1.0, 0.0)
	unscored.Participants[0].Score = nil
	svc.UpdateAfterMatch(ctx, unscored)

	r, err := repo.GetRating(ctx, "alpha", domain.GameChess, nil)
	if err != nil {
		t.Fatalf("GetRating: %v", err)
	}
	if r != nil {
		t.Fatalf("rating row created for skipped match: %+v", r)
	}
}
