package store

import (
	"context"
	"testing"
	"time"

	"github.com/botarena/arena-go/internal/domain"
)

func seedMatch(t *testing.T, repo Repository, id string) {
	t.Helper()
	m := &domain.Match{
		ID:     id,
		Game:   domain.GameChess,
		Status: domain.MatchInProgress,
		Participants: []domain.Participant{
			{MatchID: id, BotID: "a", PlayerIndex: 0},
			{MatchID: id, BotID: "b", PlayerIndex: 1},
		},
		StartedAt: time.Now(),
	}
	gs := &domain.GameState{MatchID: id, Game: domain.GameChess, Encoded: []byte(`{}`), UpdatedAt: time.Now()}
	if err := repo.InsertMatch(context.Background(), m, gs); err != nil {
		t.Fatalf("InsertMatch: %v", err)
	}
}

func TestInsertBotRejectsDuplicates(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	bot := &domain.Bot{ID: "b-1", Name: "one", Endpoint: "http://x", Active: true}
	if err := repo.InsertBot(ctx, bot); err != nil {
		t.Fatalf("InsertBot: %v", err)
	}
	if err := repo.InsertBot(ctx, bot); err != ErrDuplicateBot {
		t.Fatalf("duplicate insert: %v, want ErrDuplicateBot", err)
	}
}

func TestMarkAbortedOnlyFlipsInProgress(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	seedMatch(t, repo, "m-1")

	flipped, err := repo.MarkAborted(ctx, "m-1")
	if err != nil || !flipped {
		t.Fatalf("first abort: flipped=%v err=%v", flipped, err)
	}
	flipped, err = repo.MarkAborted(ctx, "m-1")
	if err != nil || flipped {
		t.Fatalf("second abort: flipped=%v err=%v", flipped, err)
	}
	if _, err := repo.MarkAborted(ctx, "missing"); err != ErrMatchNotFound {
		t.Fatalf("abort of missing match: %v, want ErrMatchNotFound", err)
	}

	m, err := repo.GetMatch(ctx, "m-1")
	if err != nil {
		t.Fatalf("GetMatch: %v", err)
	}
	if m.Status != domain.MatchAborted || m.FinishedAt == nil {
		t.Fatalf("aborted match: %+v", m)
	}
}

func TestSaveMoveAndStateRequiresExistingState(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	gs := &domain.GameState{MatchID: "missing", Game: domain.GameChess, Encoded: []byte(`{}`)}
	mv := &domain.MatchMove{MatchID: "missing", PlayerIndex: 0, Notation: "e2e4"}
	if err := repo.SaveMoveAndState(ctx, gs, mv); err != ErrStateNotFound {
		t.Fatalf("save against missing state: %v, want ErrStateNotFound", err)
	}
}

func TestMovesAreAppendOnlyAndOrdered(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	seedMatch(t, repo, "m-1")

	for i, notation := range []string{"e2e4", "e7e5", "g1f3"} {
		gs := &domain.GameState{MatchID: "m-1", Game: domain.GameChess, Encoded: []byte(`{}`)}
		mv := &domain.MatchMove{MatchID: "m-1", PlayerIndex: i % 2, Notation: notation}
		if err := repo.SaveMoveAndState(ctx, gs, mv); err != nil {
			t.Fatalf("SaveMoveAndState %d: %v", i, err)
		}
	}

	moves, err := repo.ListMoves(ctx, "m-1")
	if err != nil {
		t.Fatalf("ListMoves: %v", err)
	}
	if len(moves) != 3 {
		t.Fatalf("moves %d, want 3", len(moves))
	}
	for i := 1; i < len(moves); i++ {
		if moves[i].ID <= moves[i-1].ID {
			t.Fatalf("move ids not increasing: %d then %d", moves[i-1].ID, moves[i].ID)
		}
	}
	if moves[2].Notation != "g1f3" {
		t.Fatalf("last move %q", moves[2].Notation)
	}
}

func TestGetRatingIsNilUntilFirstSave(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	r, err := repo.GetRating(ctx, "b-1", domain.GameChess, nil)
	if err != nil || r != nil {
		t.Fatalf("absent rating: %v %v", r, err)
	}

	ratings := [2]*domain.BotRating{
		{ID: "r-1", BotID: "b-1", Game: domain.GameChess, Rating: 1216, MatchesPlayed: 1, Wins: 1},
		{ID: "r-2", BotID: "b-2", Game: domain.GameChess, Rating: 1184, MatchesPlayed: 1, Losses: 1},
	}
	history := [2]*domain.RatingHistory{
		{ID: "h-1", RatingID: "r-1", MatchID: "m-1", OldRating: 1200, NewRating: 1216, RatingChange: 16, OpponentBotID: "b-2", OpponentRating: 1200, Result: domain.ResultWin},
		{ID: "h-2", RatingID: "r-2", MatchID: "m-1", OldRating: 1200, NewRating: 1184, RatingChange: -16, OpponentBotID: "b-1", OpponentRating: 1200, Result: domain.ResultLoss},
	}
	if err := repo.SaveRatingUpdate(ctx, ratings, history); err != nil {
		t.Fatalf("SaveRatingUpdate: %v", err)
	}

	r, err = repo.GetRating(ctx, "b-1", domain.GameChess, nil)
	if err != nil || r == nil || r.Rating != 1216 {
		t.Fatalf("saved rating: %+v %v", r, err)
	}

	scope := "tournament-1"
	scoped, err := repo.GetRating(ctx, "b-1", domain.GameChess, &scope)
	if err != nil || scoped != nil {
		t.Fatalf("scoped rating should be separate: %+v %v", scoped, err)
	}
}

func TestTopRatingsOrdersByRatingThenID(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	pairs := [][2]*domain.BotRating{
		{
			{ID: "r-1", BotID: "alpha", Game: domain.GameChess, Rating: 1300},
			{ID: "r-2", BotID: "beta", Game: domain.GameChess, Rating: 1300},
		},
		{
			{ID: "r-3", BotID: "gamma", Game: domain.GameChess, Rating: 1400},
			{ID: "r-4", BotID: "delta", Game: domain.GameConnectFour, Rating: 1500},
		},
	}
	for _, p := range pairs {
		hist := [2]*domain.RatingHistory{
			{ID: p[0].ID + "-h", RatingID: p[0].ID},
			{ID: p[1].ID + "-h", RatingID: p[1].ID},
		}
		if err := repo.SaveRatingUpdate(ctx, p, hist); err != nil {
			t.Fatalf("SaveRatingUpdate: %v", err)
		}
	}

	top, err := repo.TopRatings(ctx, domain.GameChess, 10)
	if err != nil {
		t.Fatalf("TopRatings: %v", err)
	}
	if len(top) != 3 {
		t.Fatalf("chess rows %d, want 3", len(top))
	}
	if top[0].BotID != "gamma" {
		t.Fatalf("top row %+v", top[0])
	}
	if top[1].BotID != "alpha" || top[2].BotID != "beta" {
		t.Fatalf("tie break by bot id failed: %+v %+v", top[1], top[2])
	}
}
