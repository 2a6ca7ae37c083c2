package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/botarena/arena-go/internal/botclient"
	"github.com/botarena/arena-go/internal/domain"
	"github.com/botarena/arena-go/internal/executor"
	"github.com/botarena/arena-go/internal/game"
	"github.com/botarena/arena-go/internal/game/chess"
	"github.com/botarena/arena-go/internal/game/connectfour"
	"github.com/botarena/arena-go/internal/orchestrator"
	"github.com/botarena/arena-go/internal/rating"
	"github.com/botarena/arena-go/internal/store"
	"github.com/botarena/arena-go/pkg/botapi"
)

// replayCaller feeds each player a fixed move sequence.
type replayCaller struct {
	byPlayer map[int][]string
}

func (r *replayCaller) RequestMove(ctx context.Context, bot *domain.Bot, req *botapi.MoveRequest) (*botapi.MoveResponse, error) {
	script := r.byPlayer[req.PlayerIndex]
	if len(script) == 0 {
		return nil, &botclient.CommFailure{Reason: botclient.ReasonInvalidResponse}
	}
	move := script[0]
	r.byPlayer[req.PlayerIndex] = script[1:]
	return &botapi.MoveResponse{Move: move}, nil
}

type testEnv struct {
	srv  *Server
	repo store.Repository
}

func newTestEnv(t *testing.T, caller botclient.Caller) *testEnv {
	t.Helper()
	repo := store.NewMemoryRepository()
	registry := game.NewRegistry()
	registry.Register(domain.GameChess, chess.NewEngine())
	registry.Register(domain.GameConnectFour, connectfour.NewEngine())

	exec := executor.New(registry, repo, caller)
	ratings := rating.NewService(repo, nil)
	orc := orchestrator.New(repo, registry, exec, ratings, orchestrator.WithWorkers(2))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		orc.Shutdown()
		cancel()
	})
	orc.Start(ctx)

	return &testEnv{srv: New(repo, orc, registry, nil), repo: repo}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.srv.App().Test(req, 15000)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, raw
}

func (e *testEnv) registerBot(t *testing.T, name string, games ...string) string {
	t.Helper()
	resp, raw := e.do(t, http.MethodPost, "/bots", map[string]any{
		"name":     name,
		"endpoint": "http://" + name + ".test/move",
		"games":    games,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register bot %s: status %d body %s", name, resp.StatusCode, raw)
	}
	var bot domain.Bot
	if err := json.Unmarshal(raw, &bot); err != nil {
		t.Fatalf("decode bot: %v", err)
	}
	return bot.ID
}

func (e *testEnv) waitFinished(t *testing.T, matchID string) *domain.Match {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		m, err := e.repo.GetMatch(context.Background(), matchID)
		if err != nil {
			t.Fatalf("GetMatch: %v", err)
		}
		if m.Status != domain.MatchInProgress {
			return m
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("match %s never finished", matchID)
	return nil
}

func TestBotRegistrationAndListing(t *testing.T) {
	env := newTestEnv(t, &replayCaller{})

	id := env.registerBot(t, "stockfish-lite", "CHESS")

	resp, raw := env.do(t, http.MethodGet, "/bots/"+id, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get bot: %d %s", resp.StatusCode, raw)
	}

	resp, raw = env.do(t, http.MethodGet, "/bots?active=true", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list bots: %d", resp.StatusCode)
	}
	var bots []domain.Bot
	if err := json.Unmarshal(raw, &bots); err != nil {
		t.Fatalf("decode bots: %v", err)
	}
	if len(bots) != 1 || bots[0].ID != id {
		t.Fatalf("listed bots: %+v", bots)
	}
}

func TestBotRegistrationValidation(t *testing.T) {
	env := newTestEnv(t, &replayCaller{})

	resp, _ := env.do(t, http.MethodPost, "/bots", map[string]any{"name": "x"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing endpoint accepted: %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodPost, "/bots", map[string]any{
		"name": "x", "endpoint": "http://x", "games": []string{"CHECKERS"},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown game accepted: %d", resp.StatusCode)
	}
}

func TestMatchLifecycleOverHTTP(t *testing.T) {
	caller := &replayCaller{byPlayer: map[int][]string{
		0: {"f2f3", "g2g4"},
		1: {"e7e5", "d8h4"},
	}}
	env := newTestEnv(t, caller)

	white := env.registerBot(t, "white", "CHESS")
	black := env.registerBot(t, "black", "CHESS")

	resp, raw := env.do(t, http.MethodPost, "/matches", map[string]any{
		"game":    "CHESS",
		"bot_ids": []string{white, black},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create match: %d %s", resp.StatusCode, raw)
	}
	var created domain.Match
	if err := json.Unmarshal(raw, &created); err != nil {
		t.Fatalf("decode match: %v", err)
	}

	resp, raw = env.do(t, http.MethodPost, "/matches/"+created.ID+"/execute", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("execute: %d %s", resp.StatusCode, raw)
	}

	env.waitFinished(t, created.ID)

	resp, raw = env.do(t, http.MethodGet, "/matches/"+created.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get match: %d", resp.StatusCode)
	}
	var got struct {
		domain.Match
		PGN string `json:"pgn"`
	}
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("decode match: %v", err)
	}
	if got.Status != domain.MatchFinished {
		t.Fatalf("status %s", got.Status)
	}
	if !strings.Contains(got.PGN, "Qh4#") {
		t.Fatalf("pgn missing mate move: %q", got.PGN)
	}
	if !strings.Contains(got.PGN, "0-1") {
		t.Fatalf("pgn missing result: %q", got.PGN)
	}

	resp, raw = env.do(t, http.MethodGet, "/matches/"+created.ID+"/moves", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list moves: %d", resp.StatusCode)
	}
	var recorded []domain.MatchMove
	if err := json.Unmarshal(raw, &recorded); err != nil {
		t.Fatalf("decode moves: %v", err)
	}
	if len(recorded) != 4 {
		t.Fatalf("moves %d, want 4", len(recorded))
	}
}

func TestCreateMatchRejectsUnknownBot(t *testing.T) {
	env := newTestEnv(t, &replayCaller{})
	white := env.registerBot(t, "white", "CHESS")

	resp, _ := env.do(t, http.MethodPost, "/matches", map[string]any{
		"game":    "CHESS",
		"bot_ids": []string{white, "no-such-bot"},
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown bot: %d, want 404", resp.StatusCode)
	}
}

func TestCreateMatchRejectsSelfPlay(t *testing.T) {
	env := newTestEnv(t, &replayCaller{})
	white := env.registerBot(t, "white", "CHESS")

	resp, _ := env.do(t, http.MethodPost, "/matches", map[string]any{
		"game":    "CHESS",
		"bot_ids": []string{white, white},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("self play: %d, want 400", resp.StatusCode)
	}
}

func TestLeaderboardFallsBackToStore(t *testing.T) {
	caller := &replayCaller{byPlayer: map[int][]string{
		0: {"f2f3", "g2g4"},
		1: {"e7e5", "d8h4"},
	}}
	env := newTestEnv(t, caller)

	white := env.registerBot(t, "white", "CHESS")
	black := env.registerBot(t, "black", "CHESS")

	resp, raw := env.do(t, http.MethodPost, "/matches", map[string]any{
		"game": "CHESS", "bot_ids": []string{white, black},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create match: %d", resp.StatusCode)
	}
	var m domain.Match
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("decode match: %v", err)
	}
	if resp, _ := env.do(t, http.MethodPost, fmt.Sprintf("/matches/%s/execute", m.ID), nil); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("execute: %d", resp.StatusCode)
	}
	env.waitFinished(t, m.ID)

	// Ratings are written asynchronously with the match finish; poll.
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, raw = env.do(t, http.MethodGet, "/leaderboard/CHESS?limit=5", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("leaderboard: %d", resp.StatusCode)
		}
		var entries []struct {
			Rank   int    `json:"rank"`
			BotID  string `json:"bot_id"`
			Rating int    `json:"rating"`
		}
		if err := json.Unmarshal(raw, &entries); err != nil {
			t.Fatalf("decode leaderboard: %v", err)
		}
		if len(entries) == 2 {
			if entries[0].BotID != black || entries[0].Rank != 1 {
				t.Fatalf("winner not first: %+v", entries)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("leaderboard never populated: %+v", entries)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestStatusEndpoint(t *testing.T) {
	env := newTestEnv(t, &replayCaller{})

	resp, raw := env.do(t, http.MethodGet, "/status", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	var status struct {
		InFlight   int `json:"in_flight"`
		QueueDepth int `json:"queue_depth"`
	}
	if err := json.Unmarshal(raw, &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.InFlight != 0 || status.QueueDepth != 0 {
		t.Fatalf("idle status: %+v", status)
	}
}

func TestExecuteIsIdempotentOnFinishedMatch(t *testing.T) {
	caller := &replayCaller{byPlayer: map[int][]string{
		0: {"f2f3", "g2g4"},
		1: {"e7e5", "d8h4"},
	}}
	env := newTestEnv(t, caller)

	white := env.registerBot(t, "white", "CHESS")
	black := env.registerBot(t, "black", "CHESS")
	_, raw := env.do(t, http.MethodPost, "/matches", map[string]any{
		"game": "CHESS", "bot_ids": []string{white, black},
	})
	var m domain.Match
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("decode match: %v", err)
	}

	if resp, _ := env.do(t, http.MethodPost, "/matches/"+m.ID+"/execute", nil); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("first execute: %d", resp.StatusCode)
	}
	env.waitFinished(t, m.ID)

	resp, raw := env.do(t, http.MethodPost, "/matches/"+m.ID+"/execute", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("re-execute of finished match: %d %s", resp.StatusCode, raw)
	}
	var body struct {
		Queued bool `json:"queued"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Queued {
		t.Fatal("finished match was re-queued")
	}
}

func TestAbortRejectedOnTerminalMatch(t *testing.T) {
	caller := &replayCaller{byPlayer: map[int][]string{
		0: {"f2f3", "g2g4"},
		1: {"e7e5", "d8h4"},
	}}
	env := newTestEnv(t, caller)

	white := env.registerBot(t, "white", "CHESS")
	black := env.registerBot(t, "black", "CHESS")
	_, raw := env.do(t, http.MethodPost, "/matches", map[string]any{
		"game": "CHESS", "bot_ids": []string{white, black},
	})
	var m domain.Match
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("decode match: %v", err)
	}
	env.do(t, http.MethodPost, "/matches/"+m.ID+"/execute", nil)
	env.waitFinished(t, m.ID)

	resp, _ := env.do(t, http.MethodPost, "/matches/"+m.ID+"/abort", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("abort of finished match: %d, want 409", resp.StatusCode)
	}
}
