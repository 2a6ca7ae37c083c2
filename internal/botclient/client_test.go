package botclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/botarena/arena-go/internal/domain"
	"github.com/botarena/arena-go/pkg/botapi"
)

func testRequest() *botapi.MoveRequest {
	return &botapi.MoveRequest{
		MatchID:     "m-1",
		Game:        string(domain.GameChess),
		PlayerIndex: 0,
		State:       botapi.StatePayload{FEN: "startpos"},
		LegalMoves:  []string{"e2e4"},
	}
}

func TestRequestMoveSuccess(t *testing.T) {
	var gotMatchHeader, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMatchHeader = r.Header.Get("X-Match-Id")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"move":"e2e4"}`))
	}))
	defer srv.Close()

	c := NewClient(WithReadTimeout(2 * time.Second))
	bot := &domain.Bot{ID: "b-1", Endpoint: srv.URL, APIKey: "secret"}
	resp, err := c.RequestMove(context.Background(), bot, testRequest())
	if err != nil {
		t.Fatalf("RequestMove: %v", err)
	}
	if resp.Move != "e2e4" {
		t.Fatalf("move %q, want e2e4", resp.Move)
	}
	if gotMatchHeader != "m-1" {
		t.Fatalf("X-Match-Id header %q", gotMatchHeader)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("Authorization header %q", gotAuth)
	}
}

func TestRequestMoveNon2xxIsConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(WithReadTimeout(2 * time.Second))
	_, err := c.RequestMove(context.Background(), &domain.Bot{Endpoint: srv.URL}, testRequest())
	cf, ok := AsCommFailure(err)
	if !ok || cf.Reason != ReasonConnectionError {
		t.Fatalf("expected CONNECTION_ERROR, got %v", err)
	}
}

func TestRequestMoveMalformedBodyIsConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := NewClient(WithReadTimeout(2 * time.Second))
	_, err := c.RequestMove(context.Background(), &domain.Bot{Endpoint: srv.URL}, testRequest())
	cf, ok := AsCommFailure(err)
	if !ok || cf.Reason != ReasonConnectionError {
		t.Fatalf("expected CONNECTION_ERROR, got %v", err)
	}
}

func TestRequestMoveBlankMoveIsInvalidResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"move":"   "}`))
	}))
	defer srv.Close()

	c := NewClient(WithReadTimeout(2 * time.Second))
	_, err := c.RequestMove(context.Background(), &domain.Bot{Endpoint: srv.URL}, testRequest())
	cf, ok := AsCommFailure(err)
	if !ok || cf.Reason != ReasonInvalidResponse {
		t.Fatalf("expected INVALID_RESPONSE, got %v", err)
	}
}

func TestRequestMoveSlowBotIsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		_, _ = w.Write([]byte(`{"move":"e2e4"}`))
	}))
	defer srv.Close()

	c := NewClient(WithReadTimeout(50 * time.Millisecond))
	_, err := c.RequestMove(context.Background(), &domain.Bot{Endpoint: srv.URL}, testRequest())
	cf, ok := AsCommFailure(err)
	if !ok || cf.Reason != ReasonTimeout {
		t.Fatalf("expected TIMEOUT, got %v", err)
	}
}
