// Package server exposes the arena HTTP API: bot registry, match lifecycle
// and the leaderboard read path.
package server

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/botarena/arena-go/internal/domain"
	"github.com/botarena/arena-go/internal/game"
	"github.com/botarena/arena-go/internal/leaderboard"
	"github.com/botarena/arena-go/internal/obslog"
	"github.com/botarena/arena-go/internal/orchestrator"
	"github.com/botarena/arena-go/internal/store"
)

// pgnRenderer is implemented by engines that can export a game as PGN.
type pgnRenderer interface {
	PGN(raw []byte, white, black, result string) (string, error)
}

type Server struct {
	app   *fiber.App
	repo  store.Repository
	orc   *orchestrator.Orchestrator
	games *game.Registry
	board *leaderboard.Board
}

func New(repo store.Repository, orc *orchestrator.Orchestrator, games *game.Registry, board *leaderboard.Board) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           15 * time.Second,
	})
	s := &Server{app: app, repo: repo, orc: orc, games: games, board: board}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Post("/bots", s.handleRegisterBot)
	s.app.Get("/bots", s.handleListBots)
	s.app.Get("/bots/:id", s.handleGetBot)

	s.app.Post("/matches", s.handleCreateMatch)
	s.app.Post("/matches/:id/execute", s.handleExecuteMatch)
	s.app.Post("/matches/:id/abort", s.handleAbortMatch)
	s.app.Get("/matches/:id", s.handleGetMatch)
	s.app.Get("/matches/:id/moves", s.handleListMoves)
	s.app.Get("/matches/:id/legal-moves", s.handleLegalMoves)

	s.app.Get("/leaderboard/:game", s.handleLeaderboard)
	s.app.Get("/status", s.handleStatus)
}

// Listen blocks serving HTTP until Shutdown is called.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App { return s.app }

type registerBotRequest struct {
	Name     string   `json:"name"`
	Endpoint string   `json:"endpoint"`
	APIKey   string   `json:"api_key"`
	Games    []string `json:"games"`
}

func (s *Server) handleRegisterBot(c *fiber.Ctx) error {
	var req registerBotRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "malformed request body")
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Endpoint) == "" {
		return badRequest(c, "name and endpoint are required")
	}
	if len(req.Games) == 0 {
		return badRequest(c, "at least one game is required")
	}
	games := make([]domain.GameType, 0, len(req.Games))
	for _, g := range req.Games {
		gt, ok := domain.ParseGameType(g)
		if !ok {
			return badRequest(c, "unknown game: "+g)
		}
		games = append(games, gt)
	}

	bot := &domain.Bot{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(req.Name),
		Endpoint:  strings.TrimSpace(req.Endpoint),
		APIKey:    strings.TrimSpace(req.APIKey),
		Games:     games,
		Active:    true,
		CreatedAt: time.Now(),
	}
	if err := s.repo.InsertBot(c.Context(), bot); err != nil {
		return s.fail(c, err)
	}
	obslog.L().Info("bot_registered", zap.String("bot_id", bot.ID), zap.String("name", bot.Name))
	return c.Status(fiber.StatusCreated).JSON(bot)
}

func (s *Server) handleListBots(c *fiber.Ctx) error {
	onlyActive := strings.EqualFold(c.Query("active"), "true")
	bots, err := s.repo.ListBots(c.Context(), onlyActive)
	if err != nil {
		return s.fail(c, err)
	}
	if bots == nil {
		bots = []*domain.Bot{}
	}
	return c.JSON(bots)
}

func (s *Server) handleGetBot(c *fiber.Ctx) error {
	bot, err := s.repo.GetBot(c.Context(), c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(bot)
}

type createMatchRequest struct {
	Game   string   `json:"game"`
	BotIDs []string `json:"bot_ids"`
}

func (s *Server) handleCreateMatch(c *fiber.Ctx) error {
	var req createMatchRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "malformed request body")
	}
	gt, ok := domain.ParseGameType(req.Game)
	if !ok {
		return badRequest(c, "unknown game: "+req.Game)
	}
	if len(req.BotIDs) != 2 {
		return badRequest(c, "exactly two bot_ids are required")
	}
	if req.BotIDs[0] == req.BotIDs[1] {
		return badRequest(c, "a bot cannot play itself")
	}

	m, err := s.orc.CreateMatch(c.Context(), gt, req.BotIDs[0], req.BotIDs[1])
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(m)
}

// handleExecuteMatch is an idempotent trigger: re-triggering a match that is
// already running or already terminal is a no-op, not an error.
func (s *Server) handleExecuteMatch(c *fiber.Ctx) error {
	_, err := s.orc.Submit(c.Context(), c.Params("id"))
	switch {
	case err == nil:
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"queued": true})
	case errors.Is(err, orchestrator.ErrAlreadyRunning), errors.Is(err, orchestrator.ErrNotInProgress):
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"queued": false})
	default:
		return s.fail(c, err)
	}
}

func (s *Server) handleAbortMatch(c *fiber.Ctx) error {
	aborted, err := s.orc.AbortMatch(c.Context(), c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	if !aborted {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "match is already terminal"})
	}
	return c.JSON(fiber.Map{"aborted": true})
}

type matchResponse struct {
	*domain.Match
	PGN string `json:"pgn,omitempty"`
}

func (s *Server) handleGetMatch(c *fiber.Ctx) error {
	m, err := s.repo.GetMatch(c.Context(), c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	resp := matchResponse{Match: m}
	if m.Status == domain.MatchFinished {
		resp.PGN = s.renderPGN(c, m)
	}
	return c.JSON(resp)
}

// renderPGN is best effort; a PGN problem never hides the match itself.
func (s *Server) renderPGN(c *fiber.Ctx, m *domain.Match) string {
	engine, err := s.games.Engine(m.Game)
	if err != nil {
		return ""
	}
	renderer, ok := engine.(pgnRenderer)
	if !ok {
		return ""
	}
	gs, err := s.repo.GetGameState(c.Context(), m.ID)
	if err != nil {
		return ""
	}
	white, black := s.participantName(c, m, 0), s.participantName(c, m, 1)
	pgn, err := renderer.PGN(gs.Encoded, white, black, pgnResult(m))
	if err != nil {
		obslog.L().Warn("pgn_render_failed", zap.String("match_id", m.ID), zap.Error(err))
		return ""
	}
	return pgn
}

func (s *Server) participantName(c *fiber.Ctx, m *domain.Match, idx int) string {
	p := m.ParticipantAt(idx)
	if p == nil {
		return "?"
	}
	bot, err := s.repo.GetBot(c.Context(), p.BotID)
	if err != nil {
		return p.BotID
	}
	return bot.Name
}

func pgnResult(m *domain.Match) string {
	p0, p1 := m.ParticipantAt(0), m.ParticipantAt(1)
	if p0 == nil || p1 == nil || p0.Score == nil || p1.Score == nil {
		return "*"
	}
	switch {
	case *p0.Score == 1.0:
		return "1-0"
	case *p1.Score == 1.0:
		return "0-1"
	default:
		return "1/2-1/2"
	}
}

func (s *Server) handleListMoves(c *fiber.Ctx) error {
	if _, err := s.repo.GetMatch(c.Context(), c.Params("id")); err != nil {
		return s.fail(c, err)
	}
	moves, err := s.repo.ListMoves(c.Context(), c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	if moves == nil {
		moves = []*domain.MatchMove{}
	}
	return c.JSON(moves)
}

func (s *Server) handleLegalMoves(c *fiber.Ctx) error {
	legal, err := s.orc.LegalMoves(c.Context(), c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	if legal == nil {
		legal = []string{}
	}
	return c.JSON(fiber.Map{"legal_moves": legal})
}

func (s *Server) handleLeaderboard(c *fiber.Ctx) error {
	gt, ok := domain.ParseGameType(c.Params("game"))
	if !ok {
		return badRequest(c, "unknown game: "+c.Params("game"))
	}
	limit := c.QueryInt("limit", 10)

	if s.board != nil {
		entries, err := s.board.Top(c.Context(), gt, limit)
		if err == nil {
			return c.JSON(entries)
		}
		obslog.L().Warn("leaderboard_read_failed", zap.String("game", string(gt)), zap.Error(err))
	}

	// Fall back to the primary store when Redis is absent or unhealthy.
	rows, err := s.repo.TopRatings(c.Context(), gt, limit)
	if err != nil {
		return s.fail(c, err)
	}
	entries := make([]leaderboard.Entry, 0, len(rows))
	for i, r := range rows {
		entries = append(entries, leaderboard.Entry{
			Rank:          i + 1,
			BotID:         r.BotID,
			Rating:        r.Rating,
			MatchesPlayed: r.MatchesPlayed,
		})
	}
	return c.JSON(entries)
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"in_flight":   s.orc.InFlight(),
		"queue_depth": s.orc.QueueDepth(),
		"games":       s.games.Games(),
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

// fail maps domain and store errors onto HTTP statuses.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, store.ErrBotNotFound),
		errors.Is(err, store.ErrMatchNotFound),
		errors.Is(err, store.ErrStateNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, store.ErrDuplicateBot),
		errors.Is(err, orchestrator.ErrAlreadyRunning),
		errors.Is(err, orchestrator.ErrNotInProgress):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, orchestrator.ErrBotInactive),
		errors.Is(err, orchestrator.ErrGameNotPlayed),
		errors.Is(err, game.ErrUnknownGameType):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, orchestrator.ErrQueueFull):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	default:
		obslog.L().Error("request_failed", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
}
