package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/botarena/arena-go/internal/domain"
)

type postgres struct {
	db *sql.DB
}

// NewPostgresRepository opens the connection pool and verifies connectivity.
func NewPostgresRepository(databaseURL string) (Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	r := &postgres{db: db}
	if err := r.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *postgres) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS bots (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	endpoint    TEXT NOT NULL,
	api_key     TEXT NOT NULL DEFAULT '',
	games       JSONB NOT NULL,
	active      BOOLEAN NOT NULL DEFAULT TRUE,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS matches (
	id             TEXT PRIMARY KEY,
	game           TEXT NOT NULL,
	status         TEXT NOT NULL,
	forfeit_reason TEXT NOT NULL DEFAULT '',
	started_at     TIMESTAMPTZ NOT NULL,
	finished_at    TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS participants (
	match_id     TEXT NOT NULL REFERENCES matches(id) ON DELETE CASCADE,
	bot_id       TEXT NOT NULL REFERENCES bots(id),
	player_index INT  NOT NULL,
	score        DOUBLE PRECISION,
	PRIMARY KEY (match_id, player_index)
);

CREATE TABLE IF NOT EXISTS game_states (
	match_id   TEXT PRIMARY KEY REFERENCES matches(id) ON DELETE CASCADE,
	game       TEXT NOT NULL,
	encoded    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS match_moves (
	id           BIGSERIAL PRIMARY KEY,
	match_id     TEXT NOT NULL REFERENCES matches(id) ON DELETE CASCADE,
	player_index INT  NOT NULL,
	notation     TEXT NOT NULL,
	from_square  TEXT NOT NULL DEFAULT '',
	to_square    TEXT NOT NULL DEFAULT '',
	promotion    TEXT NOT NULL DEFAULT '',
	col          INT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_match_moves_match ON match_moves(match_id, id);

CREATE TABLE IF NOT EXISTS bot_ratings (
	id             TEXT PRIMARY KEY,
	bot_id         TEXT NOT NULL REFERENCES bots(id),
	game           TEXT NOT NULL,
	scope          TEXT,
	rating         INT NOT NULL DEFAULT 1200,
	matches_played INT NOT NULL DEFAULT 0,
	wins           INT NOT NULL DEFAULT 0,
	losses         INT NOT NULL DEFAULT 0,
	draws          INT NOT NULL DEFAULT 0,
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_bot_ratings_key
	ON bot_ratings(bot_id, game, COALESCE(scope, ''));

CREATE TABLE IF NOT EXISTS rating_history (
	id              TEXT PRIMARY KEY,
	rating_id       TEXT NOT NULL REFERENCES bot_ratings(id),
	match_id        TEXT NOT NULL,
	old_rating      INT NOT NULL,
	new_rating      INT NOT NULL,
	rating_change   INT NOT NULL,
	opponent_bot_id TEXT NOT NULL,
	opponent_rating INT NOT NULL,
	result          TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

func (r *postgres) ensureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (r *postgres) InsertBot(ctx context.Context, bot *domain.Bot) error {
	games, err := json.Marshal(bot.Games)
	if err != nil {
		return fmt.Errorf("marshal bot games: %w", err)
	}
	const q = `
		INSERT INTO bots (id, name, endpoint, api_key, games, active, created_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7)
		ON CONFLICT (id) DO NOTHING`
	res, err := r.db.ExecContext(ctx, q, bot.ID, bot.Name, bot.Endpoint, bot.APIKey, games, bot.Active, bot.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert bot: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDuplicateBot
	}
	return nil
}

func (r *postgres) GetBot(ctx context.Context, id string) (*domain.Bot, error) {
	const q = `
		SELECT id, name, endpoint, api_key, games, active, created_at
		FROM bots WHERE id = $1`
	var (
		bot       domain.Bot
		gamesJSON []byte
	)
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&bot.ID, &bot.Name, &bot.Endpoint, &bot.APIKey, &gamesJSON, &bot.Active, &bot.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select bot: %w", err)
	}
	if err := json.Unmarshal(gamesJSON, &bot.Games); err != nil {
		return nil, fmt.Errorf("unmarshal bot games: %w", err)
	}
	return &bot, nil
}

func (r *postgres) ListBots(ctx context.Context, onlyActive bool) ([]*domain.Bot, error) {
	q := `SELECT id, name, endpoint, api_key, games, active, created_at FROM bots`
	if onlyActive {
		q += ` WHERE active`
	}
	q += ` ORDER BY name`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("select bots: %w", err)
	}
	defer rows.Close()

	var out []*domain.Bot
	for rows.Next() {
		var (
			bot       domain.Bot
			gamesJSON []byte
		)
		if err := rows.Scan(&bot.ID, &bot.Name, &bot.Endpoint, &bot.APIKey, &gamesJSON, &bot.Active, &bot.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan bot: %w", err)
		}
		if err := json.Unmarshal(gamesJSON, &bot.Games); err != nil {
			return nil, fmt.Errorf("unmarshal bot games: %w", err)
		}
		out = append(out, &bot)
	}
	return out, rows.Err()
}

func (r *postgres) InsertMatch(ctx context.Context, m *domain.Match, gs *domain.GameState) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert match: %w", err)
	}
	defer tx.Rollback()

	const qm = `
		INSERT INTO matches (id, game, status, forfeit_reason, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := tx.ExecContext(ctx, qm, m.ID, m.Game, m.Status, m.ForfeitReason, m.StartedAt, m.FinishedAt); err != nil {
		return fmt.Errorf("insert match: %w", err)
	}

	const qp = `
		INSERT INTO participants (match_id, bot_id, player_index, score)
		VALUES ($1, $2, $3, $4)`
	for _, p := range m.Participants {
		if _, err := tx.ExecContext(ctx, qp, m.ID, p.BotID, p.PlayerIndex, p.Score); err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
	}

	const qs = `
		INSERT INTO game_states (match_id, game, encoded, updated_at)
		VALUES ($1, $2, $3::jsonb, $4)`
	if _, err := tx.ExecContext(ctx, qs, gs.MatchID, gs.Game, gs.Encoded, time.Now()); err != nil {
		return fmt.Errorf("insert game state: %w", err)
	}

	return tx.Commit()
}

func (r *postgres) GetMatch(ctx context.Context, id string) (*domain.Match, error) {
	const q = `
		SELECT id, game, status, forfeit_reason, started_at, finished_at
		FROM matches WHERE id = $1`
	var (
		m          domain.Match
		finishedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&m.ID, &m.Game, &m.Status, &m.ForfeitReason, &m.StartedAt, &finishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select match: %w", err)
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		m.FinishedAt = &t
	}

	const qp = `
		SELECT match_id, bot_id, player_index, score
		FROM participants WHERE match_id = $1 ORDER BY player_index`
	rows, err := r.db.QueryContext(ctx, qp, id)
	if err != nil {
		return nil, fmt.Errorf("select participants: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			p     domain.Participant
			score sql.NullFloat64
		)
		if err := rows.Scan(&p.MatchID, &p.BotID, &p.PlayerIndex, &score); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		if score.Valid {
			s := score.Float64
			p.Score = &s
		}
		m.Participants = append(m.Participants, p)
	}
	return &m, rows.Err()
}

func (r *postgres) UpdateMatch(ctx context.Context, m *domain.Match) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update match: %w", err)
	}
	defer tx.Rollback()

	const qm = `
		UPDATE matches
		SET status = $2, forfeit_reason = $3, finished_at = $4
		WHERE id = $1`
	res, err := tx.ExecContext(ctx, qm, m.ID, m.Status, m.ForfeitReason, m.FinishedAt)
	if err != nil {
		return fmt.Errorf("update match: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrMatchNotFound
	}

	const qp = `
		UPDATE participants SET score = $3
		WHERE match_id = $1 AND player_index = $2`
	for _, p := range m.Participants {
		if _, err := tx.ExecContext(ctx, qp, m.ID, p.PlayerIndex, p.Score); err != nil {
			return fmt.Errorf("update participant score: %w", err)
		}
	}
	return tx.Commit()
}

func (r *postgres) MarkAborted(ctx context.Context, id string) (bool, error) {
	const q = `
		UPDATE matches
		SET status = $2, finished_at = NOW()
		WHERE id = $1 AND status = $3`
	res, err := r.db.ExecContext(ctx, q, id, domain.MatchAborted, domain.MatchInProgress)
	if err != nil {
		return false, fmt.Errorf("abort match: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		// Distinguish a terminal match from a missing one.
		if _, gerr := r.GetMatch(ctx, id); gerr != nil {
			return false, gerr
		}
		return false, nil
	}
	return true, nil
}

func (r *postgres) GetGameState(ctx context.Context, matchID string) (*domain.GameState, error) {
	const q = `
		SELECT match_id, game, encoded, updated_at
		FROM game_states WHERE match_id = $1`
	var gs domain.GameState
	err := r.db.QueryRowContext(ctx, q, matchID).Scan(&gs.MatchID, &gs.Game, &gs.Encoded, &gs.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select game state: %w", err)
	}
	return &gs, nil
}

func (r *postgres) SaveMoveAndState(ctx context.Context, gs *domain.GameState, mv *domain.MatchMove) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save move: %w", err)
	}
	defer tx.Rollback()

	const qs = `
		UPDATE game_states
		SET encoded = $2::jsonb, updated_at = NOW()
		WHERE match_id = $1`
	res, err := tx.ExecContext(ctx, qs, gs.MatchID, gs.Encoded)
	if err != nil {
		return fmt.Errorf("update game state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStateNotFound
	}

	const qm = `
		INSERT INTO match_moves (match_id, player_index, notation, from_square, to_square, promotion, col, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`
	if _, err := tx.ExecContext(ctx, qm, mv.MatchID, mv.PlayerIndex, mv.Notation, mv.FromSquare, mv.ToSquare, mv.Promotion, mv.Column); err != nil {
		return fmt.Errorf("insert match move: %w", err)
	}
	return tx.Commit()
}

func (r *postgres) ListMoves(ctx context.Context, matchID string) ([]*domain.MatchMove, error) {
	const q = `
		SELECT id, match_id, player_index, notation, from_square, to_square, promotion, col, created_at
		FROM match_moves WHERE match_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, matchID)
	if err != nil {
		return nil, fmt.Errorf("select match moves: %w", err)
	}
	defer rows.Close()

	var out []*domain.MatchMove
	for rows.Next() {
		var (
			mv  domain.MatchMove
			col sql.NullInt64
		)
		if err := rows.Scan(&mv.ID, &mv.MatchID, &mv.PlayerIndex, &mv.Notation, &mv.FromSquare, &mv.ToSquare, &mv.Promotion, &col, &mv.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan match move: %w", err)
		}
		if col.Valid {
			c := int(col.Int64)
			mv.Column = &c
		}
		out = append(out, &mv)
	}
	return out, rows.Err()
}

func (r *postgres) GetRating(ctx context.Context, botID string, game domain.GameType, scope *string) (*domain.BotRating, error) {
	const q = `
		SELECT id, bot_id, game, scope, rating, matches_played, wins, losses, draws, updated_at
		FROM bot_ratings
		WHERE bot_id = $1 AND game = $2 AND COALESCE(scope, '') = COALESCE($3, '')`
	var (
		rating domain.BotRating
		sc     sql.NullString
	)
	err := r.db.QueryRowContext(ctx, q, botID, game, scope).Scan(
		&rating.ID, &rating.BotID, &rating.Game, &sc,
		&rating.Rating, &rating.MatchesPlayed, &rating.Wins, &rating.Losses, &rating.Draws,
		&rating.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select bot rating: %w", err)
	}
	if sc.Valid {
		s := sc.String
		rating.Scope = &s
	}
	return &rating, nil
}

func (r *postgres) SaveRatingUpdate(ctx context.Context, ratings [2]*domain.BotRating, history [2]*domain.RatingHistory) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rating update: %w", err)
	}
	defer tx.Rollback()

	const qh = `
		INSERT INTO rating_history (id, rating_id, match_id, old_rating, new_rating, rating_change, opponent_bot_id, opponent_rating, result, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())`
	for _, h := range history {
		if _, err := tx.ExecContext(ctx, qh, h.ID, h.RatingID, h.MatchID, h.OldRating, h.NewRating, h.RatingChange, h.OpponentBotID, h.OpponentRating, h.Result); err != nil {
			return fmt.Errorf("insert rating history: %w", err)
		}
	}

	const qr = `
		INSERT INTO bot_ratings (id, bot_id, game, scope, rating, matches_played, wins, losses, draws, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (bot_id, game, COALESCE(scope, '')) DO UPDATE SET
			rating = EXCLUDED.rating,
			matches_played = EXCLUDED.matches_played,
			wins = EXCLUDED.wins,
			losses = EXCLUDED.losses,
			draws = EXCLUDED.draws,
			updated_at = NOW()`
	for _, rt := range ratings {
		if _, err := tx.ExecContext(ctx, qr, rt.ID, rt.BotID, rt.Game, rt.Scope, rt.Rating, rt.MatchesPlayed, rt.Wins, rt.Losses, rt.Draws); err != nil {
			return fmt.Errorf("upsert bot rating: %w", err)
		}
	}
	return tx.Commit()
}

func (r *postgres) TopRatings(ctx context.Context, game domain.GameType, limit int) ([]*domain.BotRating, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
		SELECT id, bot_id, game, scope, rating, matches_played, wins, losses, draws, updated_at
		FROM bot_ratings
		WHERE game = $1 AND scope IS NULL
		ORDER BY rating DESC, bot_id
		LIMIT $2`
	rows, err := r.db.QueryContext(ctx, q, game, limit)
	if err != nil {
		return nil, fmt.Errorf("select top ratings: %w", err)
	}
	defer rows.Close()

	var out []*domain.BotRating
	for rows.Next() {
		var (
			rating domain.BotRating
			sc     sql.NullString
		)
		if err := rows.Scan(&rating.ID, &rating.BotID, &rating.Game, &sc, &rating.Rating, &rating.MatchesPlayed, &rating.Wins, &rating.Losses, &rating.Draws, &rating.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan bot rating: %w", err)
		}
		if sc.Valid {
			s := sc.String
			rating.Scope = &s
		}
		out = append(out, &rating)
	}
	return out, rows.Err()
}
