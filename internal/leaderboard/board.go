// Package leaderboard caches per-game standings in Redis sorted sets so the
// read path never touches the primary store.
package leaderboard

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/botarena/arena-go/internal/domain"
)

// Entry is one leaderboard row as served to clients.
type Entry struct {
	Rank          int    `json:"rank"`
	BotID         string `json:"bot_id"`
	Rating        int    `json:"rating"`
	MatchesPlayed int    `json:"matches_played,omitempty"`
}

type Board struct {
	rdb *redis.Client
}

// NewBoard connects to Redis and verifies the connection.
func NewBoard(redisURL string) (*Board, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for leaderboard")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Board{rdb: rdb}, nil
}

// NewBoardWithClient wraps an existing client. Used in tests.
func NewBoardWithClient(rdb *redis.Client) *Board {
	return &Board{rdb: rdb}
}

func (b *Board) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}

func boardKey(game domain.GameType) string {
	return "lb:" + strings.ToLower(string(game))
}

// Refresh replaces the sorted set for a game with the given standings.
func (b *Board) Refresh(ctx context.Context, game domain.GameType, rows []*domain.BotRating) error {
	key := boardKey(game)
	members := make([]redis.Z, 0, len(rows))
	for _, r := range rows {
		members = append(members, redis.Z{Score: float64(r.Rating), Member: r.BotID})
	}
	pipe := b.rdb.TxPipeline()
	pipe.Del(ctx, key)
	if len(members) > 0 {
		pipe.ZAdd(ctx, key, members...)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Top returns the highest-rated bots for a game, best first.
func (b *Board) Top(ctx context.Context, game domain.GameType, n int) ([]Entry, error) {
	if n <= 0 {
		n = 10
	}
	zs, err := b.rdb.ZRevRangeWithScores(ctx, boardKey(game), 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(zs))
	for i, z := range zs {
		botID, _ := z.Member.(string)
		out = append(out, Entry{Rank: i + 1, BotID: botID, Rating: int(z.Score)})
	}
	return out, nil
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
