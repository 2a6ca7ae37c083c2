package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/botarena/arena-go/internal/domain"
)

// memrepo is an in-memory Repository used when no database is configured and
// throughout the test suite.
type memrepo struct {
	mu sync.RWMutex

	nextMoveID int64

	bots    map[string]*domain.Bot
	matches map[string]*domain.Match
	states  map[string]*domain.GameState   // matchID -> state
	moves   map[string][]*domain.MatchMove // matchID -> append-only
	ratings map[string]*domain.BotRating   // botID|game|scope -> rating
	history []*domain.RatingHistory
}

func NewMemoryRepository() Repository {
	return &memrepo{
		bots:    make(map[string]*domain.Bot),
		matches: make(map[string]*domain.Match),
		states:  make(map[string]*domain.GameState),
		moves:   make(map[string][]*domain.MatchMove),
		ratings: make(map[string]*domain.BotRating),
	}
}

func (m *memrepo) InsertBot(ctx context.Context, bot *domain.Bot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.bots[bot.ID]; exists {
		return ErrDuplicateBot
	}
	cp := *bot
	m.bots[bot.ID] = &cp
	return nil
}

func (m *memrepo) GetBot(ctx context.Context, id string) (*domain.Bot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bots[id]
	if !ok {
		return nil, ErrBotNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memrepo) ListBots(ctx context.Context, onlyActive bool) ([]*domain.Bot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Bot, 0, len(m.bots))
	for _, b := range m.bots {
		if onlyActive && !b.Active {
			continue
		}
		cp := *b
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memrepo) InsertMatch(ctx context.Context, match *domain.Match, gs *domain.GameState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mc := copyMatch(match)
	sc := copyState(gs)
	m.matches[match.ID] = mc
	m.states[match.ID] = sc
	return nil
}

func (m *memrepo) GetMatch(ctx context.Context, id string) (*domain.Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	match, ok := m.matches[id]
	if !ok {
		return nil, ErrMatchNotFound
	}
	return copyMatch(match), nil
}

func (m *memrepo) UpdateMatch(ctx context.Context, match *domain.Match) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.matches[match.ID]; !ok {
		return ErrMatchNotFound
	}
	m.matches[match.ID] = copyMatch(match)
	return nil
}

func (m *memrepo) MarkAborted(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	match, ok := m.matches[id]
	if !ok {
		return false, ErrMatchNotFound
	}
	if match.Status != domain.MatchInProgress {
		return false, nil
	}
	match.Status = domain.MatchAborted
	now := time.Now()
	match.FinishedAt = &now
	return true, nil
}

func (m *memrepo) GetGameState(ctx context.Context, matchID string) (*domain.GameState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	gs, ok := m.states[matchID]
	if !ok {
		return nil, ErrStateNotFound
	}
	return copyState(gs), nil
}

func (m *memrepo) SaveMoveAndState(ctx context.Context, gs *domain.GameState, mv *domain.MatchMove) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.states[gs.MatchID]; !ok {
		return ErrStateNotFound
	}
	m.nextMoveID++
	mc := *mv
	mc.ID = m.nextMoveID
	if mc.CreatedAt.IsZero() {
		mc.CreatedAt = time.Now()
	}
	m.states[gs.MatchID] = copyState(gs)
	m.moves[gs.MatchID] = append(m.moves[gs.MatchID], &mc)
	return nil
}

func (m *memrepo) ListMoves(ctx context.Context, matchID string) ([]*domain.MatchMove, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.moves[matchID]
	out := make([]*domain.MatchMove, 0, len(list))
	for _, mv := range list {
		cp := *mv
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memrepo) GetRating(ctx context.Context, botID string, game domain.GameType, scope *string) (*domain.BotRating, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.ratings[ratingKey(botID, game, scope)]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *memrepo) SaveRatingUpdate(ctx context.Context, ratings [2]*domain.BotRating, history [2]*domain.RatingHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range ratings {
		cp := *r
		cp.UpdatedAt = time.Now()
		m.ratings[ratingKey(r.BotID, r.Game, r.Scope)] = &cp
	}
	for _, h := range history {
		cp := *h
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = time.Now()
		}
		m.history = append(m.history, &cp)
	}
	return nil
}

func (m *memrepo) TopRatings(ctx context.Context, game domain.GameType, limit int) ([]*domain.BotRating, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.BotRating, 0)
	for _, r := range m.ratings {
		if r.Game != game || r.Scope != nil {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rating != out[j].Rating {
			return out[i].Rating > out[j].Rating
		}
		return out[i].BotID < out[j].BotID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RatingHistoryForTests exposes the append-only history so tests can assert
// on audit rows without widening the Repository contract.
func (m *memrepo) RatingHistoryForTests() []*domain.RatingHistory {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.RatingHistory, 0, len(m.history))
	for _, h := range m.history {
		cp := *h
		out = append(out, &cp)
	}
	return out
}

func copyMatch(m *domain.Match) *domain.Match {
	cp := *m
	cp.Participants = make([]domain.Participant, len(m.Participants))
	for i, p := range m.Participants {
		cp.Participants[i] = p
		if p.Score != nil {
			s := *p.Score
			cp.Participants[i].Score = &s
		}
	}
	return &cp
}

func copyState(gs *domain.GameState) *domain.GameState {
	cp := *gs
	cp.Encoded = append([]byte(nil), gs.Encoded...)
	return &cp
}

func ratingKey(botID string, game domain.GameType, scope *string) string {
	s := ""
	if scope != nil {
		s = *scope
	}
	return botID + "|" + string(game) + "|" + s
}
