package archive

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/park285/Cheese-LLMChess-bot/internal/domain"
)

// memrepo is an in-memory repository used when no DB is configured.
type memrepo struct {
	mu sync.RWMutex

	nextID int64

	gamesByID    map[int64]*domain.ChessGame
	gamesByUser  map[string][]*domain.ChessGame // playerHash -> games, latest last
	gamesByIndex map[string]*domain.ChessGame   // sessionUUID|playerHash -> game

	profiles map[string]*domain.ChessProfile // playerHash|roomHash -> profile
}

func NewMemoryRepository() Repository {
	return &memrepo{
		gamesByID:    make(map[int64]*domain.ChessGame),
		gamesByUser:  make(map[string][]*domain.ChessGame),
		gamesByIndex: make(map[string]*domain.ChessGame),
		profiles:     make(map[string]*domain.ChessProfile),
	}
}

func (m *memrepo) InsertGame(ctx context.Context, game *domain.ChessGame) (int64, error) {
	if game == nil {
		return 0, ErrDuplicateGame
	}

	key := m.sessionKey(game.SessionUUID, game.PlayerHash)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.gamesByIndex[key]; exists {
		return 0, ErrDuplicateGame
	}

	m.nextID++
	stored := cloneGame(game)
	stored.ID = m.nextID

	m.gamesByID[stored.ID] = stored
	m.gamesByIndex[key] = stored
	m.gamesByUser[game.PlayerHash] = append(m.gamesByUser[game.PlayerHash], stored)

	return stored.ID, nil
}

func (m *memrepo) GetRecentGames(ctx context.Context, playerHash string, limit int) ([]*domain.ChessGame, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.gamesByUser[playerHash]
	if len(list) == 0 {
		return []*domain.ChessGame{}, nil
	}
	items := make([]*domain.ChessGame, 0, len(list))
	for _, g := range list {
		items = append(items, cloneGame(g))
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].EndedAt.Equal(items[j].EndedAt) {
			return items[i].EndedAt.After(items[j].EndedAt)
		}
		return items[i].ID > items[j].ID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *memrepo) GetGame(ctx context.Context, id int64, playerHash string) (*domain.ChessGame, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.gamesByID[id]
	if !ok || g == nil || g.PlayerHash != playerHash {
		return nil, nil
	}
	return cloneGame(g), nil
}

func (m *memrepo) GetGameBySession(ctx context.Context, sessionUUID string, playerHash string) (*domain.ChessGame, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if g, ok := m.gamesByIndex[m.sessionKey(sessionUUID, playerHash)]; ok && g != nil {
		return cloneGame(g), nil
	}
	return nil, nil
}

func (m *memrepo) GetProfile(ctx context.Context, playerHash string, roomHash string) (*domain.ChessProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.profiles[m.profileKey(playerHash, roomHash)]; ok && p != nil {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (m *memrepo) UpsertProfile(ctx context.Context, profile *domain.ChessProfile) error {
	if profile == nil {
		return nil
	}
	cp := *profile
	key := m.profileKey(profile.PlayerHash, profile.RoomHash)
	m.mu.Lock()
	m.profiles[key] = &cp
	m.mu.Unlock()
	return nil
}

func (m *memrepo) sessionKey(sessionUUID, playerHash string) string {
	return strings.TrimSpace(sessionUUID) + "|" + strings.TrimSpace(playerHash)
}

func (m *memrepo) profileKey(playerHash, roomHash string) string {
	return strings.TrimSpace(playerHash) + "|" + strings.TrimSpace(roomHash)
}

func cloneGame(g *domain.ChessGame) *domain.ChessGame {
	cp := *g
	cp.MovesUCI = append([]string(nil), g.MovesUCI...)
	cp.MovesSAN = append([]string(nil), g.MovesSAN...)
	return &cp
}
