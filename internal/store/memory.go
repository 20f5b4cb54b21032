// internal/store/memory.go
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dpayne5/skatevs/internal/models"
)

// MemoryStore is an in-process Store used by tests and local development.
// Sessions are deep-copied on every read and write so a mutator error or a
// concurrent reader can never observe a half-applied change.
type MemoryStore struct {
	mu      sync.Mutex
	games   map[uuid.UUID]*models.GameSession
	battles map[uuid.UUID]*models.BattleSession
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		games:   make(map[uuid.UUID]*models.GameSession),
		battles: make(map[uuid.UUID]*models.BattleSession),
	}
}

func (s *MemoryStore) CreateGame(ctx context.Context, g *models.GameSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.games[g.ID]; exists {
		return fmt.Errorf("game %s already exists", g.ID)
	}
	cp, err := copyGame(g)
	if err != nil {
		return err
	}
	s.games[g.ID] = cp
	return nil
}

func (s *MemoryStore) GetGame(ctx context.Context, id uuid.UUID) (*models.GameSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyGame(g)
}

func (s *MemoryStore) UpdateGame(ctx context.Context, id uuid.UUID, fn func(*models.GameSession) error) (*models.GameSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[id]
	if !ok {
		return nil, ErrNotFound
	}
	// Mutate a copy; commit only if the mutator succeeds.
	cp, err := copyGame(g)
	if err != nil {
		return nil, err
	}
	if err := fn(cp); err != nil {
		return nil, err
	}
	cp.UpdatedAt = time.Now()
	s.games[id] = cp
	return copyGame(cp)
}

func (s *MemoryStore) CreateBattle(ctx context.Context, b *models.BattleSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.battles[b.ID]; exists {
		return fmt.Errorf("battle %s already exists", b.ID)
	}
	cp, err := copyBattle(b)
	if err != nil {
		return err
	}
	s.battles[b.ID] = cp
	return nil
}

func (s *MemoryStore) GetBattle(ctx context.Context, id uuid.UUID) (*models.BattleSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.battles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyBattle(b)
}

func (s *MemoryStore) UpdateBattle(ctx context.Context, id uuid.UUID, fn func(*models.BattleSession) error) (*models.BattleSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.battles[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp, err := copyBattle(b)
	if err != nil {
		return nil, err
	}
	if err := fn(cp); err != nil {
		return nil, err
	}
	cp.UpdatedAt = time.Now()
	s.battles[id] = cp
	return copyBattle(cp)
}

func (s *MemoryStore) SweepGameDeadlines(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uuid.UUID
	for id, g := range s.games {
		if g.Status == models.GameActive && g.VoteDeadline != nil && !g.VoteDeadline.After(now) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func copyGame(g *models.GameSession) (*models.GameSession, error) {
	raw, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("copy game session: %w", err)
	}
	var cp models.GameSession
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, fmt.Errorf("copy game session: %w", err)
	}
	return &cp, nil
}

func copyBattle(b *models.BattleSession) (*models.BattleSession, error) {
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("copy battle session: %w", err)
	}
	var cp models.BattleSession
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, fmt.Errorf("copy battle session: %w", err)
	}
	return &cp, nil
}
