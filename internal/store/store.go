// internal/store/store.go
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dpayne5/skatevs/internal/models"
)

// ErrNotFound is returned when a session id does not exist.
var ErrNotFound = errors.New("session not found")

// ErrConflict is returned by Update* once the bounded retry on write
// contention is exhausted.
var ErrConflict = errors.New("session write conflict")

// Store is the transactional session store the engines mutate through.
//
// UpdateGame and UpdateBattle run the mutator against the current session
// state inside a per-key serializable read-modify-write. The mutator returning
// an error aborts the update with no visible change; write conflicts are
// retried internally a bounded number of times. Engines hold no in-process
// locks and rely entirely on this contract for linearization.
type Store interface {
	CreateGame(ctx context.Context, g *models.GameSession) error
	GetGame(ctx context.Context, id uuid.UUID) (*models.GameSession, error)
	UpdateGame(ctx context.Context, id uuid.UUID, fn func(*models.GameSession) error) (*models.GameSession, error)

	CreateBattle(ctx context.Context, b *models.BattleSession) error
	GetBattle(ctx context.Context, id uuid.UUID) (*models.BattleSession, error)
	UpdateBattle(ctx context.Context, id uuid.UUID, fn func(*models.BattleSession) error) (*models.BattleSession, error)

	// SweepGameDeadlines returns ids of active games whose vote deadline has
	// elapsed as of now. The caller re-checks phase and deadline inside the
	// transactional update, so a stale result here is harmless.
	SweepGameDeadlines(ctx context.Context, now time.Time) ([]uuid.UUID, error)
}
