// internal/store/postgres.go
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dpayne5/skatevs/internal/models"
)

// maxUpdateRetries bounds the internal retry loop on write contention.
const maxUpdateRetries = 3

// PostgresStore persists sessions as JSONB rows. Each update runs inside a
// transaction that locks the row, so all mutations to one session id are
// linearized by the database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects a pool and verifies it with a ping.
func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the underlying pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Migrate creates the session tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS game_sessions (
			id UUID PRIMARY KEY,
			status TEXT NOT NULL,
			vote_deadline TIMESTAMPTZ,
			payload JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_game_sessions_deadline
			ON game_sessions (vote_deadline) WHERE vote_deadline IS NOT NULL`,
		`CREATE TABLE IF NOT EXISTS battle_sessions (
			id UUID PRIMARY KEY,
			state TEXT NOT NULL,
			payload JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, q := range ddl {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) CreateGame(ctx context.Context, g *models.GameSession) error {
	raw, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("marshal game session: %w", err)
	}
	q := `INSERT INTO game_sessions (id, status, vote_deadline, payload) VALUES ($1, $2, $3, $4)`
	if _, err := s.pool.Exec(ctx, q, g.ID, g.Status, g.VoteDeadline, raw); err != nil {
		return fmt.Errorf("insert game session: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetGame(ctx context.Context, id uuid.UUID) (*models.GameSession, error) {
	var raw []byte
	q := `SELECT payload FROM game_sessions WHERE id = $1`
	if err := s.pool.QueryRow(ctx, q, id).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select game session: %w", err)
	}
	var g models.GameSession
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("unmarshal game session: %w", err)
	}
	return &g, nil
}

func (s *PostgresStore) UpdateGame(ctx context.Context, id uuid.UUID, fn func(*models.GameSession) error) (*models.GameSession, error) {
	var out *models.GameSession
	err := s.withRetry(ctx, func() error {
		return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
			var raw []byte
			q := `SELECT payload FROM game_sessions WHERE id = $1 FOR UPDATE`
			if err := tx.QueryRow(ctx, q, id).Scan(&raw); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return ErrNotFound
				}
				return fmt.Errorf("select game session for update: %w", err)
			}
			var g models.GameSession
			if err := json.Unmarshal(raw, &g); err != nil {
				return fmt.Errorf("unmarshal game session: %w", err)
			}
			if err := fn(&g); err != nil {
				return err
			}
			g.UpdatedAt = time.Now()
			updated, err := json.Marshal(&g)
			if err != nil {
				return fmt.Errorf("marshal game session: %w", err)
			}
			uq := `UPDATE game_sessions SET status = $2, vote_deadline = $3, payload = $4, updated_at = now() WHERE id = $1`
			if _, err := tx.Exec(ctx, uq, id, g.Status, g.VoteDeadline, updated); err != nil {
				return fmt.Errorf("update game session: %w", err)
			}
			out = &g
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) CreateBattle(ctx context.Context, b *models.BattleSession) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal battle session: %w", err)
	}
	q := `INSERT INTO battle_sessions (id, state, payload) VALUES ($1, $2, $3)`
	if _, err := s.pool.Exec(ctx, q, b.ID, b.State, raw); err != nil {
		return fmt.Errorf("insert battle session: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetBattle(ctx context.Context, id uuid.UUID) (*models.BattleSession, error) {
	var raw []byte
	q := `SELECT payload FROM battle_sessions WHERE id = $1`
	if err := s.pool.QueryRow(ctx, q, id).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select battle session: %w", err)
	}
	var b models.BattleSession
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("unmarshal battle session: %w", err)
	}
	return &b, nil
}

func (s *PostgresStore) UpdateBattle(ctx context.Context, id uuid.UUID, fn func(*models.BattleSession) error) (*models.BattleSession, error) {
	var out *models.BattleSession
	err := s.withRetry(ctx, func() error {
		return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
			var raw []byte
			q := `SELECT payload FROM battle_sessions WHERE id = $1 FOR UPDATE`
			if err := tx.QueryRow(ctx, q, id).Scan(&raw); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return ErrNotFound
				}
				return fmt.Errorf("select battle session for update: %w", err)
			}
			var b models.BattleSession
			if err := json.Unmarshal(raw, &b); err != nil {
				return fmt.Errorf("unmarshal battle session: %w", err)
			}
			if err := fn(&b); err != nil {
				return err
			}
			b.UpdatedAt = time.Now()
			updated, err := json.Marshal(&b)
			if err != nil {
				return fmt.Errorf("marshal battle session: %w", err)
			}
			uq := `UPDATE battle_sessions SET state = $2, payload = $3, updated_at = now() WHERE id = $1`
			if _, err := tx.Exec(ctx, uq, id, b.State, updated); err != nil {
				return fmt.Errorf("update battle session: %w", err)
			}
			out = &b
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) SweepGameDeadlines(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	q := `SELECT id FROM game_sessions WHERE status = 'active' AND vote_deadline IS NOT NULL AND vote_deadline <= $1`
	rows, err := s.pool.Query(ctx, q, now)
	if err != nil {
		return nil, fmt.Errorf("sweep deadlines: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan deadline row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// withRetry re-runs op on serialization or deadlock failures with a short
// backoff, up to maxUpdateRetries attempts. Mutator errors pass through
// unchanged.
func (s *PostgresStore) withRetry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		err = op()
		if err == nil || !isRetryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 25 * time.Millisecond):
		}
	}
	return fmt.Errorf("%w: %v", ErrConflict, err)
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// 40001 serialization_failure, 40P01 deadlock_detected
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
