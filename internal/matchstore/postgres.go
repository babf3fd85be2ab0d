package matchstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/lbalbarani-maker/hockey-score/internal/models"
)

const pgNotifyChannel = "match_doc"

const pgSchema = `
CREATE TABLE IF NOT EXISTS matches (
	id         text PRIMARY KEY,
	doc        jsonb NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now()
)`

// PostgresStore keeps each match document in a jsonb column and pushes
// change notifications over LISTEN/NOTIFY. Patch semantics come directly
// from jsonb concatenation, which is the same shallow merge every other
// adapter implements.
type PostgresStore struct {
	pool *pgxpool.Pool
	dsn  string
	subs *subRegistry

	// lifeCtx spans the store's lifetime; Close cancels it, which ends
	// the listener goroutine and its dedicated connection.
	lifeCtx    context.Context
	lifeCancel context.CancelFunc

	listenOnce sync.Once
	listenErr  error
}

// NewPostgresStore connects a pool and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure matches table: %w", err)
	}

	log.Info().Msg("postgres match store ready")
	lifeCtx, lifeCancel := context.WithCancel(context.Background())
	return &PostgresStore{
		pool:       pool,
		dsn:        dsn,
		subs:       newSubRegistry(),
		lifeCtx:    lifeCtx,
		lifeCancel: lifeCancel,
	}, nil
}

func (s *PostgresStore) Create(ctx context.Context, matchID string, state models.MatchState) error {
	doc, err := Merge(nil, stateToPatch(state))
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO matches (id, doc) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`,
		matchID, doc)
	if err != nil {
		return fmt.Errorf("create match %s: %w", matchID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	if _, err := s.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, pgNotifyChannel, matchID); err != nil {
		log.Error().Err(err).Str("match_id", matchID).Msg("notify after create failed")
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, matchID string) (*models.MatchState, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM matches WHERE id = $1`, matchID).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get match %s: %w", matchID, err)
	}
	state, err := models.DecodeState(doc)
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *PostgresStore) Patch(ctx context.Context, matchID string, patch Patch) error {
	// Patch values go through the same JSON encoding as the other
	// adapters; jsonb || performs the shallow merge server-side, keeping
	// the whole patch one atomic write.
	encoded, err := Merge([]byte("{}"), patch)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE matches SET doc = doc || $2::jsonb, updated_at = now() WHERE id = $1`,
		matchID, encoded)
	if err != nil {
		return fmt.Errorf("patch match %s: %w", matchID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	if _, err := s.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, pgNotifyChannel, matchID); err != nil {
		log.Error().Err(err).Str("match_id", matchID).Msg("notify after patch failed")
	}
	return nil
}

func (s *PostgresStore) Subscribe(ctx context.Context, matchID string, fn SnapshotFunc) (func(), error) {
	s.listenOnce.Do(func() {
		s.listenErr = s.startListener(s.lifeCtx)
	})
	if s.listenErr != nil {
		return nil, s.listenErr
	}

	sub, unsubscribe := s.subs.add(ctx, matchID, fn)

	if state, err := s.Get(ctx, matchID); err == nil {
		sub.push(*state)
	}

	return unsubscribe, nil
}

// startListener opens a dedicated connection for LISTEN and fans incoming
// notifications out to subscribers. The connection is re-established after
// failures so a dropped listener does not silently end the stream.
func (s *PostgresStore) startListener(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, s.dsn)
	if err != nil {
		return fmt.Errorf("connect listener: %w", err)
	}
	if _, err := conn.Exec(ctx, `LISTEN `+pgNotifyChannel); err != nil {
		conn.Close(ctx)
		return fmt.Errorf("listen %s: %w", pgNotifyChannel, err)
	}

	go func() {
		for {
			notification, err := conn.WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() != nil {
					conn.Close(ctx)
					return
				}
				log.Error().Err(err).Msg("listener connection lost, reconnecting")
				conn.Close(ctx)
				for {
					time.Sleep(2 * time.Second)
					if ctx.Err() != nil {
						return
					}
					conn, err = pgx.Connect(ctx, s.dsn)
					if err != nil {
						log.Error().Err(err).Msg("listener reconnect failed")
						continue
					}
					if _, err = conn.Exec(ctx, `LISTEN `+pgNotifyChannel); err != nil {
						log.Error().Err(err).Msg("re-listen failed")
						conn.Close(ctx)
						continue
					}
					break
				}
				continue
			}

			matchID := notification.Payload
			state, err := s.Get(ctx, matchID)
			if err != nil {
				log.Error().Err(err).Str("match_id", matchID).Msg("fetch after notify failed")
				continue
			}
			s.subs.notify(matchID, *state)
		}
	}()

	return nil
}

// Close stops the listener and releases the pool.
func (s *PostgresStore) Close() {
	s.lifeCancel()
	s.pool.Close()
}
