package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/lbalbarani-maker/hockey-score/internal/engine"
	"github.com/lbalbarani-maker/hockey-score/internal/matchstore"
	"github.com/lbalbarani-maker/hockey-score/internal/models"
)

// Service runs one engine per watched match and bridges engine callbacks
// onto the WebSocket connection pools.
type Service struct {
	store             matchstore.Store
	connectionManager *ConnectionManager
	engineConfig      engine.Config

	mu      sync.Mutex
	ctx     context.Context
	matches map[string]*matchRuntime
}

// Config holds gateway configuration.
type Config struct {
	ConnectionConfig ConnectionConfig
	EngineConfig     engine.Config
}

// DefaultConfig returns default gateway configuration.
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		EngineConfig:     engine.DefaultConfig(),
	}
}

// matchRuntime is one running engine plus its broadcast bookkeeping.
type matchRuntime struct {
	engine *engine.Engine
	cancel context.CancelFunc

	// adminMu serializes authorized mutations so two admin requests with
	// different PINs cannot interleave SetSecret with each other's op.
	adminMu sync.Mutex

	// lastDisplay is only touched from the engine's tick goroutine.
	lastDisplay int
}

// NewService creates the gateway service.
func NewService(store matchstore.Store, config Config) *Service {
	return &Service{
		store:             store,
		connectionManager: NewConnectionManager(config.ConnectionConfig),
		engineConfig:      config.EngineConfig,
		matches:           make(map[string]*matchRuntime),
	}
}

// Start launches the broadcast loop. Engines are started lazily per match
// and stop when ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	go s.connectionManager.Start(ctx)
}

// CreateMatch seeds a fresh match document under a new public id and
// starts its runtime.
func (s *Service) CreateMatch(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		matchID := NewMatchID()
		err := s.store.Create(ctx, matchID, models.NewMatchState())
		if err == nil {
			if _, err := s.runtime(matchID); err != nil {
				return "", err
			}
			log.Info().Str("match_id", matchID).Msg("match created")
			return matchID, nil
		}
		if errors.Is(err, matchstore.ErrAlreadyExists) {
			continue
		}
		return "", fmt.Errorf("create match: %w", err)
	}
	return "", fmt.Errorf("create match: id space exhausted after retries")
}

// CreateMatchWithID seeds a match under a caller-chosen id, the admin
// bootstrap path for ids shared out of band. Creating an existing match
// just attaches to it.
func (s *Service) CreateMatchWithID(ctx context.Context, matchID string) (created bool, err error) {
	err = s.store.Create(ctx, matchID, models.NewMatchState())
	switch {
	case err == nil:
		created = true
		log.Info().Str("match_id", matchID).Msg("match created")
	case errors.Is(err, matchstore.ErrAlreadyExists):
	default:
		return false, fmt.Errorf("create match %s: %w", matchID, err)
	}

	if _, err := s.runtime(matchID); err != nil {
		return created, err
	}
	return created, nil
}

// runtime returns the running engine for a match, starting one on first
// use. Returns matchstore.ErrNotFound for an unknown match id.
func (s *Service) runtime(matchID string) (*matchRuntime, error) {
	s.mu.Lock()
	if rt, ok := s.matches[matchID]; ok {
		s.mu.Unlock()
		return rt, nil
	}
	baseCtx := s.ctx
	s.mu.Unlock()

	if baseCtx == nil {
		baseCtx = context.Background()
	}

	cfg := s.engineConfig
	eng := engine.New(s.store, matchID, cfg)

	runCtx, cancel := context.WithCancel(baseCtx)
	if err := eng.Prime(runCtx); err != nil {
		cancel()
		return nil, err
	}

	rt := &matchRuntime{engine: eng, cancel: cancel, lastDisplay: -1}

	eng.OnSnapshot(func(v engine.View) {
		frame, err := newFrame(FrameSnapshot, matchID, SnapshotPayload{
			State:       v.State,
			DisplayTime: v.DisplayTime,
		})
		if err != nil {
			log.Error().Err(err).Str("match_id", matchID).Msg("failed to build snapshot frame")
			return
		}
		s.connectionManager.BroadcastToMatch(matchID, frame)
	})

	eng.OnTick(func(v engine.View) {
		if v.DisplayTime == rt.lastDisplay {
			return
		}
		rt.lastDisplay = v.DisplayTime
		frame, err := newFrame(FrameTick, matchID, TickPayload{
			DisplayTime: v.DisplayTime,
			Quarter:     v.State.Quarter,
			Running:     v.State.Running,
			Status:      v.State.Status,
		})
		if err != nil {
			log.Error().Err(err).Str("match_id", matchID).Msg("failed to build tick frame")
			return
		}
		s.connectionManager.BroadcastToMatch(matchID, frame)
	})

	eng.OnNotice(func(ev models.MatchEvent) {
		frame, err := newFrame(FrameNotice, matchID, NoticePayload{Event: ev})
		if err != nil {
			log.Error().Err(err).Str("match_id", matchID).Msg("failed to build notice frame")
			return
		}
		s.connectionManager.BroadcastToMatch(matchID, frame)
	})

	s.mu.Lock()
	if existing, ok := s.matches[matchID]; ok {
		// Lost the start race to a concurrent request.
		s.mu.Unlock()
		cancel()
		return existing, nil
	}
	s.matches[matchID] = rt
	s.mu.Unlock()

	go func() {
		if err := eng.Run(runCtx); err != nil {
			log.Error().Err(err).Str("match_id", matchID).Msg("engine exited")
		}
		s.mu.Lock()
		if s.matches[matchID] == rt {
			delete(s.matches, matchID)
		}
		s.mu.Unlock()
	}()

	return rt, nil
}

// asAdmin runs a mutation on behalf of the request's PIN. The PIN is
// verified against the current snapshot first; a provisioned match
// rejects a wrong PIN here, before the op and before any store call.
// Only a verifying PIN is installed as the engine's secret: the
// server-side engine is the one ticking client that can fire automatic
// quarter-end, so a failed request must not strip the capability a prior
// correct PIN established.
func (rt *matchRuntime) asAdmin(pin string, fn func(*engine.Engine) error) error {
	rt.adminMu.Lock()
	defer rt.adminMu.Unlock()

	switch {
	case rt.engine.Authorize(pin):
		rt.engine.SetSecret(pin)
	case rt.engine.Provisioned():
		return engine.ErrPermissionDenied
	default:
		// Unprovisioned match: no PIN can verify yet. Setup is the one
		// op allowed through; everything else fails its own gate.
		rt.engine.SetSecret(pin)
	}
	return fn(rt.engine)
}

// Stop cancels every running engine.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for matchID, rt := range s.matches {
		rt.cancel()
		delete(s.matches, matchID)
	}
}
