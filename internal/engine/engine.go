// Package engine implements the per-client synchronization core of a live
// match: clock reconciliation from sparse snapshots, capability-gated
// mutations, the quarter lifecycle, the append-only goal ledger and the
// ephemeral event slot. One Engine runs per subscriber process; admin and
// observer engines differ only in whether their local secret hashes to the
// adminPinHash of the current snapshot.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/lbalbarani-maker/hockey-score/internal/matchstore"
	"github.com/lbalbarani-maker/hockey-score/internal/models"
)

// Config holds engine configuration.
type Config struct {
	// TickInterval is the display recompute cadence. Correctness holds
	// for any cadence up to one second; the default favors smoothness.
	TickInterval time.Duration

	// NoticeWindow is how long an ephemeral event stays active locally.
	NoticeWindow time.Duration

	// CreateIfMissing writes the seed document when the match id does
	// not exist yet (the admin bootstrap path).
	CreateIfMissing bool

	// Secret is the locally held admin PIN, if any. Observers leave it
	// empty; it can also be entered later via SetSecret.
	Secret string

	// Clock defaults to the real clock; tests inject a fake.
	Clock clockwork.Clock
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		TickInterval: 250 * time.Millisecond,
		NoticeWindow: 3 * time.Second,
	}
}

// View is the engine's read model: the latest snapshot plus everything
// derived from it for the current instant.
type View struct {
	MatchID     string             `json:"match_id"`
	State       models.MatchState  `json:"state"`
	DisplayTime int                `json:"display_time"`
	Capability  bool               `json:"capability"`
	Notice      *models.MatchEvent `json:"notice,omitempty"`
}

// Engine drives one client's view of one match.
type Engine struct {
	store   matchstore.Store
	matchID string
	clock   clockwork.Clock
	config  Config

	mu           sync.RWMutex
	state        *models.MatchState
	secret       string
	seeded       bool
	lastNoticeTS int64
	notice       *models.MatchEvent
	noticeShown  time.Time
	lastEnded    int64 // startTime millis of the last locally handled expiry

	snapshotFns []func(View)
	tickFns     []func(View)
	noticeFns   []func(models.MatchEvent)
}

// New creates an engine for a match. Register callbacks before Run.
func New(store matchstore.Store, matchID string, config Config) *Engine {
	if config.TickInterval <= 0 {
		config.TickInterval = 250 * time.Millisecond
	}
	if config.NoticeWindow <= 0 {
		config.NoticeWindow = 3 * time.Second
	}
	clock := config.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{
		store:   store,
		matchID: matchID,
		clock:   clock,
		config:  config,
		secret:  config.Secret,
	}
}

// MatchID returns the match this engine is bound to.
func (e *Engine) MatchID() string {
	return e.matchID
}

// OnSnapshot registers a callback fired on every store push.
func (e *Engine) OnSnapshot(fn func(View)) {
	e.mu.Lock()
	e.snapshotFns = append(e.snapshotFns, fn)
	e.mu.Unlock()
}

// OnTick registers a callback fired on every display recompute.
func (e *Engine) OnTick(fn func(View)) {
	e.mu.Lock()
	e.tickFns = append(e.tickFns, fn)
	e.mu.Unlock()
}

// OnNotice registers a callback fired once per new ephemeral event.
func (e *Engine) OnNotice(fn func(models.MatchEvent)) {
	e.mu.Lock()
	e.noticeFns = append(e.noticeFns, fn)
	e.mu.Unlock()
}

// SetSecret replaces the locally held admin PIN. Capability is re-derived
// from the current snapshot on every use, so entering the right PIN grants
// it immediately and a later reconfiguration silently revokes it.
func (e *Engine) SetSecret(secret string) {
	e.mu.Lock()
	e.secret = secret
	e.mu.Unlock()
}

// Capability reports whether the held secret matches the adminPinHash of
// the current snapshot.
func (e *Engine) Capability() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.capableLocked()
}

// Authorize checks an externally supplied PIN against the current
// snapshot without storing it.
func (e *Engine) Authorize(pin string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state != nil && VerifyPIN(pin, e.state.AdminPinHash)
}

// Provisioned reports whether the current snapshot carries an admin hash.
func (e *Engine) Provisioned() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state != nil && e.state.Provisioned()
}

func (e *Engine) capableLocked() bool {
	return e.state != nil && VerifyPIN(e.secret, e.state.AdminPinHash)
}

// View returns the current read model. ok is false until the first
// snapshot arrives.
func (e *Engine) View() (View, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.state == nil {
		return View{}, false
	}
	return e.viewLocked(e.clock.Now()), true
}

func (e *Engine) viewLocked(now time.Time) View {
	v := View{
		MatchID:     e.matchID,
		State:       *e.state,
		DisplayTime: DisplayTime(*e.state, now),
		Capability:  e.capableLocked(),
	}
	if e.notice != nil && now.Sub(e.noticeShown) < e.config.NoticeWindow {
		v.Notice = e.notice
	}
	return v
}

// Run subscribes to the match and drives the tick loop until the context
// is cancelled. Nothing inside the loop is fatal: every failure is scoped
// to one operation and logged.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Prime(ctx); err != nil {
		return err
	}

	unsubscribe, err := e.store.Subscribe(ctx, e.matchID, e.handleSnapshot)
	if err != nil {
		return fmt.Errorf("subscribe to match %s: %w", e.matchID, err)
	}
	defer unsubscribe()

	log.Info().
		Str("match_id", e.matchID).
		Dur("tick_interval", e.config.TickInterval).
		Msg("engine started")

	ticker := e.clock.NewTicker(e.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("match_id", e.matchID).Msg("engine stopped")
			return nil
		case <-ticker.Chan():
			e.Tick(ctx)
		}
	}
}

// Prime loads the current document synchronously so callers can mutate
// right after construction, before the subscription delivers its first
// push. For admins visiting a not-yet-existing match id it writes the
// seed document. Idempotent; Run calls it too.
func (e *Engine) Prime(ctx context.Context) error {
	state, err := e.store.Get(ctx, e.matchID)
	if err == nil {
		e.handleSnapshot(*state)
		return nil
	}
	if !errors.Is(err, matchstore.ErrNotFound) {
		return fmt.Errorf("load match %s: %w", e.matchID, err)
	}
	if !e.config.CreateIfMissing {
		return fmt.Errorf("match %s: %w", e.matchID, matchstore.ErrNotFound)
	}

	seed := models.NewMatchState()
	if err := e.store.Create(ctx, e.matchID, seed); err != nil {
		// Another admin client can win the bootstrap race; their seed is
		// as good as ours.
		if errors.Is(err, matchstore.ErrAlreadyExists) {
			if state, err := e.store.Get(ctx, e.matchID); err == nil {
				e.handleSnapshot(*state)
			}
			return nil
		}
		return fmt.Errorf("create match %s: %w", e.matchID, err)
	}
	log.Info().Str("match_id", e.matchID).Msg("created match")
	e.handleSnapshot(seed)
	return nil
}

// handleSnapshot replaces the local snapshot with the authoritative one
// and derives capability and notice state from it.
func (e *Engine) handleSnapshot(state models.MatchState) {
	now := e.clock.Now()

	e.mu.Lock()
	e.state = &state

	var freshNotice *models.MatchEvent
	if ev := state.Event; ev != nil {
		if !e.seeded {
			// The replayed snapshot on subscription can carry a stale
			// event; showing it again would replay old celebrations.
			e.lastNoticeTS = ev.Timestamp
		} else if ev.Timestamp != e.lastNoticeTS {
			e.lastNoticeTS = ev.Timestamp
			e.notice = ev
			e.noticeShown = now
			freshNotice = ev
		}
	}
	e.seeded = true

	view := e.viewLocked(now)
	snapshotFns := append([]func(View){}, e.snapshotFns...)
	noticeFns := append([]func(models.MatchEvent){}, e.noticeFns...)
	e.mu.Unlock()

	for _, fn := range snapshotFns {
		fn(view)
	}
	if freshNotice != nil {
		for _, fn := range noticeFns {
			fn(*freshNotice)
		}
	}
}

// Tick recomputes the display, expires the local notice window and checks
// for quarter expiry. Run calls it on the configured cadence; tests call
// it directly.
func (e *Engine) Tick(ctx context.Context) {
	now := e.clock.Now()

	e.mu.Lock()
	if e.state == nil {
		e.mu.Unlock()
		return
	}
	if e.notice != nil && now.Sub(e.noticeShown) >= e.config.NoticeWindow {
		e.notice = nil
	}
	view := e.viewLocked(now)
	tickFns := append([]func(View){}, e.tickFns...)
	capable := e.capableLocked()
	e.mu.Unlock()

	for _, fn := range tickFns {
		fn(view)
	}

	// Everyone detects expiry; only a capable client acts on it.
	if capable && Expired(view.State, now) {
		if err := e.endQuarter(ctx); err != nil {
			log.Error().Err(err).Str("match_id", e.matchID).Msg("quarter end failed")
		}
	}
}

// write patches the store and optimistically applies the same patch to the
// local snapshot. The next authoritative snapshot confirms or overwrites
// it; a failed write is reported and left for that snapshot to correct.
func (e *Engine) write(ctx context.Context, patch matchstore.Patch) error {
	if err := e.store.Patch(ctx, e.matchID, patch); err != nil {
		return fmt.Errorf("patch match %s: %w", e.matchID, err)
	}

	e.mu.Lock()
	if e.state != nil {
		if merged, err := matchstore.MergeState(*e.state, patch); err == nil {
			e.state = &merged
		} else {
			log.Error().Err(err).Str("match_id", e.matchID).Msg("optimistic apply failed")
		}
	}
	e.mu.Unlock()
	return nil
}

// adminState returns a copy of the current snapshot after the capability
// check every mutation runs first.
func (e *Engine) adminState() (models.MatchState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.state == nil {
		return models.MatchState{}, ErrNoSnapshot
	}
	if !e.capableLocked() {
		return models.MatchState{}, ErrPermissionDenied
	}
	return *e.state, nil
}
