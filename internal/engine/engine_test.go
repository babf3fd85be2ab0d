package engine

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lbalbarani-maker/hockey-score/internal/matchstore"
	"github.com/lbalbarani-maker/hockey-score/internal/models"
)

const testPIN = "1234"

// newTestEngine returns a primed, provisioned engine holding the admin
// PIN, backed by a memory store and a fake clock.
func newTestEngine(t *testing.T) (*Engine, *matchstore.MemoryStore, *clockwork.FakeClock) {
	t.Helper()

	store := matchstore.NewMemoryStore()
	clock := clockwork.NewFakeClockAt(time.UnixMilli(1_700_000_000_000))

	cfg := DefaultConfig()
	cfg.Clock = clock
	cfg.CreateIfMissing = true
	cfg.Secret = testPIN

	eng := New(store, "TEST01", cfg)
	require.NoError(t, eng.Prime(context.Background()))

	require.NoError(t, eng.Setup(context.Background(), SetupRequest{
		AdminPinHash: HashPIN(testPIN),
	}))
	require.True(t, eng.Capability())

	return eng, store, clock
}

func displayOf(t *testing.T, eng *Engine) int {
	t.Helper()
	view, ok := eng.View()
	require.True(t, ok)
	return view.DisplayTime
}

func TestPrimeSeedsMissingMatch(t *testing.T) {
	store := matchstore.NewMemoryStore()
	cfg := DefaultConfig()
	cfg.CreateIfMissing = true

	eng := New(store, "FRESH1", cfg)
	require.NoError(t, eng.Prime(context.Background()))

	state, err := store.Get(context.Background(), "FRESH1")
	require.NoError(t, err)
	assert.Equal(t, 1, state.Quarter)
	assert.False(t, state.Provisioned())
}

func TestPrimeWithoutCreateFails(t *testing.T) {
	store := matchstore.NewMemoryStore()

	eng := New(store, "NOPE01", DefaultConfig())
	err := eng.Prime(context.Background())
	assert.ErrorIs(t, err, matchstore.ErrNotFound)
}

func TestStartAndDisplayCountdown(t *testing.T) {
	eng, _, clock := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, eng.Start(ctx))
	assert.Equal(t, 600, displayOf(t, eng))

	clock.Advance(37 * time.Second)
	assert.Equal(t, 563, displayOf(t, eng))
}

func TestStartIsIdempotent(t *testing.T) {
	eng, store, clock := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, eng.Start(ctx))
	state, err := store.Get(ctx, "TEST01")
	require.NoError(t, err)
	anchor := *state.StartTime

	clock.Advance(10 * time.Second)
	require.NoError(t, eng.Start(ctx))

	state, err = store.Get(ctx, "TEST01")
	require.NoError(t, err)
	assert.Equal(t, anchor, *state.StartTime, "second start must not move the anchor")
}

func TestPauseFoldsElapsedIntoRemaining(t *testing.T) {
	eng, store, clock := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, eng.Start(ctx))
	clock.Advance(123*time.Second + 700*time.Millisecond)
	require.NoError(t, eng.Pause(ctx))

	state, err := store.Get(ctx, "TEST01")
	require.NoError(t, err)
	assert.False(t, state.Running)
	assert.Nil(t, state.StartTime)
	assert.Equal(t, 477, state.Remaining, "600 - floor(123.7)")
	assert.Equal(t, models.StatusPaused, state.Status)

	// Paused display is frozen.
	clock.Advance(time.Hour)
	assert.Equal(t, 477, displayOf(t, eng))

	// A second consecutive pause changes nothing.
	require.NoError(t, eng.Pause(ctx))
	state, err = store.Get(ctx, "TEST01")
	require.NoError(t, err)
	assert.Equal(t, 477, state.Remaining)
}

func TestPauseWhenStoppedIsNoOp(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, eng.Pause(ctx))

	state, err := store.Get(ctx, "TEST01")
	require.NoError(t, err)
	assert.Equal(t, 600, state.Remaining)
	assert.Equal(t, models.StatusActive, state.Status, "no-op pause must not touch status")
}

func TestPauseResumeAccumulates(t *testing.T) {
	eng, _, clock := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, eng.Start(ctx))
	clock.Advance(100 * time.Second)
	require.NoError(t, eng.Pause(ctx))
	clock.Advance(5 * time.Minute) // halftime talk
	require.NoError(t, eng.Start(ctx))
	clock.Advance(50 * time.Second)

	assert.Equal(t, 450, displayOf(t, eng))
}

func TestResetQuarter(t *testing.T) {
	eng, store, clock := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, eng.Start(ctx))
	clock.Advance(200 * time.Second)
	require.NoError(t, eng.ResetQuarter(ctx))

	state, err := store.Get(ctx, "TEST01")
	require.NoError(t, err)
	assert.False(t, state.Running)
	assert.Equal(t, 600, state.Remaining)
	assert.Nil(t, state.StartTime)
}

func TestSetQuarterValidation(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	assert.ErrorIs(t, eng.SetQuarter(ctx, 0), ErrInvalidQuarter)
	assert.ErrorIs(t, eng.SetQuarter(ctx, 5), ErrInvalidQuarter)
	assert.NoError(t, eng.SetQuarter(ctx, 3))

	view, _ := eng.View()
	assert.Equal(t, 3, view.State.Quarter)
	assert.False(t, view.State.Running)
}

func TestSetQuarterDuration(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	ctx := context.Background()

	assert.ErrorIs(t, eng.SetQuarterDuration(ctx, 0), ErrInvalidDuration)
	require.NoError(t, eng.SetQuarterDuration(ctx, 15))

	state, err := store.Get(ctx, "TEST01")
	require.NoError(t, err)
	assert.Equal(t, 900, state.QuarterDuration)
	assert.Equal(t, 900, state.Remaining)
	assert.False(t, state.Running)
}

func TestAutoQuarterEnd(t *testing.T) {
	eng, store, clock := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, eng.Start(ctx))
	clock.Advance(605 * time.Second)
	eng.Tick(ctx)

	state, err := store.Get(ctx, "TEST01")
	require.NoError(t, err)
	assert.Equal(t, 2, state.Quarter)
	assert.Equal(t, 600, state.Remaining)
	assert.False(t, state.Running)
	assert.Nil(t, state.StartTime)
	assert.Equal(t, models.StatusPaused, state.Status)
}

func TestAutoQuarterEndIdempotentOnStaleSnapshot(t *testing.T) {
	eng, store, clock := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, eng.Start(ctx))
	expiredView, _ := eng.View()
	stale := expiredView.State

	clock.Advance(700 * time.Second)
	eng.Tick(ctx)

	state, err := store.Get(ctx, "TEST01")
	require.NoError(t, err)
	require.Equal(t, 2, state.Quarter)

	// A delayed replica echo re-delivers the pre-transition snapshot.
	// Its run anchor was already handled, so nothing may happen.
	eng.handleSnapshot(stale)
	eng.Tick(ctx)

	state, err = store.Get(ctx, "TEST01")
	require.NoError(t, err)
	assert.Equal(t, 2, state.Quarter, "stale snapshot must not double-advance")
}

func TestFourthQuarterExpiryFinishesMatch(t *testing.T) {
	eng, store, clock := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, eng.SetQuarter(ctx, 4))
	require.NoError(t, eng.Start(ctx))
	clock.Advance(601 * time.Second)
	eng.Tick(ctx)

	state, err := store.Get(ctx, "TEST01")
	require.NoError(t, err)
	assert.Equal(t, 4, state.Quarter)
	assert.Equal(t, models.StatusFinished, state.Status)
	assert.Equal(t, 0, state.Remaining)
	assert.False(t, state.Running)
}

func TestObserverNeverEndsQuarter(t *testing.T) {
	eng, store, clock := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, eng.Start(ctx))

	observer := New(store, "TEST01", Config{Clock: clock})
	require.NoError(t, observer.Prime(ctx))
	require.False(t, observer.Capability())

	clock.Advance(700 * time.Second)
	observer.Tick(ctx)

	state, err := store.Get(ctx, "TEST01")
	require.NoError(t, err)
	assert.Equal(t, 1, state.Quarter, "observer must detect but never act")
	assert.True(t, state.Running)
}

func TestMutationWithoutCapability(t *testing.T) {
	eng, _, clock := newTestEngine(t)

	eng.SetSecret("wrong")
	clock.Advance(time.Second)

	ctx := context.Background()
	assert.ErrorIs(t, eng.Start(ctx), ErrPermissionDenied)
	assert.ErrorIs(t, eng.Pause(ctx), ErrPermissionDenied)
	assert.ErrorIs(t, eng.ResetQuarter(ctx), ErrPermissionDenied)
	_, err := eng.AppendGoal(ctx, models.TeamOne, Scorer{})
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestCapabilityRevokedByNewHash(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	require.True(t, eng.Capability())

	view, _ := eng.View()
	rotated := view.State
	rotated.AdminPinHash = HashPIN("9999")
	eng.handleSnapshot(rotated)

	assert.False(t, eng.Capability(), "rotated hash revokes held capability")
}

func TestSetupOnProvisionedMatchNeedsCapability(t *testing.T) {
	eng, store, clock := newTestEngine(t)
	ctx := context.Background()

	intruder := New(store, "TEST01", Config{Clock: clock, Secret: "wrong"})
	require.NoError(t, intruder.Prime(ctx))

	err := intruder.Setup(ctx, SetupRequest{AdminPinHash: HashPIN("wrong")})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	// The rightful admin may rotate the PIN.
	require.NoError(t, eng.Setup(ctx, SetupRequest{AdminPinHash: HashPIN("5678")}))
	eng.SetSecret("5678")
	assert.True(t, eng.Capability())
}

func TestSetupRequiresPinHash(t *testing.T) {
	store := matchstore.NewMemoryStore()
	cfg := DefaultConfig()
	cfg.CreateIfMissing = true
	eng := New(store, "BARE01", cfg)
	require.NoError(t, eng.Prime(context.Background()))

	err := eng.Setup(context.Background(), SetupRequest{})
	assert.ErrorIs(t, err, ErrPinRequired)
}

func TestSetupDefaultsTeams(t *testing.T) {
	store := matchstore.NewMemoryStore()
	cfg := DefaultConfig()
	cfg.CreateIfMissing = true
	cfg.Secret = testPIN
	eng := New(store, "BARE02", cfg)
	ctx := context.Background()
	require.NoError(t, eng.Prime(ctx))

	require.NoError(t, eng.Setup(ctx, SetupRequest{AdminPinHash: HashPIN(testPIN)}))

	state, err := store.Get(ctx, "BARE02")
	require.NoError(t, err)
	assert.True(t, state.Configured)
	assert.Equal(t, models.DefaultTeams(), state.Teams)
}

func TestAppendGoalStampsMatchMinute(t *testing.T) {
	eng, store, clock := newTestEngine(t)
	ctx := context.Background()

	// Second quarter, 150 seconds in: floor((600+150)/60) = minute 12.
	require.NoError(t, eng.SetQuarter(ctx, 2))
	require.NoError(t, eng.Start(ctx))
	clock.Advance(150 * time.Second)

	goal, err := eng.AppendGoal(ctx, models.TeamOne, Scorer{Name: "Ana", Number: "7"})
	require.NoError(t, err)

	assert.Equal(t, 2, goal.Quarter)
	assert.Equal(t, 150, goal.ElapsedInQuarter)
	assert.Equal(t, 12, goal.MatchMinute)
	assert.Equal(t, "Ana", goal.PlayerName)
	assert.NotEmpty(t, goal.ID)

	state, err := store.Get(ctx, "TEST01")
	require.NoError(t, err)
	assert.Equal(t, 1, state.Score.Team1)
	assert.Equal(t, 0, state.Score.Team2)
	require.Len(t, state.Goals, 1)
	assert.Equal(t, goal.ID, state.Goals[0].ID)
}

func TestAppendGoalResolvesRosterPlayer(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	teams := models.DefaultTeams()
	teams.Team2.Players = []models.Player{{ID: "p9", Name: "Luz", Number: "9"}}
	require.NoError(t, eng.Setup(ctx, SetupRequest{
		Teams:        teams,
		AdminPinHash: HashPIN(testPIN),
	}))

	goal, err := eng.AppendGoal(ctx, models.TeamTwo, Scorer{PlayerID: "p9"})
	require.NoError(t, err)
	assert.Equal(t, "Luz", goal.PlayerName)
	assert.Equal(t, "9", goal.Number)
}

func TestAppendGoalUnknownTeam(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	_, err := eng.AppendGoal(context.Background(), "team3", Scorer{})
	assert.ErrorIs(t, err, ErrUnknownTeam)
}

func TestRemoveGoalRecomputesScore(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	ctx := context.Background()

	g1, err := eng.AppendGoal(ctx, models.TeamOne, Scorer{Name: "Ana"})
	require.NoError(t, err)
	_, err = eng.AppendGoal(ctx, models.TeamOne, Scorer{Name: "Luz"})
	require.NoError(t, err)

	require.NoError(t, eng.RemoveGoal(ctx, g1.ID))

	state, err := store.Get(ctx, "TEST01")
	require.NoError(t, err)
	assert.Equal(t, 1, state.Score.Team1)
	require.Len(t, state.Goals, 1)
	assert.Equal(t, "Luz", state.Goals[0].PlayerName)
}

func TestRemoveOnlyGoalZeroesScore(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	ctx := context.Background()

	g, err := eng.AppendGoal(ctx, models.TeamTwo, Scorer{})
	require.NoError(t, err)
	require.NoError(t, eng.RemoveGoal(ctx, g.ID))

	state, err := store.Get(ctx, "TEST01")
	require.NoError(t, err)
	assert.Equal(t, models.Score{}, state.Score)
	assert.Empty(t, state.Goals)
}

func TestRemoveUnknownGoalIsNoOp(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.AppendGoal(ctx, models.TeamOne, Scorer{})
	require.NoError(t, err)

	require.NoError(t, eng.RemoveGoal(ctx, "no-such-goal"))

	state, err := store.Get(ctx, "TEST01")
	require.NoError(t, err)
	assert.Equal(t, 1, state.Score.Team1)
	assert.Len(t, state.Goals, 1)
}

func TestRaiseAndNoticeWindow(t *testing.T) {
	eng, _, clock := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, eng.Raise(ctx, models.EventSave, models.TeamTwo))

	// The write round-trips through the store; feed the snapshot back the
	// way the subscription would.
	view, _ := eng.View()
	eng.handleSnapshot(view.State)

	notice, ok := eng.ActiveNotice()
	require.True(t, ok)
	assert.Equal(t, models.EventSave, notice.Type)
	assert.Equal(t, models.TeamTwo, notice.Team)

	clock.Advance(3 * time.Second)
	eng.Tick(ctx)
	_, ok = eng.ActiveNotice()
	assert.False(t, ok, "notice expires after the display window")
}

func TestNoticeDedupedByTimestamp(t *testing.T) {
	eng, _, clock := newTestEngine(t)
	ctx := context.Background()

	var fired int
	eng.OnNotice(func(models.MatchEvent) { fired++ })

	require.NoError(t, eng.Raise(ctx, models.EventGoal, models.TeamOne))
	view, _ := eng.View()

	eng.handleSnapshot(view.State)
	eng.handleSnapshot(view.State) // same timestamp redelivered
	assert.Equal(t, 1, fired)

	clock.Advance(5 * time.Second)
	require.NoError(t, eng.Raise(ctx, models.EventGoal, models.TeamOne))
	view, _ = eng.View()
	eng.handleSnapshot(view.State)
	assert.Equal(t, 2, fired, "same kind with a new timestamp fires again")
}

func TestStaleEventNotReplayedOnFirstSnapshot(t *testing.T) {
	store := matchstore.NewMemoryStore()
	clock := clockwork.NewFakeClockAt(time.UnixMilli(1_700_000_000_000))

	seed := models.NewMatchState()
	seed.AdminPinHash = HashPIN(testPIN)
	oldTS := clock.Now().Add(-time.Hour).UnixMilli()
	seed.Event = &models.MatchEvent{Type: models.EventGoal, Timestamp: oldTS}
	require.NoError(t, store.Create(context.Background(), "OLD001", seed))

	eng := New(store, "OLD001", Config{Clock: clock, Secret: testPIN})

	var fired int
	eng.OnNotice(func(models.MatchEvent) { fired++ })

	require.NoError(t, eng.Prime(context.Background()))
	assert.Equal(t, 0, fired, "event present before joining must not replay")
	_, ok := eng.ActiveNotice()
	assert.False(t, ok)
}

func TestRaiseValidation(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	assert.ErrorIs(t, eng.Raise(ctx, "fireworks", models.TeamOne), ErrInvalidEvent)
	assert.ErrorIs(t, eng.Raise(ctx, models.EventGoal, "team3"), ErrUnknownTeam)
}

func TestRunTicksAndStops(t *testing.T) {
	store := matchstore.NewMemoryStore()
	clock := clockwork.NewFakeClockAt(time.UnixMilli(1_700_000_000_000))

	cfg := DefaultConfig()
	cfg.Clock = clock
	cfg.CreateIfMissing = true
	eng := New(store, "RUN001", cfg)

	ticks := make(chan View, 64)
	eng.OnTick(func(v View) { ticks <- v })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()

	// Wait until the ticker is armed before advancing the fake clock.
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(250 * time.Millisecond)

	select {
	case v := <-ticks:
		assert.Equal(t, "RUN001", v.MatchID)
	case <-time.After(time.Second):
		t.Fatal("no tick observed")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("engine did not stop")
	}
}
