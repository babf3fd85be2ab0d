package engine

import (
	"time"

	"github.com/lbalbarani-maker/hockey-score/internal/models"
)

// DisplayTime reconstructs the countdown for the current instant from the
// persisted checkpoint. Stopped clock: the checkpoint itself. Running
// clock: checkpoint minus whole seconds elapsed since startTime. The
// function is pure and idempotent for a fixed snapshot, so any recompute
// cadence yields the same value for the same instant.
func DisplayTime(state models.MatchState, now time.Time) int {
	base := state.Remaining
	if base < 0 {
		base = 0
	}
	if !state.Running || state.StartTime == nil {
		return base
	}

	elapsed := floorSeconds(now.UnixMilli() - *state.StartTime)
	remaining := base - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Expired reports quarter expiry: a running clock reconciled down to zero.
// Every subscriber detects this independently; only admin-capable clients
// act on it.
func Expired(state models.MatchState, now time.Time) bool {
	return state.Running && DisplayTime(state, now) == 0
}

// floorSeconds converts millis to whole seconds rounding toward negative
// infinity. With a writer clock slightly ahead of ours the elapsed millis
// go negative; flooring shows at most one extra second and self-corrects
// on the next whole second.
func floorSeconds(millis int64) int {
	sec := millis / 1000
	if millis < 0 && millis%1000 != 0 {
		sec--
	}
	return int(sec)
}
