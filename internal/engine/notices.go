package engine

import (
	"context"
	"fmt"

	"github.com/lbalbarani-maker/hockey-score/internal/matchstore"
	"github.com/lbalbarani-maker/hockey-score/internal/models"
)

// Raise publishes an ephemeral notice into the shared event slot. A new
// notice overwrites any previous one; peers distinguish occurrences by
// timestamp, so two saves in a row still display twice.
func (e *Engine) Raise(ctx context.Context, kind models.EventKind, team models.TeamSide) error {
	if _, err := e.adminState(); err != nil {
		return err
	}
	switch kind {
	case models.EventGoal, models.EventSave:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidEvent, kind)
	}
	if team != "" && !team.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownTeam, team)
	}

	return e.write(ctx, matchstore.Patch{
		matchstore.FieldEvent: models.MatchEvent{
			Type:      kind,
			Team:      team,
			Timestamp: e.clock.Now().UnixMilli(),
		},
	})
}

// ActiveNotice returns the notice currently inside its display window.
func (e *Engine) ActiveNotice() (models.MatchEvent, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.notice == nil {
		return models.MatchEvent{}, false
	}
	if e.clock.Now().Sub(e.noticeShown) >= e.config.NoticeWindow {
		return models.MatchEvent{}, false
	}
	return *e.notice, true
}
