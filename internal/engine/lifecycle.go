package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/lbalbarani-maker/hockey-score/internal/matchstore"
	"github.com/lbalbarani-maker/hockey-score/internal/models"
)

// Start begins or resumes the countdown from the current remaining value.
// Idempotent: starting a running clock changes nothing.
func (e *Engine) Start(ctx context.Context) error {
	state, err := e.adminState()
	if err != nil {
		return err
	}
	if state.Running {
		return nil
	}

	now := e.clock.Now().UnixMilli()
	return e.write(ctx, matchstore.Patch{
		matchstore.FieldRunning:   true,
		matchstore.FieldStartTime: now,
		matchstore.FieldStatus:    string(models.StatusActive),
	})
}

// Pause freezes the countdown by folding the elapsed wall time into
// remaining and clearing the run anchor. Idempotent on a stopped clock.
func (e *Engine) Pause(ctx context.Context) error {
	state, err := e.adminState()
	if err != nil {
		return err
	}
	if !state.Running {
		return nil
	}

	remaining := DisplayTime(state, e.clock.Now())
	return e.write(ctx, matchstore.Patch{
		matchstore.FieldRunning:   false,
		matchstore.FieldRemaining: remaining,
		matchstore.FieldStartTime: nil,
		matchstore.FieldStatus:    string(models.StatusPaused),
	})
}

// ResetQuarter stops the clock and restores the full quarter duration.
func (e *Engine) ResetQuarter(ctx context.Context) error {
	state, err := e.adminState()
	if err != nil {
		return err
	}

	return e.write(ctx, matchstore.Patch{
		matchstore.FieldRunning:   false,
		matchstore.FieldRemaining: state.QuarterDuration,
		matchstore.FieldStartTime: nil,
		matchstore.FieldStatus:    string(models.StatusPaused),
	})
}

// SetQuarter jumps to a quarter manually, stopping the clock and
// restoring the full duration.
func (e *Engine) SetQuarter(ctx context.Context, quarter int) error {
	state, err := e.adminState()
	if err != nil {
		return err
	}
	if quarter < models.MinQuarter || quarter > models.MaxQuarter {
		return fmt.Errorf("%w: %d", ErrInvalidQuarter, quarter)
	}

	return e.write(ctx, matchstore.Patch{
		matchstore.FieldQuarter:   quarter,
		matchstore.FieldRunning:   false,
		matchstore.FieldRemaining: state.QuarterDuration,
		matchstore.FieldStartTime: nil,
		matchstore.FieldStatus:    string(models.StatusPaused),
	})
}

// SetQuarterDuration changes the quarter length and resets the clock to
// the new full duration.
func (e *Engine) SetQuarterDuration(ctx context.Context, minutes int) error {
	if _, err := e.adminState(); err != nil {
		return err
	}
	if minutes <= 0 {
		return fmt.Errorf("%w: %d minutes", ErrInvalidDuration, minutes)
	}

	seconds := minutes * 60
	return e.write(ctx, matchstore.Patch{
		matchstore.FieldQuarterDuration: seconds,
		matchstore.FieldRemaining:       seconds,
		matchstore.FieldRunning:         false,
		matchstore.FieldStartTime:       nil,
	})
}

// SetupRequest carries the one-time match configuration.
type SetupRequest struct {
	Teams        models.Teams
	SponsorLogo  string
	AdminPinHash string
}

// Setup provisions the match: team branding, optional sponsor logo and the
// admin PIN hash that anchors capability from then on. The first setup on
// an unprovisioned match needs no capability; reconfiguring does.
func (e *Engine) Setup(ctx context.Context, req SetupRequest) error {
	e.mu.RLock()
	state := e.state
	capable := e.capableLocked()
	e.mu.RUnlock()

	if state == nil {
		return ErrNoSnapshot
	}
	if state.Provisioned() && !capable {
		return ErrPermissionDenied
	}
	if req.AdminPinHash == "" {
		return ErrPinRequired
	}

	teams := req.Teams
	if teams.Team1.Name == "" && teams.Team2.Name == "" {
		teams = models.DefaultTeams()
	}

	if err := e.write(ctx, matchstore.Patch{
		matchstore.FieldTeams:        teams,
		matchstore.FieldSponsorLogo:  req.SponsorLogo,
		matchstore.FieldAdminPinHash: req.AdminPinHash,
		matchstore.FieldConfigured:   true,
	}); err != nil {
		return err
	}
	log.Info().Str("match_id", e.matchID).Msg("match configured")
	return nil
}

// endQuarter performs the automatic transition when the countdown hits
// zero. It re-reads the local snapshot and re-checks the precondition so
// that overlapping invocations, or a peer having already ended the
// quarter, degrade to a no-op.
func (e *Engine) endQuarter(ctx context.Context) error {
	e.mu.Lock()
	if e.state == nil || !e.capableLocked() {
		e.mu.Unlock()
		return nil
	}
	state := *e.state
	if !Expired(state, e.clock.Now()) || state.StartTime == nil {
		e.mu.Unlock()
		return nil
	}
	// A snapshot replay can re-trigger expiry for a run anchor this
	// client already handled; the anchor value keys each expiry once.
	if e.lastEnded == *state.StartTime {
		e.mu.Unlock()
		return nil
	}
	e.lastEnded = *state.StartTime
	e.mu.Unlock()

	if err := e.write(ctx, matchstore.Patch{
		matchstore.FieldRunning:   false,
		matchstore.FieldStatus:    string(models.StatusPaused),
		matchstore.FieldRemaining: 0,
		matchstore.FieldStartTime: nil,
	}); err != nil {
		return err
	}

	if state.Quarter < models.MaxQuarter {
		next := state.Quarter + 1
		if err := e.write(ctx, matchstore.Patch{
			matchstore.FieldQuarter:   next,
			matchstore.FieldRemaining: state.QuarterDuration,
		}); err != nil {
			return err
		}
		log.Info().
			Str("match_id", e.matchID).
			Int("quarter", next).
			Msg("quarter ended, advanced")
		return nil
	}

	if err := e.write(ctx, matchstore.Patch{
		matchstore.FieldStatus: string(models.StatusFinished),
	}); err != nil {
		return err
	}
	log.Info().Str("match_id", e.matchID).Msg("match finished")
	return nil
}
