package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/lbalbarani-maker/hockey-score/internal/matchstore"
	"github.com/lbalbarani-maker/hockey-score/internal/models"
)

// Scorer identifies who scored. PlayerID resolves name and number from
// the roster; a free-form Name overrides the lookup.
type Scorer struct {
	PlayerID string
	Name     string
	Number   string
}

// AppendGoal records a goal for a team, stamped with the clock position at
// the moment of scoring, and writes goals and the recomputed score in one
// patch so no snapshot ever shows them disagreeing.
func (e *Engine) AppendGoal(ctx context.Context, team models.TeamSide, scorer Scorer) (models.GoalRecord, error) {
	state, err := e.adminState()
	if err != nil {
		return models.GoalRecord{}, err
	}
	if !team.Valid() {
		return models.GoalRecord{}, fmt.Errorf("%w: %q", ErrUnknownTeam, team)
	}

	now := e.clock.Now()
	display := DisplayTime(state, now)
	elapsed := state.QuarterDuration - display
	if elapsed < 0 {
		elapsed = 0
	}
	minute := ((state.Quarter-1)*state.QuarterDuration + elapsed) / 60

	name, number := scorer.Name, scorer.Number
	if scorer.PlayerID != "" && name == "" {
		if p, ok := state.Teams.Side(team).FindPlayer(scorer.PlayerID); ok {
			name = p.Name
			number = p.Number
		}
	}

	goal := models.GoalRecord{
		ID:               uuid.NewString(),
		Team:             team,
		PlayerID:         scorer.PlayerID,
		PlayerName:       name,
		Number:           number,
		Quarter:          state.Quarter,
		ElapsedInQuarter: elapsed,
		MatchMinute:      minute,
		Timestamp:        now.UnixMilli(),
	}

	goals := append(append([]models.GoalRecord(nil), state.Goals...), goal)
	if err := e.write(ctx, matchstore.Patch{
		matchstore.FieldGoals: goals,
		matchstore.FieldScore: models.RecomputeScore(goals),
	}); err != nil {
		return models.GoalRecord{}, err
	}

	log.Info().
		Str("match_id", e.matchID).
		Str("goal_id", goal.ID).
		Str("team", string(team)).
		Int("match_minute", minute).
		Msg("goal recorded")
	return goal, nil
}

// RemoveGoal retracts a goal by id and recomputes the score from the
// remaining entries. Removing an unknown id is a no-op with no write.
func (e *Engine) RemoveGoal(ctx context.Context, goalID string) error {
	state, err := e.adminState()
	if err != nil {
		return err
	}

	goals := make([]models.GoalRecord, 0, len(state.Goals))
	found := false
	for _, g := range state.Goals {
		if g.ID == goalID {
			found = true
			continue
		}
		goals = append(goals, g)
	}
	if !found {
		return nil
	}

	if err := e.write(ctx, matchstore.Patch{
		matchstore.FieldGoals: goals,
		matchstore.FieldScore: models.RecomputeScore(goals),
	}); err != nil {
		return err
	}

	log.Info().
		Str("match_id", e.matchID).
		Str("goal_id", goalID).
		Msg("goal removed")
	return nil
}
