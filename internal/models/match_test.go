package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecomputeScore(t *testing.T) {
	goals := []GoalRecord{
		{ID: "a", Team: TeamOne},
		{ID: "b", Team: TeamTwo},
		{ID: "c", Team: TeamOne},
		{ID: "d", Team: "bogus"},
	}

	score := RecomputeScore(goals)
	assert.Equal(t, 2, score.Team1)
	assert.Equal(t, 1, score.Team2)
}

func TestRecomputeScoreEmpty(t *testing.T) {
	assert.Equal(t, Score{}, RecomputeScore(nil))
}

func TestNewMatchState(t *testing.T) {
	state := NewMatchState()

	assert.Equal(t, 1, state.Quarter)
	assert.Equal(t, DefaultQuarterDuration, state.QuarterDuration)
	assert.Equal(t, DefaultQuarterDuration, state.Remaining)
	assert.Nil(t, state.StartTime)
	assert.False(t, state.Running)
	assert.Equal(t, StatusActive, state.Status)
	assert.False(t, state.Configured)
	assert.False(t, state.Provisioned())
	assert.NotNil(t, state.Goals)
	assert.Equal(t, "Equipo Local", state.Teams.Team1.Name)
	assert.Equal(t, "Equipo Visitante", state.Teams.Team2.Name)
}

func TestDecodeStateLegacyTimeField(t *testing.T) {
	// Documents written before the remaining rename carry "time" instead.
	doc := []byte(`{"quarter":2,"time":480,"running":false,"status":"paused"}`)

	state, err := DecodeState(doc)
	require.NoError(t, err)

	assert.Equal(t, 480, state.Remaining)
	assert.Equal(t, 480, state.QuarterDuration, "duration falls back to remaining when absent")
	assert.Equal(t, 2, state.Quarter)
}

func TestDecodeStateRemainingWinsOverLegacy(t *testing.T) {
	doc := []byte(`{"remaining":300,"time":999,"quarterDuration":600}`)

	state, err := DecodeState(doc)
	require.NoError(t, err)

	assert.Equal(t, 300, state.Remaining)
	assert.Equal(t, 600, state.QuarterDuration)
}

func TestDecodeStateDefaults(t *testing.T) {
	state, err := DecodeState([]byte(`{}`))
	require.NoError(t, err)

	assert.Equal(t, 1, state.Quarter)
	assert.Equal(t, DefaultQuarterDuration, state.QuarterDuration)
	assert.Equal(t, StatusActive, state.Status)
	assert.NotNil(t, state.Goals)
	assert.Equal(t, DefaultTeams(), state.Teams)
}

func TestDecodeStateRunningWithoutAnchorIsStopped(t *testing.T) {
	doc := []byte(`{"remaining":500,"running":true,"startTime":null}`)

	state, err := DecodeState(doc)
	require.NoError(t, err)

	assert.False(t, state.Running, "running without a start anchor cannot be reconciled")
}

func TestFindPlayer(t *testing.T) {
	team := Team{Players: []Player{
		{ID: "p1", Name: "Ana", Number: "7"},
		{ID: "p2", Name: "Luz", Number: "10"},
	}}

	p, ok := team.FindPlayer("p2")
	require.True(t, ok)
	assert.Equal(t, "Luz", p.Name)

	_, ok = team.FindPlayer("missing")
	assert.False(t, ok)
}

func TestScoreOf(t *testing.T) {
	s := Score{Team1: 3, Team2: 1}
	assert.Equal(t, 3, s.Of(TeamOne))
	assert.Equal(t, 1, s.Of(TeamTwo))
}
