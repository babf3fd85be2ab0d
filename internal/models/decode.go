package models

import (
	"encoding/json"
	"fmt"
)

// DecodeState unmarshals a raw match document and normalizes it.
// Documents written by older clients stored the countdown checkpoint under
// `time` instead of `remaining` and omitted several newer fields, so
// decoding tolerates both shapes.
func DecodeState(data []byte) (MatchState, error) {
	var st MatchState
	if err := json.Unmarshal(data, &st); err != nil {
		return MatchState{}, fmt.Errorf("decode match state: %w", err)
	}

	// Presence probe: remaining may legitimately be zero, so absence has
	// to be detected separately from the zero value.
	var probe struct {
		Remaining       *int `json:"remaining"`
		LegacyTime      *int `json:"time"`
		QuarterDuration *int `json:"quarterDuration"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return MatchState{}, fmt.Errorf("decode match state: %w", err)
	}

	remaining := probe.Remaining
	if remaining == nil {
		remaining = probe.LegacyTime
	}

	if probe.QuarterDuration == nil {
		if remaining != nil {
			st.QuarterDuration = *remaining
		} else {
			st.QuarterDuration = DefaultQuarterDuration
		}
	}
	if remaining != nil {
		st.Remaining = *remaining
	} else {
		st.Remaining = st.QuarterDuration
	}

	st.normalize()
	return st, nil
}

func (m *MatchState) normalize() {
	if m.Quarter < MinQuarter {
		m.Quarter = MinQuarter
	}
	if m.QuarterDuration <= 0 {
		m.QuarterDuration = DefaultQuarterDuration
	}
	if m.Remaining < 0 {
		m.Remaining = 0
	}
	if m.Status == "" {
		m.Status = StatusActive
	}
	if m.Goals == nil {
		m.Goals = []GoalRecord{}
	}
	if m.Teams.Team1.Name == "" && m.Teams.Team2.Name == "" {
		m.Teams = DefaultTeams()
	}
	// running==true without a start instant cannot be reconciled into a
	// live countdown; treat it as stopped.
	if m.Running && m.StartTime == nil {
		m.Running = false
	}
}
