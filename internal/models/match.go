package models

import (
	"time"
)

// MatchStatus is the coarse lifecycle flag of a match. A match stays
// "active" while the clock is merely stopped between plays; "paused" means
// the admin (or an expired quarter) stopped it, "finished" is terminal.
type MatchStatus string

const (
	StatusActive   MatchStatus = "active"
	StatusPaused   MatchStatus = "paused"
	StatusFinished MatchStatus = "finished"
)

// TeamSide identifies one of the two teams in a match.
type TeamSide string

const (
	TeamOne TeamSide = "team1"
	TeamTwo TeamSide = "team2"
)

// Valid reports whether the side is one of the two known teams.
func (s TeamSide) Valid() bool {
	return s == TeamOne || s == TeamTwo
}

const (
	// DefaultQuarterDuration is the seed quarter length for new matches.
	DefaultQuarterDuration = 600

	// MinQuarter and MaxQuarter bound the quarter field.
	MinQuarter = 1
	MaxQuarter = 4
)

// MatchState is the single shared document for one match. Every subscriber
// receives complete snapshots of it; admin clients mutate it through
// partial patches that always bundle a transition's full field set.
type MatchState struct {
	Quarter         int          `json:"quarter"`
	QuarterDuration int          `json:"quarterDuration"`
	Remaining       int          `json:"remaining"`
	StartTime       *int64       `json:"startTime"` // epoch millis; nil while the clock is stopped
	Running         bool         `json:"running"`
	Status          MatchStatus  `json:"status"`
	Score           Score        `json:"score"`
	Goals           []GoalRecord `json:"goals"`
	AdminPinHash    string       `json:"adminPinHash,omitempty"`
	Event           *MatchEvent  `json:"event,omitempty"`
	Configured      bool         `json:"configured"`
	Teams           Teams        `json:"teams"`
	SponsorLogo     string       `json:"sponsorLogo,omitempty"`
}

// Score holds both team counters. It is always a derived value: the
// per-team count of ledger entries, never incremented in place.
type Score struct {
	Team1 int `json:"team1"`
	Team2 int `json:"team2"`
}

// Of returns the counter for a side.
func (s Score) Of(side TeamSide) int {
	if side == TeamTwo {
		return s.Team2
	}
	return s.Team1
}

// GoalRecord is one entry of the append-only goal ledger. Records are
// immutable once written; the only permitted change is removal by id.
type GoalRecord struct {
	ID               string   `json:"id"`
	Team             TeamSide `json:"team"`
	PlayerID         string   `json:"playerId,omitempty"`
	PlayerName       string   `json:"playerName"`
	Number           string   `json:"number,omitempty"`
	Quarter          int      `json:"quarter"`
	ElapsedInQuarter int      `json:"elapsedInQuarter"`
	MatchMinute      int      `json:"matchMinute"`
	Timestamp        int64    `json:"timestamp"` // epoch millis
}

// EventKind is the type of an ephemeral notice.
type EventKind string

const (
	EventGoal EventKind = "goal"
	EventSave EventKind = "save"
)

// MatchEvent is the single overwritable notice slot. Consumers detect a
// new occurrence by the timestamp changing, not by type or team, since the
// same kind can legitimately recur.
type MatchEvent struct {
	Type      EventKind `json:"type"`
	Team      TeamSide  `json:"team,omitempty"`
	Timestamp int64     `json:"timestamp"` // epoch millis
}

// Team holds the branding and roster of one side. Roster editing is an
// external concern; the engine only reads it to stamp goal records.
type Team struct {
	Name    string   `json:"name"`
	Color   string   `json:"color"`
	Logo    string   `json:"logo,omitempty"`
	Players []Player `json:"players,omitempty"`
}

// Teams bundles both sides.
type Teams struct {
	Team1 Team `json:"team1"`
	Team2 Team `json:"team2"`
}

// Side returns the team for a side.
func (t Teams) Side(side TeamSide) Team {
	if side == TeamTwo {
		return t.Team2
	}
	return t.Team1
}

// FindPlayer looks up a roster entry by id.
func (t Team) FindPlayer(id string) (Player, bool) {
	for _, p := range t.Players {
		if p.ID == id {
			return p, true
		}
	}
	return Player{}, false
}

// Player is a roster entry.
type Player struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Number   string `json:"number,omitempty"`
	Position string `json:"position,omitempty"`
}

// RecomputeScore folds the ledger into a score. This is the only way a
// score value is ever produced, which makes score drift impossible no
// matter how concurrent admin writes interleave.
func RecomputeScore(goals []GoalRecord) Score {
	var s Score
	for _, g := range goals {
		switch g.Team {
		case TeamOne:
			s.Team1++
		case TeamTwo:
			s.Team2++
		}
	}
	return s
}

// NewMatchState returns the seed document written on first admin visit to
// a not-yet-existing match id.
func NewMatchState() MatchState {
	return MatchState{
		Quarter:         1,
		QuarterDuration: DefaultQuarterDuration,
		Remaining:       DefaultQuarterDuration,
		StartTime:       nil,
		Running:         false,
		Status:          StatusActive,
		Score:           Score{},
		Goals:           []GoalRecord{},
		Configured:      false,
		Teams:           DefaultTeams(),
	}
}

// DefaultTeams returns the placeholder branding used until setup completes.
func DefaultTeams() Teams {
	return Teams{
		Team1: Team{Name: "Equipo Local", Color: "#FF0000"},
		Team2: Team{Name: "Equipo Visitante", Color: "#0000FF"},
	}
}

// StartTimeAsTime converts the persisted epoch-millis start instant.
// Returns the zero time when the clock is stopped.
func (m *MatchState) StartTimeAsTime() time.Time {
	if m.StartTime == nil {
		return time.Time{}
	}
	return time.UnixMilli(*m.StartTime)
}

// Provisioned reports whether an admin PIN has been set for the match.
// Before provisioning nobody holds write capability, which forces setup to
// complete before any mutation beyond the document's own creation.
func (m *MatchState) Provisioned() bool {
	return m.AdminPinHash != ""
}
