// Package gateway exposes the match engine over HTTP and WebSocket: a
// JSON API for admin mutations and state reads, plus per-match WebSocket
// fan-out of snapshots, clock ticks and ephemeral notices.
package gateway

import (
	"encoding/json"
	"time"

	"github.com/lbalbarani-maker/hockey-score/internal/models"
)

// FrameType discriminates the messages pushed over a match WebSocket.
type FrameType string

const (
	// FrameSnapshot carries the full authoritative state after a store push.
	FrameSnapshot FrameType = "snapshot"

	// FrameTick carries a display update between snapshots.
	FrameTick FrameType = "tick"

	// FrameNotice announces a new ephemeral event (goal or save).
	FrameNotice FrameType = "notice"
)

// Frame is the WebSocket wire envelope.
type Frame struct {
	Type    FrameType       `json:"type"`
	MatchID string          `json:"match_id"`
	Data    json.RawMessage `json:"data"`
	SentAt  time.Time       `json:"sent_at"`
}

// SnapshotPayload is the data of a snapshot frame.
type SnapshotPayload struct {
	State       models.MatchState `json:"state"`
	DisplayTime int               `json:"display_time"`
}

// TickPayload is the data of a tick frame.
type TickPayload struct {
	DisplayTime int                `json:"display_time"`
	Quarter     int                `json:"quarter"`
	Running     bool               `json:"running"`
	Status      models.MatchStatus `json:"status"`
}

// NoticePayload is the data of a notice frame.
type NoticePayload struct {
	Event models.MatchEvent `json:"event"`
}

func newFrame(typ FrameType, matchID string, payload any) (*Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Frame{
		Type:    typ,
		MatchID: matchID,
		Data:    data,
		SentAt:  time.Now(),
	}, nil
}
