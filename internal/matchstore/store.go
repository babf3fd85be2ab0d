// Package matchstore abstracts the replicated, push-notifying document
// store that holds one MatchState document per match. The engine never
// talks to a concrete backend; it reads snapshots pushed through Subscribe
// and writes through Create/Patch, accepting last-write-wins between
// concurrent writers.
package matchstore

import (
	"context"
	"errors"

	"github.com/lbalbarani-maker/hockey-score/internal/models"
)

var (
	// ErrNotFound is returned when a match document does not exist.
	ErrNotFound = errors.New("match not found")

	// ErrAlreadyExists is returned by Create for an existing match id.
	ErrAlreadyExists = errors.New("match already exists")
)

// Patch is a partial document update: a shallow field merge applied to the
// stored document. A nil value writes an explicit JSON null (used to clear
// startTime). A single Patch call is the only transactional unit the store
// guarantees.
type Patch map[string]any

// Document field names used in patches.
const (
	FieldQuarter         = "quarter"
	FieldQuarterDuration = "quarterDuration"
	FieldRemaining       = "remaining"
	FieldStartTime       = "startTime"
	FieldRunning         = "running"
	FieldStatus          = "status"
	FieldScore           = "score"
	FieldGoals           = "goals"
	FieldAdminPinHash    = "adminPinHash"
	FieldEvent           = "event"
	FieldConfigured      = "configured"
	FieldTeams           = "teams"
	FieldSponsorLogo     = "sponsorLogo"
)

// SnapshotFunc receives complete snapshots of a match document. Delivery
// is at-least-once and always reflects the latest committed write known to
// the backend; intermediate states may be coalesced away.
type SnapshotFunc func(models.MatchState)

// Store is the adapter contract for the shared document store.
type Store interface {
	// Create writes the initial document. ErrAlreadyExists if present.
	Create(ctx context.Context, matchID string, state models.MatchState) error

	// Get reads the current document. ErrNotFound if absent.
	Get(ctx context.Context, matchID string) (*models.MatchState, error)

	// Patch merges partial fields into the document, last write wins.
	// ErrNotFound if the match does not exist.
	Patch(ctx context.Context, matchID string, patch Patch) error

	// Subscribe registers fn for push snapshots of the match. Subscribing
	// to a not-yet-created match is allowed; the first snapshot arrives
	// once the document exists. The returned function unsubscribes.
	Subscribe(ctx context.Context, matchID string, fn SnapshotFunc) (func(), error)
}
