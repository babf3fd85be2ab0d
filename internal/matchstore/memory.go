package matchstore

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/lbalbarani-maker/hockey-score/internal/models"
)

// MemoryStore is an in-process Store used by tests and single-node
// deployments. Documents live as raw JSON so patch semantics match the
// replicated backends exactly.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
	subs *subRegistry
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string][]byte),
		subs: newSubRegistry(),
	}
}

func (s *MemoryStore) Create(ctx context.Context, matchID string, state models.MatchState) error {
	doc, err := Merge(nil, stateToPatch(state))
	if err != nil {
		return err
	}

	s.mu.Lock()
	if _, exists := s.docs[matchID]; exists {
		s.mu.Unlock()
		return ErrAlreadyExists
	}
	s.docs[matchID] = doc
	s.mu.Unlock()

	s.notify(matchID, doc)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, matchID string) (*models.MatchState, error) {
	s.mu.RLock()
	doc, exists := s.docs[matchID]
	s.mu.RUnlock()
	if !exists {
		return nil, ErrNotFound
	}
	state, err := models.DecodeState(doc)
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *MemoryStore) Patch(ctx context.Context, matchID string, patch Patch) error {
	s.mu.Lock()
	doc, exists := s.docs[matchID]
	if !exists {
		s.mu.Unlock()
		return ErrNotFound
	}
	merged, err := Merge(doc, patch)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.docs[matchID] = merged
	s.mu.Unlock()

	s.notify(matchID, merged)
	return nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, matchID string, fn SnapshotFunc) (func(), error) {
	sub, unsubscribe := s.subs.add(ctx, matchID, fn)

	// Initial snapshot, mirroring a push store's replay of the current
	// value on subscription.
	s.mu.RLock()
	doc, exists := s.docs[matchID]
	s.mu.RUnlock()
	if exists {
		if state, err := models.DecodeState(doc); err == nil {
			sub.push(state)
		}
	}

	return unsubscribe, nil
}

func (s *MemoryStore) notify(matchID string, doc []byte) {
	state, err := models.DecodeState(doc)
	if err != nil {
		log.Error().Err(err).Str("match_id", matchID).Msg("stored document failed to decode")
		return
	}
	s.subs.notify(matchID, state)
}

// stateToPatch converts a full state into a patch writing every field, so
// document creation reuses the merge path. Absent pointer fields write an
// explicit null, matching what a clearing patch would store.
func stateToPatch(state models.MatchState) Patch {
	patch := Patch{
		FieldQuarter:         state.Quarter,
		FieldQuarterDuration: state.QuarterDuration,
		FieldRemaining:       state.Remaining,
		FieldStartTime:       state.StartTime,
		FieldRunning:         state.Running,
		FieldStatus:          state.Status,
		FieldScore:           state.Score,
		FieldGoals:           state.Goals,
		FieldAdminPinHash:    state.AdminPinHash,
		FieldConfigured:      state.Configured,
		FieldTeams:           state.Teams,
		FieldSponsorLogo:     state.SponsorLogo,
	}
	if state.Event != nil {
		patch[FieldEvent] = state.Event
	} else {
		patch[FieldEvent] = nil
	}
	return patch
}
