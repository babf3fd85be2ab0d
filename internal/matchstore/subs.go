package matchstore

import (
	"context"
	"sync"

	"github.com/lbalbarani-maker/hockey-score/internal/models"
)

// subRegistry fans snapshots out to per-match subscribers. Each subscriber
// gets a coalescing channel of depth one: an undelivered snapshot is
// replaced by a newer one, so slow consumers never block writers and still
// end on the latest committed state.
type subRegistry struct {
	mu   sync.Mutex
	subs map[string]map[*docSub]bool
}

type docSub struct {
	ch   chan models.MatchState
	done chan struct{}
}

func newSubRegistry() *subRegistry {
	return &subRegistry{subs: make(map[string]map[*docSub]bool)}
}

// add registers fn for a match and returns the unsubscribe function.
func (r *subRegistry) add(ctx context.Context, matchID string, fn SnapshotFunc) (*docSub, func()) {
	sub := &docSub{
		ch:   make(chan models.MatchState, 1),
		done: make(chan struct{}),
	}

	r.mu.Lock()
	if r.subs[matchID] == nil {
		r.subs[matchID] = make(map[*docSub]bool)
	}
	r.subs[matchID][sub] = true
	r.mu.Unlock()

	go func() {
		for {
			select {
			case <-sub.done:
				return
			case <-ctx.Done():
				return
			case state := <-sub.ch:
				fn(state)
			}
		}
	}()

	unsubscribe := func() {
		r.mu.Lock()
		if subs, ok := r.subs[matchID]; ok {
			if subs[sub] {
				delete(subs, sub)
				close(sub.done)
			}
			if len(subs) == 0 {
				delete(r.subs, matchID)
			}
		}
		r.mu.Unlock()
	}
	return sub, unsubscribe
}

// notify pushes a snapshot to every subscriber of the match.
func (r *subRegistry) notify(matchID string, state models.MatchState) {
	r.mu.Lock()
	targets := make([]*docSub, 0, len(r.subs[matchID]))
	for sub := range r.subs[matchID] {
		targets = append(targets, sub)
	}
	r.mu.Unlock()

	for _, sub := range targets {
		sub.push(state)
	}
}

// push replaces any undelivered snapshot with the newer one.
func (d *docSub) push(state models.MatchState) {
	for {
		select {
		case d.ch <- state:
			return
		default:
			select {
			case <-d.ch:
			default:
			}
		}
	}
}
