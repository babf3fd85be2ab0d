package matchstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/lbalbarani-maker/hockey-score/internal/models"
)

// NATSConfig holds configuration for the JetStream-backed store.
type NATSConfig struct {
	URL           string
	Bucket        string
	Description   string
	Replicas      int
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultNATSConfig returns default JetStream store configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Bucket:        "MATCHES",
		Description:   "live match documents",
		Replicas:      1,
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// NATSStore keeps each match document as one key in a JetStream Key-Value
// bucket. Watchers on a key deliver push snapshots to every subscriber;
// patches are read-merge-put, so concurrent writers resolve last-write-wins
// exactly like the rest of the adapters.
type NATSStore struct {
	nc *nats.Conn
	kv jetstream.KeyValue
}

// NewNATSStore connects to NATS and ensures the match bucket exists.
func NewNATSStore(ctx context.Context, config NATSConfig) (*NATSStore, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      config.Bucket,
		Description: config.Description,
		Replicas:    config.Replicas,
		History:     1,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure bucket %s: %w", config.Bucket, err)
	}

	log.Info().Str("bucket", config.Bucket).Str("url", config.URL).Msg("NATS match store ready")
	return &NATSStore{nc: nc, kv: kv}, nil
}

func (s *NATSStore) Create(ctx context.Context, matchID string, state models.MatchState) error {
	doc, err := Merge(nil, stateToPatch(state))
	if err != nil {
		return err
	}
	if _, err := s.kv.Create(ctx, matchID, doc); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create match %s: %w", matchID, err)
	}
	return nil
}

func (s *NATSStore) Get(ctx context.Context, matchID string) (*models.MatchState, error) {
	entry, err := s.kv.Get(ctx, matchID)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get match %s: %w", matchID, err)
	}
	state, err := models.DecodeState(entry.Value())
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *NATSStore) Patch(ctx context.Context, matchID string, patch Patch) error {
	entry, err := s.kv.Get(ctx, matchID)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("read match %s: %w", matchID, err)
	}
	merged, err := Merge(entry.Value(), patch)
	if err != nil {
		return err
	}
	// Unconditional put: last write wins between concurrent admins, the
	// store's accepted consistency model.
	if _, err := s.kv.Put(ctx, matchID, merged); err != nil {
		return fmt.Errorf("patch match %s: %w", matchID, err)
	}
	return nil
}

func (s *NATSStore) Subscribe(ctx context.Context, matchID string, fn SnapshotFunc) (func(), error) {
	watchCtx, cancel := context.WithCancel(ctx)
	watcher, err := s.kv.Watch(watchCtx, matchID)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("watch match %s: %w", matchID, err)
	}

	go func() {
		defer watcher.Stop()
		for {
			select {
			case <-watchCtx.Done():
				return
			case entry, ok := <-watcher.Updates():
				if !ok {
					return
				}
				if entry == nil {
					// Initial replay complete.
					continue
				}
				if entry.Operation() != jetstream.KeyValuePut {
					continue
				}
				state, err := models.DecodeState(entry.Value())
				if err != nil {
					log.Error().Err(err).Str("match_id", matchID).Msg("received undecodable snapshot")
					continue
				}
				fn(state)
			}
		}
	}()

	return cancel, nil
}

// Close releases the NATS connection.
func (s *NATSStore) Close() {
	s.nc.Close()
}
