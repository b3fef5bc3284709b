package snapshotstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/flarecast/internal/domain/insight"
)

// ValkeyStore persists insight snapshots using a Valkey-compatible database.
type ValkeyStore struct {
	client valkey.Client
	prefix string
	ttl    time.Duration
}

// NewValkeyStore constructs a new store backed by Valkey.
func NewValkeyStore(client valkey.Client, prefix string, ttl time.Duration) *ValkeyStore {
	if prefix == "" {
		prefix = "flarecast"
	}
	return &ValkeyStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *ValkeyStore) Save(ctx context.Context, userID string, state insight.State) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}
	builder := s.client.B().Set().Key(s.stateKey(userID)).Value(string(payload))
	var cmd valkey.Completed
	if s.ttl > 0 {
		ttl := s.ttl
		if ttl < time.Second {
			ttl = time.Second
		}
		cmd = builder.Ex(ttl).Build()
	} else {
		cmd = builder.Build()
	}
	return s.client.Do(ctx, cmd).Error()
}

func (s *ValkeyStore) Load(ctx context.Context, userID string) (insight.State, bool, error) {
	payload, err := s.client.Do(ctx, s.client.B().Get().Key(s.stateKey(userID)).Build()).ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return insight.State{}, false, nil
		}
		return insight.State{}, false, err
	}
	var state insight.State
	if err := json.Unmarshal([]byte(payload), &state); err != nil {
		return insight.State{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return state, true, nil
}

func (s *ValkeyStore) Delete(ctx context.Context, userID string) error {
	return s.client.Do(ctx, s.client.B().Del().Key(s.stateKey(userID)).Build()).Error()
}

func (s *ValkeyStore) stateKey(userID string) string {
	return fmt.Sprintf("%s:state:%s", s.prefix, userID)
}

var _ insight.SnapshotStore = (*ValkeyStore)(nil)
