// Package redis stores grid snapshots as JSON documents in Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/redis/rueidis"

	"github.com/hylla/tabula/internal/app"
	"github.com/hylla/tabula/internal/grid"
)

// DefaultPrefix namespaces every key written by Store.
const DefaultPrefix = "tabula"

// document is the stored value of one scope.
type document struct {
	ScopeKey string        `json:"scope_key"`
	SavedAt  time.Time     `json:"saved_at"`
	Snapshot grid.Snapshot `json:"snapshot"`
}

// Store implements app.SnapshotStore on a rueidis client. Each scope lives at
// "<prefix>:grid:<scope>" and the scope index is the set "<prefix>:grid:scopes".
type Store struct {
	client rueidis.Client
	prefix string
	owned  bool
	now    func() time.Time
}

// Open dials addr and returns a store that closes the client on Close.
func Open(addr, prefix string) (*Store, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("redis address is required")
	}
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{addr},
	})
	if err != nil {
		return nil, fmt.Errorf("create redis client: %w", err)
	}
	s := New(client, prefix)
	s.owned = true
	return s, nil
}

// New wraps an existing client.
func New(client rueidis.Client, prefix string) *Store {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix, now: time.Now}
}

// Close releases the client when Open created it.
func (s *Store) Close() error {
	if s.owned {
		s.client.Close()
	}
	return nil
}

func (s *Store) gridKey(scopeKey string) string {
	return s.prefix + ":grid:" + scopeKey
}

func (s *Store) indexKey() string {
	return s.prefix + ":grid:scopes"
}

// Load returns the snapshot stored for scopeKey or app.ErrNotFound.
func (s *Store) Load(ctx context.Context, scopeKey string) (grid.Snapshot, error) {
	raw, err := s.client.Do(ctx, s.client.B().Get().Key(s.gridKey(scopeKey)).Build()).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return grid.Snapshot{}, app.ErrNotFound
		}
		return grid.Snapshot{}, fmt.Errorf("redis get %s: %w", scopeKey, err)
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return grid.Snapshot{}, fmt.Errorf("decode grid %s: %w", scopeKey, err)
	}
	return doc.Snapshot, nil
}

// Save writes the snapshot and records the scope in the index.
func (s *Store) Save(ctx context.Context, scopeKey string, snap grid.Snapshot) error {
	raw, err := json.Marshal(document{ScopeKey: scopeKey, SavedAt: s.now().UTC(), Snapshot: snap})
	if err != nil {
		return fmt.Errorf("encode grid %s: %w", scopeKey, err)
	}
	cmds := rueidis.Commands{
		s.client.B().Set().Key(s.gridKey(scopeKey)).Value(rueidis.BinaryString(raw)).Build(),
		s.client.B().Sadd().Key(s.indexKey()).Member(scopeKey).Build(),
	}
	for _, resp := range s.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			return fmt.Errorf("redis save %s: %w", scopeKey, err)
		}
	}
	return nil
}

// ListScopes returns the indexed scope keys, sorted.
func (s *Store) ListScopes(ctx context.Context) ([]string, error) {
	keys, err := s.client.Do(ctx, s.client.B().Smembers().Key(s.indexKey()).Build()).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("redis list scopes: %w", err)
	}
	slices.Sort(keys)
	return keys, nil
}

// DeleteScope removes a scope and its index entry.
func (s *Store) DeleteScope(ctx context.Context, scopeKey string) error {
	removed, err := s.client.Do(ctx, s.client.B().Del().Key(s.gridKey(scopeKey)).Build()).AsInt64()
	if err != nil {
		return fmt.Errorf("redis delete %s: %w", scopeKey, err)
	}
	if err := s.client.Do(ctx, s.client.B().Srem().Key(s.indexKey()).Member(scopeKey).Build()).Error(); err != nil {
		return fmt.Errorf("redis unindex %s: %w", scopeKey, err)
	}
	if removed == 0 {
		return app.ErrNotFound
	}
	return nil
}
