package canvas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

var ErrNotFound = errors.New("canvas: not found")

// Store persists full canvas snapshots. Save is an idempotent upsert.
type Store interface {
	Load(ctx context.Context, projectID string) ([]Object, error)
	Save(ctx context.Context, projectID string, objects []Object) error
	Close() error
}

// Open: builds the store for a driver name. "memory" and "" mean no store,
// the cache is then ephemeral.
func Open(driver, dsn string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "memory", "none":
		return nil, nil
	case "sqlite":
		return NewSQLiteStore(dsn)
	case "postgres", "postgresql":
		return NewPostgresStoreFromDSN(dsn, nil)
	default:
		return nil, fmt.Errorf("unknown canvas store driver %q", driver)
	}
}

// MemoryStore keeps snapshots in process, for tests and local usage
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: map[string][]byte{},
	}
}

func (s *MemoryStore) Load(_ context.Context, projectID string) ([]Object, error) {
	s.mu.RLock()
	raw, ok := s.snapshots[projectID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decodeObjects(raw)
}

func (s *MemoryStore) Save(_ context.Context, projectID string, objects []Object) error {
	raw, err := encodeObjects(objects)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[projectID] = raw
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func encodeObjects(objects []Object) ([]byte, error) {
	if objects == nil {
		objects = []Object{}
	}
	raw, err := json.Marshal(objects)
	if err != nil {
		return nil, fmt.Errorf("encode canvas snapshot: %w", err)
	}
	return raw, nil
}

func decodeObjects(raw []byte) ([]Object, error) {
	var objects []Object
	if err := json.Unmarshal(raw, &objects); err != nil {
		return nil, fmt.Errorf("decode canvas snapshot: %w", err)
	}
	if objects == nil {
		objects = []Object{}
	}
	return objects, nil
}
