package canvas

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"
)

// Update types understood by the cache. Anything else is relayed
// to peers but leaves the stored state untouched.
const (
	UpdateAdd    = "add"
	UpdateUpdate = "update"
	UpdateDelete = "delete"
)

// Object is one opaque design object; only its "id" field is interpreted
type Object map[string]any

// Cache: per-project mirror of canvas objects used to bootstrap joiners.
// With a Store attached, projects are loaded on first touch and mutated
// projects are written back by Flush.
type Cache struct {
	mu     sync.Mutex
	states map[string][]Object
	dirty  map[string]struct{}
	store  Store
	logger *zap.Logger
}

// NewCache: store may be nil for a purely in-memory cache
func NewCache(store Store, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		states: make(map[string][]Object),
		dirty:  make(map[string]struct{}),
		store:  store,
		logger: logger,
	}
}

// Apply: folds one canvas update into the project's state.
// Returns true when the update type is one the cache understands.
// When the stored snapshot cannot be loaded the update is skipped and the
// project is left untouched, so the next touch retries the load instead of
// a later Flush overwriting the snapshot with a partial list.
func (c *Cache) Apply(ctx context.Context, projectID, updateType, objectID string, data map[string]any) bool {
	switch updateType {
	case UpdateAdd, UpdateUpdate, UpdateDelete:
	default:
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	objects, err := c.loadLocked(ctx, projectID)
	if err != nil {
		c.logger.Error("canvas update not cached",
			zap.String("project_id", projectID),
			zap.String("update_type", updateType),
			zap.Error(err),
		)
		return true
	}

	switch updateType {
	case UpdateAdd:
		// no duplicate id check
		objects = append(objects, cloneObject(data))
	case UpdateUpdate:
		if i := indexOf(objects, objectID); i != -1 {
			merged := cloneObject(objects[i])
			for k, v := range data {
				merged[k] = v
			}
			objects[i] = merged
		}
	case UpdateDelete:
		if i := indexOf(objects, objectID); i != -1 {
			objects = append(objects[:i], objects[i+1:]...)
		}
	}

	c.states[projectID] = objects
	c.dirty[projectID] = struct{}{}
	return true
}

// Snapshot: copy of the project's objects, empty when nothing is stored
// or the store cannot be read
func (c *Cache) Snapshot(ctx context.Context, projectID string) []Object {
	c.mu.Lock()
	defer c.mu.Unlock()

	objects, err := c.loadLocked(ctx, projectID)
	if err != nil {
		c.logger.Error("load canvas snapshot", zap.String("project_id", projectID), zap.Error(err))
		return []Object{}
	}
	snapshot := make([]Object, len(objects))
	for i, obj := range objects {
		snapshot[i] = cloneObject(obj)
	}
	return snapshot
}

// Count: number of objects held in memory for the project
func (c *Cache) Count(projectID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.states[projectID])
}

// loadLocked: the project's in-memory state, pulling it from the store on
// first touch. A missing snapshot is an empty project; any other store
// error is returned and nothing is cached.
func (c *Cache) loadLocked(ctx context.Context, projectID string) ([]Object, error) {
	if objects, ok := c.states[projectID]; ok {
		return objects, nil
	}
	if c.store == nil {
		return nil, nil
	}

	objects, err := c.store.Load(ctx, projectID)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("load %s: %w", projectID, err)
	}
	c.states[projectID] = objects
	return objects, nil
}

// Flush: writes every project mutated since the last flush to the store.
// Projects that fail to save stay dirty for the next attempt.
func (c *Cache) Flush(ctx context.Context) error {
	if c.store == nil {
		return nil
	}

	c.mu.Lock()
	pending := make(map[string][]Object, len(c.dirty))
	for projectID := range c.dirty {
		objects := c.states[projectID]
		snapshot := make([]Object, len(objects))
		for i, obj := range objects {
			snapshot[i] = cloneObject(obj)
		}
		pending[projectID] = snapshot
	}
	c.dirty = make(map[string]struct{})
	c.mu.Unlock()

	var errs []error
	for projectID, objects := range pending {
		if err := c.store.Save(ctx, projectID, objects); err != nil {
			c.mu.Lock()
			c.dirty[projectID] = struct{}{}
			c.mu.Unlock()
			errs = append(errs, fmt.Errorf("save %s: %w", projectID, err))
		}
	}
	return errors.Join(errs...)
}

// Dirty: number of projects waiting for Flush
func (c *Cache) Dirty() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.dirty)
}

func indexOf(objects []Object, objectID string) int {
	for i, obj := range objects {
		if id, ok := objectIDOf(obj); ok && id == objectID {
			return i
		}
	}
	return -1
}

// objectIDOf: ids arrive as JSON strings or numbers
func objectIDOf(obj Object) (string, bool) {
	switch v := obj["id"].(type) {
	case string:
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	default:
		return "", false
	}
}

func cloneObject(src map[string]any) Object {
	dst := make(Object, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
