package geocore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Record is one cached catalog resolution: the generated layer config for an
// id in one language, overrides already applied.
type Record struct {
	ID        string
	Lang      string
	Config    json.RawMessage
	FetchedAt time.Time
}

// Cache stores resolved catalog records shared across resolutions.
type Cache interface {
	Load(ctx context.Context, id, lang string) (record Record, ok bool, err error)
	Save(ctx context.Context, record Record) error
}

// CacheKey is the deterministic key for one id and language.
func CacheKey(id, lang string) (string, error) {
	id = strings.TrimSpace(id)
	lang = strings.TrimSpace(lang)
	if id == "" {
		return "", fmt.Errorf("geocore: cache key requires an id")
	}
	if lang == "" {
		return "", fmt.Errorf("geocore: cache key requires a language")
	}
	return id + "|" + lang, nil
}

// MemoryCache is a process-local Cache guarded by a RWMutex.
type MemoryCache struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{records: map[string]Record{}}
}

func (c *MemoryCache) Load(_ context.Context, id, lang string) (Record, bool, error) {
	key, err := CacheKey(id, lang)
	if err != nil {
		return Record{}, false, err
	}

	c.mu.RLock()
	record, ok := c.records[key]
	c.mu.RUnlock()
	if !ok {
		return Record{}, false, nil
	}
	return cloneRecord(record), true, nil
}

func (c *MemoryCache) Save(_ context.Context, record Record) error {
	key, err := CacheKey(record.ID, record.Lang)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.records[key] = cloneRecord(record)
	c.mu.Unlock()
	return nil
}

// Len reports how many records are cached.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

func cloneRecord(record Record) Record {
	out := record
	if record.Config != nil {
		out.Config = append(json.RawMessage(nil), record.Config...)
	}
	return out
}
