package cache

import (
	"fmt"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	count     int64
	expiresAt time.Time
}

// Memory is an in-process Cache used by tests and single-binary
// development setups
type Memory struct {
	mutex   sync.Mutex
	entries map[string]*memoryEntry
}

func NewMemory() *Memory {
	return &Memory{
		entries: map[string]*memoryEntry{},
	}
}

func (c *Memory) Set(key string, value string, ttl time.Duration) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	entry := &memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	c.entries[key] = entry
	return nil
}

func (c *Memory) Get(key string) (string, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	entry := c.getLocked(key)
	if entry == nil {
		return "", fmt.Errorf("failed to get key[%s]: %w", key, ErrorKeyNotFound)
	}
	return entry.value, nil
}

func (c *Memory) Increment(key string, ttl time.Duration) (int64, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	entry := c.getLocked(key)
	if entry == nil {
		entry = &memoryEntry{}
		if ttl > 0 {
			entry.expiresAt = time.Now().Add(ttl)
		}
		c.entries[key] = entry
	}
	entry.count++
	return entry.count, nil
}

func (c *Memory) Del(key string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *Memory) getLocked(key string) *memoryEntry {
	entry, ok := c.entries[key]
	if !ok {
		return nil
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil
	}
	return entry
}

var _ Cache = (*Memory)(nil)
