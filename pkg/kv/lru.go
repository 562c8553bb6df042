package kv

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRU is a cache bounded by entry count; the least recently used entry is
// evicted when full.
type LRU struct {
	c *lru.Cache[string, string]
}

// NewLRU returns an LRU holding at most capacity entries.
func NewLRU(capacity int) (*LRU, error) {
	c, err := lru.New[string, string](capacity)
	if err != nil {
		return nil, fmt.Errorf("kv: lru capacity %d: %w", capacity, err)
	}
	return &LRU{c: c}, nil
}

func (l *LRU) Insert(key, value string) {
	l.c.Add(key, value)
}

func (l *LRU) Get(key string) (string, error) {
	v, ok := l.c.Get(key)
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (l *LRU) Remove(key string) {
	l.c.Remove(key)
}

func (l *LRU) Len() int {
	return l.c.Len()
}
