package kv

import (
	"container/list"
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type entry struct {
	key      string
	value    string
	expireAt time.Time
}

func (e *entry) weight() int { return len(e.key) + len(e.value) }

// Weighted is an in-memory cache bounded by the total size of its keys and
// values, with LRU eviction and an optional TTL applied on every insert.
type Weighted struct {
	mu   sync.Mutex
	data map[string]*list.Element
	ll   *list.List
	used int
	cap  int
	ttl  time.Duration
}

func NewWeighted(capacityBytes int, ttl time.Duration) *Weighted {
	return &Weighted{
		data: make(map[string]*list.Element),
		ll:   list.New(),
		cap:  capacityBytes,
		ttl:  ttl,
	}
}

func (s *Weighted) Insert(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exp time.Time
	if s.ttl > 0 {
		exp = time.Now().Add(s.ttl)
	}

	if el, ok := s.data[key]; ok {
		old := el.Value.(*entry)
		s.used -= old.weight()
		old.value = value
		old.expireAt = exp
		s.used += old.weight()
		s.ll.MoveToFront(el)
	} else {
		e := &entry{key: key, value: value, expireAt: exp}
		s.data[key] = s.ll.PushFront(e)
		s.used += e.weight()
	}
	s.evictIfNeeded()
}

func (s *Weighted) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.data[key]
	if !ok {
		return "", ErrNotFound
	}
	e := el.Value.(*entry)
	if e.expired(time.Now()) {
		s.removeElement(el)
		return "", ErrNotFound
	}
	s.ll.MoveToFront(el)
	return e.value, nil
}

func (s *Weighted) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.data[key]; ok {
		s.removeElement(el)
	}
}

func (s *Weighted) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// Used reports the current weight in bytes.
func (s *Weighted) Used() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}

// RemoveExpired drops every expired entry and returns how many were removed.
func (s *Weighted) RemoveExpired() int {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, el := range s.data {
		if el.Value.(*entry).expired(now) {
			s.removeElement(el)
			removed++
		}
	}
	return removed
}

// Sweep calls RemoveExpired every interval until ctx is cancelled.
func (s *Weighted) Sweep(ctx context.Context, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := s.RemoveExpired(); n > 0 {
				logger.Debug("removed expired keys", zap.Int("count", n))
			}
		case <-ctx.Done():
			return
		}
	}
}

func (e *entry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && now.After(e.expireAt)
}

func (s *Weighted) evictIfNeeded() {
	for s.used > s.cap && s.ll.Back() != nil {
		s.removeElement(s.ll.Back())
	}
}

func (s *Weighted) removeElement(el *list.Element) {
	e := el.Value.(*entry)
	delete(s.data, e.key)
	s.used -= e.weight()
	s.ll.Remove(el)
}
