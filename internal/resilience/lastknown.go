package resilience

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// LastKnownGood remembers the most recent successful result per key in a
// small bounded map. It backs read fallbacks while a dependency is out.
type LastKnownGood[K comparable, V any] struct {
	entries *lru.Cache[K, V]
}

func NewLastKnownGood[K comparable, V any](size int) (*LastKnownGood[K, V], error) {
	if size <= 0 {
		size = 1
	}
	entries, err := lru.New[K, V](size)
	if err != nil {
		return nil, err
	}
	return &LastKnownGood[K, V]{entries: entries}, nil
}

func (l *LastKnownGood[K, V]) Remember(key K, value V) {
	l.entries.Add(key, value)
}

func (l *LastKnownGood[K, V]) Recall(key K) (V, bool) {
	return l.entries.Get(key)
}

func (l *LastKnownGood[K, V]) Forget(key K) {
	l.entries.Remove(key)
}
