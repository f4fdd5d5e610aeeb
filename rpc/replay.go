package rpc

import (
	"container/list"
	"errors"
	"sync"
	"time"
)

const defaultReplayCapacity = 65536

var errEnvelopeReplayed = errors.New("envelope already used")

type replayEntry struct {
	key  string
	seen time.Time
}

// replayGuard remembers accepted envelope digests until their timestamp can
// no longer pass the skew check.
type replayGuard struct {
	ttl      time.Duration
	capacity int

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List
}

// newReplayGuard keeps digests for twice the skew: an envelope stamped skew
// ahead of the first sighting stays valid that long.
func newReplayGuard(skew time.Duration, capacity int) *replayGuard {
	if capacity <= 0 {
		capacity = defaultReplayCapacity
	}
	return &replayGuard{
		ttl:      2 * skew,
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// claim records key and reports errEnvelopeReplayed when it was already seen
// inside the window.
func (g *replayGuard) claim(key string, now time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.evictExpired(now.Add(-g.ttl))
	if _, ok := g.entries[key]; ok {
		return errEnvelopeReplayed
	}
	for g.order.Len() >= g.capacity {
		g.evictFront()
	}
	g.entries[key] = g.order.PushBack(replayEntry{key: key, seen: now})
	return nil
}

func (g *replayGuard) evictExpired(cutoff time.Time) {
	for front := g.order.Front(); front != nil; front = g.order.Front() {
		if !front.Value.(replayEntry).seen.Before(cutoff) {
			return
		}
		g.evictFront()
	}
}

func (g *replayGuard) evictFront() {
	front := g.order.Front()
	if front == nil {
		return
	}
	g.order.Remove(front)
	delete(g.entries, front.Value.(replayEntry).key)
}

func (g *replayGuard) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.order.Len()
}
