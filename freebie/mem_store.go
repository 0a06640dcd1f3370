package freebie

import (
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"
)

// entry is the per-client counter within the current window.
type entry struct {
	count       int
	windowStart time.Time
}

type memStore struct {
	freeRequests int
	window       time.Duration
	clock        clock.Clock

	mtx     sync.Mutex
	entries map[string]*entry

	quit chan struct{}
	stop sync.Once
	wg   sync.WaitGroup
}

// A compile time flag to ensure the memStore satisfies the DB interface.
var _ DB = (*memStore)(nil)

// NewMemStore creates a new in-memory freebie store that grants every client
// up to freeRequests free passes per window. Entries are created lazily and
// a background sweeper reclaims them once they are two windows old. With
// freeRequests set to zero the store never admits and starts no sweeper.
func NewMemStore(freeRequests int, window time.Duration,
	clk clock.Clock) DB {

	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	if window <= 0 {
		window = DefaultWindow
	}

	store := &memStore{
		freeRequests: freeRequests,
		window:       window,
		clock:        clk,
		entries:      make(map[string]*entry),
		quit:         make(chan struct{}),
	}

	if freeRequests > 0 {
		store.wg.Add(1)
		go store.sweep()
	}

	return store
}

// Admit reports whether the client may pass for free, consuming one unit of
// quota if so.
//
// NOTE: This is part of the DB interface.
func (m *memStore) Admit(clientID string) bool {
	if m.freeRequests == 0 {
		return false
	}

	m.mtx.Lock()
	defer m.mtx.Unlock()

	now := m.clock.Now()
	e, ok := m.entries[clientID]
	if !ok || now.Sub(e.windowStart) > m.window {
		e = &entry{windowStart: now}
		m.entries[clientID] = e
	}

	if e.count < m.freeRequests {
		e.count++
		return true
	}

	return false
}

// sweep periodically evicts entries whose window ended more than one full
// window ago. Expired entries would be reset on their next Admit anyway, the
// sweeper only bounds the memory held for clients that never come back.
func (m *memStore) sweep() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.window)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.expire(m.clock.Now())

		case <-m.quit:
			return
		}
	}
}

// expire removes all entries older than twice the window.
func (m *memStore) expire(now time.Time) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	for clientID, e := range m.entries {
		if now.Sub(e.windowStart) > 2*m.window {
			delete(m.entries, clientID)
		}
	}
}

// Stop shuts down the sweeper.
//
// NOTE: This is part of the DB interface.
func (m *memStore) Stop() {
	m.stop.Do(func() {
		close(m.quit)
	})
	m.wg.Wait()
}
