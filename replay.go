package toll

import (
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/lntypes"
)

// replayGuard is an in-memory seen set keyed by payment hash that turns
// credentials into single-use ones. Entries are swept once they outlive the
// macaroon expiry, at which point the expires_at caveat rejects the
// credential anyway. The set does not survive restarts.
type replayGuard struct {
	clock clock.Clock
	ttl   time.Duration

	mtx  sync.Mutex
	seen map[lntypes.Hash]time.Time

	quit chan struct{}
	stop sync.Once
	wg   sync.WaitGroup
}

func newReplayGuard(ttl time.Duration, clk clock.Clock) *replayGuard {
	guard := &replayGuard{
		clock: clk,
		ttl:   ttl,
		seen:  make(map[lntypes.Hash]time.Time),
		quit:  make(chan struct{}),
	}

	guard.wg.Add(1)
	go guard.sweep()

	return guard
}

// admit reports whether the payment hash is fresh, marking it as seen if so.
func (g *replayGuard) admit(paymentHash lntypes.Hash) bool {
	g.mtx.Lock()
	defer g.mtx.Unlock()

	if _, ok := g.seen[paymentHash]; ok {
		return false
	}

	g.seen[paymentHash] = g.clock.Now()
	return true
}

// sweep periodically drops entries older than the credential lifetime.
func (g *replayGuard) sweep() {
	defer g.wg.Done()

	ticker := time.NewTicker(g.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.expire(g.clock.Now())

		case <-g.quit:
			return
		}
	}
}

// expire removes all entries older than the ttl.
func (g *replayGuard) expire(now time.Time) {
	g.mtx.Lock()
	defer g.mtx.Unlock()

	for paymentHash, seenAt := range g.seen {
		if now.Sub(seenAt) > g.ttl {
			delete(g.seen, paymentHash)
		}
	}
}

// stopSweep shuts down the sweeper. Safe to call more than once.
func (g *replayGuard) stopSweep() {
	g.stop.Do(func() {
		close(g.quit)
	})
	g.wg.Wait()
}
