package stats

import (
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/lntypes"
)

// DefaultRecentCap is the maximum number of payments kept in the recent
// payments buffer.
const DefaultRecentCap = 100

// PaymentEvent is one settled payment as it appears in the recent payments
// buffer.
type PaymentEvent struct {
	Endpoint    string    `json:"endpoint"`
	AmountSats  int64     `json:"amountSats"`
	PayerID     string    `json:"payerId"`
	PaymentHash string    `json:"paymentHash"`
	Timestamp   time.Time `json:"timestamp"`
}

// EndpointStats aggregates the traffic of a single endpoint.
type EndpointStats struct {
	Revenue  int64 `json:"revenue"`
	Requests int64 `json:"requests"`
	Paid     int64 `json:"paid"`
	Free     int64 `json:"free"`
}

// Snapshot is a point-in-time copy of all counters. Mutating a snapshot has
// no effect on the live recorder.
type Snapshot struct {
	TotalRevenue   int64                    `json:"totalRevenue"`
	TotalRequests  int64                    `json:"totalRequests"`
	TotalPaid      int64                    `json:"totalPaid"`
	UniquePayers   int                      `json:"uniquePayers"`
	Endpoints      map[string]EndpointStats `json:"endpoints"`
	RecentPayments []PaymentEvent           `json:"recentPayments"`
}

// Recorder keeps in-memory traffic and revenue counters. It is written once
// per admitted request and read by the dashboard and metrics projections,
// all under a single mutex since every critical section is a handful of map
// operations.
type Recorder struct {
	clock     clock.Clock
	recentCap int

	mtx           sync.Mutex
	totalRevenue  int64
	totalRequests int64
	totalPaid     int64
	payers        map[string]struct{}
	endpoints     map[string]*EndpointStats

	// recent holds the latest payments, oldest first, trimmed to
	// recentCap as part of every insert.
	recent []PaymentEvent

	// paidTimes holds the timestamps of recent paid admissions for the
	// rolling payments-per-minute gauge, pruned on both insert and read.
	paidTimes []time.Time
}

// NewRecorder creates an empty stats recorder.
func NewRecorder(clk clock.Clock) *Recorder {
	if clk == nil {
		clk = clock.NewDefaultClock()
	}

	return &Recorder{
		clock:     clk,
		recentCap: DefaultRecentCap,
		payers:    make(map[string]struct{}),
		endpoints: make(map[string]*EndpointStats),
	}
}

// Record tallies one admitted request. Paid admissions with a positive
// amount count towards revenue, the payer set and the recent payments
// buffer, everything else counts as free.
func (r *Recorder) Record(endpoint string, paid bool, amountSats int64,
	payerID string, paymentHash lntypes.Hash) {

	r.mtx.Lock()
	defer r.mtx.Unlock()

	r.totalRequests++

	endpointStats, ok := r.endpoints[endpoint]
	if !ok {
		endpointStats = &EndpointStats{}
		r.endpoints[endpoint] = endpointStats
	}
	endpointStats.Requests++

	if !paid || amountSats <= 0 {
		endpointStats.Free++
		return
	}

	now := r.clock.Now()

	r.totalRevenue += amountSats
	r.totalPaid++
	endpointStats.Revenue += amountSats
	endpointStats.Paid++
	r.payers[payerID] = struct{}{}

	r.recent = append(r.recent, PaymentEvent{
		Endpoint:    endpoint,
		AmountSats:  amountSats,
		PayerID:     payerID,
		PaymentHash: paymentHash.String(),
		Timestamp:   now,
	})
	if len(r.recent) > r.recentCap {
		r.recent = r.recent[len(r.recent)-r.recentCap:]
	}

	r.paidTimes = append(r.paidTimes, now)
	r.prunePaidTimes(now)
}

// Snapshot returns a copy of all counters with the recent payments ordered
// newest first.
func (r *Recorder) Snapshot() Snapshot {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	endpoints := make(map[string]EndpointStats, len(r.endpoints))
	for path, endpointStats := range r.endpoints {
		endpoints[path] = *endpointStats
	}

	recent := make([]PaymentEvent, len(r.recent))
	for i, event := range r.recent {
		recent[len(r.recent)-1-i] = event
	}

	return Snapshot{
		TotalRevenue:   r.totalRevenue,
		TotalRequests:  r.totalRequests,
		TotalPaid:      r.totalPaid,
		UniquePayers:   len(r.payers),
		Endpoints:      endpoints,
		RecentPayments: recent,
	}
}

// PaymentsPerMinute returns the number of paid admissions within the last
// rolling 60 seconds.
func (r *Recorder) PaymentsPerMinute() int {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	r.prunePaidTimes(r.clock.Now())
	return len(r.paidTimes)
}

// prunePaidTimes drops timestamps older than one minute. Callers must hold
// the mutex.
func (r *Recorder) prunePaidTimes(now time.Time) {
	cutoff := now.Add(-time.Minute)
	firstLive := 0
	for firstLive < len(r.paidTimes) &&
		!r.paidTimes[firstLive].After(cutoff) {

		firstLive++
	}
	r.paidTimes = r.paidTimes[firstLive:]
}
