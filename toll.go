package toll

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/lightninglabs/toll/freebie"
	"github.com/lightninglabs/toll/l402"
	"github.com/lightninglabs/toll/mint"
	"github.com/lightninglabs/toll/stats"
	"github.com/lightninglabs/toll/wallet"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// dashboardRecentCap is the maximum number of recent payments the dashboard
// view exposes.
const dashboardRecentCap = 20

// Toll is a per-request payment gate. One booth is created per protected
// API, its Gate method then wraps any number of routes. All exported methods
// are safe for concurrent use.
type Toll struct {
	cfg      *Config
	stats    *stats.Recorder
	replay   *replayGuard
	registry *prometheus.Registry

	// freebies collects the per-route free tier stores so Close can shut
	// down their sweepers.
	freebiesMtx sync.Mutex
	freebies    []freebie.DB

	watcherWg sync.WaitGroup
	quit      chan struct{}
	stop      sync.Once
}

// New creates a toll booth from the given config. The wallet and a secret of
// at least MinSecretLen bytes are required, everything else falls back to
// the documented defaults.
func New(cfg *Config) (*Toll, error) {
	if cfg.Wallet == nil {
		return nil, fmt.Errorf("toll: config without wallet")
	}
	if len(cfg.Secret) < MinSecretLen {
		return nil, fmt.Errorf("toll: secret must be at least %d "+
			"bytes, got %d", MinSecretLen, len(cfg.Secret))
	}

	// Work on a copy so we can fill in defaults without surprising the
	// caller.
	cfgCopy := *cfg
	if cfgCopy.DefaultSats <= 0 {
		cfgCopy.DefaultSats = DefaultSats
	}
	if cfgCopy.InvoiceExpiry <= 0 {
		cfgCopy.InvoiceExpiry = DefaultInvoiceExpiry
	}
	if cfgCopy.MacaroonExpiry <= 0 {
		cfgCopy.MacaroonExpiry = DefaultMacaroonExpiry
	}
	if cfgCopy.Clock == nil {
		cfgCopy.Clock = clock.NewDefaultClock()
	}

	t := &Toll{
		cfg:      &cfgCopy,
		stats:    stats.NewRecorder(cfgCopy.Clock),
		registry: prometheus.NewRegistry(),
		quit:     make(chan struct{}),
	}
	if cfgCopy.ReplayProtection {
		t.replay = newReplayGuard(
			cfgCopy.MacaroonExpiry, cfgCopy.Clock,
		)
	}
	t.registry.MustRegister(newStatsCollector(t.stats))

	return t, nil
}

// Gate returns the gating middleware for one route. Every request either
// carries valid credentials and is admitted as paid, is admitted on the
// route's free tier, or receives a 402 challenge with a fresh invoice and a
// macaroon bound to it.
func (t *Toll) Gate(opts RouteOptions) func(http.Handler) http.Handler {
	free := freebie.NewMemStore(
		opts.FreeRequests, freebie.ParseWindow(opts.FreeWindow),
		t.cfg.Clock,
	)
	t.freebiesMtx.Lock()
	t.freebies = append(t.freebies, free)
	t.freebiesMtx.Unlock()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter,
			r *http.Request) {

			auth := r.Header.Get(l402.HeaderAuthorization)
			if l402.MatchesScheme(auth) {
				t.handleCredentials(w, r, next, &opts, auth)
				return
			}

			if free.Admit(clientID(r)) {
				t.admitFree(w, r, next)
				return
			}

			t.challenge(w, r, &opts)
		})
	}
}

// handleCredentials verifies a presented macaroon and preimage pair and
// admits the request as paid on success.
func (t *Toll) handleCredentials(w http.ResponseWriter, r *http.Request,
	next http.Handler, opts *RouteOptions, auth string) {

	client := clientID(r)

	macRaw, preimageHex, err := l402.ParseAuthorization(auth)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid macaroon")
		return
	}

	mac, err := mint.Decode(macRaw)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid macaroon")
		return
	}

	// Each binding knob that is off leaves the corresponding caveat
	// unchecked, even for older credentials that still carry it.
	verifyCtx := &mint.VerifyContext{
		Now: t.cfg.Clock.Now(),
	}
	if t.cfg.BindEndpoint {
		endpoint := r.URL.Path
		verifyCtx.Endpoint = &endpoint
	}
	if t.cfg.BindMethod {
		method := r.Method
		verifyCtx.Method = &method
	}
	if t.cfg.BindIP {
		verifyCtx.ClientIP = &client
	}

	paymentHash, err := mint.Verify(t.cfg.Secret, mac, verifyCtx)
	if err != nil {
		log.Debugf("Rejecting credential of client %s: %v", client,
			err)
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	if !l402.VerifyPreimage(preimageHex, paymentHash) {
		writeError(
			w, http.StatusUnauthorized,
			"Invalid preimage — does not match payment hash",
		)
		return
	}

	if t.replay != nil && !t.replay.admit(paymentHash) {
		writeError(
			w, http.StatusUnauthorized,
			"Credential already used",
		)
		return
	}

	amount := opts.price(r, t.cfg.DefaultSats)
	t.stats.Record(r.URL.Path, true, amount, client, paymentHash)

	log.Debugf("Admitting paid request of client %s to %s %s (%d sat)",
		client, r.Method, r.URL.Path, amount)

	next.ServeHTTP(w, withInfo(r, &RequestInfo{
		Paid:        true,
		PaymentHash: paymentHash,
		AmountSats:  amount,
		ClientID:    client,
	}))
}

// admitFree passes the request downstream on the route's free tier.
func (t *Toll) admitFree(w http.ResponseWriter, r *http.Request,
	next http.Handler) {

	client := clientID(r)
	t.stats.Record(r.URL.Path, false, 0, client, lntypes.ZeroHash)

	next.ServeHTTP(w, withInfo(r, &RequestInfo{
		Free:     true,
		ClientID: client,
	}))
}

// challenge creates a fresh invoice, mints a macaroon bound to its payment
// hash and responds with a 402 challenge. If a payment callback is
// registered, a watcher is spawned that observes the invoice's settlement.
func (t *Toll) challenge(w http.ResponseWriter, r *http.Request,
	opts *RouteOptions) {

	var (
		client      = clientID(r)
		endpoint    = r.URL.Path
		amount      = opts.price(r, t.cfg.DefaultSats)
		description = opts.description(r)
	)

	// Invoice creation inherits the request's cancellation scope, a
	// client that disconnects aborts the call.
	handle, err := t.cfg.Wallet.CreateInvoice(
		r.Context(), &wallet.InvoiceParams{
			AmountSats:  amount,
			Description: description,
			Expiry:      t.cfg.InvoiceExpiry,
		},
	)
	if err != nil {
		log.Errorf("Unable to create invoice for %s %s: %v", r.Method,
			endpoint, err)
		writeError(
			w, http.StatusInternalServerError,
			fmt.Sprintf("Toll booth error: %v", err),
		)
		return
	}

	params := mint.Params{
		PaymentHash: handle.PaymentHash,
		ExpiresAt: t.cfg.Clock.Now().
			Add(t.cfg.MacaroonExpiry).Unix(),
	}
	if t.cfg.BindEndpoint {
		params.Endpoint = endpoint
	}
	if t.cfg.BindMethod {
		params.Method = r.Method
	}
	if t.cfg.BindIP {
		params.ClientIP = client
	}

	macaroon, err := mint.Mint(t.cfg.Secret, params).EncodeToString()
	if err != nil {
		writeError(
			w, http.StatusInternalServerError,
			fmt.Sprintf("Toll booth error: %v", err),
		)
		return
	}

	challenge := &l402.Challenge{
		Invoice:     handle.Invoice,
		Macaroon:    macaroon,
		PaymentHash: handle.PaymentHash,
		AmountSats:  amount,
		Description: description,
	}
	body, err := challenge.Body()
	if err != nil {
		writeError(
			w, http.StatusInternalServerError,
			fmt.Sprintf("Toll booth error: %v", err),
		)
		return
	}

	if t.cfg.OnPayment != nil {
		t.spawnWatcher(handle.PaymentHash, amount, endpoint, client)
	}

	log.Debugf("Challenging client %s for %s %s (%d sat, hash %v)",
		client, r.Method, endpoint, amount, handle.PaymentHash)

	w.Header().Set(l402.HeaderWWWAuthenticate, challenge.Header())
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusPaymentRequired)
	_, _ = w.Write(body)
}

// Stats returns a snapshot of the booth's traffic and revenue counters.
func (t *Toll) Stats() stats.Snapshot {
	return t.stats.Snapshot()
}

// Dashboard returns a handler serving the stats snapshot as JSON with the
// recent payments ordered newest first and capped at 20 entries.
func (t *Toll) Dashboard() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snapshot := t.stats.Snapshot()
		if len(snapshot.RecentPayments) > dashboardRecentCap {
			snapshot.RecentPayments =
				snapshot.RecentPayments[:dashboardRecentCap]
		}

		w.Header().Set(
			"Content-Type", "application/json; charset=utf-8",
		)
		if err := json.NewEncoder(w).Encode(snapshot); err != nil {
			log.Errorf("Unable to serve dashboard: %v", err)
		}
	})
}

// Metrics returns a handler serving the booth's counters in the Prometheus
// text format.
func (t *Toll) Metrics() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// Close cancels all in-flight payment watchers, shuts down the free tier and
// replay sweepers and closes the wallet. It is safe to call more than once.
func (t *Toll) Close() error {
	var err error
	t.stop.Do(func() {
		close(t.quit)
		t.watcherWg.Wait()

		t.freebiesMtx.Lock()
		for _, free := range t.freebies {
			free.Stop()
		}
		t.freebiesMtx.Unlock()

		if t.replay != nil {
			t.replay.stopSweep()
		}

		err = t.cfg.Wallet.Close()
	})

	return err
}

// clientID derives the identifier used for free tier accounting and the ip
// caveat: the first token of X-Forwarded-For, else the host of the peer
// address, else "unknown".
func clientID(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil &&
		host != "" {

		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}

	return "unknown"
}

// errorBody is the JSON document all error responses carry.
type errorBody struct {
	Error string `json:"error"`
}

// writeError renders a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(&errorBody{Error: message}); err != nil {
		log.Errorf("Unable to write error response: %v", err)
	}
}
