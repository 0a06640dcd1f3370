package freebie

// DB is the main interface of the package freebie. It represents a store
// that keeps track of how many free requests a client may still make to a
// resource within the current time window.
type DB interface {
	// Admit reports whether the client identified by the given ID may
	// pass for free and, if so, consumes one unit of its quota.
	Admit(clientID string) bool

	// Stop shuts down the store's background sweeper. It is safe to call
	// more than once.
	Stop()
}
