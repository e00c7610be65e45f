package offsync

// Hooks are lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking; they run on request and
// drain paths. Wrap slow sinks with hooks/async.
type Hooks interface {
	// A cache entry was deleted on read.
	// reason ∈ {"corrupt", "foreign_generation", "decode"}
	SelfHeal(storageKey, reason string)

	// Provider returned ok=false on Set (backpressure/admission).
	ProviderSetRejected(storageKey string)

	// A precache URL could not be fetched or stored during Warm.
	WarmFailed(url string, err error)

	// A superseded generation was deleted; keys is the number of provider keys removed.
	GenerationEvicted(name string, keys int)

	// A GET was answered without the network.
	// source ∈ {"cache", "placeholder"}
	OfflineFallback(url, source string)

	// An outbox entry was accepted by the mutation API and removed locally.
	EntryDelivered(kind, id string)

	// An outbox entry failed delivery and stays pending.
	EntryFailed(kind, id string, err error)

	// One kind finished a drain cycle.
	DrainCompleted(kind string, synced, failed int)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) SelfHeal(string, string)           {}
func (NopHooks) ProviderSetRejected(string)        {}
func (NopHooks) WarmFailed(string, error)          {}
func (NopHooks) GenerationEvicted(string, int)     {}
func (NopHooks) OfflineFallback(string, string)    {}
func (NopHooks) EntryDelivered(string, string)     {}
func (NopHooks) EntryFailed(string, string, error) {}
func (NopHooks) DrainCompleted(string, int, int)   {}
