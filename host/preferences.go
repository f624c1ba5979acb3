package host

// PreferenceKey names one of the small set of host-configurable values
// the core reads at startup.
type PreferenceKey string

const (
	PrefCPUCountOverride   PreferenceKey = "cpu_count_override"
	PrefDefaultDynamicData PreferenceKey = "default_dynamic_data"
	PrefMaxMemoryBytes     PreferenceKey = "max_memory_bytes"
)

// PreferenceStore is a small key→value lookup a host supplies for a
// handful of named preferences. Values are float64 regardless of the
// key's natural type (an integer CPU count or a byte count), since the
// set of keys is fixed and small enough not to warrant a typed union.
type PreferenceStore interface {
	Get(key PreferenceKey) (value float64, ok bool)
}

// applyPreferences reads the preferences a Bridge cares about at
// construction time: a CPU count override caps how many goroutines
// ErrgroupThreadPool spins per Dispatch call, a max-memory budget gives
// the loader's OverBudget an advisory threshold a host can poll before
// deciding to refuse further load requests, and a default-dynamic-data
// value backs NoteOnDefaultDynamics for hosts with no per-note
// dynamics control of their own.
func applyPreferences(b *Bridge, store PreferenceStore) {
	if store == nil {
		return
	}
	if n, ok := store.Get(PrefCPUCountOverride); ok && n > 0 {
		if pool, ok := b.pool.(*ErrgroupThreadPool); ok {
			pool.MaxConcurrency = int(n)
		}
	}
	if bytes, ok := store.Get(PrefMaxMemoryBytes); ok && bytes > 0 {
		b.loader.MaxMemoryBytes.Store(int64(bytes))
	}
	if dyn, ok := store.Get(PrefDefaultDynamicData); ok {
		b.defaultDynamics01 = float32(dyn)
	}
}
