package host

import (
	"sync"

	"github.com/cwbudde/floe-core/loader"
)

// ErrorNotification is one user-facing, de-duplicated load error: a
// GUI shows these independently of any single request's own callback.
type ErrorNotification struct {
	ID  loader.RequestId
	Err error
}

// errorNotifications is a thread-safe, dedup-by-id list of load failures,
// kept alongside the per-request LoadResult callback: the same failure
// stays visible to a user-facing error log even if nothing is still
// holding onto the original request's callback.
type errorNotifications struct {
	mu   sync.Mutex
	seen map[loader.RequestId]bool
	list []ErrorNotification
}

func (n *errorNotifications) record(id loader.RequestId, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.seen == nil {
		n.seen = make(map[loader.RequestId]bool)
	}
	if n.seen[id] {
		return
	}
	n.seen[id] = true
	n.list = append(n.list, ErrorNotification{ID: id, Err: err})
}

// Snapshot returns a copy of every notification recorded so far.
func (n *errorNotifications) Snapshot() []ErrorNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]ErrorNotification, len(n.list))
	copy(out, n.list)
	return out
}
