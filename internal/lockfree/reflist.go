package lockfree

import "sync/atomic"

// refNode is one node of an AtomicRefList.
type refNode[T any] struct {
	value T
	next  atomic.Pointer[refNode[T]]
	refs  RefCounter
}

// AtomicRefList is a lock-free multi-reader/single-writer singly linked
// list. The writer is the only goroutine that may call
// Add/Remove/DeleteRemovedAndUnreferenced; any number of readers may call
// Find/Visit concurrently and lock-free.
//
// Iteration is weakly consistent: a reader may skip a node that was just
// added, or observe a node twice if it was relinked mid-iteration around a
// concurrent edit. This is acceptable and documented behavior.
type AtomicRefList[T any] struct {
	head atomic.Pointer[refNode[T]]

	// deadList holds nodes the writer has unlinked and marked dead but
	// cannot yet free because readers may still hold retains on them.
	deadList []*refNode[T]
}

// Add prepends a new live node holding value. Writer-only.
func (l *AtomicRefList[T]) Add(value T) {
	n := &refNode[T]{value: value}
	for {
		old := l.head.Load()
		n.next.Store(old)
		if l.head.CompareAndSwap(old, n) {
			return
		}
	}
}

// RefHandle is a retained reference to a list element; callers must Release
// it when done.
type RefHandle[T any] struct {
	node *refNode[T]
}

// Value returns the retained value.
func (h RefHandle[T]) Value() T { return h.node.value }

// Release drops the retain taken by the Find call that returned h.
func (h RefHandle[T]) Release() {
	if h.node != nil {
		h.node.refs.Release()
	}
}

// Visit walks the list from head, calling fn for each live node it can
// retain. fn receives the value and must not retain the handle beyond its
// call (Visit releases immediately after fn returns). Safe to call from any
// reader thread concurrently with Add/Remove.
func (l *AtomicRefList[T]) Visit(fn func(value T)) {
	n := l.head.Load()
	for n != nil {
		if n.refs.TryRetain() {
			fn(n.value)
			n.refs.Release()
		}
		n = n.next.Load()
	}
}

// Find returns a retained handle to the first live node for which match
// returns true, or ok=false if none matched. The caller must call
// handle.Release() when done with the value.
func (l *AtomicRefList[T]) Find(match func(value T) bool) (handle RefHandle[T], ok bool) {
	n := l.head.Load()
	for n != nil {
		if n.refs.TryRetain() {
			if match(n.value) {
				return RefHandle[T]{node: n}, true
			}
			n.refs.Release()
		}
		n = n.next.Load()
	}
	return RefHandle[T]{}, false
}

// Remove unlinks the first node matching match, marks it dead so no new
// reader can retain it, and moves it to the writer's dead list. Already-live
// reader retains on it are unaffected; the node is only freed once its
// reader count reaches zero via DeleteRemovedAndUnreferenced. Writer-only.
func (l *AtomicRefList[T]) Remove(match func(value T) bool) bool {
	var prev *refNode[T]
	n := l.head.Load()
	for n != nil {
		if match(n.value) {
			next := n.next.Load()
			if prev == nil {
				l.head.CompareAndSwap(n, next)
			} else {
				prev.next.Store(next)
			}
			n.refs.MarkDead()
			l.deadList = append(l.deadList, n)
			return true
		}
		prev = n
		n = n.next.Load()
	}
	return false
}

// DeleteRemovedAndUnreferenced frees (drops the Go reference to) every
// dead-list node with zero outstanding reader retains, calling onFree for
// each so the caller can release any wrapped asset. Writer-only; intended
// to be called periodically from the reaper thread.
func (l *AtomicRefList[T]) DeleteRemovedAndUnreferenced(onFree func(value T)) int {
	kept := l.deadList[:0]
	freed := 0
	for _, n := range l.deadList {
		if n.refs.Readers() == 0 {
			if onFree != nil {
				onFree(n.value)
			}
			freed++
			continue
		}
		kept = append(kept, n)
	}
	l.deadList = kept
	return freed
}

// Len returns the number of currently-live (not dead-listed) nodes. For
// diagnostics only; racy with concurrent Add/Remove by design.
func (l *AtomicRefList[T]) Len() int {
	n := l.head.Load()
	count := 0
	for n != nil {
		count++
		n = n.next.Load()
	}
	return count
}
