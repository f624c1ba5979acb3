package lockfree

import "sync/atomic"

// SwapBuffer is a GUI snapshot slot: the audio thread publishes a value by
// atomically storing a pointer to a fresh copy of it; the GUI thread reads
// the published value non-blockingly. There is no reusable back slot:
// every Publish heap-allocates a new copy.
type SwapBuffer[T any] struct {
	published atomic.Pointer[T]
}

// NewSwapBuffer creates a swap buffer pre-published with an initial value.
func NewSwapBuffer[T any](initial T) *SwapBuffer[T] {
	b := &SwapBuffer[T]{}
	v := initial
	b.published.Store(&v)
	return b
}

// Publish atomically replaces the published value. The caller constructs a
// full new value (typically a small value struct or fixed-size array), so
// there is no in-place mutation race with a concurrent Read.
func (b *SwapBuffer[T]) Publish(value T) {
	v := value
	b.published.Store(&v)
}

// Read returns a copy of the currently published value.
func (b *SwapBuffer[T]) Read() T {
	return *b.published.Load()
}
