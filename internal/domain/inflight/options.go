package inflight

// Option applies a configuration option to the in-memory guard.
type Option func(*inMemoryGuard)

// WithOnChange registers a callback invoked with the new size after every
// successful Acquire or Release. It runs outside the guard's lock.
func WithOnChange(fn func(size int64)) Option {
	return func(g *inMemoryGuard) {
		g.onChange = fn
	}
}
