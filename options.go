package tario

import "time"

// defaultBufferBlocks is the internal buffer size, in BlockSize units, used
// when WithBufferBlocks is not given. 20 blocks (10KiB) matches the
// conventional default blocking factor of historical tar implementations.
const defaultBufferBlocks = 20

// Options configures a Reader or Writer.
type Options struct {
	// BufferBlocks sets the internal buffer's capacity, in units of
	// BlockSize bytes. Must be at least 1.
	BufferBlocks int

	// RetryDelay controls how a Reader/Writer reacts to iox.ErrWouldBlock
	// from the underlying stream:
	//   - negative: nonblocking, return iox.ErrWouldBlock immediately
	//   - zero: yield (runtime.Gosched) and retry
	//   - positive: sleep for the duration and retry
	RetryDelay time.Duration
}

var defaultOptions = Options{
	BufferBlocks: defaultBufferBlocks,
	RetryDelay:   -1,
}

// Option configures Options for a Reader or Writer.
type Option func(*Options)

// WithBufferBlocks sets the internal buffer's capacity, in units of
// BlockSize bytes.
func WithBufferBlocks(n int) Option {
	return func(o *Options) { o.BufferBlocks = n }
}

// WithRetryDelay sets the retry/wait policy used when the underlying stream
// returns iox.ErrWouldBlock.
func WithRetryDelay(d time.Duration) Option {
	return func(o *Options) { o.RetryDelay = d }
}

// WithBlock enables cooperative blocking (yield-and-retry) on
// iox.ErrWouldBlock.
func WithBlock() Option {
	return func(o *Options) { o.RetryDelay = 0 }
}

// WithNonblock forces non-blocking behavior: iox.ErrWouldBlock is returned
// to the caller immediately instead of being retried internally.
func WithNonblock() Option {
	return func(o *Options) { o.RetryDelay = -1 }
}

func resolveOptions(opts []Option) Options {
	o := defaultOptions
	for _, fn := range opts {
		fn(&o)
	}
	if o.BufferBlocks < 1 {
		o.BufferBlocks = 1
	}
	return o
}
