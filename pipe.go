package tario

import "io"

// NewPipe returns a Reader and Writer connected by a synchronous in-memory
// pipe, useful for streaming an archive between two goroutines without a
// temp file. Options apply to both ends.
func NewPipe(opts ...Option) (*Reader, *Writer) {
	r, w := io.Pipe()
	return NewReader(r, opts...), NewWriter(w, opts...)
}
