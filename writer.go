package tario

import (
	"errors"
	"io"
	"net"
	"runtime"
	"time"

	"code.hybscloud.com/iox"
)

// VectoredWriter is implemented by writers that can accept several buffers
// in a single underlying write call (e.g. backed by writev(2)). Writer
// checks for this capability the same way io.Copy checks for ReaderFrom:
// a type assertion, not a required interface.
type VectoredWriter interface {
	WriteVectored(bufs net.Buffers) (int, error)
}

// Writer writes TAR entries incrementally to an underlying io.Writer, which
// may be non-blocking (returning ErrWouldBlock).
//
// Methods are not safe for concurrent use: a Writer and the single
// WriteEntry it may have open at a time form one sequential cursor over
// the stream.
type Writer struct {
	dst io.Writer
	buf *buf

	state streamState

	retryDelay time.Duration
}

// NewWriter returns a Writer that writes TAR entries to w.
func NewWriter(w io.Writer, opts ...Option) *Writer {
	o := resolveOptions(opts)
	return &Writer{
		dst:        w,
		buf:        newBuf(o.BufferBlocks * BlockSize),
		retryDelay: o.RetryDelay,
	}
}

// AddEntry writes hdr (which must already be finalized, see Header.Finalize)
// and returns a handle for writing that entry's payload.
//
// AddEntry returns ErrOverlappingEntry if the previous entry still has
// payload outstanding, or is a zero-size entry on which Finish was never
// called: the state machine is still mid payload or alignment, and
// writeHeader refuses to start a new header there. An entry whose payload
// was written in full is finished automatically, Finish or not.
func (wr *Writer) AddEntry(hdr *Header) (*WriteEntry, error) {
	if err := wr.writeHeader(hdr); err != nil {
		return nil, err
	}
	return &WriteEntry{wr: wr, hdr: hdr}, nil
}

// Close writes the end-of-archive marker, flushes any buffered bytes, and
// closes the underlying writer if it implements io.Closer.
//
// Close panics if an entry added via AddEntry still has payload
// outstanding, or is a zero-size entry on which Finish was never called.
func (wr *Writer) Close() error {
	for {
		switch wr.state.kind {
		case stateExpectingHeader:
			if _, err := wr.writeData(emptyBlock[:], nil); err != nil {
				return err
			}
			continue

		case stateReceivingHeader:
			if !wr.state.allZero {
				panic("tario: cannot finish archive; invalid state")
			}
			if _, err := wr.writeData(emptyBlock[:wr.state.rem], nil); err != nil {
				return err
			}
			continue

		case stateReceivingEof:
			if _, err := wr.writeData(emptyBlock[:wr.state.rem], nil); err != nil {
				return err
			}
			continue

		case stateReceivedEof:
			if err := wr.flush(); err != nil {
				return err
			}
			if c, ok := wr.dst.(io.Closer); ok {
				return c.Close()
			}
			return nil

		default:
			panic("tario: cannot finish archive; invalid state")
		}
	}
}

// writeHeader writes a whole 512-byte header block, retrying as needed.
func (wr *Writer) writeHeader(hdr *Header) error {
	for {
		switch wr.state.kind {
		case stateExpectingHeader:
			block := hdr.Bytes()
			n, err := wr.writeData(block[:], hdr)
			if err != nil {
				return err
			}
			if n == 0 {
				return ErrWriteZero
			}
			continue

		case stateReceivingHeader:
			if wr.state.allZero {
				panic("tario: cannot write header; invalid state")
			}
			block := hdr.Bytes()
			pos := BlockSize - int(wr.state.rem)
			n, err := wr.writeData(block[pos:], hdr)
			if err != nil {
				return err
			}
			if n == 0 && wr.state.rem > 0 {
				return ErrWriteZero
			}
			continue

		case stateReceivedHeader:
			next, err := wr.state.takeMarker(hdr)
			if err != nil {
				return err
			}
			wr.state = next
			return nil

		case stateReceivingData, stateReceivedData, stateAligningData, stateAlignedData:
			return ErrOverlappingEntry

		default:
			panic("tario: cannot write header; invalid state")
		}
	}
}

// writeEntryData writes as much of bufs as fits within the entry's declared
// size, finishing the entry (writing alignment padding) as soon as its
// last byte is accepted.
func (wr *Writer) writeEntryData(bufs [][]byte, hdr *Header) (int, error) {
	if wr.state.kind != stateReceivingData {
		panic("tario: cannot write entry data; invalid state")
	}

	n, err := wr.writeVectored(bufs, wr.state.rem, hdr)
	if err != nil {
		return n, err
	}

	if wr.state.kind == stateReceivedData {
		if ferr := wr.finishEntry(hdr); ferr != nil {
			return n, ferr
		}
	}

	return n, nil
}

// finishEntry writes any outstanding alignment padding and advances past
// it, leaving the Writer ready to accept the next header.
func (wr *Writer) finishEntry(hdr *Header) error {
	for {
		switch wr.state.kind {
		case stateReceivedData:
			next, err := wr.state.takeMarker(hdr)
			if err != nil {
				return err
			}
			wr.state = next
			continue

		case stateAligningData:
			if _, err := wr.writeData(emptyBlock[:wr.state.rem], hdr); err != nil {
				return err
			}
			continue

		case stateAlignedData:
			next, err := wr.state.takeMarker(nil)
			if err != nil {
				return err
			}
			wr.state = next
			return nil

		case stateExpectingHeader:
			return nil

		default:
			panic("tario: cannot finish entry; invalid state")
		}
	}
}

// flush drains the internal buffer to the underlying writer and, if it
// implements an optional Flush method (as e.g. *bufio.Writer does), calls
// that too.
func (wr *Writer) flush() error {
	if err := wr.flushBuffered(); err != nil {
		return err
	}
	if f, ok := wr.dst.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// flushBuffered writes out everything currently sitting in the internal
// buffer, looping as necessary, then resets the buffer.
func (wr *Writer) flushBuffered() error {
	region := wr.buf.buffered()
	for !region.isEmpty() {
		n, err := wr.writeOnce(region.bytes())
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrWriteZero
		}
		region.commit(n)
	}
	wr.buf.clear()
	return nil
}

// writeData writes a single contiguous slice through writeVectored.
func (wr *Writer) writeData(buf []byte, hdr *Header) (int, error) {
	return wr.writeVectored([][]byte{buf}, uint64(len(buf)), hdr)
}

// writeVectored validates at most max bytes of bufs against the state
// machine, then either passes them straight through to the destination
// (when it can accept vectored writes and the batch is at least as large
// as our buffer) or copies them into the internal buffer, flushing first
// if either is necessary to make room or to preserve ordering.
func (wr *Writer) writeVectored(bufs [][]byte, max uint64, hdr *Header) (int, error) {
	total := buffersLen(bufs)
	limit := total
	if max < uint64(total) {
		limit = int(max)
	}
	prefix, _ := splitAtByteOffset(bufs, limit)
	prefixLen := buffersLen(prefix)

	next, pos, err := wr.state.takeSlices(prefix, hdr)
	if err != nil {
		return 0, err
	}
	if pos != prefixLen {
		panic("tario: writeVectored: slice validation mismatch")
	}

	vw, isVectored := wr.dst.(VectoredWriter)
	canPassThrough := prefixLen >= wr.buf.capacity() && isVectored

	if canPassThrough || prefixLen > wr.buf.available().remaining() {
		if err := wr.flushBuffered(); err != nil {
			return 0, err
		}
	}

	var written int
	var ioErr error
	if canPassThrough {
		written, ioErr = wr.writeVectoredOnce(vw, net.Buffers(prefix))
	} else {
		written = wr.buf.available().fillFromBuffers(prefix)
	}

	switch {
	case written == prefixLen:
		wr.state = next
	case written > 0:
		partial := takePrefix(prefix, written)
		n2, pos2, err2 := wr.state.takeSlices(partial, hdr)
		if err2 != nil {
			panic("tario: writeVectored: " + err2.Error())
		}
		if pos2 != written {
			panic("tario: writeVectored: partial slice validation mismatch")
		}
		wr.state = n2
	}

	return written, ioErr
}

// writeOnce writes to the destination, retrying internally according to
// retryDelay whenever it reports ErrWouldBlock.
func (wr *Writer) writeOnce(p []byte) (int, error) {
	for {
		n, err := wr.dst.Write(p)
		if len(p) != 0 && n == 0 && err == nil {
			return 0, io.ErrNoProgress
		}
		if n > 0 {
			if errors.Is(err, iox.ErrWouldBlock) && wr.retryDelay >= 0 {
				// Partial progress: report it; the caller loops for the rest.
				return n, nil
			}
			return n, err
		}
		if !errors.Is(err, iox.ErrWouldBlock) {
			return n, err
		}
		if !wr.waitOnceOnWouldBlock() {
			return n, err
		}
	}
}

// writeVectoredOnce is writeOnce's counterpart for the pass-through path.
func (wr *Writer) writeVectoredOnce(vw VectoredWriter, bufs net.Buffers) (int, error) {
	for {
		n, err := vw.WriteVectored(bufs)
		if len(bufs) != 0 && n == 0 && err == nil {
			return 0, io.ErrNoProgress
		}
		if n > 0 {
			if errors.Is(err, iox.ErrWouldBlock) && wr.retryDelay >= 0 {
				return n, nil
			}
			return n, err
		}
		if !errors.Is(err, iox.ErrWouldBlock) {
			return n, err
		}
		if !wr.waitOnceOnWouldBlock() {
			return n, err
		}
	}
}

// waitOnceOnWouldBlock applies retryDelay's policy once and reports
// whether the caller should retry.
func (wr *Writer) waitOnceOnWouldBlock() bool {
	if wr.retryDelay < 0 {
		return false
	}
	if wr.retryDelay == 0 {
		runtime.Gosched()
		return true
	}
	time.Sleep(wr.retryDelay)
	return true
}

// WriteEntry is a handle to one archive member being written. At most one
// WriteEntry is live at a time for a given Writer.
type WriteEntry struct {
	wr  *Writer
	hdr *Header
}

// Header returns the entry's metadata.
func (we *WriteEntry) Header() *Header { return we.hdr }

// Size returns the number of payload bytes this entry declares.
func (we *WriteEntry) Size() int64 { return int64(we.hdr.EntrySize()) }

// Len is an alias for Size, for parity with []byte-like APIs.
func (we *WriteEntry) Len() int64 { return we.Size() }

// IsEmpty reports whether the entry carries no payload bytes.
func (we *WriteEntry) IsEmpty() bool { return we.hdr.EntrySize() == 0 }

// Path returns the entry's pathname.
func (we *WriteEntry) Path() string { return we.hdr.Path() }

// PathLossy returns the entry's pathname with any invalid UTF-8 replaced.
func (we *WriteEntry) PathLossy() string { return we.hdr.PathLossy() }

// Write writes entry data. Writing more bytes than the header's declared
// size panics, the same way writing past a fully-read Entry does on the
// read side.
func (we *WriteEntry) Write(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := we.wr.writeEntryData([][]byte{p[total:]}, we.hdr)
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, ErrWriteZero
		}
	}
	return total, nil
}

// Finish completes the entry, writing any outstanding alignment padding,
// and flushes the Writer's internal buffer.
//
// An entry whose declared size is zero (e.g. a directory) never has Write
// called on it, so its state never leaves ReceivingData on its own; Finish
// forces that one zero-byte transition first so entries with no payload
// close out exactly like ones that were written to in full.
func (we *WriteEntry) Finish() error {
	if we.wr.state.kind == stateReceivingData {
		if _, err := we.wr.writeEntryData(nil, we.hdr); err != nil {
			return err
		}
	}
	if err := we.wr.finishEntry(we.hdr); err != nil {
		return err
	}
	return we.wr.flush()
}
