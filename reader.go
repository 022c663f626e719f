package tario

import (
	"errors"
	"io"
	"runtime"
	"time"

	"code.hybscloud.com/iox"
)

// ErrWouldBlock is returned by Reader/Writer operations (and by Entry and
// WriteEntry handles) when the underlying stream has no data or capacity
// available right now. It is reused directly from iox so callers already
// matching on iox.ErrWouldBlock keep working unchanged.
var ErrWouldBlock = iox.ErrWouldBlock

// Reader reads TAR entries incrementally from an underlying io.Reader,
// which may be non-blocking (returning ErrWouldBlock).
//
// Methods are not safe for concurrent use: a Reader and the single Entry it
// may have open at a time form one sequential cursor over the stream.
type Reader struct {
	src io.Reader
	buf *buf

	state streamState

	retryDelay time.Duration

	entryOpen bool

	// headerAccum collects header bytes across separate buffer fills. The
	// internal buffer collapses back to position 0 whenever it drains (see
	// consume), so a header split across more reads than fit in one buffer
	// load cannot be reassembled from the buffer alone; this is reset once
	// the completed header has been parsed.
	headerAccum []byte
}

// NewReader returns a Reader that reads TAR entries from r.
func NewReader(r io.Reader, opts ...Option) *Reader {
	o := resolveOptions(opts)
	return &Reader{
		src:        r,
		buf:        newBuf(o.BufferBlocks * BlockSize),
		retryDelay: o.RetryDelay,
	}
}

// NextEntry returns the next entry in the archive, or (nil, nil) at the
// end-of-archive marker. It does not skip unread data of the current entry.
//
// NextEntry panics if the previous Entry returned by NextEntry is still
// open -- callers must read it to io.EOF, or call its Skip method, first.
func (rd *Reader) NextEntry() (*Entry, error) {
	if rd.entryOpen {
		panic("tario: NextEntry called while the previous entry is still open")
	}
	return rd.pollNextEntry()
}

// pollNextEntry reads from the source until the next entry's header is
// received or the end-of-archive marker is reached.
func (rd *Reader) pollNextEntry() (*Entry, error) {
	if rd.state.isTerminal() {
		return nil, nil
	}

	for {
		next, amt, err := rd.nextState(nil)
		if err != nil {
			return nil, err
		}

		switch next.kind {
		case stateReceivedHeader:
			rd.headerAccum = append(rd.headerAccum, rd.buf.bufferedBytes()[:amt]...)
			var block [BlockSize]byte
			copy(block[:], rd.headerAccum)
			rd.headerAccum = nil
			hdr, err := parseHeader(block)
			if err != nil {
				return nil, err
			}
			rd.consume(amt, hdr)
			rd.entryOpen = true
			return &Entry{rd: rd, hdr: hdr}, nil

		case stateReceivedEof:
			rd.consume(amt, nil)
			return nil, nil

		case stateReceivingHeader:
			rd.headerAccum = append(rd.headerAccum, rd.buf.bufferedBytes()[:amt]...)
			rd.consume(amt, nil)
			continue

		case stateReceivingEof, stateAligningData, stateAlignedData:
			// A ReceivingHeader run can turn out to be the all-zero first
			// EOF block instead of a real header; any bytes collected for
			// it so far are moot once that happens.
			rd.headerAccum = nil
			rd.consume(amt, nil)
			continue

		default:
			panic("tario: cannot read next entry while another entry is being read")
		}
	}
}

// pollReadEntry reads from the source and returns a slice view over
// buffered entry data, stopping short of returning any bytes beyond the
// entry boundary. An empty, nil-error result means the entry has been
// fully read (including alignment padding) and the stream is positioned at
// the next header.
func (rd *Reader) pollReadEntry(hdr *Header) ([]byte, error) {
	for {
		next, amt, err := rd.nextState(hdr)
		if err != nil {
			return nil, err
		}

		switch next.kind {
		case stateReceivingData, stateReceivedData:
			if amt == 0 {
				// A zero-length entry: step through ReceivedData into its
				// (empty) alignment instead of reporting entry-EOF early.
				rd.consume(0, hdr)
				continue
			}
			return rd.buf.bufferedBytes()[:amt], nil

		case stateAligningData:
			rd.consume(amt, nil)
			continue

		case stateAlignedData:
			rd.consume(amt, hdr)
			return nil, nil

		default:
			panic("tario: cannot read entry: invalid state")
		}
	}
}

// pollSkipEntry reads and discards all remaining data of the entry
// described by hdr.
func (rd *Reader) pollSkipEntry(hdr *Header) error {
	for {
		buf, err := rd.pollReadEntry(hdr)
		if err != nil {
			return err
		}
		if len(buf) == 0 {
			return nil
		}
		rd.consume(len(buf), hdr)
	}
}

// nextState fills the buffer if needed and advances the state machine
// exactly one step over the buffered bytes.
func (rd *Reader) nextState(hdr *Header) (streamState, int, error) {
	if err := rd.fillBuf(); err != nil {
		return streamState{}, 0, err
	}
	return rd.state.next(rd.buf.bufferedBytes(), hdr)
}

// fillBuf reads more data from the source into the buffer if it is
// currently empty.
func (rd *Reader) fillBuf() error {
	if !rd.buf.buffered().isEmpty() {
		return nil
	}

	avail := rd.buf.available()
	n, err := rd.readOnce(avail.bytes())
	if n == 0 {
		if err == nil {
			err = io.ErrNoProgress
		}
		if err == io.EOF {
			if !rd.state.isTerminal() {
				return &UnexpectedEOFError{Expected: int64(rd.state.expectedBytes()), Received: 0}
			}
			return nil
		}
		return err
	}

	avail.commit(n)
	return nil
}

// consume advances the state machine and the read cursor by amt bytes of
// already-buffered data, which must have already been validated against
// the state machine by the caller (via nextState).
func (rd *Reader) consume(amt int, hdr *Header) {
	region := rd.buf.buffered()
	if amt > region.length() {
		panic("tario: cannot consume more than available")
	}

	slice := region.bytes()[:amt]
	next, pos, err := rd.state.takeSlices([][]byte{slice}, hdr)
	if err != nil {
		panic("tario: consume: " + err.Error())
	}
	if pos != amt {
		panic("tario: consume: cannot consume past another entry")
	}

	// These marker states sit exactly at the point takeUntil/takeSlices
	// stop without auto-advancing (ReceivedHeader/ReceivedEof are explicit
	// stop points; ReceivedData/AlignedData can be left dangling when the
	// consumed slice ends precisely on their boundary). Advance past them
	// once more now that we have the header context to do so.
	switch next.kind {
	case stateReceivedHeader, stateReceivedData, stateAlignedData:
		advanced, err := next.takeMarker(hdr)
		if err != nil {
			panic("tario: consume: " + err.Error())
		}
		next = advanced
	}

	rd.state = next
	region.commit(amt)

	if rd.buf.buffered().isEmpty() {
		rd.buf.clear()
	}
}

// readOnce reads from the source, retrying internally according to
// retryDelay whenever the source reports ErrWouldBlock.
func (rd *Reader) readOnce(p []byte) (int, error) {
	for {
		n, err := rd.src.Read(p)
		if len(p) != 0 && n == 0 && err == nil {
			return 0, io.ErrNoProgress
		}
		if n > 0 {
			return n, err
		}
		if !errors.Is(err, iox.ErrWouldBlock) {
			return n, err
		}
		if !rd.waitOnceOnWouldBlock() {
			return n, err
		}
	}
}

// waitOnceOnWouldBlock applies retryDelay's policy once and reports
// whether the caller should retry.
func (rd *Reader) waitOnceOnWouldBlock() bool {
	if rd.retryDelay < 0 {
		return false
	}
	if rd.retryDelay == 0 {
		runtime.Gosched()
		return true
	}
	time.Sleep(rd.retryDelay)
	return true
}

// Entry is a handle to one archive member being read. At most one Entry is
// live at a time for a given Reader.
type Entry struct {
	rd  *Reader
	hdr *Header
}

// Header returns the entry's metadata.
func (e *Entry) Header() *Header { return e.hdr }

// Size returns the number of payload bytes this entry carries.
func (e *Entry) Size() int64 { return int64(e.hdr.EntrySize()) }

// Len is an alias for Size, for parity with []byte-like APIs.
func (e *Entry) Len() int64 { return e.Size() }

// IsEmpty reports whether the entry carries no payload bytes.
func (e *Entry) IsEmpty() bool { return e.hdr.EntrySize() == 0 }

// Path returns the entry's pathname.
func (e *Entry) Path() string { return e.hdr.Path() }

// PathLossy returns the entry's pathname with any invalid UTF-8 replaced.
func (e *Entry) PathLossy() string { return e.hdr.PathLossy() }

// Read reads entry data. It returns io.EOF once the entry (including its
// alignment padding) has been fully consumed, after which the Reader is
// ready to yield another Entry via NextEntry.
func (e *Entry) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	buf, err := e.rd.pollReadEntry(e.hdr)
	if err != nil {
		return 0, err
	}
	if len(buf) == 0 {
		e.rd.entryOpen = false
		return 0, io.EOF
	}

	n := copy(p, buf)
	e.rd.consume(n, e.hdr)
	return n, nil
}

// Skip discards any remaining entry data without the caller having to read
// it. It is a no-op if the entry has already been fully read.
func (e *Entry) Skip() error {
	if !e.rd.entryOpen {
		return nil
	}
	err := e.rd.pollSkipEntry(e.hdr)
	e.rd.entryOpen = false
	return err
}
