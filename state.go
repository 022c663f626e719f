package tario

// stateKind identifies one point in a TAR byte stream. Together with its
// associated remainder (and, for header reception, the all-zero flag)
// this forms the tagged union the original design expresses as an enum
// with payload variants.
type stateKind int

const (
	stateExpectingHeader stateKind = iota
	stateReceivingHeader
	stateReceivedHeader
	stateReceivingData
	stateReceivedData
	stateAligningData
	stateAlignedData
	stateReceivingEof
	stateReceivedEof
)

// streamState is a point in a TAR byte stream, validating and tracking
// progress through it one transition at a time.
//
// The zero value is stateExpectingHeader, the state a fresh stream starts
// in.
type streamState struct {
	kind    stateKind
	rem     uint64 // ReceivingHeader/AligningData/ReceivingEof: bytes left; ReceivingData: entry bytes left
	allZero bool   // ReceivingHeader only: whether every byte seen so far is zero
}

// isTerminal reports whether the stream cannot make further progress:
// either the EOF marker has been fully received, or the second of its two
// blocks has no bytes left to receive (meaning no more bytes are expected
// at all).
func (s streamState) isTerminal() bool {
	return s.kind == stateReceivedEof || (s.kind == stateReceivingEof && s.rem == 0)
}

// isMarker reports whether s carries no remainder of its own and exists
// only to be immediately advanced past (see takeMarker).
func (s streamState) isMarker() bool {
	switch s.kind {
	case stateExpectingHeader, stateReceivedHeader, stateReceivedData, stateAlignedData, stateReceivedEof:
		return true
	default:
		return false
	}
}

// takeMarker advances a marker state to the next regular state, as if next
// had been called with an empty buffer. It panics if s is not a marker
// state.
func (s streamState) takeMarker(hdr *Header) (streamState, error) {
	if !s.isMarker() {
		panic("tario: takeMarker called on non-marker state")
	}
	next, n, err := s.next(nil, hdr)
	if err != nil {
		return streamState{}, err
	}
	if n != 0 {
		panic("tario: marker transition consumed bytes")
	}
	return next, nil
}

// takeSlices feeds each slice in bufs through the state machine in order,
// stopping early once a header or the EOF marker has been fully received.
// It returns the resulting state and the total number of bytes consumed
// across all of bufs.
func (s streamState) takeSlices(bufs [][]byte, hdr *Header) (streamState, int, error) {
	state := s
	total := 0
	advanced := false

	for _, b := range bufs {
		if len(b) == 0 {
			continue
		}
		next, n, err := state.takeUntil(b, hdr)
		if err != nil {
			return streamState{}, total, err
		}
		state = next
		total += n
		advanced = true

		if state.kind == stateReceivedHeader || state.kind == stateReceivedEof {
			break
		}
	}

	if !advanced {
		// Guarantee forward progress even when handed no data at all.
		next, n, err := state.takeUntil(nil, hdr)
		if err != nil {
			return streamState{}, total, err
		}
		state = next
		total += n
	}

	return state, total, nil
}

// takeUntil transitions state until it becomes ReceivedHeader or
// ReceivedEof, or until buf is exhausted, whichever comes first. It
// returns the resulting state and the number of bytes of buf consumed.
func (s streamState) takeUntil(buf []byte, hdr *Header) (streamState, int, error) {
	state := s
	cur := 0

	for {
		next, n, err := state.next(buf, hdr)
		if err != nil {
			return streamState{}, cur, err
		}
		state = next
		cur += n
		buf = buf[n:]

		if state.kind == stateReceivedHeader || state.kind == stateReceivedEof || len(buf) == 0 {
			break
		}
	}

	return state, cur, nil
}

// next transitions to the state that follows s, consuming as much of buf
// as the transition needs (zero or more bytes), and returns that state
// plus the number of bytes consumed.
//
// Marker states transition unconditionally, consuming nothing, even when
// buf is empty -- callers relying on forward progress must not assume an
// empty buf means no transition occurs.
func (s streamState) next(buf []byte, hdr *Header) (streamState, int, error) {
	switch s.kind {
	case stateExpectingHeader:
		return streamState{kind: stateReceivingHeader, rem: BlockSize, allZero: true}, 0, nil

	case stateReceivingHeader:
		n, zero := readZeroCheck(buf, s.rem)
		rem := s.rem - uint64(n)
		allZero := s.allZero && zero

		if rem == 0 {
			if allZero {
				return streamState{kind: stateReceivingEof, rem: BlockSize}, n, nil
			}
			return streamState{kind: stateReceivedHeader}, n, nil
		}
		return streamState{kind: stateReceivingHeader, rem: rem, allZero: allZero}, n, nil

	case stateReceivedHeader:
		if hdr == nil {
			panic("tario: header required in state ReceivedHeader")
		}
		return streamState{kind: stateReceivingData, rem: hdr.EntrySize()}, 0, nil

	case stateReceivingData:
		n := advance(buf, s.rem)
		rem := s.rem - uint64(n)
		if rem == 0 {
			return streamState{kind: stateReceivedData}, n, nil
		}
		return streamState{kind: stateReceivingData, rem: rem}, n, nil

	case stateReceivedData:
		if hdr == nil {
			panic("tario: header required in state ReceivedData")
		}
		entry := hdr.EntrySize()
		align := nextMultipleOf512(entry) - entry
		return streamState{kind: stateAligningData, rem: align}, 0, nil

	case stateAligningData:
		n := advance(buf, s.rem)
		rem := s.rem - uint64(n)
		if rem == 0 {
			return streamState{kind: stateAlignedData}, n, nil
		}
		return streamState{kind: stateAligningData, rem: rem}, n, nil

	case stateAlignedData:
		return streamState{kind: stateExpectingHeader}, 0, nil

	case stateReceivingEof:
		n, zero := readZeroCheck(buf, s.rem)
		rem := s.rem - uint64(n)
		if !zero {
			return streamState{}, n, ErrExpectingEmptyBlock
		}
		if rem == 0 {
			return streamState{kind: stateReceivedEof}, n, nil
		}
		return streamState{kind: stateReceivingEof, rem: rem}, n, nil

	case stateReceivedEof:
		return streamState{}, 0, ErrEOF

	default:
		panic("tario: unreachable state kind")
	}
}

// expectedBytes estimates how many more bytes the stream owes before the
// current state can complete, for use in UnexpectedEOFError diagnostics.
// Marker states carry no remainder of their own, so a full block is
// reported as still owed.
func (s streamState) expectedBytes() uint64 {
	if s.isMarker() {
		return BlockSize
	}
	return s.rem
}

// advance returns the number of bytes of buf that apply toward a
// remainder of max, capped at len(buf).
func advance(buf []byte, max uint64) int {
	n := uint64(len(buf))
	if n > max {
		n = max
	}
	return int(n)
}

// readZeroCheck advances into buf as far as rem allows and reports whether
// every byte it consumed was zero.
func readZeroCheck(buf []byte, rem uint64) (int, bool) {
	n := advance(buf, rem)
	return n, allZero(buf[:n])
}
