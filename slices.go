package tario

// buffersLen returns the total number of bytes across every slice in bufs.
func buffersLen(bufs [][]byte) int {
	n := 0
	for _, b := range bufs {
		n += len(b)
	}
	return n
}

// splitAtByteOffset splits bufs into a prefix holding exactly offset bytes
// and a suffix holding the rest, without copying any byte: slices that
// straddle the cut point are re-sliced into two views over the same
// backing array. If offset reaches past the end of bufs, prefix is all of
// bufs and suffix is empty.
func splitAtByteOffset(bufs [][]byte, offset int) (prefix, suffix [][]byte) {
	rem := offset
	for i, b := range bufs {
		if rem < len(b) {
			prefix = make([][]byte, 0, i+1)
			prefix = append(prefix, bufs[:i]...)
			if rem > 0 {
				prefix = append(prefix, b[:rem])
			}

			suffix = make([][]byte, 0, len(bufs)-i)
			if rem < len(b) {
				suffix = append(suffix, b[rem:])
			}
			suffix = append(suffix, bufs[i+1:]...)
			return prefix, suffix
		}
		rem -= len(b)
	}
	return bufs, nil
}

// takePrefix returns the first n bytes of bufs as a non-copying view.
func takePrefix(bufs [][]byte, n int) [][]byte {
	prefix, _ := splitAtByteOffset(bufs, n)
	return prefix
}
