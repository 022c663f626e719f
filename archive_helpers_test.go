package tario

// Shared fixtures for constructing well-formed (and deliberately truncated)
// TAR byte streams in tests, without going through a Writer.

type fileSpec struct {
	name string
	size int
}

var testFiles = []fileSpec{
	{"512", 512},
	{"1024", 1024},
	{"500", 500},
	{"1000", 1000},
}

// makeEntryData returns size bytes of deterministic, non-zero payload.
func makeEntryData(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i%251) + 1
	}
	return data
}

// makeEntryHeader returns a finalized 512-byte ustar header block for a
// regular file named name with the given size.
func makeEntryHeader(name string, size int) []byte {
	hdr := NewHeader(name, uint64(size))
	hdr.Finalize()
	block := hdr.Bytes()
	out := make([]byte, BlockSize)
	copy(out, block[:])
	return out
}

// makeEntryBytes returns one whole archive member: header, payload, and
// zero padding up to the next block boundary.
func makeEntryBytes(name string, size int) []byte {
	out := append([]byte{}, makeEntryHeader(name, size)...)
	out = append(out, makeEntryData(size)...)
	padded := int(nextMultipleOf512(uint64(size)))
	for len(out) < BlockSize+padded {
		out = append(out, 0)
	}
	return out
}

// makeEofData returns the two-block all-zero end-of-archive marker.
func makeEofData() []byte {
	return make([]byte, 2*BlockSize)
}

// makeArchiveData returns a complete, well-formed archive containing one
// entry per spec in files, terminated by the end-of-archive marker.
func makeArchiveData(files []fileSpec) []byte {
	var out []byte
	for _, f := range files {
		out = append(out, makeEntryBytes(f.name, f.size)...)
	}
	out = append(out, makeEofData()...)
	return out
}
