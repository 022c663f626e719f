package tario

import (
	"bytes"
	"testing"
)

func makeSliceData() [][]byte {
	return [][]byte{
		{0, 1, 2, 3, 4},
		{5, 6, 7, 8, 9},
		{10, 11, 12, 13, 14},
		{15, 16, 17, 18, 19},
		{20, 21, 22, 23, 24},
	}
}

func TestBuffersLen(t *testing.T) {
	if got := buffersLen(makeSliceData()); got != 25 {
		t.Fatalf("buffersLen: got %d want 25", got)
	}
}

func TestSplitAtByteOffsetMidSlice(t *testing.T) {
	data := makeSliceData()

	prefix, suffix := splitAtByteOffset(data, 12)
	if buffersLen(prefix) != 12 {
		t.Fatalf("prefix len: got %d want 12", buffersLen(prefix))
	}
	if buffersLen(suffix) != 13 {
		t.Fatalf("suffix len: got %d want 13", buffersLen(suffix))
	}
	if len(prefix) != 3 || len(suffix) != 3 {
		t.Fatalf("slice counts: prefix=%d suffix=%d", len(prefix), len(suffix))
	}
	if !bytes.Equal(prefix[2], []byte{10, 11}) {
		t.Fatalf("prefix[2]: got %v", prefix[2])
	}
	if !bytes.Equal(suffix[0], []byte{12, 13, 14}) {
		t.Fatalf("suffix[0]: got %v", suffix[0])
	}
}

func TestSplitAtByteOffsetOnBoundary(t *testing.T) {
	data := makeSliceData()

	prefix, suffix := splitAtByteOffset(data, 10)
	if len(prefix) != 2 || len(suffix) != 3 {
		t.Fatalf("slice counts: prefix=%d suffix=%d", len(prefix), len(suffix))
	}
}

func TestSplitAtByteOffsetPastEnd(t *testing.T) {
	data := makeSliceData()

	prefix, suffix := splitAtByteOffset(data, 1000)
	if buffersLen(prefix) != 25 {
		t.Fatalf("prefix len: got %d want 25", buffersLen(prefix))
	}
	if len(suffix) != 0 {
		t.Fatalf("suffix: got %v want empty", suffix)
	}
}

func TestTakePrefixDoesNotCopy(t *testing.T) {
	data := makeSliceData()
	prefix := takePrefix(data, 7)
	if buffersLen(prefix) != 7 {
		t.Fatalf("takePrefix len: got %d want 7", buffersLen(prefix))
	}

	// Mutating through the returned slice must be visible in the source,
	// proving no copy was made.
	prefix[1][0] = 99
	if data[1][0] != 99 {
		t.Fatalf("takePrefix copied instead of aliasing")
	}
}
