package tario

import (
	"bytes"
	"io"
	"net"
	"testing"

	"code.hybscloud.com/iox"
)

// wouldBlockWriter accepts only up to limit bytes per call, reporting
// iox.ErrWouldBlock whenever it has to reject part of a write.
type wouldBlockWriter struct {
	buf   bytes.Buffer
	limit int
}

func (w *wouldBlockWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n := w.limit
	if n > len(p) {
		n = len(p)
	}
	if n <= 0 {
		return 0, iox.ErrWouldBlock
	}
	w.buf.Write(p[:n])
	if n < len(p) {
		return n, iox.ErrWouldBlock
	}
	return n, nil
}

// vectoredWriter implements VectoredWriter on top of a plain byte sink, to
// exercise Writer's pass-through path.
type vectoredWriter struct {
	buf   bytes.Buffer
	calls int
}

func (w *vectoredWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *vectoredWriter) WriteVectored(bufs net.Buffers) (int, error) {
	w.calls++
	n, err := bufs.WriteTo(&w.buf)
	return int(n), err
}

func readBackArchive(t *testing.T, data []byte, files []fileSpec) {
	t.Helper()
	rd := NewReader(bytes.NewReader(data))
	for _, f := range files {
		entry, err := rd.NextEntry()
		if err != nil {
			t.Fatalf("readback NextEntry: %v", err)
		}
		if entry == nil {
			t.Fatalf("readback: unexpected end of archive before %q", f.name)
		}
		if entry.Path() != f.name {
			t.Fatalf("readback Path: got %q want %q", entry.Path(), f.name)
		}
		got, err := io.ReadAll(entry)
		if err != nil {
			t.Fatalf("readback ReadAll(%q): %v", f.name, err)
		}
		if !bytes.Equal(got, makeEntryData(f.size)) {
			t.Fatalf("readback %q: data mismatch", f.name)
		}
	}
	last, err := rd.NextEntry()
	if err != nil || last != nil {
		t.Fatalf("readback final NextEntry: entry=%v err=%v", last, err)
	}
}

func TestWriterRoundTrip(t *testing.T) {
	var out bytes.Buffer
	wr := NewWriter(&out)

	for _, f := range testFiles {
		hdr := NewHeader(f.name, uint64(f.size))
		hdr.Finalize()

		entry, err := wr.AddEntry(hdr)
		if err != nil {
			t.Fatalf("AddEntry(%q): %v", f.name, err)
		}
		data := makeEntryData(f.size)
		n, err := entry.Write(data)
		if err != nil {
			t.Fatalf("Write(%q): %v", f.name, err)
		}
		if n != len(data) {
			t.Fatalf("Write(%q): n=%d want %d", f.name, n, len(data))
		}
		if err := entry.Finish(); err != nil {
			t.Fatalf("Finish(%q): %v", f.name, err)
		}
	}

	if err := wr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	readBackArchive(t, out.Bytes(), testFiles)
}

func TestWriterZeroSizeEntryFinishesWithoutWrite(t *testing.T) {
	var out bytes.Buffer
	wr := NewWriter(&out)

	hdr := NewHeader("empty/", 0)
	hdr.SetTypeflag(TypeDir)
	hdr.Finalize()

	entry, err := wr.AddEntry(hdr)
	if err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	// A zero-size entry (e.g. a directory) is never written to; Finish must
	// still be able to close it out.
	if err := entry.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	hdr2 := NewHeader("after", 3)
	hdr2.Finalize()
	entry2, err := wr.AddEntry(hdr2)
	if err != nil {
		t.Fatalf("AddEntry(after): %v", err)
	}
	if _, err := entry2.Write([]byte("abc")); err != nil {
		t.Fatalf("Write(after): %v", err)
	}
	if err := entry2.Finish(); err != nil {
		t.Fatalf("Finish(after): %v", err)
	}
	if err := wr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rd := NewReader(bytes.NewReader(out.Bytes()))
	e1, err := rd.NextEntry()
	if err != nil {
		t.Fatalf("NextEntry(empty): %v", err)
	}
	if e1.Path() != "empty/" || e1.Size() != 0 {
		t.Fatalf("entry1: path=%q size=%d", e1.Path(), e1.Size())
	}
	if err := e1.Skip(); err != nil {
		t.Fatalf("Skip(empty): %v", err)
	}

	e2, err := rd.NextEntry()
	if err != nil {
		t.Fatalf("NextEntry(after): %v", err)
	}
	got, err := io.ReadAll(e2)
	if err != nil {
		t.Fatalf("ReadAll(after): %v", err)
	}
	if string(got) != "abc" {
		t.Fatalf("entry2 data: got %q want %q", got, "abc")
	}

	last, err := rd.NextEntry()
	if err != nil || last != nil {
		t.Fatalf("final NextEntry: entry=%v err=%v", last, err)
	}
}

// TestWriterAddEntryRejectsOverlappingEntry is spec scenario 6: add an
// entry, partially write its payload, then try to add another entry before
// the first is finished. AddEntry must return ErrOverlappingEntry rather
// than panic or corrupt the archive.
func TestWriterAddEntryRejectsOverlappingEntry(t *testing.T) {
	var out bytes.Buffer
	wr := NewWriter(&out)

	hdr1 := NewHeader("512", 512)
	hdr1.Finalize()
	entry1, err := wr.AddEntry(hdr1)
	if err != nil {
		t.Fatalf("AddEntry(hdr1): %v", err)
	}
	if _, err := entry1.Write(makeEntryData(512)[:100]); err != nil {
		t.Fatalf("Write(hdr1, partial): %v", err)
	}

	hdr2 := NewHeader("b", 4)
	hdr2.Finalize()
	if _, err := wr.AddEntry(hdr2); err != ErrOverlappingEntry {
		t.Fatalf("AddEntry(hdr2) mid-entry: got %v want ErrOverlappingEntry", err)
	}
}

func TestWriterWriteHeaderRejectsOverlappingEntry(t *testing.T) {
	var out bytes.Buffer
	wr := NewWriter(&out)

	hdr := NewHeader("a", 10)
	hdr.Finalize()
	if _, err := wr.AddEntry(hdr); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}

	// writeHeader is AddEntry's sole gate against overlapping entries: the
	// state machine itself, not a separate handle flag, rejects writing a
	// header mid-entry.
	if err := wr.writeHeader(hdr); err != ErrOverlappingEntry {
		t.Fatalf("writeHeader mid-entry: got %v want ErrOverlappingEntry", err)
	}
}

func TestWriterRetriesOnWouldBlock(t *testing.T) {
	dst := &wouldBlockWriter{limit: 37}
	wr := NewWriter(dst, WithRetryDelay(0))

	hdr := NewHeader("1000", 1000)
	hdr.Finalize()
	entry, err := wr.AddEntry(hdr)
	if err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	data := makeEntryData(1000)
	if _, err := entry.Write(data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := entry.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if err := wr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	readBackArchive(t, dst.buf.Bytes(), []fileSpec{{"1000", 1000}})
}

func TestWriterVectoredPassThrough(t *testing.T) {
	dst := &vectoredWriter{}
	wr := NewWriter(dst, WithBufferBlocks(1)) // capacity = 512 bytes

	hdr := NewHeader("big", 2000)
	hdr.Finalize()
	entry, err := wr.AddEntry(hdr)
	if err != nil {
		t.Fatalf("AddEntry: %v", err)
	}

	data := makeEntryData(2000)
	n, err := entry.Write(data)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != len(data) {
		t.Fatalf("Write: n=%d want %d", n, len(data))
	}
	if err := entry.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if err := wr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if dst.calls == 0 {
		t.Fatal("expected at least one WriteVectored call for a write larger than the internal buffer")
	}

	readBackArchive(t, dst.buf.Bytes(), []fileSpec{{"big", 2000}})
}
