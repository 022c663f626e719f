// Package tario provides an incremental TAR (ustar) reader and writer
// exposed via io.Reader and io.Writer, suitable for archives read from or
// written to non-blocking transports.
//
// Wire format: a TAR stream is a sequence of 512-byte blocks. Each entry
// begins with one header block (name, size, type, and the other ustar
// fields) followed by ceil(size/512) blocks of payload data, the last of
// which is zero-padded. The archive ends with two consecutive all-zero
// blocks.
//
// Usage (reading):
//
//	rd := tario.NewReader(src)
//	for {
//		entry, err := rd.NextEntry()
//		if err != nil {
//			// handle err
//		}
//		if entry == nil {
//			break // end of archive
//		}
//		io.Copy(dst, entry)
//	}
//
// Usage (writing):
//
//	wr := tario.NewWriter(dst)
//	hdr := tario.NewHeader("path/to/file", uint64(len(data)))
//	hdr.Finalize()
//	entry, err := wr.AddEntry(hdr)
//	entry.Write(data)
//	entry.Finish()
//	wr.Close()
//
// Non-blocking first: if src or dst returns iox.ErrWouldBlock, Reader and
// Writer methods surface it the same way (re-exported as
// tario.ErrWouldBlock) rather than spinning. WithBlock, WithNonblock, and
// WithRetryDelay configure how a Reader/Writer reacts to it.
package tario
