package tario

import "io"

// WriteTo implements io.WriterTo, copying the entry's remaining payload to
// dst without the caller looping over Read itself. Like Read, it marks the
// entry closed once fully copied so NextEntry can be called again.
func (e *Entry) WriteTo(dst io.Writer) (int64, error) {
	var total int64
	var tmp [32 * 1024]byte

	for {
		n, err := e.Read(tmp[:])
		if n > 0 {
			off := 0
			for off < n {
				wn, werr := dst.Write(tmp[off:n])
				total += int64(wn)
				off += wn
				if werr != nil {
					return total, werr
				}
				if wn == 0 {
					return total, io.ErrShortWrite
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				return total, nil
			}
			return total, err
		}
	}
}

// ReadFrom implements io.ReaderFrom, copying src into the entry's payload
// without the caller looping over Write itself. Writing more bytes than
// the header's declared size panics, the same as Write.
func (we *WriteEntry) ReadFrom(src io.Reader) (int64, error) {
	var total int64
	var tmp [32 * 1024]byte

	for {
		n, err := src.Read(tmp[:])
		if n > 0 {
			wn, werr := we.Write(tmp[:n])
			total += int64(wn)
			if werr != nil {
				return total, werr
			}
			if wn != n {
				return total, io.ErrShortWrite
			}
		}
		if err != nil {
			if err == io.EOF {
				return total, nil
			}
			return total, err
		}
	}
}
