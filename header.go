package tario

import "github.com/dfunckt/tario/internal/tarheader"

// Header describes one entry's metadata: path, size, and type. It is the
// external collaborator spec'd as a black box: the state machine only
// ever calls Size, EntrySize, Cksum, and Bytes on it.
type Header = tarheader.Header

// NewHeader returns a Header for a regular file at path with the given
// size. Call Finalize before handing it to a Writer.
func NewHeader(path string, size uint64) *Header {
	return tarheader.New(path, size)
}

// ErrChecksumMismatch is returned by a Reader when a header block's
// encoded checksum does not match the checksum computed over its bytes.
var ErrChecksumMismatch = tarheader.ErrChecksum

const (
	TypeRegular = tarheader.TypeRegular
	TypeLink    = tarheader.TypeLink
	TypeSymlink = tarheader.TypeSymlink
	TypeChar    = tarheader.TypeChar
	TypeBlock   = tarheader.TypeBlock
	TypeDir     = tarheader.TypeDir
	TypeFifo    = tarheader.TypeFifo
	TypeCont    = tarheader.TypeCont
)

// parseHeader parses and validates the checksum of a 512-byte header
// block.
func parseHeader(block [BlockSize]byte) (*Header, error) {
	return tarheader.Parse(block)
}
