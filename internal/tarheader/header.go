// Package tarheader implements the minimal ustar header codec the tario
// state machine treats as an external, black-box collaborator: it knows
// how to turn a 512-byte block into metadata and back, and nothing else.
//
// The standard library's archive/tar package implements the same wire
// format internally, but does not export the block-level codec (parsing a
// single raw 512-byte header, or producing one without a full tar.Writer).
// Since no published module exposes exactly that surface, this package
// hand-rolls the standard ustar layout (POSIX.1-1990) rather than stretch
// an unrelated library to fit.
package tarheader

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// BlockSize is the size of one ustar header block.
const BlockSize = 512

// Typeflag values this codec understands. Anything else is treated like
// Regular for the purpose of entry sizing (conservatively: it carries a
// payload), except the handful of known zero-payload types below.
const (
	TypeRegular  = '0'
	TypeRegularA = '\x00' // legacy pre-POSIX encoding of a regular file
	TypeLink     = '1'
	TypeSymlink  = '2'
	TypeChar     = '3'
	TypeBlock    = '4'
	TypeDir      = '5'
	TypeFifo     = '6'
	TypeCont     = '7'
)

// field offsets within a 512-byte ustar block.
const (
	offName     = 0
	lenName     = 100
	offMode     = 100
	lenMode     = 8
	offUID      = 108
	lenUID      = 8
	offGID      = 116
	lenGID      = 8
	offSize     = 124
	lenSize     = 12
	offMtime    = 136
	lenMtime    = 12
	offChksum   = 148
	lenChksum   = 8
	offTypeflag = 156
	offLinkname = 157
	lenLinkname = 100
	offMagic    = 257
	lenMagic    = 6
	offVersion  = 263
	lenVersion  = 2
	offUname    = 265
	lenUname    = 32
	offGname    = 297
	lenGname    = 32
	offDevmajor = 329
	lenDevmajor = 8
	offDevminor = 337
	lenDevminor = 8
	offPrefix   = 345
	lenPrefix   = 155
)

const (
	magic   = "ustar\x00"
	version = "00"
)

// ErrChecksum is returned by Parse when the block's encoded checksum does
// not match the checksum computed over its bytes.
var ErrChecksum = errors.New("tarheader: checksum mismatch")

// ErrFieldTooLong is returned when a field (most commonly the path) does
// not fit within the ustar layout.
var ErrFieldTooLong = errors.New("tarheader: field too long")

// Header is the metadata carried by one 512-byte ustar block. It exposes
// exactly the accessors the tario state machine needs: Size, EntrySize,
// Cksum, Bytes, PathBytes.
type Header struct {
	name     string
	mode     int64
	uid, gid int64
	size     uint64
	mtime    int64
	typeflag byte
	linkname string
	uname    string
	gname    string
	devmajor int64
	devminor int64

	cksum int64 // 0 until Finalize/Parse has run
}

// New returns a Header for a regular file at path with the given size.
// The checksum is not finalized until Finalize is called.
func New(path string, size uint64) *Header {
	return &Header{
		name:     path,
		mode:     0o644,
		typeflag: TypeRegular,
		size:     size,
	}
}

// SetPath sets the entry's pathname.
func (h *Header) SetPath(path string) error {
	if len(path) > lenName+lenPrefix {
		return ErrFieldTooLong
	}
	h.name = path
	return nil
}

// SetSize sets the entry's payload size in bytes.
func (h *Header) SetSize(size uint64) { h.size = size }

// SetTypeflag sets the entry's type (directory, regular file, ...).
func (h *Header) SetTypeflag(t byte) { h.typeflag = t }

// SetMode sets the entry's Unix permission bits.
func (h *Header) SetMode(mode int64) { h.mode = mode }

// SetOwner sets the entry's numeric uid/gid.
func (h *Header) SetOwner(uid, gid int64) { h.uid, h.gid = uid, gid }

// SetModTime sets the entry's modification time as a Unix timestamp.
func (h *Header) SetModTime(unix int64) { h.mtime = unix }

// Finalize computes and stores this header's checksum. Must be called
// before the header is handed to a Writer.
func (h *Header) Finalize() { h.cksum = 0; h.cksum = int64(computeChecksum(h.encode())) }

// Cksum returns the header's checksum; zero means it has not been
// finalized (via Finalize) or parsed (via Parse) yet.
func (h *Header) Cksum() int64 { return h.cksum }

// Size returns the entry's declared file size.
func (h *Header) Size() uint64 { return h.size }

// EntrySize returns the number of payload bytes this entry contributes to
// the stream: equal to Size for regular files, zero for directories and
// other metadata-only types.
func (h *Header) EntrySize() uint64 {
	switch h.typeflag {
	case TypeDir, TypeSymlink, TypeLink, TypeChar, TypeBlock, TypeFifo:
		return 0
	default:
		return h.size
	}
}

// PathBytes returns the raw pathname bytes.
func (h *Header) PathBytes() []byte { return []byte(h.name) }

// Path returns the entry's pathname.
func (h *Header) Path() string { return h.name }

// PathLossy returns the entry's pathname with any invalid UTF-8 replaced,
// for use in logging and diagnostics where a malformed archive must not
// prevent a readable message.
func (h *Header) PathLossy() string {
	if utf8.ValidString(h.name) {
		return h.name
	}
	return strings.ToValidUTF8(h.name, string(utf8.RuneError))
}

// Bytes returns the finalized 512-byte block representation. Finalize (or
// Parse) must have run first.
func (h *Header) Bytes() [BlockSize]byte {
	buf := h.encode()
	putOctal(buf[offChksum:offChksum+lenChksum], uint64(h.cksum), true)
	return buf
}

// encode writes every field except the checksum, which is left zeroed
// (equivalent to ASCII spaces once putOctal fills it) so Bytes/Finalize
// can compute the checksum over a stable representation.
func (h *Header) encode() [BlockSize]byte {
	var buf [BlockSize]byte

	name, prefix := splitPath(h.name)
	putString(buf[offName:offName+lenName], name)
	putString(buf[offPrefix:offPrefix+lenPrefix], prefix)
	putOctal(buf[offMode:offMode+lenMode], uint64(h.mode), false)
	putOctal(buf[offUID:offUID+lenUID], uint64(h.uid), false)
	putOctal(buf[offGID:offGID+lenGID], uint64(h.gid), false)
	putOctal(buf[offSize:offSize+lenSize], h.size, false)
	putOctal(buf[offMtime:offMtime+lenMtime], uint64(h.mtime), false)
	buf[offTypeflag] = h.typeflagOrDefault()
	putString(buf[offLinkname:offLinkname+lenLinkname], h.linkname)
	copy(buf[offMagic:offMagic+lenMagic], magic)
	copy(buf[offVersion:offVersion+lenVersion], version)
	putString(buf[offUname:offUname+lenUname], h.uname)
	putString(buf[offGname:offGname+lenGname], h.gname)
	putOctal(buf[offDevmajor:offDevmajor+lenDevmajor], uint64(h.devmajor), false)
	putOctal(buf[offDevminor:offDevminor+lenDevminor], uint64(h.devminor), false)

	// Checksum field left zero; computeChecksum treats it as all spaces.
	for i := offChksum; i < offChksum+lenChksum; i++ {
		buf[i] = 0
	}

	return buf
}

func (h *Header) typeflagOrDefault() byte {
	if h.typeflag == 0 {
		return TypeRegular
	}
	return h.typeflag
}

// Parse decodes a 512-byte ustar block into a Header, verifying the
// encoded checksum against the computed one.
func Parse(block [BlockSize]byte) (*Header, error) {
	expected, err := parseOctal(block[offChksum : offChksum+lenChksum])
	if err != nil {
		return nil, fmt.Errorf("tarheader: invalid checksum field: %w", err)
	}

	check := block
	for i := offChksum; i < offChksum+lenChksum; i++ {
		check[i] = ' '
	}
	actual := computeChecksum(check)
	if uint64(expected) != actual {
		return nil, ErrChecksum
	}

	name := getString(block[offName : offName+lenName])
	if string(block[offMagic:offMagic+lenMagic]) == magic {
		prefix := getString(block[offPrefix : offPrefix+lenPrefix])
		if prefix != "" {
			name = prefix + "/" + name
		}
	}

	mode, err := parseOctal(block[offMode : offMode+lenMode])
	if err != nil {
		return nil, fmt.Errorf("tarheader: invalid mode field: %w", err)
	}
	uid, err := parseOctal(block[offUID : offUID+lenUID])
	if err != nil {
		return nil, fmt.Errorf("tarheader: invalid uid field: %w", err)
	}
	gid, err := parseOctal(block[offGID : offGID+lenGID])
	if err != nil {
		return nil, fmt.Errorf("tarheader: invalid gid field: %w", err)
	}
	size, err := parseOctal(block[offSize : offSize+lenSize])
	if err != nil {
		return nil, fmt.Errorf("tarheader: invalid size field: %w", err)
	}
	mtime, err := parseOctal(block[offMtime : offMtime+lenMtime])
	if err != nil {
		return nil, fmt.Errorf("tarheader: invalid mtime field: %w", err)
	}
	devmajor, _ := parseOctal(block[offDevmajor : offDevmajor+lenDevmajor])
	devminor, _ := parseOctal(block[offDevminor : offDevminor+lenDevminor])

	h := &Header{
		name:     name,
		mode:     mode,
		uid:      uid,
		gid:      gid,
		size:     uint64(size),
		mtime:    mtime,
		typeflag: block[offTypeflag],
		linkname: getString(block[offLinkname : offLinkname+lenLinkname]),
		uname:    getString(block[offUname : offUname+lenUname]),
		gname:    getString(block[offGname : offGname+lenGname]),
		devmajor: devmajor,
		devminor: devminor,
		cksum:    expected,
	}
	return h, nil
}

func computeChecksum(block [BlockSize]byte) uint64 {
	var sum uint64
	for i, b := range block {
		if i >= offChksum && i < offChksum+lenChksum {
			sum += uint64(' ')
		} else {
			sum += uint64(b)
		}
	}
	return sum
}

func splitPath(path string) (name, prefix string) {
	if len(path) <= lenName {
		return path, ""
	}
	// Find the latest '/' such that the remainder fits in the name field
	// and the prefix fits in the prefix field.
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			pfx, nm := path[:i], path[i+1:]
			if len(pfx) <= lenPrefix && len(nm) <= lenName {
				return nm, pfx
			}
		}
	}
	return path[:lenName], ""
}

func putString(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

func getString(src []byte) string {
	if i := bytes.IndexByte(src, 0); i >= 0 {
		src = src[:i]
	}
	return string(src)
}

// putOctal writes v as zero-padded octal digits terminated by NUL. When
// checksum is true, dst is the 8-byte checksum field and follows its own
// convention: six digits, then NUL, then a trailing space.
func putOctal(dst []byte, v uint64, checksum bool) {
	digits := len(dst) - 1
	if checksum {
		digits = 6
	}

	s := strconv.FormatUint(v, 8)
	if len(s) > digits {
		s = s[len(s)-digits:]
	}

	for i := range dst {
		dst[i] = '0'
	}
	copy(dst[digits-len(s):digits], s)
	dst[digits] = 0
	if checksum {
		dst[digits+1] = ' '
	}
}

func parseOctal(src []byte) (int64, error) {
	s := strings.TrimRight(string(src), "\x00 ")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(s, 8, 64)
	if err != nil {
		return 0, err
	}
	return v, nil
}
