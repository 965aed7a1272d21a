// Package wire implements the big-endian byte cursor every Photon structure is
// decoded from and encoded into.
package wire

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
)

var (
	ErrShortBuffer = errors.New("short buffer")
	ErrOutOfRange  = errors.New("range outside buffer")
)

// Reader is a read cursor over a byte buffer. The buffer is not copied;
// SetAt writes through to it.
type Reader struct {
	buf []byte
	s   cryptobyte.String
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf, s: cryptobyte.String(buf)}
}

// Offset is the position of the next unread byte.
func (r *Reader) Offset() int {
	return len(r.buf) - len(r.s)
}

// Len is the total length of the underlying buffer.
func (r *Reader) Len() int {
	return len(r.buf)
}

func (r *Reader) Remaining() int {
	return len(r.s)
}

func (r *Reader) short(n int) error {
	return fmt.Errorf("need %d bytes at offset %d, have %d: %w", n, r.Offset(), len(r.s), ErrShortBuffer)
}

// Advance skips n bytes without interpreting them.
func (r *Reader) Advance(n int) error {
	if n < 0 || !r.s.Skip(n) {
		return r.short(n)
	}
	return nil
}

// Seek moves the cursor to an absolute offset.
func (r *Reader) Seek(offset int) error {
	if offset < 0 || offset > len(r.buf) {
		return fmt.Errorf("seek to %d of %d: %w", offset, len(r.buf), ErrOutOfRange)
	}
	r.s = cryptobyte.String(r.buf[offset:])
	return nil
}

func (r *Reader) ReadUint8() (uint8, error) {
	var v uint8
	if !r.s.ReadUint8(&v) {
		return 0, r.short(1)
	}
	return v, nil
}

func (r *Reader) ReadInt8() (int8, error) {
	v, err := r.ReadUint8()
	return int8(v), err
}

func (r *Reader) ReadUint16() (uint16, error) {
	var v uint16
	if !r.s.ReadUint16(&v) {
		return 0, r.short(2)
	}
	return v, nil
}

func (r *Reader) ReadInt16() (int16, error) {
	v, err := r.ReadUint16()
	return int16(v), err
}

func (r *Reader) ReadUint32() (uint32, error) {
	var v uint32
	if !r.s.ReadUint32(&v) {
		return 0, r.short(4)
	}
	return v, nil
}

func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

func (r *Reader) ReadUint64() (uint64, error) {
	var v uint64
	if !r.s.ReadUint64(&v) {
		return 0, r.short(8)
	}
	return v, nil
}

func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	return int64(v), err
}

// Slice returns a copy of the next n bytes and advances past them.
func (r *Reader) Slice(n int) ([]byte, error) {
	if n < 0 {
		return nil, r.short(n)
	}
	out := make([]byte, n)
	if !r.s.CopyBytes(out) {
		return nil, r.short(n)
	}
	return out, nil
}

// SliceAt returns a copy of n bytes starting at offset without moving the cursor.
func (r *Reader) SliceAt(offset, n int) ([]byte, error) {
	if offset < 0 || n < 0 || offset+n > len(r.buf) {
		return nil, fmt.Errorf("slice [%d:%d] of %d: %w", offset, offset+n, len(r.buf), ErrOutOfRange)
	}
	out := make([]byte, n)
	copy(out, r.buf[offset:offset+n])
	return out, nil
}

// SetAt overwrites the buffer in place starting at offset.
func (r *Reader) SetAt(b []byte, offset int) error {
	if offset < 0 || offset+len(b) > len(r.buf) {
		return fmt.Errorf("set [%d:%d] of %d: %w", offset, offset+len(b), len(r.buf), ErrOutOfRange)
	}
	copy(r.buf[offset:], b)
	return nil
}
