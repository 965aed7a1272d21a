package wire

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/crypto/cryptobyte"
)

var ErrTooLong = errors.New("value too long for length prefix")

// Writer appends big-endian values to a growing buffer.
type Writer struct {
	b *cryptobyte.Builder
	n int
}

func NewWriter() *Writer {
	return &Writer{b: cryptobyte.NewBuilder(nil)}
}

// Len is the number of bytes written so far.
func (w *Writer) Len() int {
	return w.n
}

func (w *Writer) WriteUint8(v uint8) {
	w.b.AddUint8(v)
	w.n++
}

func (w *Writer) WriteInt8(v int8) {
	w.WriteUint8(uint8(v))
}

func (w *Writer) WriteUint16(v uint16) {
	w.b.AddUint16(v)
	w.n += 2
}

func (w *Writer) WriteInt16(v int16) {
	w.WriteUint16(uint16(v))
}

func (w *Writer) WriteUint32(v uint32) {
	w.b.AddUint32(v)
	w.n += 4
}

func (w *Writer) WriteInt32(v int32) {
	w.WriteUint32(uint32(v))
}

func (w *Writer) WriteUint64(v uint64) {
	w.b.AddUint64(v)
	w.n += 8
}

func (w *Writer) WriteInt64(v int64) {
	w.WriteUint64(uint64(v))
}

func (w *Writer) WriteBytes(b []byte) {
	w.b.AddBytes(b)
	w.n += len(b)
}

// WriteZeros appends n zero bytes.
func (w *Writer) WriteZeros(n int) {
	w.WriteBytes(make([]byte, n))
}

// WriteBytes16 writes b behind a 16-bit length prefix.
func (w *Writer) WriteBytes16(b []byte) error {
	if len(b) > math.MaxUint16 {
		return fmt.Errorf("%d bytes behind a 16-bit prefix: %w", len(b), ErrTooLong)
	}
	w.b.AddUint16LengthPrefixed(func(child *cryptobyte.Builder) {
		child.AddBytes(b)
	})
	w.n += 2 + len(b)
	return nil
}

// WriteBytes32 writes b behind a 32-bit signed length prefix.
func (w *Writer) WriteBytes32(b []byte) error {
	if len(b) > math.MaxInt32 {
		return fmt.Errorf("%d bytes behind a 32-bit prefix: %w", len(b), ErrTooLong)
	}
	w.b.AddUint32LengthPrefixed(func(child *cryptobyte.Builder) {
		child.AddBytes(b)
	})
	w.n += 4 + len(b)
	return nil
}

// Bytes returns the accumulated buffer.
func (w *Writer) Bytes() ([]byte, error) {
	return w.b.Bytes()
}
