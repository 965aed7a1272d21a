// Package reassembly joins the pieces of messages sent as reliable fragment
// commands back into whole message bodies.
package reassembly

import (
	"errors"
	"fmt"

	"github.com/kelindar/bitmap"
	log "github.com/sirupsen/logrus"

	"github.com/Pablu23/photon/internal/protocol"
)

var (
	ErrFragmentMismatch = errors.New("fragment disagrees with earlier fragments of its message")
	ErrFragmentRange    = errors.New("fragment outside its message")
	ErrTooManyPending   = errors.New("too many partial messages")
)

const (
	DefaultMaxSize    = 1 << 20
	DefaultMaxPending = 64
)

// Piece is one fragment descriptor with the bytes it carries.
type Piece struct {
	Fragment protocol.Fragment
	Data     []byte
}

type pending struct {
	count    int32
	total    int32
	buf      []byte
	received bitmap.Bitmap
}

// Reassembler collects fragments per start sequence number. It is not safe
// for concurrent use; callers keep one per peer and serialize access.
type Reassembler struct {
	maxSize    int
	maxPending int
	pending    map[int32]*pending
}

// New returns a Reassembler refusing messages longer than maxSize bytes and
// holding at most maxPending partial messages. Values of zero or less pick
// the defaults.
func New(maxSize, maxPending int) *Reassembler {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if maxPending <= 0 {
		maxPending = DefaultMaxPending
	}
	return &Reassembler{
		maxSize:    maxSize,
		maxPending: maxPending,
		pending:    make(map[int32]*pending),
	}
}

// Add records one fragment. Once every fragment of the message has arrived
// it returns the assembled body and true. Duplicates are ignored.
func (r *Reassembler) Add(f protocol.Fragment, data []byte) ([]byte, bool, error) {
	bodies, err := r.AddBatch([]Piece{{Fragment: f, Data: data}})
	if err != nil {
		return nil, false, err
	}
	return bodies[0], bodies[0] != nil, nil
}

// AddBatch records the pieces of one packet. Either every piece is accepted
// or none is recorded. The result holds, per piece, the message body that
// piece completed, or nil.
func (r *Reassembler) AddBatch(pieces []Piece) ([][]byte, error) {
	if err := r.validate(pieces); err != nil {
		return nil, err
	}

	bodies := make([][]byte, len(pieces))
	for i, p := range pieces {
		bodies[i] = r.record(p.Fragment, p.Data)
	}
	return bodies, nil
}

func (r *Reassembler) validate(pieces []Piece) error {
	type shape struct{ count, total int32 }
	seen := make(map[int32]shape)
	added := 0

	for _, p := range pieces {
		f := p.Fragment
		if err := r.check(f, p.Data); err != nil {
			return err
		}

		want, ok := seen[f.SequenceNumber]
		if !ok {
			if pend, ok := r.pending[f.SequenceNumber]; ok {
				want = shape{pend.count, pend.total}
			} else {
				if len(r.pending)+added >= r.maxPending {
					return fmt.Errorf("sequence %d: %d messages pending: %w", f.SequenceNumber, len(r.pending)+added, ErrTooManyPending)
				}
				added++
				want = shape{f.FragmentCount, f.TotalLength}
			}
			seen[f.SequenceNumber] = want
		}

		if want.count != f.FragmentCount || want.total != f.TotalLength {
			return fmt.Errorf("sequence %d: %d fragments of %d bytes, earlier %d of %d: %w",
				f.SequenceNumber, f.FragmentCount, f.TotalLength, want.count, want.total, ErrFragmentMismatch)
		}
	}
	return nil
}

func (r *Reassembler) record(f protocol.Fragment, data []byte) []byte {
	p, ok := r.pending[f.SequenceNumber]
	if !ok {
		p = &pending{
			count: f.FragmentCount,
			total: f.TotalLength,
			buf:   make([]byte, f.TotalLength),
		}
		r.pending[f.SequenceNumber] = p
	}

	n := uint32(f.FragmentNumber)
	if p.received.Contains(n) {
		log.WithFields(log.Fields{
			"Sequence": f.SequenceNumber,
			"Fragment": f.FragmentNumber,
		}).Debug("Ignoring duplicate fragment")
		return nil
	}
	copy(p.buf[f.FragmentOffset:], data)
	p.received.Set(n)

	if p.received.Count() < int(p.count) {
		return nil
	}
	delete(r.pending, f.SequenceNumber)
	return p.buf
}

// check validates one fragment on its own. Every fragment but an empty
// message's only one carries at least a byte, so the count never exceeds
// the total length.
func (r *Reassembler) check(f protocol.Fragment, data []byte) error {
	maxCount := max(f.TotalLength, 1)
	switch {
	case f.TotalLength < 0 || int(f.TotalLength) > r.maxSize:
		return fmt.Errorf("sequence %d: total length %d: %w", f.SequenceNumber, f.TotalLength, ErrFragmentRange)
	case f.FragmentCount <= 0 || f.FragmentCount > maxCount:
		return fmt.Errorf("sequence %d: fragment count %d for %d bytes: %w",
			f.SequenceNumber, f.FragmentCount, f.TotalLength, ErrFragmentRange)
	case f.FragmentNumber < 0 || f.FragmentNumber >= f.FragmentCount:
		return fmt.Errorf("sequence %d: fragment %d of %d: %w",
			f.SequenceNumber, f.FragmentNumber, f.FragmentCount, ErrFragmentRange)
	case f.FragmentOffset < 0 || int64(f.FragmentOffset)+int64(len(data)) > int64(f.TotalLength):
		return fmt.Errorf("sequence %d: %d bytes at %d of %d: %w",
			f.SequenceNumber, len(data), f.FragmentOffset, f.TotalLength, ErrFragmentRange)
	}
	return nil
}

// Pending is the number of messages still missing fragments.
func (r *Reassembler) Pending() int {
	return len(r.pending)
}

// Missing lists the fragment numbers of a partial message that have not
// arrived yet, in ascending order.
func (r *Reassembler) Missing(sequenceNumber int32) []int32 {
	p, ok := r.pending[sequenceNumber]
	if !ok {
		return nil
	}

	var missing bitmap.Bitmap
	missing.Grow(uint32(p.count - 1))
	missing.Ones()
	missing.Xor(p.received)

	out := make([]int32, 0, int(p.count)-p.received.Count())
	missing.Range(func(x uint32) {
		if x < uint32(p.count) {
			out = append(out, int32(x))
		}
	})
	return out
}

// Drop forgets the partial message with the given start sequence number.
func (r *Reassembler) Drop(sequenceNumber int32) {
	delete(r.pending, sequenceNumber)
}
