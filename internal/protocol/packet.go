package protocol

import (
	"encoding/binary"
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"

	"github.com/Pablu23/photon/internal/wire"
)

// Packet is one UDP datagram: a header followed by CommandCount commands.
type Packet struct {
	Header   PacketHeader
	Commands []*Command
}

// DecodePacket decodes one datagram. The input is copied first, so the CRC
// zeroing and any decryption never touch the caller's buffer. c may be nil
// as long as nothing in the datagram is encrypted.
func DecodePacket(datagram []byte, c Cipher) (*Packet, error) {
	buf := make([]byte, len(datagram))
	copy(buf, datagram)

	r := wire.NewReader(buf)
	header, err := ReadPacketHeader(r, len(buf))
	if err != nil {
		return nil, err
	}

	if header.Encrypted {
		off := r.Offset()
		if c == nil || !c.Initialized() {
			return nil, decodeErr("packet body", off, ErrNoCipher)
		}
		plain, err := c.Decrypt(buf[off:])
		if err != nil {
			return nil, decodeErr("packet body", off, err)
		}
		r = wire.NewReader(plain)
	}

	pck := &Packet{Header: header, Commands: make([]*Command, 0, header.CommandCount)}
	for i := 0; i < int(header.CommandCount); i++ {
		cmd, err := ReadCommand(r, c)
		if err != nil {
			return nil, fmt.Errorf("command %d: %w", i, err)
		}
		pck.Commands = append(pck.Commands, cmd)
	}

	if r.Remaining() > 0 {
		log.WithField("Trailing", r.Remaining()).Debug("Ignoring bytes after the last command")
	}
	return pck, nil
}

// EncodePacket encodes the packet. The flags byte decides between a CRC
// and encryption; CommandCount, every command length and the CRC are
// computed and stored back into p.
func EncodePacket(p *Packet, c Cipher) ([]byte, error) {
	if len(p.Commands) > math.MaxUint8 {
		return nil, fmt.Errorf("%d commands: %w", len(p.Commands), ErrValueTooLarge)
	}
	h := &p.Header
	h.CommandCount = uint8(len(p.Commands))
	h.CRCEnabled = h.Flags == FlagCRC
	h.Encrypted = h.Flags == FlagEncrypted
	h.CRCValid = true

	bw := wire.NewWriter()
	for i, cmd := range p.Commands {
		if err := cmd.write(bw, c); err != nil {
			return nil, fmt.Errorf("command %d: %w", i, err)
		}
	}
	body, err := bw.Bytes()
	if err != nil {
		return nil, err
	}
	if h.Encrypted {
		if c == nil || !c.Initialized() {
			return nil, ErrNoCipher
		}
		if body, err = c.Encrypt(body); err != nil {
			return nil, fmt.Errorf("encrypt packet body: %w", err)
		}
	}

	crc := h.CRC
	h.CRC = 0
	w := wire.NewWriter()
	h.write(w)
	h.CRC = crc
	w.WriteBytes(body)

	out, err := w.Bytes()
	if err != nil {
		return nil, err
	}
	if h.CRCEnabled {
		h.CRC = Checksum(out)
		binary.BigEndian.PutUint32(out[PacketHeaderLength:], h.CRC)
	}
	return out, nil
}
