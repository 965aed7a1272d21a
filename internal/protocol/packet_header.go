package protocol

import (
	"fmt"

	"github.com/Pablu23/photon/internal/wire"
)

type PacketHeader struct {
	PeerID       int16
	Flags        uint8
	CommandCount uint8
	Timestamp    uint32
	Challenge    int32
	CRCEnabled   bool
	CRCValid     bool
	Encrypted    bool
	CRC          uint32 // only meaningful when CRCEnabled
}

// NewPacketHeader derives the flags byte the same way a received header
// is interpreted: encryption wins over CRC.
func NewPacketHeader(peerID int16, commandCount uint8, timestamp uint32, challenge int32, encrypted, crc bool) PacketHeader {
	h := PacketHeader{
		PeerID:       peerID,
		CommandCount: commandCount,
		Timestamp:    timestamp,
		Challenge:    challenge,
		CRCValid:     true,
	}
	switch {
	case encrypted:
		h.Flags = FlagEncrypted
		h.Encrypted = true
	case crc:
		h.Flags = FlagCRC
		h.CRCEnabled = true
	}
	return h
}

// Length is the encoded size of the header.
func (h PacketHeader) Length() int {
	if h.CRCEnabled {
		return PacketHeaderLength + CRCLength
	}
	return PacketHeaderLength
}

// ReadPacketHeader decodes a packet header starting at the cursor. The
// packet is assumed to span length bytes from there. When the header
// carries a CRC its four bytes are zeroed in the buffer before the CRC is
// recomputed over the whole packet.
func ReadPacketHeader(r *wire.Reader, length int) (PacketHeader, error) {
	start := r.Offset()
	var h PacketHeader
	var err error

	if h.PeerID, err = r.ReadInt16(); err != nil {
		return h, decodeErr("peer id", r.Offset(), err)
	}
	if h.Flags, err = r.ReadUint8(); err != nil {
		return h, decodeErr("packet flags", r.Offset(), err)
	}
	if h.CommandCount, err = r.ReadUint8(); err != nil {
		return h, decodeErr("command count", r.Offset(), err)
	}
	if h.Timestamp, err = r.ReadUint32(); err != nil {
		return h, decodeErr("timestamp", r.Offset(), err)
	}
	if h.Challenge, err = r.ReadInt32(); err != nil {
		return h, decodeErr("challenge", r.Offset(), err)
	}

	h.CRCEnabled = h.Flags == FlagCRC
	h.Encrypted = h.Flags == FlagEncrypted
	h.CRCValid = true

	if h.CRCEnabled {
		crcOffset := r.Offset()
		if h.CRC, err = r.ReadUint32(); err != nil {
			return h, decodeErr("crc", crcOffset, err)
		}
		if err = r.SetAt(make([]byte, CRCLength), crcOffset); err != nil {
			return h, decodeErr("crc", crcOffset, err)
		}
		packet, err := r.SliceAt(start, length)
		if err != nil {
			return h, decodeErr("crc range", start, err)
		}
		h.CRCValid = h.CRC == Checksum(packet)
	}
	return h, nil
}

func (h PacketHeader) write(w *wire.Writer) {
	w.WriteInt16(h.PeerID)
	w.WriteUint8(h.Flags)
	w.WriteUint8(h.CommandCount)
	w.WriteUint32(h.Timestamp)
	w.WriteInt32(h.Challenge)
	if h.CRCEnabled {
		w.WriteUint32(h.CRC)
	}
}

func (h PacketHeader) String() string {
	return fmt.Sprintf("peer=%d flags=%#02x commands=%d time=%d challenge=%d crc=%v/%v encrypted=%v",
		h.PeerID, h.Flags, h.CommandCount, h.Timestamp, h.Challenge, h.CRCEnabled, h.CRCValid, h.Encrypted)
}
