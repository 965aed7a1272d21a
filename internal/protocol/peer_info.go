package protocol

import (
	"bytes"
	"fmt"

	"github.com/Pablu23/photon/internal/wire"
)

// PeerInformation is sent by a client in its initialize message.
// VersionLow and AppIDTail hold the bytes of the packed version word and of
// the app id field that carry no known meaning, so encoding a decoded value
// reproduces it exactly.
type PeerInformation struct {
	ProtocolVersion [2]byte
	SDKID           uint8
	ClientVersion   [4]byte
	VersionLow      uint8
	IPv6            bool
	AppID           string
	// bytes after the NUL ending AppID, without trailing zeros
	AppIDTail       []byte
}

func ReadPeerInformation(r *wire.Reader) (PeerInformation, error) {
	var info PeerInformation

	off := r.Offset()
	version, err := r.ReadUint16()
	if err != nil {
		return info, decodeErr("protocol version", off, err)
	}
	info.ProtocolVersion = [2]byte{byte(version >> 8), byte(version)}

	off = r.Offset()
	if info.SDKID, err = r.ReadUint8(); err != nil {
		return info, decodeErr("sdk id", off, err)
	}

	off = r.Offset()
	packed, err := r.ReadUint32()
	if err != nil {
		return info, decodeErr("client version", off, err)
	}
	info.IPv6 = packed&(0x80<<24) != 0
	info.ClientVersion = [4]byte{
		byte((packed >> 24 & 0x70) >> 4),
		byte(packed >> 24 & 0x0F),
		byte(packed >> 16),
		byte(packed >> 8),
	}
	info.VersionLow = byte(packed)

	off = r.Offset()
	appID, err := r.Slice(AppIDLength)
	if err != nil {
		return info, decodeErr("app id", off, err)
	}
	if i := bytes.IndexByte(appID, 0); i >= 0 {
		if tail := bytes.TrimRight(appID[i+1:], "\x00"); len(tail) > 0 {
			info.AppIDTail = append([]byte(nil), tail...)
		}
		appID = appID[:i]
	}
	info.AppID = string(appID)
	return info, nil
}

func (info PeerInformation) write(w *wire.Writer) error {
	field := []byte(info.AppID)
	if len(info.AppIDTail) > 0 {
		field = append(append(field, 0), info.AppIDTail...)
	}
	if len(field) > AppIDLength || bytes.IndexByte([]byte(info.AppID), 0) >= 0 {
		return fmt.Errorf("app id %q: %w", info.AppID, ErrValueTooLarge)
	}

	w.WriteUint8(info.ProtocolVersion[0])
	w.WriteUint8(info.ProtocolVersion[1])
	w.WriteUint8(info.SDKID)

	cv := info.ClientVersion
	packed := uint32(cv[0]&0x07)<<28 | uint32(cv[1]&0x0F)<<24 | uint32(cv[2])<<16 | uint32(cv[3])<<8 | uint32(info.VersionLow)
	if info.IPv6 {
		packed |= 0x80 << 24
	}
	w.WriteUint32(packed)

	appID := make([]byte, AppIDLength)
	copy(appID, field)
	w.WriteBytes(appID)
	return nil
}
