package protocol

import (
	"errors"
	"fmt"
)

const (
	PacketHeaderLength  = 12
	CRCLength           = 4
	CommandHeaderLength = 12
	MessageHeaderLength = 2
	FragmentLength      = 5 * 4
	AppIDLength         = 32
)

const MessageSignature uint8 = 243

const (
	FlagNone      uint8 = 0x00
	FlagEncrypted uint8 = 0x01
	FlagCRC       uint8 = 0xCC
)

var (
	ErrBadSignature       = errors.New("bad message signature")
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrUnknownParamType   = errors.New("unknown parameter type")
	ErrUnsupportedValue   = errors.New("unsupported parameter value")
	ErrTypeMismatch       = errors.New("value does not match declared type")
	ErrValueTooLarge      = errors.New("value too large")
	ErrBadCommandLength   = errors.New("bad command length")
	ErrNoCipher           = errors.New("encrypted payload without an established key")
)

// DecodeError reports which field failed to decode and where.
type DecodeError struct {
	Field  string
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s at offset %d: %v", e.Field, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// decodeErr wraps err unless it already carries a more specific field.
func decodeErr(field string, offset int, err error) error {
	var de *DecodeError
	if errors.As(err, &de) {
		return err
	}
	return &DecodeError{Field: field, Offset: offset, Err: err}
}

// Cipher is the encrypted-channel collaborator. It must fail rather than
// return empty output when no key has been agreed.
type Cipher interface {
	Initialized() bool
	Encrypt(data []byte) ([]byte, error)
	Decrypt(data []byte) ([]byte, error)
}
