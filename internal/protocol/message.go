package protocol

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/Pablu23/photon/internal/wire"
)

type MessageType uint8

const (
	MessageInitialize                MessageType = 0
	MessageInitializeResponse        MessageType = 1
	MessageOperationRequest          MessageType = 2
	MessageOperationResponse         MessageType = 3
	MessageEvent                     MessageType = 4
	MessageInternalOperationRequest  MessageType = 6
	MessageInternalOperationResponse MessageType = 7
	MessageMessage                   MessageType = 8
	MessageRaw                       MessageType = 9
)

var messageTypeNames = map[MessageType]string{
	MessageInitialize:                "initialize",
	MessageInitializeResponse:        "initializeResponse",
	MessageOperationRequest:          "operationRequest",
	MessageOperationResponse:         "operationResponse",
	MessageEvent:                     "event",
	MessageInternalOperationRequest:  "internalOperationRequest",
	MessageInternalOperationResponse: "internalOperationResponse",
	MessageMessage:                   "message",
	MessageRaw:                       "rawMessage",
}

func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("MessageType(%d)", uint8(t))
}

type MessageHeader struct {
	Signature uint8
	Type      MessageType
	Encrypted bool
}

func NewMessageHeader(t MessageType, encrypted bool) MessageHeader {
	return MessageHeader{Signature: MessageSignature, Type: t, Encrypted: encrypted}
}

func ReadMessageHeader(r *wire.Reader) (MessageHeader, error) {
	var h MessageHeader
	var err error

	off := r.Offset()
	if h.Signature, err = r.ReadUint8(); err != nil {
		return h, decodeErr("message signature", off, err)
	}
	if h.Signature != MessageSignature {
		return h, decodeErr("message signature", off, fmt.Errorf("%d: %w", h.Signature, ErrBadSignature))
	}

	off = r.Offset()
	raw, err := r.ReadUint8()
	if err != nil {
		return h, decodeErr("message type", off, err)
	}
	h.Type = MessageType(raw & 0x7F)
	h.Encrypted = raw&0x80 != 0
	if _, ok := messageTypeNames[h.Type]; !ok {
		return h, decodeErr("message type", off, fmt.Errorf("%d: %w", raw&0x7F, ErrUnknownMessageType))
	}
	return h, nil
}

func (h MessageHeader) write(w *wire.Writer) {
	w.WriteUint8(h.Signature)
	t := uint8(h.Type)
	if h.Encrypted {
		t |= 0x80
	}
	w.WriteUint8(t)
}

// Message is the payload of a send command. Which body field is set follows
// Header.Type: PeerInfo for initialize, Request for (internal) operation
// requests, Response for (internal) operation responses, Event for events
// and Data for message and raw message.
type Message struct {
	Header   MessageHeader
	PeerInfo *PeerInformation
	Request  *OperationRequest
	Response *OperationResponse
	Event    *Event
	Data     []byte
}

// DecodeMessage decodes a complete message, for example one reassembled
// from fragments.
func DecodeMessage(b []byte, c Cipher) (*Message, error) {
	buf := make([]byte, len(b))
	copy(buf, b)
	r := wire.NewReader(buf)
	return readMessage(r, len(buf), c)
}

// readMessage decodes a message occupying the next n bytes of r.
func readMessage(r *wire.Reader, n int, c Cipher) (*Message, error) {
	header, err := ReadMessageHeader(r)
	if err != nil {
		return nil, err
	}

	off := r.Offset()
	body, err := r.Slice(n - MessageHeaderLength)
	if err != nil {
		return nil, decodeErr("message body", off, err)
	}

	if header.Encrypted {
		if c == nil || !c.Initialized() {
			return nil, decodeErr("message body", off, ErrNoCipher)
		}
		if body, err = c.Decrypt(body); err != nil {
			return nil, decodeErr("message body", off, err)
		}
	}

	br := wire.NewReader(body)
	msg := &Message{Header: header}
	switch header.Type {
	case MessageInitialize:
		info, err := ReadPeerInformation(br)
		if err != nil {
			return nil, err
		}
		msg.PeerInfo = &info
	case MessageInitializeResponse:
		if err := br.Advance(1); err != nil {
			return nil, decodeErr("initialize response", off, err)
		}
	case MessageOperationRequest, MessageInternalOperationRequest:
		req, err := ReadOperationRequest(br)
		if err != nil {
			return nil, err
		}
		msg.Request = &req
	case MessageOperationResponse, MessageInternalOperationResponse:
		resp, err := ReadOperationResponse(br)
		if err != nil {
			return nil, err
		}
		msg.Response = &resp
	case MessageEvent:
		ev, err := ReadEvent(br)
		if err != nil {
			return nil, err
		}
		msg.Event = &ev
	case MessageMessage, MessageRaw:
		msg.Data, _ = br.Slice(br.Remaining())
	}

	if br.Remaining() > 0 {
		log.WithFields(log.Fields{
			"Type":     header.Type,
			"Trailing": br.Remaining(),
		}).Debug("Ignoring trailing bytes after message body")
	}
	return msg, nil
}

// EncodeMessage encodes a message on its own, without a command around it.
func EncodeMessage(m *Message, c Cipher) ([]byte, error) {
	w := wire.NewWriter()
	if err := m.write(w, c); err != nil {
		return nil, err
	}
	return w.Bytes()
}

func (m *Message) write(w *wire.Writer, c Cipher) error {
	bw := wire.NewWriter()
	if err := m.writeBody(bw); err != nil {
		return fmt.Errorf("%v body: %w", m.Header.Type, err)
	}
	body, err := bw.Bytes()
	if err != nil {
		return err
	}

	if m.Header.Encrypted {
		if c == nil || !c.Initialized() {
			return ErrNoCipher
		}
		if body, err = c.Encrypt(body); err != nil {
			return fmt.Errorf("encrypt %v body: %w", m.Header.Type, err)
		}
	}

	m.Header.write(w)
	w.WriteBytes(body)
	return nil
}

func (m *Message) writeBody(w *wire.Writer) error {
	switch m.Header.Type {
	case MessageInitialize:
		if m.PeerInfo == nil {
			return fmt.Errorf("missing peer information: %w", ErrUnsupportedValue)
		}
		return m.PeerInfo.write(w)
	case MessageInitializeResponse:
		w.WriteUint8(0)
	case MessageOperationRequest, MessageInternalOperationRequest:
		if m.Request == nil {
			return fmt.Errorf("missing operation request: %w", ErrUnsupportedValue)
		}
		return m.Request.write(w)
	case MessageOperationResponse, MessageInternalOperationResponse:
		if m.Response == nil {
			return fmt.Errorf("missing operation response: %w", ErrUnsupportedValue)
		}
		return m.Response.write(w)
	case MessageEvent:
		if m.Event == nil {
			return fmt.Errorf("missing event: %w", ErrUnsupportedValue)
		}
		return m.Event.write(w)
	case MessageMessage, MessageRaw:
		w.WriteBytes(m.Data)
	default:
		return fmt.Errorf("%v: %w", m.Header.Type, ErrUnknownMessageType)
	}
	return nil
}
