package protocol

import (
	"fmt"
	"math"

	"github.com/Pablu23/photon/internal/wire"
)

type CommandType uint8

const (
	CommandNone                 CommandType = 0
	CommandAcknowledge          CommandType = 1
	CommandConnect              CommandType = 2
	CommandVerifyConnect        CommandType = 3
	CommandDisconnect           CommandType = 4
	CommandPing                 CommandType = 5
	CommandSendReliable         CommandType = 6
	CommandSendUnreliable       CommandType = 7
	CommandSendReliableFragment CommandType = 8
	CommandServerTime           CommandType = 12
)

var commandTypeNames = map[CommandType]string{
	CommandNone:                 "none",
	CommandAcknowledge:          "acknowledge",
	CommandConnect:              "connect",
	CommandVerifyConnect:        "verifyConnect",
	CommandDisconnect:           "disconnect",
	CommandPing:                 "ping",
	CommandSendReliable:         "sendReliable",
	CommandSendUnreliable:       "sendUnreliable",
	CommandSendReliableFragment: "sendReliableFragment",
	CommandServerTime:           "serverTime",
}

func (t CommandType) String() string {
	if name, ok := commandTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("CommandType(%d)", uint8(t))
}

const (
	commandFlagReliable   uint8 = 1
	commandFlagInSequence uint8 = 2
)

type CommandHeader struct {
	Type                   CommandType
	// RawType is the type byte of a command decoded as CommandNone because
	// its type is unknown. It is written back in place of Type.
	RawType                uint8
	ChannelID              uint8
	Flags                  uint8
	Reserved               uint8
	Length                 int32
	ReliableSequenceNumber int32
	InSequence             bool
	Reliable               bool
}

// NewCommandHeader builds a header with the reserved byte servers send. The
// length is filled in when the command is encoded.
func NewCommandHeader(t CommandType, channelID uint8, reliableSequenceNumber int32, inSequence, reliable bool) CommandHeader {
	h := CommandHeader{
		Type:                   t,
		ChannelID:              channelID,
		Reserved:               4,
		ReliableSequenceNumber: reliableSequenceNumber,
		InSequence:             inSequence,
		Reliable:               reliable,
	}
	if inSequence {
		h.Flags |= commandFlagInSequence
	}
	if reliable {
		h.Flags |= commandFlagReliable
	}
	return h
}

// ReadCommandHeader decodes the fixed 12 byte command header. A type byte
// this package does not know becomes CommandNone, keeping the byte in
// RawType.
func ReadCommandHeader(r *wire.Reader) (CommandHeader, error) {
	var h CommandHeader

	off := r.Offset()
	if r.Remaining() < CommandHeaderLength {
		return h, decodeErr("command header", off, fmt.Errorf("%d bytes left: %w", r.Remaining(), wire.ErrShortBuffer))
	}

	raw, _ := r.ReadUint8()
	h.Type = CommandType(raw)
	if _, ok := commandTypeNames[h.Type]; !ok {
		h.Type = CommandNone
		h.RawType = raw
	}
	h.ChannelID, _ = r.ReadUint8()
	h.Flags, _ = r.ReadUint8()
	h.Reserved, _ = r.ReadUint8()
	h.Length, _ = r.ReadInt32()
	h.ReliableSequenceNumber, _ = r.ReadInt32()

	h.InSequence = h.Flags&commandFlagInSequence != 0
	h.Reliable = h.Flags&commandFlagReliable != 0
	return h, nil
}

func (h CommandHeader) write(w *wire.Writer) {
	if h.Type == CommandNone && h.RawType != 0 {
		w.WriteUint8(h.RawType)
	} else {
		w.WriteUint8(uint8(h.Type))
	}
	w.WriteUint8(h.ChannelID)
	w.WriteUint8(h.Flags)
	w.WriteUint8(h.Reserved)
	w.WriteInt32(h.Length)
	w.WriteInt32(h.ReliableSequenceNumber)
}

type Acknowledge struct {
	ReceivedReliableSequenceNumber int32
	ReceivedSentTime               int32
}

// Connect keeps the bytes around MTU and channel count verbatim so the
// command re-encodes unchanged.
type Connect struct {
	MTU          int16
	ChannelCount uint8
	Head         [2]byte
	Window       [4]byte
	Tail         [23]byte
}

type VerifyConnect struct {
	PeerID int16
	Tail   [30]byte
}

// Fragment describes one piece of a message split over several
// sendReliableFragment commands.
type Fragment struct {
	SequenceNumber int32
	FragmentCount  int32
	FragmentNumber int32
	TotalLength    int32
	FragmentOffset int32
}

// Command is one command of a packet. The field that is set follows
// Header.Type: Acknowledge, Connect and VerifyConnect for those commands,
// Message for both send commands (plus UnreliableSequenceNumber for the
// unreliable one), Fragment and Data for fragments. Data also holds the
// payload of an unrecognized command.
type Command struct {
	Header                   CommandHeader
	Acknowledge              *Acknowledge
	Connect                  *Connect
	VerifyConnect            *VerifyConnect
	UnreliableSequenceNumber uint32
	Message                  *Message
	Fragment                 *Fragment
	Data                     []byte
}

// ReadCommand decodes one command and leaves the cursor at the end of the
// length the header declares.
func ReadCommand(r *wire.Reader, c Cipher) (*Command, error) {
	start := r.Offset()
	header, err := ReadCommandHeader(r)
	if err != nil {
		return nil, err
	}
	if header.Length < CommandHeaderLength || int(header.Length) > r.Len()-start {
		return nil, decodeErr("command length", start+4,
			fmt.Errorf("%d with %d bytes left: %w", header.Length, r.Len()-start, ErrBadCommandLength))
	}
	end := start + int(header.Length)

	cmd := &Command{Header: header}
	if err := cmd.readPayload(r, start, end, c); err != nil {
		return nil, err
	}
	if r.Offset() > end {
		return nil, decodeErr(header.Type.String(), start,
			fmt.Errorf("payload overruns declared length %d: %w", header.Length, ErrBadCommandLength))
	}
	if err := r.Seek(end); err != nil {
		return nil, decodeErr(header.Type.String(), start, err)
	}
	return cmd, nil
}

func (cmd *Command) readPayload(r *wire.Reader, start, end int, c Cipher) error {
	off := r.Offset()
	fail := func(err error) error {
		return decodeErr(cmd.Header.Type.String(), off, err)
	}

	switch cmd.Header.Type {
	case CommandNone:
		data, err := r.Slice(end - off)
		if err != nil {
			return fail(err)
		}
		cmd.Data = data
	case CommandAcknowledge:
		var ack Acknowledge
		var err error
		if ack.ReceivedReliableSequenceNumber, err = r.ReadInt32(); err != nil {
			return fail(err)
		}
		if ack.ReceivedSentTime, err = r.ReadInt32(); err != nil {
			return fail(err)
		}
		cmd.Acknowledge = &ack
	case CommandConnect:
		var conn Connect
		head, err := r.Slice(len(conn.Head))
		if err != nil {
			return fail(err)
		}
		if conn.MTU, err = r.ReadInt16(); err != nil {
			return fail(err)
		}
		window, err := r.Slice(len(conn.Window))
		if err != nil {
			return fail(err)
		}
		if conn.ChannelCount, err = r.ReadUint8(); err != nil {
			return fail(err)
		}
		tail, err := r.Slice(len(conn.Tail))
		if err != nil {
			return fail(err)
		}
		copy(conn.Head[:], head)
		copy(conn.Window[:], window)
		copy(conn.Tail[:], tail)
		cmd.Connect = &conn
	case CommandVerifyConnect:
		var vc VerifyConnect
		var err error
		if vc.PeerID, err = r.ReadInt16(); err != nil {
			return fail(err)
		}
		tail, err := r.Slice(len(vc.Tail))
		if err != nil {
			return fail(err)
		}
		copy(vc.Tail[:], tail)
		cmd.VerifyConnect = &vc
	case CommandDisconnect, CommandPing, CommandServerTime:
	case CommandSendReliable:
		msg, err := readMessage(r, end-r.Offset(), c)
		if err != nil {
			return err
		}
		cmd.Message = msg
	case CommandSendUnreliable:
		seq, err := r.ReadUint32()
		if err != nil {
			return fail(err)
		}
		msg, err := readMessage(r, end-r.Offset(), c)
		if err != nil {
			return err
		}
		cmd.UnreliableSequenceNumber = seq
		cmd.Message = msg
	case CommandSendReliableFragment:
		var f Fragment
		for _, field := range []*int32{&f.SequenceNumber, &f.FragmentCount, &f.FragmentNumber, &f.TotalLength, &f.FragmentOffset} {
			v, err := r.ReadInt32()
			if err != nil {
				return fail(err)
			}
			*field = v
		}
		data, err := r.Slice(int(cmd.Header.Length) - (r.Offset() - start))
		if err != nil {
			return fail(err)
		}
		cmd.Fragment = &f
		cmd.Data = data
	}
	return nil
}

// write encodes the command and sets Header.Length from the encoded size.
func (cmd *Command) write(w *wire.Writer, c Cipher) error {
	pw := wire.NewWriter()
	if err := cmd.writePayload(pw, c); err != nil {
		return fmt.Errorf("%v payload: %w", cmd.Header.Type, err)
	}
	payload, err := pw.Bytes()
	if err != nil {
		return err
	}
	if len(payload) > math.MaxInt32-CommandHeaderLength {
		return fmt.Errorf("%v payload of %d bytes: %w", cmd.Header.Type, len(payload), ErrValueTooLarge)
	}

	cmd.Header.Length = int32(CommandHeaderLength + len(payload))
	cmd.Header.write(w)
	w.WriteBytes(payload)
	return nil
}

func (cmd *Command) writePayload(w *wire.Writer, c Cipher) error {
	switch cmd.Header.Type {
	case CommandNone:
		w.WriteBytes(cmd.Data)
	case CommandAcknowledge:
		if cmd.Acknowledge == nil {
			return fmt.Errorf("missing acknowledge: %w", ErrUnsupportedValue)
		}
		w.WriteInt32(cmd.Acknowledge.ReceivedReliableSequenceNumber)
		w.WriteInt32(cmd.Acknowledge.ReceivedSentTime)
	case CommandConnect:
		if cmd.Connect == nil {
			return fmt.Errorf("missing connect: %w", ErrUnsupportedValue)
		}
		w.WriteBytes(cmd.Connect.Head[:])
		w.WriteInt16(cmd.Connect.MTU)
		w.WriteBytes(cmd.Connect.Window[:])
		w.WriteUint8(cmd.Connect.ChannelCount)
		w.WriteBytes(cmd.Connect.Tail[:])
	case CommandVerifyConnect:
		if cmd.VerifyConnect == nil {
			return fmt.Errorf("missing verify connect: %w", ErrUnsupportedValue)
		}
		w.WriteInt16(cmd.VerifyConnect.PeerID)
		w.WriteBytes(cmd.VerifyConnect.Tail[:])
	case CommandDisconnect, CommandPing, CommandServerTime:
	case CommandSendReliable:
		if cmd.Message == nil {
			return fmt.Errorf("missing message: %w", ErrUnsupportedValue)
		}
		return cmd.Message.write(w, c)
	case CommandSendUnreliable:
		if cmd.Message == nil {
			return fmt.Errorf("missing message: %w", ErrUnsupportedValue)
		}
		w.WriteUint32(cmd.UnreliableSequenceNumber)
		return cmd.Message.write(w, c)
	case CommandSendReliableFragment:
		if cmd.Fragment == nil {
			return fmt.Errorf("missing fragment: %w", ErrUnsupportedValue)
		}
		f := cmd.Fragment
		for _, v := range []int32{f.SequenceNumber, f.FragmentCount, f.FragmentNumber, f.TotalLength, f.FragmentOffset} {
			w.WriteInt32(v)
		}
		w.WriteBytes(cmd.Data)
	default:
		return fmt.Errorf("%v: %w", cmd.Header.Type, ErrUnsupportedValue)
	}
	return nil
}
