package session

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/Pablu23/photon/internal/protocol"
	"github.com/Pablu23/photon/internal/wire"
)

func encode(t *testing.T, cmds ...*protocol.Command) []byte {
	t.Helper()
	pck := &protocol.Packet{Header: protocol.NewPacketHeader(1, 0, 0, 0, false, false), Commands: cmds}
	out, err := protocol.EncodePacket(pck, nil)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestKeyExchange(t *testing.T) {
	client := New()
	server := New()

	req, err := client.KeyExchangeRequest("server")
	if err != nil {
		t.Fatal(err)
	}
	msgs, err := server.Handle("client", req)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("%d messages", len(msgs))
	}
	if _, ok := protocol.KeyExchangePublicKey(msgs[0]); !ok {
		t.Fatal("request carries no public key")
	}
	if !server.Encrypted("client") {
		t.Fatal("server not keyed after the request")
	}
	if client.Encrypted("server") {
		t.Fatal("client keyed before the response")
	}

	resp, err := server.KeyExchangeResponse("client")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := client.Handle("server", resp); err != nil {
		t.Fatal(err)
	}
	if !client.Encrypted("server") {
		t.Fatal("client not keyed after the response")
	}

	event := &protocol.Message{
		Header: protocol.NewMessageHeader(protocol.MessageEvent, true),
		Event:  &protocol.Event{Code: 5, Params: protocol.ParameterTable{1: protocol.String("hi")}},
	}
	pck, err := client.NewPacket("server", true, event)
	if err != nil {
		t.Fatal(err)
	}
	out, err := client.Encode("server", pck)
	if err != nil {
		t.Fatal(err)
	}
	if seq := pck.Commands[0].Header.ReliableSequenceNumber; seq != 2 {
		t.Fatalf("sequence number %d", seq)
	}

	msgs, err = server.Handle("client", out)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]*protocol.Message{event}, msgs, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("message mismatch (-want +got):\n%s", diff)
	}
}

func TestEncryptionDisabled(t *testing.T) {
	client := New()
	server := New(func(o *Options) {
		o.Encryption = false
	})

	req, err := client.KeyExchangeRequest("server")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := server.Handle("client", req); err != nil {
		t.Fatal(err)
	}
	if server.Encrypted("client") {
		t.Fatal("key exchange honoured with encryption disabled")
	}
}

func TestFragmentedMessage(t *testing.T) {
	msg := &protocol.Message{
		Header: protocol.NewMessageHeader(protocol.MessageOperationRequest, false),
		Request: &protocol.OperationRequest{OpCode: 7, Params: protocol.ParameterTable{
			0: protocol.ByteArray(make([]byte, 300)),
		}},
	}
	body, err := protocol.EncodeMessage(msg, nil)
	if err != nil {
		t.Fatal(err)
	}
	half := len(body) / 2

	fragment := func(n, offset int, data []byte) *protocol.Command {
		return &protocol.Command{
			Header: protocol.NewCommandHeader(protocol.CommandSendReliableFragment, 0, int32(10+n), false, true),
			Fragment: &protocol.Fragment{
				SequenceNumber: 10,
				FragmentCount:  2,
				FragmentNumber: int32(n),
				TotalLength:    int32(len(body)),
				FragmentOffset: int32(offset),
			},
			Data: data,
		}
	}

	m := New()
	msgs, err := m.Handle("peer", encode(t, fragment(1, half, body[half:])))
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Fatalf("%d messages from a partial message", len(msgs))
	}

	msgs, err = m.Handle("peer", encode(t, fragment(0, 0, body[:half])))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]*protocol.Message{msg}, msgs, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("message mismatch (-want +got):\n%s", diff)
	}
}

func TestRejectedFragmentLeavesNoState(t *testing.T) {
	valid := &protocol.Command{
		Header:   protocol.NewCommandHeader(protocol.CommandSendReliableFragment, 0, 20, false, true),
		Fragment: &protocol.Fragment{SequenceNumber: 20, FragmentCount: 2, TotalLength: 4},
		Data:     []byte{1, 2},
	}
	invalid := &protocol.Command{
		Header:   protocol.NewCommandHeader(protocol.CommandSendReliableFragment, 0, 30, false, true),
		Fragment: &protocol.Fragment{SequenceNumber: 30, FragmentCount: 0, TotalLength: 4},
		Data:     []byte{1},
	}

	m := New()
	if _, err := m.Handle("peer", encode(t, valid, invalid)); err == nil {
		t.Fatal("invalid fragment accepted")
	}
	if n := m.sessions["peer"].fragments.Pending(); n != 0 {
		t.Fatalf("rejected packet left %d messages pending", n)
	}
}

func TestPendingLimit(t *testing.T) {
	m := New(func(o *Options) {
		o.MaxPending = 1
	})
	partial := func(seq int32) *protocol.Command {
		return &protocol.Command{
			Header:   protocol.NewCommandHeader(protocol.CommandSendReliableFragment, 0, seq, false, true),
			Fragment: &protocol.Fragment{SequenceNumber: seq, FragmentCount: 2, TotalLength: 4},
			Data:     []byte{1, 2},
		}
	}

	if _, err := m.Handle("peer", encode(t, partial(1))); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Handle("peer", encode(t, partial(5))); err == nil {
		t.Fatal("second partial message accepted")
	}
}

func TestBadChecksum(t *testing.T) {
	pck := &protocol.Packet{
		Header:   protocol.NewPacketHeader(1, 0, 0, 0, false, true),
		Commands: []*protocol.Command{{Header: protocol.NewCommandHeader(protocol.CommandPing, 0xFF, 1, false, true)}},
	}
	out, err := protocol.EncodePacket(pck, nil)
	if err != nil {
		t.Fatal(err)
	}
	out[len(out)-1] ^= 0xFF

	if _, err := New().Handle("peer", out); !errors.Is(err, ErrBadChecksum) {
		t.Fatalf("expected ErrBadChecksum, got %v", err)
	}
}

func TestDecodeError(t *testing.T) {
	if _, err := New().Handle("peer", []byte{1, 2}); !errors.Is(err, wire.ErrShortBuffer) {
		t.Fatalf("expected ErrShortBuffer, got %v", err)
	}
}

func TestVerifyConnectAssignsPeerID(t *testing.T) {
	m := New()
	_, err := m.Handle("server", encode(t, &protocol.Command{
		Header:        protocol.NewCommandHeader(protocol.CommandVerifyConnect, 0xFF, 1, false, true),
		VerifyConnect: &protocol.VerifyConnect{PeerID: 42},
	}))
	if err != nil {
		t.Fatal(err)
	}

	pck, err := m.NewPacket("server", false)
	if err != nil {
		t.Fatal(err)
	}
	if pck.Header.PeerID != 42 {
		t.Fatalf("peer id %d", pck.Header.PeerID)
	}
}

func TestDisconnectClosesSession(t *testing.T) {
	m := New()
	ping := &protocol.Command{Header: protocol.NewCommandHeader(protocol.CommandPing, 0xFF, 1, false, true)}
	if _, err := m.Handle("peer", encode(t, ping)); err != nil {
		t.Fatal(err)
	}
	if m.Len() != 1 {
		t.Fatalf("%d sessions", m.Len())
	}

	bye := &protocol.Command{Header: protocol.NewCommandHeader(protocol.CommandDisconnect, 0xFF, 2, false, true)}
	if _, err := m.Handle("peer", encode(t, bye)); err != nil {
		t.Fatal(err)
	}
	if m.Len() != 0 {
		t.Fatalf("%d sessions after disconnect", m.Len())
	}
}

func TestCleanup(t *testing.T) {
	m := New(func(o *Options) {
		o.IdleTimeout = time.Minute
	})
	ping := &protocol.Command{Header: protocol.NewCommandHeader(protocol.CommandPing, 0xFF, 1, false, true)}
	for _, peer := range []string{"a", "b"} {
		if _, err := m.Handle(peer, encode(t, ping)); err != nil {
			t.Fatal(err)
		}
	}

	m.mu.Lock()
	m.sessions["a"].lastSeen = time.Now().Add(-2 * time.Minute)
	m.mu.Unlock()

	m.Cleanup()
	if m.Len() != 1 {
		t.Fatalf("%d sessions", m.Len())
	}
	if _, ok := m.sessions["b"]; !ok {
		t.Fatal("active session closed")
	}
}

func TestStartTimeout(t *testing.T) {
	m := New(func(o *Options) {
		o.IdleTimeout = 0
		o.CleanupInterval = 5 * time.Millisecond
	})
	ping := &protocol.Command{Header: protocol.NewCommandHeader(protocol.CommandPing, 0xFF, 1, false, true)}
	if _, err := m.Handle("peer", encode(t, ping)); err != nil {
		t.Fatal(err)
	}

	stop := make(chan bool)
	done := make(chan struct{})
	go func() {
		m.StartTimeout(stop)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for m.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("idle session never expired")
		}
		time.Sleep(time.Millisecond)
	}

	stop <- true
	<-done
}
