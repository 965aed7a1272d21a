package server

import (
	"net"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/Pablu23/photon/internal/protocol"
	"github.com/Pablu23/photon/internal/session"
)

func TestServeKeyExchangeAndMessages(t *testing.T) {
	received := make(chan *protocol.Message, 4)
	srv := New(func(peer string, msg *protocol.Message) {
		received <- msg
	})

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	stop := make(chan bool, 1)
	done := make(chan error, 1)
	go func() {
		done <- srv.serve(conn, stop)
	}()
	defer func() {
		stop <- true
		conn.Close()
		if err := <-done; err != nil {
			t.Error(err)
		}
	}()

	client, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()
	if err := client.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatal(err)
	}

	peer := conn.LocalAddr().String()
	sessions := session.New()

	req, err := sessions.KeyExchangeRequest(peer)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := client.WriteTo(req, conn.LocalAddr()); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 1500)
	n, _, err := client.ReadFrom(buf)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sessions.Handle(peer, buf[:n]); err != nil {
		t.Fatal(err)
	}
	if !sessions.Encrypted(peer) {
		t.Fatal("no shared key after the server's response")
	}
	<-received

	event := &protocol.Message{
		Header: protocol.NewMessageHeader(protocol.MessageEvent, true),
		Event:  &protocol.Event{Code: 1, Params: protocol.ParameterTable{0: protocol.Integer(99)}},
	}
	pck, err := sessions.NewPacket(peer, true, event)
	if err != nil {
		t.Fatal(err)
	}
	datagram, err := sessions.Encode(peer, pck)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := client.WriteTo(datagram, conn.LocalAddr()); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-received:
		if diff := cmp.Diff(event, got, cmpopts.EquateEmpty()); diff != "" {
			t.Fatalf("message mismatch (-want +got):\n%s", diff)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server never delivered the event")
	}
}
