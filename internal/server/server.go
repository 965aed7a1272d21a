// Package server answers Photon peers over UDP: it decodes their datagrams
// through a session.Manager, completes key exchanges and hands every
// message to a Handler.
package server

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"

	"github.com/Pablu23/photon/internal/protocol"
	"github.com/Pablu23/photon/internal/session"
)

// Handler receives every message a peer completed.
type Handler func(peer string, msg *protocol.Message)

type Server struct {
	sessions *session.Manager
	options  *Options
	handler  Handler
}

func New(handler Handler, opts ...func(*Options)) *Server {
	options := NewDefaultOptions()

	for _, opt := range opts {
		opt(options)
	}

	sessions := session.New(func(o *session.Options) {
		o.IdleTimeout = options.IdleTimeout
		o.CleanupInterval = options.IdleTimeout
		o.MaxMessageSize = options.MaxMessageSize
		o.MaxPending = options.MaxPending
		o.Encryption = options.Encryption
	})

	return &Server{
		sessions: sessions,
		options:  options,
		handler:  handler,
	}
}

func (server *Server) sendPacket(conn net.PacketConn, addr net.Addr, datagram []byte) {
	if _, err := conn.WriteTo(datagram, addr); err != nil {
		log.WithError(err).WithField("Peer", addr).Error("Could not write Packet to UDP")
	}
}

func (server *Server) handleDatagram(conn net.PacketConn, addr net.Addr, datagram []byte) {
	peer := addr.String()

	messages, err := server.sessions.Handle(peer, datagram)
	if err != nil {
		log.WithError(err).WithField("Peer", peer).Warn("Received invalid Packet")
		return
	}

	for _, msg := range messages {
		log.WithFields(log.Fields{
			"Peer":      peer,
			"Type":      msg.Header.Type,
			"Encrypted": msg.Header.Encrypted,
		}).Debug("Received message")

		if _, ok := protocol.KeyExchangePublicKey(msg); ok &&
			msg.Header.Type == protocol.MessageInternalOperationRequest && server.sessions.Encrypted(peer) {
			resp, err := server.sessions.KeyExchangeResponse(peer)
			if err != nil {
				log.WithError(err).WithField("Peer", peer).Error("Could not build key exchange response")
				continue
			}
			server.sendPacket(conn, addr, resp)
		}

		if server.handler != nil {
			server.handler(peer, msg)
		}
	}
}

// Send encodes messages into one packet for peer and writes it to conn.
func (server *Server) Send(conn net.PacketConn, addr net.Addr, messages ...*protocol.Message) error {
	peer := addr.String()
	pck, err := server.sessions.NewPacket(peer, false, messages...)
	if err != nil {
		return err
	}
	datagram, err := server.sessions.Encode(peer, pck)
	if err != nil {
		return err
	}
	server.sendPacket(conn, addr, datagram)
	return nil
}

func (server *Server) handleShutdown(conn net.PacketConn, stop chan bool) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)

	go func() {
		for range c {
			log.Info("Server is shutting down")
			stop <- true
			if err := conn.Close(); err != nil {
				log.WithError(err).Error("Could not close UDP listener")
			}
			return
		}
	}()
}

// Serve listens on Address:Port until interrupted.
func (server *Server) Serve() error {
	udpAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%v:%v", server.options.Address, server.options.Port))
	if err != nil {
		return err
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return err
	}

	log.Infof("Starting server on %v:%v", udpAddr.IP, udpAddr.Port)

	stop := make(chan bool, 1)
	server.handleShutdown(conn, stop)
	return server.serve(conn, stop)
}

func (server *Server) serve(conn net.PacketConn, stop chan bool) error {
	go server.sessions.StartTimeout(stop)

	buf := make([]byte, server.options.PacketSize)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if errors.Is(err, net.ErrClosed) {
			return nil
		}
		if err != nil {
			log.WithError(err).Error("Could not retrieve UDP Packet")
			continue
		}

		server.handleDatagram(conn, addr, buf[:n])
	}
}
