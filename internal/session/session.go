// Package session keeps per-peer Photon state: the Diffie-Hellman provider
// guarding that peer's encrypted traffic, partially received fragmented
// messages and the outgoing reliable sequence counter.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Pablu23/photon/internal/protocol"
	"github.com/Pablu23/photon/internal/reassembly"
	"github.com/Pablu23/photon/internal/secure"
)

var ErrBadChecksum = errors.New("crc mismatch")

type Session struct {
	Peer string

	mu        sync.Mutex
	crypto    *secure.DiffieHellman
	fragments *reassembly.Reassembler
	peerID    int16
	nextSeq   int32

	// guarded by Manager.mu
	lastSeen time.Time
}

type Manager struct {
	sessions map[string]*Session
	mu       sync.Mutex
	options  *Options
	started  time.Time
}

func New(opts ...func(*Options)) *Manager {
	options := NewDefaultOptions()

	for _, opt := range opts {
		opt(options)
	}

	return &Manager{
		sessions: make(map[string]*Session),
		options:  options,
		started:  time.Now(),
	}
}

// get returns the session of peer, starting one if there is none.
func (m *Manager) get(peer string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[peer]; ok {
		s.lastSeen = time.Now()
		return s, nil
	}

	dh, err := secure.NewDiffieHellman()
	if err != nil {
		return nil, err
	}
	s := &Session{
		Peer:      peer,
		crypto:    dh,
		fragments: reassembly.New(m.options.MaxMessageSize, m.options.MaxPending),
		peerID:    -1,
		lastSeen:  time.Now(),
	}
	m.sessions[peer] = s
	log.WithField("Peer", peer).Info("Started session")
	return s, nil
}

// Handle decodes one datagram received from peer and returns the messages
// it completed, including messages reassembled from fragments. Key exchange
// messages establish the session's encryption as a side effect. A
// disconnect command closes the session.
func (m *Manager) Handle(peer string, datagram []byte) ([]*protocol.Message, error) {
	s, err := m.get(peer)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pck, err := protocol.DecodePacket(datagram, s.crypto)
	if err != nil {
		return nil, fmt.Errorf("peer %v: %w", peer, err)
	}
	if !pck.Header.CRCValid {
		log.WithFields(log.Fields{
			"Peer":   peer,
			"Header": pck.Header,
		}).Warn("Dropping packet with invalid CRC")
		return nil, fmt.Errorf("peer %v: %w", peer, ErrBadChecksum)
	}

	// Fragments are checked together first so a rejected packet leaves no
	// partial state behind.
	var pieces []reassembly.Piece
	for _, cmd := range pck.Commands {
		if cmd.Header.Type == protocol.CommandSendReliableFragment {
			pieces = append(pieces, reassembly.Piece{Fragment: *cmd.Fragment, Data: cmd.Data})
		}
	}
	bodies, err := s.fragments.AddBatch(pieces)
	if err != nil {
		return nil, fmt.Errorf("peer %v: %w", peer, err)
	}

	var messages []*protocol.Message
	disconnect := false
	for _, cmd := range pck.Commands {
		switch cmd.Header.Type {
		case protocol.CommandVerifyConnect:
			s.peerID = cmd.VerifyConnect.PeerID
		case protocol.CommandSendReliable, protocol.CommandSendUnreliable:
			messages = append(messages, cmd.Message)
		case protocol.CommandSendReliableFragment:
			body := bodies[0]
			bodies = bodies[1:]
			if body == nil {
				continue
			}
			msg, err := protocol.DecodeMessage(body, s.crypto)
			if err != nil {
				return nil, fmt.Errorf("peer %v: fragmented message %d: %w", peer, cmd.Fragment.SequenceNumber, err)
			}
			messages = append(messages, msg)
		case protocol.CommandDisconnect:
			disconnect = true
		}
	}

	for _, msg := range messages {
		m.exchangeKeys(s, msg)
	}

	if disconnect {
		m.Close(peer)
	}
	return messages, nil
}

func (m *Manager) exchangeKeys(s *Session, msg *protocol.Message) {
	key, ok := protocol.KeyExchangePublicKey(msg)
	if !ok || !m.options.Encryption {
		return
	}
	if s.crypto.Initialized() {
		log.WithField("Peer", s.Peer).Debug("Ignoring repeated key exchange")
		return
	}

	if err := s.crypto.DeriveSharedKey(key); err != nil {
		log.WithError(err).WithField("Peer", s.Peer).Warn("Could not derive shared key")
		return
	}
	log.WithField("Peer", s.Peer).Info("Established encryption")
}

// Encode encodes pck with the cipher of peer. Reliable commands without a
// sequence number are numbered from the session's counter.
func (m *Manager) Encode(peer string, pck *protocol.Packet) ([]byte, error) {
	s, err := m.get(peer)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cmd := range pck.Commands {
		if cmd.Header.Reliable && cmd.Header.ReliableSequenceNumber == 0 {
			s.nextSeq++
			cmd.Header.ReliableSequenceNumber = s.nextSeq
		}
	}
	return protocol.EncodePacket(pck, s.crypto)
}

// KeyExchangeRequest builds the datagram that starts key exchange with peer.
func (m *Manager) KeyExchangeRequest(peer string) ([]byte, error) {
	return m.keyExchange(peer, protocol.NewKeyExchangeRequest)
}

// KeyExchangeResponse builds the datagram answering a key exchange request
// from peer.
func (m *Manager) KeyExchangeResponse(peer string) ([]byte, error) {
	return m.keyExchange(peer, protocol.NewKeyExchangeResponse)
}

func (m *Manager) keyExchange(peer string, build func([]byte) *protocol.Message) ([]byte, error) {
	s, err := m.get(peer)
	if err != nil {
		return nil, err
	}

	pck, err := m.NewPacket(peer, false, build(s.crypto.PublicKey()))
	if err != nil {
		return nil, err
	}
	return m.Encode(peer, pck)
}

// NewPacket wraps messages in reliable send commands on channel 0,
// addressed with the peer id the remote side assigned.
func (m *Manager) NewPacket(peer string, crc bool, messages ...*protocol.Message) (*protocol.Packet, error) {
	s, err := m.get(peer)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	peerID := s.peerID
	s.mu.Unlock()

	pck := &protocol.Packet{
		Header: protocol.NewPacketHeader(peerID, 0, uint32(time.Since(m.started).Milliseconds()), 0, false, crc),
	}
	for _, msg := range messages {
		pck.Commands = append(pck.Commands, &protocol.Command{
			Header:  protocol.NewCommandHeader(protocol.CommandSendReliable, 0, 0, false, true),
			Message: msg,
		})
	}
	return pck, nil
}

// Encrypted reports whether key exchange with peer has completed.
func (m *Manager) Encrypted(peer string) bool {
	m.mu.Lock()
	s, ok := m.sessions[peer]
	m.mu.Unlock()
	return ok && s.crypto.Initialized()
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) Close(peer string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[peer]; ok {
		delete(m.sessions, peer)
		log.WithField("Peer", peer).Info("Closed session")
	}
}

// StartTimeout runs Cleanup every CleanupInterval until stop receives.
func (m *Manager) StartTimeout(stop <-chan bool) {
	for {
		select {
		case <-stop:
			return
		case <-time.After(m.options.CleanupInterval):
			m.Cleanup()
		}
	}
}

// Cleanup closes every session idle for longer than IdleTimeout.
func (m *Manager) Cleanup() {
	m.mu.Lock()

	for peer, s := range m.sessions {
		if time.Now().After(s.lastSeen.Add(m.options.IdleTimeout)) {
			delete(m.sessions, peer)
			log.WithField("Peer", peer).Info("Closed idle session")
		}
	}

	m.mu.Unlock()
}
