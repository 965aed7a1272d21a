package server

import "time"

type Options struct {
	Address        string
	Port           int
	PacketSize     int
	IdleTimeout    time.Duration
	MaxMessageSize int
	MaxPending     int
	Encryption     bool
}

func NewDefaultOptions() *Options {
	return &Options{
		Address:        "0.0.0.0",
		Port:           5055,
		PacketSize:     1200,
		IdleTimeout:    30 * time.Second,
		MaxMessageSize: 1 << 20,
		MaxPending:     64,
		Encryption:     true,
	}
}
