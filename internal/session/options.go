package session

import "time"

type Options struct {
	IdleTimeout     time.Duration
	CleanupInterval time.Duration
	MaxMessageSize  int
	MaxPending      int
	Encryption      bool
}

func NewDefaultOptions() *Options {
	return &Options{
		IdleTimeout:     30 * time.Second,
		CleanupInterval: 30 * time.Second,
		MaxMessageSize:  1 << 20,
		MaxPending:      64,
		Encryption:      true,
	}
}
