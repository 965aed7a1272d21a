package main

import (
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Pablu23/photon/internal/protocol"
	"github.com/Pablu23/photon/internal/server"
)

func serveCmd() *cobra.Command {
	defaults := server.NewDefaultOptions()
	var (
		address        string
		port           int
		idleTimeout    time.Duration
		maxMessageSize int
		maxPending     int
		plain          bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Listen for Photon peers and log every message they send",
		RunE: func(cmd *cobra.Command, args []string) error {
			srv := server.New(func(peer string, msg *protocol.Message) {
				log.WithFields(log.Fields{
					"Peer": peer,
					"Type": msg.Header.Type,
					"Body": describe(msg),
				}).Info("Message")
			}, func(o *server.Options) {
				o.Address = address
				o.Port = port
				o.IdleTimeout = idleTimeout
				o.MaxMessageSize = maxMessageSize
				o.MaxPending = maxPending
				o.Encryption = !plain
			})
			return srv.Serve()
		},
	}

	cmd.Flags().StringVarP(&address, "address", "a", defaults.Address, "Listen address")
	cmd.Flags().IntVarP(&port, "port", "p", defaults.Port, "UDP port")
	cmd.Flags().DurationVar(&idleTimeout, "idle-timeout", defaults.IdleTimeout, "Close sessions idle for this long")
	cmd.Flags().IntVar(&maxMessageSize, "max-message-size", defaults.MaxMessageSize, "Largest fragmented message accepted")
	cmd.Flags().IntVar(&maxPending, "max-pending", defaults.MaxPending, "Partial messages kept per peer")
	cmd.Flags().BoolVar(&plain, "no-encryption", false, "Ignore key exchange requests")

	return cmd
}
