package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Pablu23/photon/internal/session"
)

func keygenCmd() *cobra.Command {
	var response bool

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Print a key exchange datagram with a fresh public key in hex",
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions := session.New()

			build := sessions.KeyExchangeRequest
			if response {
				build = sessions.KeyExchangeResponse
			}
			datagram, err := build("remote")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(datagram))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&response, "response", "r", false, "Build the server's response instead of the request")

	return cmd
}
