package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Pablu23/photon/internal/protocol"
)

type datagram struct {
	Line int
	Peer string
	Data []byte
}

// readCapture parses one hex datagram per line. The hex may be split by
// whitespace and may follow a peer name that is not itself valid hex. Blank
// lines and lines starting with # are skipped.
func readCapture(r io.Reader) ([]datagram, error) {
	var out []datagram
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		var peer string
		fields := strings.Fields(text)
		if _, err := hex.DecodeString(fields[0]); err != nil && len(fields) > 1 {
			peer, fields = fields[0], fields[1:]
		}

		data, err := hex.DecodeString(strings.Join(fields, ""))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, datagram{Line: line, Peer: peer, Data: data})
	}
	return out, scanner.Err()
}

func logPacket(d datagram, pck *protocol.Packet) {
	logger := log.WithFields(log.Fields{
		"Line": d.Line,
		"Peer": d.Peer,
	})
	logger.WithField("Header", pck.Header).Info("Packet")

	for i, cmd := range pck.Commands {
		fields := log.Fields{
			"Index":   i,
			"Type":    cmd.Header.Type,
			"Channel": cmd.Header.ChannelID,
			"Seq":     cmd.Header.ReliableSequenceNumber,
		}
		switch {
		case cmd.Message != nil:
			fields["Message"] = cmd.Message.Header.Type
			fields["Body"] = describe(cmd.Message)
		case cmd.Fragment != nil:
			fields["Fragment"] = fmt.Sprintf("%+v", *cmd.Fragment)
		case cmd.Connect != nil:
			fields["MTU"] = cmd.Connect.MTU
		case cmd.VerifyConnect != nil:
			fields["PeerID"] = cmd.VerifyConnect.PeerID
		case cmd.Acknowledge != nil:
			fields["Ack"] = cmd.Acknowledge.ReceivedReliableSequenceNumber
		}
		logger.WithFields(fields).Info("Command")
	}
}

func describe(msg *protocol.Message) string {
	switch {
	case msg.PeerInfo != nil:
		return fmt.Sprintf("%+v", *msg.PeerInfo)
	case msg.Request != nil:
		return fmt.Sprintf("%+v", *msg.Request)
	case msg.Response != nil:
		return fmt.Sprintf("%+v", *msg.Response)
	case msg.Event != nil:
		return fmt.Sprintf("%+v", *msg.Event)
	default:
		return hex.EncodeToString(msg.Data)
	}
}

func decodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode <file>",
		Short: "Decode captured datagrams, one hex string per line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer func(file *os.File) {
				err := file.Close()
				if err != nil {
					log.WithError(err).Error("Could not close File")
				}
			}(file)

			capture, err := readCapture(file)
			if err != nil {
				return err
			}

			failed := 0
			for _, d := range capture {
				pck, err := protocol.DecodePacket(d.Data, nil)
				if err != nil {
					log.WithError(err).WithField("Line", d.Line).Warn("Could not decode datagram")
					failed++
					continue
				}
				logPacket(d, pck)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d datagrams failed to decode", failed, len(capture))
			}
			return nil
		},
	}
	return cmd
}
