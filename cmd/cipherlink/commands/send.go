package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"cipherlink/internal/domain"
)

// send <peer> <message>: encrypt under the session key shared with <peer>
// and submit. With --broadcast the single argument is the message.
func sendCmd() *cobra.Command {
	var broadcast bool
	cmd := &cobra.Command{
		Use:   "send [peer] <message>",
		Short: "Encrypt and send a message to a peer or to everyone",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var peer domain.UserID
			switch {
			case broadcast && len(args) == 1:
			case !broadcast && len(args) == 2:
				peer = domain.UserID(args[0])
			default:
				return fmt.Errorf("usage: send <peer> <message> or send --broadcast <message>")
			}
			s, err := session()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()

			m, err := s.Messages.Send(ctx, peer, []byte(args[len(args)-1]))
			if err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "sent %s (block #%d, signature %s)\n", m.ID, m.BlockHeight, m.SignatureStatus)
			return nil
		},
	}
	cmd.Flags().BoolVar(&broadcast, "broadcast", false, "send on the global broadcast channel")
	cmd.Flags().BoolVar(&demoSign, "demo-sign", false, "sign with a throwaway key instead of your identity")
	return cmd
}
