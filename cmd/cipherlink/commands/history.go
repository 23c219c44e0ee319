package commands

import (
	"github.com/spf13/cobra"

	"cipherlink/internal/domain"
)

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [peer]",
		Short: "Fetch and decrypt past messages; without a peer, the broadcast channel",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := session()
			if err != nil {
				return err
			}
			var peer domain.UserID
			if len(args) == 1 {
				peer = domain.UserID(args[0])
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()

			msgs, err := s.Relay.History(ctx, peer, limit)
			if err != nil {
				return err
			}
			for _, m := range msgs {
				printDelivered(out(cmd), s.Messages.Open(ctx, peer, m))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "most recent messages to show (server default 100)")
	return cmd
}
