package commands

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"cipherlink/internal/domain"
)

// listenCmd keeps a websocket open, feeds key pushes into the session key
// cache and prints incoming messages as they arrive.
func listenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Stream realtime events and decrypt incoming messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := session()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			w := out(cmd)
			fmt.Fprintf(w, "listening as %s, ctrl-c to stop\n", s.Me)
			err = s.Listen(ctx, func(ev domain.Event) {
				switch e := ev.(type) {
				case domain.MessageEvent:
					peer := domain.UserID("")
					if !e.Message.Broadcast() {
						peer = e.Message.SenderID
					}
					if e.Message.SenderID == s.Me {
						return
					}
					printDelivered(w, s.Messages.Open(ctx, peer, e.Message))
				case domain.KDCEvent:
					fmt.Fprintf(w, "* %s session=%s state=%s fp=%s\n", e.Name(), e.SessionID, e.State, short(e.Fingerprint))
				case domain.LifecycleEvent:
					fmt.Fprintf(w, "* %s session=%s by=%s state=%s\n", e.Name(), e.SessionID, orDash(e.ActorID.String()), e.State)
				case domain.PFSEvent:
					fmt.Fprintf(w, "* %s handshake=%s\n", e.Name(), e.PFSSessionID)
				}
			})
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
}
