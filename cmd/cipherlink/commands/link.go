package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"cipherlink/internal/domain"
)

func linkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "link <peer>",
		Short: "Link with a contact so you can share session keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := registered(); err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			l, err := appCtx.Relay.Link(ctx, domain.UserID(args[0]))
			if err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "Linked %s <-> %s (%s, link %s)\n", l.UserA, l.UserB, l.Status, l.ID)
			return nil
		},
	}
}
