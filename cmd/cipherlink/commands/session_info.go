package commands

import (
	"github.com/spf13/cobra"

	"cipherlink/internal/domain"
)

func sessionInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "session-info <session-id>",
		Short: "Show the metadata of a session you participate in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := registered(); err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			info, err := appCtx.Relay.SessionInfo(ctx, domain.SessionID(args[0]))
			if err != nil {
				return err
			}
			printSession(out(cmd), info)
			return nil
		},
	}
}
