package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"cipherlink/internal/domain"
)

func eventsCmd() *cobra.Command {
	var f domain.KeyEventFilter
	var sessionID, source string
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List key lifecycle events, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := registered(); err != nil {
				return err
			}
			f.SessionID = domain.SessionID(sessionID)
			f.Source = domain.EventSource(strings.ToUpper(source))
			ctx, cancel := requestContext(cmd)
			defer cancel()
			events, err := appCtx.Relay.KeyEvents(ctx, f)
			if err != nil {
				return err
			}
			for _, ev := range events {
				fmt.Fprintf(out(cmd), "%s  #%-5d %-9s %-15s %s actor=%s%s\n",
					ev.CreatedAt.Local().Format(timeLayout),
					ev.BlockHeight, ev.Source, ev.Type, ev.SessionID, orDash(ev.ActorID.String()), payload(ev.Payload))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "only events of this session")
	cmd.Flags().StringVar(&source, "source", "", "KDC, PFS or LIFECYCLE")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "page size (server default 100, max 500)")
	cmd.Flags().IntVar(&f.Offset, "offset", 0, "events to skip")
	return cmd
}

func payload(p map[string]string) string {
	if len(p) == 0 {
		return ""
	}
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, p[k])
	}
	return b.String()
}
