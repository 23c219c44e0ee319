package commands

import (
	"fmt"
	"io"

	"cipherlink/internal/domain"
)

const timeLayout = "2006-01-02 15:04:05"

func printSession(w io.Writer, s domain.SessionInfo) {
	fmt.Fprintf(w, "Session:     %s\n", s.SessionID)
	fmt.Fprintf(w, "Link:        %s (%s, %s)\n", s.LinkID, s.InitiatorID, s.PeerID)
	fmt.Fprintf(w, "State:       %s (generation %d)\n", s.State, s.Generation)
	fmt.Fprintf(w, "Fingerprint: %s\n", orDash(s.Fingerprint.String()))
	fmt.Fprintf(w, "Issued:      %s\n", s.IssuedAt.Local().Format(timeLayout))
	if s.RotatedAt != nil {
		fmt.Fprintf(w, "Rotated:     %s\n", s.RotatedAt.Local().Format(timeLayout))
	}
	if s.RevokedAt != nil {
		fmt.Fprintf(w, "Revoked:     %s\n", s.RevokedAt.Local().Format(timeLayout))
	}
	if s.DestroyedAt != nil {
		fmt.Fprintf(w, "Destroyed:   %s\n", s.DestroyedAt.Local().Format(timeLayout))
	}
	fmt.Fprintf(w, "Expires:     %s\n", s.ExpiresAt.Local().Format(timeLayout))
}

// printDelivered shows one message. Messages that failed to decrypt or
// verify are still printed, marked with "!".
func printDelivered(w io.Writer, d domain.DeliveredMessage) {
	mark := " "
	if d.Flagged() {
		mark = "!"
	}
	m := d.Message
	body := string(d.Plaintext)
	switch {
	case d.StaleKey:
		body = "<stale key>"
	case d.Undecryptable:
		body = "<undecryptable>"
	}
	fmt.Fprintf(w, "%s [%s] %s: %s (sig %s)\n", mark, m.CreatedAt.Local().Format(timeLayout), m.SenderID, body, d.SignatureStatus)
	if d.Reason != "" {
		fmt.Fprintf(w, "    %s\n", d.Reason)
	}
}

func short(fp domain.Fingerprint) string { return short12(fp.String()) }

func short12(s string) string {
	if len(s) > 12 {
		return s[:12]
	}
	return s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
