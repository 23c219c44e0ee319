package crypto

import "encoding/base64"

// B64 renders raw key bytes for display, standard alphabet with padding.
func B64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }
