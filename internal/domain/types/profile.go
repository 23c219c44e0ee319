package types

// Profile is what the client remembers about its registration with one
// KDC server.
type Profile struct {
	ServerURL string `json:"serverUrl"`
	UserID    UserID `json:"userId"`
	Token     string `json:"token"`
}
