package crypto

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"

	"cipherlink/internal/domain"
)

const (
	// KeySize is the size of every symmetric key in the system.
	KeySize = 32

	infoHandshake = "cipherlink-pfs"
	infoSealedKey = "cipherlink-sealed-key"
	infoBroadcast = "cipherlink-broadcast-v1"
)

// DeriveKey expands secret into length bytes with HKDF-SHA256. Every caller
// in this package passes a nil salt and keeps keys apart through info.
func DeriveKey(secret, salt, info []byte, length int) ([]byte, error) {
	hk := hkdf.New(sha256.New, secret, salt, info)
	key := make([]byte, length)
	if _, err := io.ReadFull(hk, key); err != nil {
		return nil, err
	}
	return key, nil
}

// DeriveHandshakeSecret turns an ephemeral DH output into the handshake
// secret. Both ephemeral public keys are bound into info so a secret is
// never reused across handshakes.
func DeriveHandshakeSecret(
	shared [32]byte,
	serverPub, clientPub domain.X25519Public,
) ([]byte, error) {
	return DeriveKey(shared[:], nil, bindInfo(infoHandshake, serverPub, clientPub), KeySize)
}

// DeriveBroadcastKey derives the global broadcast key from a server secret.
func DeriveBroadcastKey(master []byte) ([]byte, error) {
	return DeriveKey(master, nil, []byte(infoBroadcast), KeySize)
}

func bindInfo(label string, a, b domain.X25519Public) []byte {
	info := make([]byte, 0, len(label)+64)
	info = append(info, label...)
	info = append(info, a[:]...)
	info = append(info, b[:]...)
	return info
}
