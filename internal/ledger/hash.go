package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/bits"

	"cipherlink/internal/crypto"
	"cipherlink/internal/domain"
)

const genesisMarker = "GENESIS"

// HashBlock recomputes the hash of b from its fields. The stored Hash is
// ignored.
func HashBlock(b domain.Block) (string, error) {
	sum, err := hashBlock(b)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sum[:]), nil
}

func hashBlock(b domain.Block) ([32]byte, error) {
	pd, err := payloadDigest(b.Payload)
	if err != nil {
		return [32]byte{}, err
	}
	prev := b.PreviousHash
	if prev == "" {
		prev = genesisMarker
	}
	header := fmt.Sprintf("%d|%s|%d|%d|%s|%s|%d",
		b.Height, prev, b.Nonce, b.Difficulty, b.MessageHash, pd, b.CreatedAt.UnixNano())
	return sha256.Sum256([]byte(header)), nil
}

// payloadDigest hashes the canonical JSON of p. encoding/json sorts map
// keys, so equal payloads always digest equally.
func payloadDigest(p *domain.BlockPayload) (string, error) {
	if p == nil {
		return "", nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return crypto.Digest(raw), nil
}

// leadingZeroBits counts the zero bits at the front of sum.
func leadingZeroBits(sum [32]byte) int {
	n := 0
	for _, b := range sum {
		if b != 0 {
			return n + bits.LeadingZeros8(b)
		}
		n += 8
	}
	return n
}

// meetsDifficulty reports whether the hex-encoded hash has difficulty
// leading zero bits.
func meetsDifficulty(hash string, difficulty int) bool {
	raw, err := hex.DecodeString(hash)
	if err != nil || len(raw) != sha256.Size {
		return false
	}
	var sum [32]byte
	copy(sum[:], raw)
	return leadingZeroBits(sum) >= difficulty
}
