package types

import "time"

// BlockPayload is the optional descriptive part of a ledger block.
type BlockPayload struct {
	SenderID   UserID            `json:"senderId,omitempty"`
	ReceiverID UserID            `json:"receiverId,omitempty"`
	Meta       map[string]string `json:"meta,omitempty"`
}

// Block is one link of the audit hash chain. PreviousHash is empty for the
// genesis block.
type Block struct {
	Height       int64         `json:"height"`
	Hash         string        `json:"hash"`
	PreviousHash string        `json:"previousHash,omitempty"`
	MessageHash  string        `json:"messageHash"`
	Nonce        uint64        `json:"nonce"`
	Difficulty   int           `json:"difficulty"`
	CreatedAt    time.Time     `json:"createdAt"`
	Payload      *BlockPayload `json:"payload,omitempty"`
}

// ChainIssue describes one failed check found while validating.
type ChainIssue struct {
	Height int64  `json:"height"`
	Reason string `json:"reason"`
}

// ChainReport is the outcome of a full chain walk. FirstInvalid is -1 when
// Valid is true.
type ChainReport struct {
	Valid        bool         `json:"valid"`
	Length       int64        `json:"length"`
	FirstInvalid int64        `json:"firstInvalid"`
	Issues       []ChainIssue `json:"issues"`
}
