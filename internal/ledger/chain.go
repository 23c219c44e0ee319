package ledger

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"cipherlink/internal/domain"
	"cipherlink/internal/metrics"
)

// DefaultDifficulty is the number of leading zero bits required per block.
const DefaultDifficulty = 16

// maxDifficulty keeps mining bounded; anything harder is a misconfiguration.
const maxDifficulty = 32

// Config configures a Chain.
type Config struct {
	Difficulty int
	Clock      domain.Clock
	Logger     logrus.FieldLogger
	Metrics    *metrics.Metrics
}

// Chain is the append-only audit ledger over a BlockStore.
type Chain struct {
	mu         sync.Mutex
	blocks     domain.BlockStore
	difficulty int
	now        domain.Clock
	log        logrus.FieldLogger
	metrics    *metrics.Metrics
}

// New returns a Chain persisting to blocks.
func New(blocks domain.BlockStore, cfg Config) *Chain {
	if cfg.Difficulty <= 0 {
		cfg.Difficulty = DefaultDifficulty
	}
	if cfg.Difficulty > maxDifficulty {
		cfg.Difficulty = maxDifficulty
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Chain{
		blocks:     blocks,
		difficulty: cfg.Difficulty,
		now:        cfg.Clock,
		log:        cfg.Logger,
		metrics:    cfg.Metrics,
	}
}

// Difficulty returns the leading-zero-bit target for new blocks.
func (c *Chain) Difficulty() int { return c.difficulty }

// Append mines and stores the next block.
//
// Steps:
//  1. Take the writer lock and read the head (none means genesis).
//  2. Fill in height, previous hash, difficulty and timestamp.
//  3. Increment the nonce until the hash meets the difficulty.
//  4. Store the block; a height collision is a storage failure.
func (c *Chain) Append(
	ctx context.Context,
	messageHash string,
	payload *domain.BlockPayload,
) (domain.Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	head, ok, err := c.blocks.HeadBlock(ctx)
	if err != nil {
		return domain.Block{}, err
	}
	b := domain.Block{
		MessageHash: messageHash,
		Difficulty:  c.difficulty,
		CreatedAt:   c.now().UTC(),
		Payload:     payload,
	}
	if ok {
		b.Height = head.Height + 1
		b.PreviousHash = head.Hash
	}

	if err := mine(ctx, &b); err != nil {
		return domain.Block{}, err
	}
	if err := c.blocks.AppendBlock(ctx, b); err != nil {
		return domain.Block{}, fmt.Errorf("append block %d: %w", b.Height, err)
	}
	c.metrics.BlockAppended()
	c.log.WithFields(logrus.Fields{
		"height": b.Height,
		"nonce":  b.Nonce,
	}).Debug("block appended")
	return b, nil
}

func mine(ctx context.Context, b *domain.Block) error {
	for nonce := uint64(0); ; nonce++ {
		if nonce&0x3ff == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		b.Nonce = nonce
		sum, err := hashBlock(*b)
		if err != nil {
			return err
		}
		if leadingZeroBits(sum) >= b.Difficulty {
			b.Hash = hex.EncodeToString(sum[:])
			return nil
		}
	}
}

// Validate walks the chain from genesis up to the current head.
//
// Each block is checked for the expected height, linkage to the previous
// stored hash, a reproducible hash and a hash that meets its difficulty.
// All issues are collected; FirstInvalid is the lowest failing height.
func (c *Chain) Validate(ctx context.Context) (domain.ChainReport, error) {
	report := domain.ChainReport{Valid: true, FirstInvalid: -1, Issues: []domain.ChainIssue{}}

	head, ok, err := c.blocks.HeadBlock(ctx)
	if err != nil {
		return report, err
	}
	if !ok {
		c.metrics.Validation(true)
		return report, nil
	}

	var (
		expected int64
		prevHash string
	)
	fail := func(h int64, format string, args ...any) {
		report.Issues = append(report.Issues, domain.ChainIssue{Height: h, Reason: fmt.Sprintf(format, args...)})
		if report.Valid {
			report.Valid = false
			report.FirstInvalid = h
		}
	}
	err = c.blocks.ScanBlocks(ctx, 0, head.Height, func(b domain.Block) error {
		report.Length++
		if b.Height != expected {
			fail(expected, "expected height %d, found %d", expected, b.Height)
			expected = b.Height
		}
		if b.PreviousHash != prevHash {
			fail(b.Height, "previous hash does not link to block %d", b.Height-1)
		}
		recomputed, err := HashBlock(b)
		if err != nil {
			fail(b.Height, "cannot hash block: %v", err)
		} else if recomputed != b.Hash {
			fail(b.Height, "stored hash does not match block contents")
		}
		if !meetsDifficulty(b.Hash, b.Difficulty) {
			fail(b.Height, "hash does not meet difficulty %d", b.Difficulty)
		}
		prevHash = b.Hash
		expected++
		return nil
	})
	if err != nil {
		return report, err
	}

	c.metrics.Validation(report.Valid)
	if !report.Valid {
		c.log.WithFields(logrus.Fields{
			"first_invalid": report.FirstInvalid,
			"issues":        len(report.Issues),
		}).Warn(domain.ErrChainTampered.Error())
	}
	return report, nil
}

// Blocks returns the chain in height order up to the current head.
func (c *Chain) Blocks(ctx context.Context) ([]domain.Block, error) {
	head, ok, err := c.blocks.HeadBlock(ctx)
	if err != nil || !ok {
		return []domain.Block{}, err
	}
	out := make([]domain.Block, 0, head.Height+1)
	err = c.blocks.ScanBlocks(ctx, 0, head.Height, func(b domain.Block) error {
		out = append(out, b)
		return nil
	})
	return out, err
}

// Compile-time assertion that Chain implements domain.Ledger.
var _ domain.Ledger = (*Chain)(nil)
