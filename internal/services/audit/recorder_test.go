package audit_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipherlink/internal/domain"
	"cipherlink/internal/services/audit"
	"cipherlink/internal/services/servicetest"
)

func TestRecord_AnchorsEventInLedger(t *testing.T) {
	env := servicetest.New(t)

	ev, err := env.Audit.Record(env.Ctx, domain.KeyEvent{
		Source:    domain.SourceKDC,
		Type:      domain.EventGenerated,
		SessionID: "s-1",
		ActorID:   "alice",
		Payload:   map[string]string{"fingerprint": "abc"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, servicetest.Base, ev.CreatedAt)

	blocks, err := env.Ledger.Blocks(env.Ctx)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, ev.BlockHeight, blocks[0].Height)

	digest, err := audit.Digest(ev)
	require.NoError(t, err)
	assert.Equal(t, digest, blocks[0].MessageHash)
	assert.Equal(t, ev.ID, blocks[0].Payload.Meta["eventId"])
	assert.Equal(t, "s-1", blocks[0].Payload.Meta["kdcSessionId"])

	report, err := env.Ledger.Validate(env.Ctx)
	require.NoError(t, err)
	assert.True(t, report.Valid)
}

func TestRecord_RejectsUnknownSource(t *testing.T) {
	env := servicetest.New(t)
	_, err := env.Audit.Record(env.Ctx, domain.KeyEvent{Source: "BOGUS", Type: "x"})
	assert.Error(t, err)

	blocks, err := env.Ledger.Blocks(env.Ctx)
	require.NoError(t, err)
	assert.Empty(t, blocks)
}

func TestDigest_IgnoresBlockHeight(t *testing.T) {
	ev := domain.KeyEvent{ID: "e", Source: domain.SourcePFS, Type: "initiated", CreatedAt: servicetest.Base}
	a, err := audit.Digest(ev)
	require.NoError(t, err)
	ev.BlockHeight = 42
	b, err := audit.Digest(ev)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	ev.Type = "established"
	c, err := audit.Digest(ev)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestList_ClampsLimit(t *testing.T) {
	env := servicetest.New(t)
	rec := audit.New(env.Store, env.Ledger, audit.Config{
		DefaultLimit: 2,
		MaxLimit:     3,
		Clock:        env.Clock.Now,
		Logger:       env.Logger,
	})
	for i := 0; i < 5; i++ {
		env.Clock.Advance(time.Second)
		_, err := rec.Record(env.Ctx, domain.KeyEvent{Source: domain.SourceKDC, Type: domain.EventGenerated})
		require.NoError(t, err)
	}

	got, err := rec.List(env.Ctx, domain.KeyEventFilter{})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	got, err = rec.List(env.Ctx, domain.KeyEventFilter{Limit: 100})
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.True(t, got[0].CreatedAt.After(got[1].CreatedAt), "newest first")

	empty, err := rec.List(env.Ctx, domain.KeyEventFilter{SessionID: "none"})
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}
