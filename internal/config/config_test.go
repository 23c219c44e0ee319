package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipherlink/internal/config"
)

func write(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "kdcd.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_DefaultsFillGaps(t *testing.T) {
	p := write(t, `
listen: 127.0.0.1:9000
vault:
  passphrase: correct horse battery
auth:
  tokenSecret: 0123456789abcdef0123
kdc:
  sessionTTL: 5m
lifecycle:
  revokedRetention: 1h
`)
	cfg, err := config.Load(p)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Listen)
	assert.Equal(t, 5*time.Minute, cfg.KDC.SessionTTL)
	assert.Equal(t, time.Hour, cfg.Lifecycle.RevokedRetention)

	d := config.Default()
	assert.Equal(t, d.KDC.RateLimit, cfg.KDC.RateLimit)
	assert.Equal(t, 120*time.Second, cfg.PFS.PendingTTL)
	assert.Equal(t, 10*time.Minute, cfg.PFS.EstablishedTTL)
	assert.Equal(t, 30*time.Second, cfg.Lifecycle.SweepInterval)
	assert.Equal(t, 16, cfg.Ledger.Difficulty)
	assert.Equal(t, config.Events{MaxLimit: 500, DefaultLimit: 100}, cfg.Events)
	assert.Equal(t, "badger", cfg.Storage.Driver)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	p := write(t, `
listen: ":8080"
vault:
  passphrase: from-file
auth:
  tokenSecret: file-secret-0123456789
`)
	t.Setenv(config.EnvVaultPassphrase, "from-env")
	t.Setenv(config.EnvTokenSecret, "env-secret-0123456789")
	t.Setenv(config.EnvListen, ":9999")

	cfg, err := config.Load(p)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Vault.Passphrase)
	assert.Equal(t, "env-secret-0123456789", cfg.Auth.TokenSecret)
	assert.Equal(t, ":9999", cfg.Listen)
}

func TestLoad_Rejects(t *testing.T) {
	t.Setenv(config.EnvVaultPassphrase, "")
	t.Setenv(config.EnvTokenSecret, "")
	const ok = "vault: {passphrase: p}\nauth: {tokenSecret: 0123456789abcdef}\n"

	cases := map[string]string{
		"missing passphrase": "auth: {tokenSecret: 0123456789abcdef}\n",
		"short secret":       "vault: {passphrase: p}\nauth: {tokenSecret: short}\n",
		"unknown driver":     ok + "storage: {driver: postgres}\n",
		"unknown format":     ok + "log: {format: xml}\n",
		"bad level":          ok + "log: {level: loud}\n",
		"unknown field":      ok + "kdc: {sessionTtl: 5m}\n",
		"limits inverted":    ok + "events: {maxLimit: 10, defaultLimit: 50}\n",
		"difficulty":         ok + "ledger: {difficulty: 64}\n",
		"difficulty -1":      ok + "ledger: {difficulty: -1}\n",
		"difficulty 0":       ok + "ledger: {difficulty: 0}\n",
		"negative window":    ok + "kdc: {rateLimit: {window: -1m}}\n",
		"zero window":        ok + "kdc: {rateLimit: {window: 0s}}\n",
		"zero requests":      ok + "kdc: {rateLimit: {requests: 0}}\n",
		"zero session ttl":   ok + "kdc: {sessionTTL: 0s}\n",
		"negative token ttl": "vault: {passphrase: p}\nauth: {tokenSecret: 0123456789abcdef, tokenTTL: -1h}\n",
		"zero pfs sweep":     ok + "pfs: {sweepInterval: 0s}\n",
		"negative pfs ttl":   ok + "pfs: {pendingTTL: -5s}\n",
		"zero lifecycle":     ok + "lifecycle: {sweepInterval: 0s}\n",
		"zero retention":     ok + "lifecycle: {revokedRetention: 0s}\n",
		"zero default limit": ok + "events: {defaultLimit: 0}\n",
		"empty listen":       ok + "listen: \"\"\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.Load(write(t, body))
			assert.Error(t, err)
		})
	}

	_, err := config.Load(write(t, ok))
	assert.NoError(t, err)
	_, err = config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_ExplicitValuesAreKept(t *testing.T) {
	p := write(t, `
vault: {passphrase: p}
auth: {tokenSecret: 0123456789abcdef}
ledger: {difficulty: 1}
kdc: {rateLimit: {requests: 2}}
`)
	cfg, err := config.Load(p)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Ledger.Difficulty)
	assert.Equal(t, 2, cfg.KDC.RateLimit.Requests)
	assert.Equal(t, time.Minute, cfg.KDC.RateLimit.Window, "siblings keep their defaults")
}

func TestLogger(t *testing.T) {
	cfg := config.Default()
	cfg.Log = config.Log{Level: "debug", Format: "json"}
	log := cfg.Logger()
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, log.Formatter)
}
