package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dataDir := t.TempDir()

	cfg, err := Load("", dataDir)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "local", cfg.Blob.Backend)
	assert.Equal(t, filepath.Join(dataDir, "blobs"), cfg.Blob.LocalRoot)
	assert.Equal(t, filepath.Join(dataDir, "docdesk.db"), cfg.Storage.SQLitePath)
	assert.Equal(t, 5*time.Minute, cfg.Locking.TTL)
	assert.Equal(t, 24*time.Hour, cfg.Idempotency.TTL)
	assert.InDelta(t, 0.8, cfg.Duplicates.Threshold, 1e-9)
	assert.NotEmpty(t, cfg.Security.JWTSecret, "secret is generated when absent")
	assert.True(t, cfg.Security.EphemeralSecret)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dataDir := t.TempDir()
	cfgPath := filepath.Join(dataDir, "docdesk.yaml")
	content := `
server:
  port: 9090
locking:
  ttl: 90s
duplicates:
  threshold: 0.65
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0644))
	t.Setenv("DOCDESK_SERVER_ADDRESS", "127.0.0.1")
	t.Setenv("DOCDESK_SECURITY_JWT_SECRET", "s3cret")

	cfg, err := Load(cfgPath, dataDir)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Address)
	assert.Equal(t, 90*time.Second, cfg.Locking.TTL)
	assert.InDelta(t, 0.65, cfg.Duplicates.Threshold, 1e-9)
	assert.Equal(t, "127.0.0.1:9090", cfg.HTTPAddress())
	assert.Equal(t, "s3cret", cfg.Security.JWTSecret)
	assert.False(t, cfg.Security.EphemeralSecret)
}

func TestLoad_DataDirEnvFile(t *testing.T) {
	dataDir := t.TempDir()
	content := "DOCDESK_SERVER_PORT=9191\nJWT_SECRET=\"from-dotenv\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, ".env"), []byte(content), 0644))
	// registered so the values loaded from .env are removed afterwards
	t.Setenv("DOCDESK_SERVER_PORT", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DOCDESK_SECURITY_JWT_SECRET", "")
	t.Setenv("DOCDESK_JWT_SECRET", "")

	cfg, err := Load("", dataDir)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "from-dotenv", cfg.Security.JWTSecret)
	assert.False(t, cfg.Security.EphemeralSecret)
}

func TestLoad_EnvFileDoesNotOverrideEnvironment(t *testing.T) {
	dataDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, ".env"), []byte("DOCDESK_SERVER_PORT=9191\n"), 0644))
	t.Setenv("DOCDESK_SERVER_PORT", "7070")

	cfg, err := Load("", dataDir)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoad_GCSRequiresBucket(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("DOCDESK_BLOB_BACKEND", "gcs")
	t.Setenv("DOCDESK_BLOB_BUCKET", "")
	t.Setenv("GCS_BUCKET", "")

	_, err := Load("", dataDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blob.bucket")
}

func TestValidate_Threshold(t *testing.T) {
	cfg := &Config{
		Blob:        BlobConfig{Backend: "local", LocalRoot: "/tmp/x"},
		Locking:     LockingConfig{TTL: time.Minute},
		Idempotency: IdempotencyConfig{TTL: time.Minute},
		Duplicates:  DuplicatesConfig{Threshold: 1.5},
	}
	assert.Error(t, validate(cfg))

	cfg.Duplicates.Threshold = 1
	assert.NoError(t, validate(cfg))
}
