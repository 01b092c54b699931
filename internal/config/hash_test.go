package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeBlake3Hash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: INFO\n"), 0600))

	h1, err := ComputeBlake3Hash(path)
	require.NoError(t, err)
	assert.Len(t, h1, 64)

	h2, err := ComputeBlake3Hash(path)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	require.NoError(t, VerifyFileHash(path, h1))
	assert.Error(t, VerifyFileHash(path, "00"))
}

func TestLoadVerifiesChecksum(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "uploader.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dispatch:\n  workers: 3\n"), 0600))

	_, err := WriteChecksum(path)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Dispatch.Workers)

	// Tamper with the file after the checksum was recorded.
	require.NoError(t, os.WriteFile(path, []byte("dispatch:\n  workers: 30\n"), 0600))
	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hash mismatch")
}
