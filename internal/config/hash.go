package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"
)

// ChecksumSuffix is appended to a config path to locate its checksum file.
const ChecksumSuffix = ".b3"

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// VerifyFileHash verifies a file against an expected BLAKE3 hash.
func VerifyFileHash(filePath, expectedHash string) error {
	actualHash, err := ComputeBlake3Hash(filePath)
	if err != nil {
		return fmt.Errorf("failed to compute hash: %w", err)
	}

	if actualHash != expectedHash {
		return fmt.Errorf("hash mismatch for %s: expected %s, got %s",
			filepath.Base(filePath), expectedHash, actualHash)
	}

	return nil
}

// WriteChecksum records the current hash of configPath in its checksum file.
func WriteChecksum(configPath string) (string, error) {
	hash, err := ComputeBlake3Hash(configPath)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(configPath+ChecksumSuffix, []byte(hash+"\n"), 0600); err != nil {
		return "", fmt.Errorf("failed to write checksum: %w", err)
	}
	return hash, nil
}

func verifyChecksumIfPresent(configPath string) error {
	raw, err := os.ReadFile(configPath + ChecksumSuffix)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read checksum: %w", err)
	}

	fields := strings.Fields(string(raw))
	if len(fields) == 0 {
		return fmt.Errorf("checksum file %s is empty", configPath+ChecksumSuffix)
	}
	if err := VerifyFileHash(configPath, fields[0]); err != nil {
		return fmt.Errorf("config verification failed: %w\n"+
			"If you edited this file intentionally, run: uploader config hash-update --config %s", err, configPath)
	}
	return nil
}
