// pkg/utils/hash.go - utility functions for hashing strings and files.

package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"strings"
)

// SHA256Hex returns the lowercase hex SHA256 of s.
func SHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// FileSHA256 returns the SHA256 sum of a file.
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify checks if a file's hash matches the expected hash
func Verify(path, expectedHash string) bool {
	actual, err := FileSHA256(path)
	if err != nil {
		return false
	}
	return strings.EqualFold(actual, expectedHash)
}
