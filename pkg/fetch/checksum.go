package fetch

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// MD5String returns the lowercase hex MD5 of s.
func MD5String(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// VerifyChecksum computes the MD5 hash of the file and compares it to the
// expected value, ignoring case.
func VerifyChecksum(filePath, expectedMD5 string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file for checksum: %w", err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("failed to read file for checksum: %w", err)
	}

	actual := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(actual, expectedMD5) {
		return &ChecksumError{
			File:     filePath,
			Expected: expectedMD5,
			Actual:   actual,
		}
	}

	return nil
}

// ChecksumError is returned when a file's checksum doesn't match the expected value.
type ChecksumError struct {
	File     string
	Expected string
	Actual   string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s\nExpected: %s\nActual:   %s", e.File, e.Expected, e.Actual)
}
