package chromemdb

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/highwayhash"
)

const checksumFile = "index.sum"

// defaultChecksumKey detects corruption and partial writes. Configure store.checksum_key to also detect tampering.
var defaultChecksumKey = []byte("lecture-rag/index-checksum/v1..!")

func checksumKey(key []byte) []byte {
	if len(key) == 0 {
		return defaultChecksumKey
	}
	return key
}

func fileChecksum(path string, key []byte) ([]byte, error) {
	h, err := highwayhash.New(checksumKey(key))
	if err != nil {
		return nil, fmt.Errorf("failed to create checksum hash: %w", err)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if _, err := io.Copy(h, f); err != nil {
		return nil, fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return h.Sum(nil), nil
}

func writeChecksum(dir string, sum []byte) error {
	path := filepath.Join(dir, checksumFile)
	if err := os.WriteFile(path, []byte(hex.EncodeToString(sum)+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write checksum: %w", err)
	}
	return nil
}

func verifyChecksum(dir, indexPath string, key []byte) error {
	raw, err := os.ReadFile(filepath.Join(dir, checksumFile))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrChecksumMismatch, err)
	}
	want, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return fmt.Errorf("%w: malformed %s", ErrChecksumMismatch, checksumFile)
	}
	got, err := fileChecksum(indexPath, key)
	if err != nil {
		return err
	}
	if !bytes.Equal(want, got) {
		return ErrChecksumMismatch
	}
	return nil
}
