package drivers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalFSDriver stores evidence photos on the local filesystem. Meant for
// development and single-node deployments; production uses the S3 driver.
type LocalFSDriver struct {
	BasePath string
	BaseURL  string
}

func NewLocalFSDriver(basePath, baseURL string) (*LocalFSDriver, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalFSDriver{
		BasePath: basePath,
		BaseURL:  strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// getHashedPath spreads files across two levels of directories so a single
// directory never accumulates an unbounded number of entries. Keys carry a
// logical prefix ("evidence/..."); the separator is flattened so the key
// always maps to exactly one file under its hash directories.
func (d *LocalFSDriver) getHashedPath(key string) string {
	sum := sha256.Sum256([]byte(key))
	hash := hex.EncodeToString(sum[:])
	name := strings.ReplaceAll(key, "/", "_")
	return filepath.Join(d.BasePath, hash[0:2], hash[2:4], name)
}

func (d *LocalFSDriver) Save(ctx context.Context, key string, content io.Reader, contentType string) error {
	fullPath := d.getHashedPath(key)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	f, err := os.Create(fullPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, content); err != nil {
		os.Remove(fullPath)
		return fmt.Errorf("failed to write file: %w", err)
	}

	// Content type lives in a sidecar so Get can serve it back correctly.
	if err := os.WriteFile(fullPath+".meta", []byte(contentType), 0o644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

func (d *LocalFSDriver) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	fullPath := d.getHashedPath(key)

	f, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("file not found: %s", key)
		}
		return nil, "", fmt.Errorf("failed to open file: %w", err)
	}

	contentType := "application/octet-stream"
	if meta, err := os.ReadFile(fullPath + ".meta"); err == nil {
		contentType = string(meta)
	}
	return f, contentType, nil
}

func (d *LocalFSDriver) Delete(ctx context.Context, key string) error {
	fullPath := d.getHashedPath(key)
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	os.Remove(fullPath + ".meta")
	return nil
}

func (d *LocalFSDriver) GenerateURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	return fmt.Sprintf("%s/%s", d.BaseURL, key), nil
}
