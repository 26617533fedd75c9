// Package fileutil provides verified file copies for ingesting sources into
// the staging directory.
package fileutil

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// CopyVerified streams src to dst with SHA-256 and size integrity checks.
// Removes dst on mismatch.
func CopyVerified(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	srcSize := srcInfo.Size()

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		_ = out.Close()
	}()

	srcHasher := sha256.New()
	dstHasher := sha256.New()
	tee := io.TeeReader(in, srcHasher)
	multi := io.MultiWriter(out, dstHasher)

	written, err := io.Copy(multi, tee)
	if err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	if written != srcSize {
		_ = os.Remove(dst)
		return fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", srcSize, written)
	}

	if !bytes.Equal(srcHasher.Sum(nil), dstHasher.Sum(nil)) {
		_ = os.Remove(dst)
		return fmt.Errorf("copy hash mismatch: file corrupted during copy")
	}

	return nil
}

// UniqueDest returns a path in dir for base that does not collide with an
// existing file, appending a numeric suffix before the extension when needed.
func UniqueDest(dir, base string) string {
	candidate := filepath.Join(dir, base)
	if _, err := os.Stat(candidate); err != nil {
		return candidate
	}

	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for n := 1; ; n++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s.%d%s", stem, n, ext))
		if _, err := os.Stat(candidate); err != nil {
			return candidate
		}
	}
}

// IngestInto copies src into dir under a collision-free name using a verified
// copy, returning the destination path.
func IngestInto(src, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create ingest directory: %w", err)
	}
	dst := UniqueDest(dir, filepath.Base(src))
	if err := CopyVerified(src, dst); err != nil {
		return "", err
	}
	return dst, nil
}
