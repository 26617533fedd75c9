// Package stages contains the production implementations of the pipeline
// collaborators: file scanning, ffprobe analysis, release naming, metadata
// generation, and tracker upload.
package stages

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gantry/internal/logging"
	"gantry/internal/pipeline"
	"gantry/internal/services"
)

// Scanner fingerprints source files with size, modification time, and a
// SHA-256 content hash.
type Scanner struct {
	logger *slog.Logger
}

// NewScanner builds the scan stage implementation.
func NewScanner(logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scanner{logger: logger}
}

// Scan validates the file on disk and computes its fingerprint. A missing or
// empty file is a permanent failure; read errors stay retryable.
func (s *Scanner) Scan(ctx context.Context, path string) (*pipeline.ScanResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, services.Wrap(services.ErrValidation, "scan", "stat", fmt.Sprintf("source file %s does not exist", path), err)
		}
		return nil, services.Wrap(services.ErrTransient, "scan", "stat", "stat source file", err)
	}
	if info.IsDir() {
		return nil, services.Wrap(services.ErrValidation, "scan", "stat", fmt.Sprintf("%s is a directory", path), nil)
	}
	if info.Size() == 0 {
		return nil, services.Wrap(services.ErrValidation, "scan", "stat", fmt.Sprintf("%s is empty", path), nil)
	}

	hash, err := hashFile(ctx, path)
	if err != nil {
		return nil, err
	}

	return &pipeline.ScanResult{
		SizeBytes:   info.Size(),
		ContentHash: hash,
		ModTime:     info.ModTime().UTC(),
	}, nil
}

func hashFile(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "scan", "open", "open source file", err)
	}
	defer file.Close()

	hasher := sha256.New()
	buf := make([]byte, 1<<20)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, readErr := file.Read(buf)
		if n > 0 {
			hasher.Write(buf[:n])
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return "", services.Wrap(services.ErrTransient, "scan", "read", "read source file", readErr)
		}
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
