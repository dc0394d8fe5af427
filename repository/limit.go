package repository

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	// DefaultMaxArtifactSize bounds capability.wasm reads.
	DefaultMaxArtifactSize int64 = 64 << 20

	maxManifestSize int64 = 1 << 20
)

// SizeLimitError is returned when a file on the search path exceeds its limit.
type SizeLimitError struct {
	Path  string
	Limit int64
}

func (e *SizeLimitError) Error() string {
	return fmt.Sprintf("%s exceeds size limit of %s", e.Path, formatSize(e.Limit))
}

// IsSizeLimit reports whether err is a *SizeLimitError.
func IsSizeLimit(err error) bool {
	var sizeErr *SizeLimitError
	return errors.As(err, &sizeErr)
}

// readFileLimited reads at most limit bytes of path. A limit of zero or less
// disables the check.
func readFileLimited(path string, limit int64) ([]byte, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if limit <= 0 {
		return io.ReadAll(f)
	}

	// One extra byte distinguishes "exactly limit" from "more than limit".
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, &SizeLimitError{Path: path, Limit: limit}
	}
	return data, nil
}

func formatSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}
