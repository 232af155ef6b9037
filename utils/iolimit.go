package utils

import (
	"fmt"
	"io"
	"os"
)

var ErrIOLimitReached = fmt.Errorf("read size limit reached")

func ReadAllLimit(r io.Reader, n int) ([]byte, error) {
	limit := int(n + 1)
	buf, err := io.ReadAll(io.LimitReader(r, int64(limit)))
	if err != nil {
		return buf, err
	}
	if len(buf) >= limit {
		return buf[:limit-1], ErrIOLimitReached
	}
	return buf, nil
}

// ReadFileLimit reads at most n bytes of the file at path, returning
// ErrIOLimitReached if it is bigger.
func ReadFileLimit(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	return ReadAllLimit(f, n)
}
