package vectorindex

import (
	"errors"
	"fmt"
)

var (
	ErrIndexNotFound      = errors.New("vector index not found")
	ErrDimensionMismatch  = errors.New("embedding dimension mismatch")
	ErrModelMismatch      = errors.New("embedding model mismatch")
	ErrCorruptIndex       = errors.New("vector index is corrupt")
	ErrUnsupportedVersion = errors.New("unsupported vector index version")
	ErrUnsupportedMetric  = errors.New("unsupported distance metric")
	ErrDuplicateChunk     = errors.New("duplicate chunk id")
)

// DimensionError reports a dimension that differs from the index dimension.
// Source names where Other came from: a query vector, a record, or the
// dimension the caller expected when loading.
type DimensionError struct {
	Index  int
	Other  int
	Source string
	Path   string
}

func (e *DimensionError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("embedding dimension mismatch at %s: index has %d, %s has %d", e.Path, e.Index, e.Source, e.Other)
	}
	return fmt.Sprintf("embedding dimension mismatch: index has %d, %s has %d", e.Index, e.Source, e.Other)
}

func (e *DimensionError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptIndex, fmt.Sprintf(format, args...))
}
