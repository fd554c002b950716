package jobs

import (
	"errors"
	"fmt"

	"github.com/kiranshivaraju/aianalysis/internal/records"
	"github.com/kiranshivaraju/aianalysis/internal/store"
)

var (
	ErrRecordNotFound       = errors.New("learning record not found")
	ErrJobNotFound          = errors.New("analysis job not found")
	ErrGenerationInProgress = errors.New("analysis generation already in progress")
)

// GenerationError is returned by the synchronous path when a backend call
// still fails after every retry.
type GenerationError struct {
	Field    string
	Attempts int
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate %s: failed after %d attempts: %v", e.Field, e.Attempts, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// isRecordNotFound accepts the not-found signal of either record reader.
func isRecordNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound) || errors.Is(err, records.ErrRecordNotFound) ||
		errors.Is(err, ErrRecordNotFound)
}
