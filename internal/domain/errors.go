// Package domain holds the error taxonomy and shared value types of the
// retrieval core.
package domain

import "errors"

var (
	// ErrInvalidArgument marks malformed caller input. Never retried.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDimensionMismatch marks an embedding whose length differs from the
	// store's established dimensionality. Indicates misconfiguration, never
	// retried, and always aborts the write that triggered it.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmbeddingUnavailable is returned once the embedding upstream has
	// exhausted its retry budget. Callers may retry after their own backoff.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrGenerationFailure marks an answer-generation error, surfaced to the
	// end user as "unable to answer right now".
	ErrGenerationFailure = errors.New("answer generation failed")

	// ErrNotFound marks an absent document or fragment where emptiness is
	// not a valid answer.
	ErrNotFound = errors.New("not found")
)
