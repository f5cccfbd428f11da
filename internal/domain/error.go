package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")

	// Pipeline errors
	ErrJobCancelled          = errors.New("job cancelled")
	ErrDuplicateContent      = errors.New("duplicate content")
	ErrNoArtifact            = errors.New("no acquisition strategy produced an artifact")
	ErrNotEnoughCommentaries = errors.New("need at least 2 completed commentaries to compare")
	ErrExtraction            = errors.New("could not extract structured output")
	ErrProviderUnavailable   = errors.New("provider unavailable")

	// Queue errors
	ErrQueueFull = errors.New("worker queue full")
)
