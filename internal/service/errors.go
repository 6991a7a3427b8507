package service

import "errors"

var (
	// ErrStoryNotFound indicates the story is not in the cache.
	ErrStoryNotFound = errors.New("story not found")
	// ErrNoProvider indicates no translation provider is configured.
	ErrNoProvider = errors.New("no translation provider configured")
	// ErrInvalidInterval indicates a non-positive scheduler interval.
	ErrInvalidInterval = errors.New("interval must be positive")
)
