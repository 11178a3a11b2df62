package domain

import "errors"

var (
	// ErrConfiguration signals a malformed or incomplete query configuration.
	ErrConfiguration = errors.New("invalid query configuration")
	// ErrRetrieval signals a failure of the retrieval path itself
	// (the underlying collection was inaccessible or unreadable).
	ErrRetrieval = errors.New("retrieval failed")
	// ErrCollectionNotFound signals a missing collection.
	ErrCollectionNotFound = errors.New("collection not found")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
)
