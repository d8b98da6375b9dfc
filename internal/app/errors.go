package app

import "errors"

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyQuestion   = errors.New("question is empty")
	ErrEmbeddingFailed = errors.New("embedding failed")
	ErrNoDocuments     = errors.New("no documents to index")
	ErrIndexNotReady   = errors.New("vector index is not ready")
	ErrSessionNotFound = errors.New("session not found")
	ErrTurnEnqueue     = errors.New("chat turn enqueue failed")
)
