package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSourceNotFound    = errors.New("source not found")
	ErrEmptyContent      = errors.New("source produced no content")
	ErrUnsupportedSource = errors.New("unsupported source")
	ErrIndexUnavailable  = errors.New("index unavailable")
	ErrMissingCredential = errors.New("missing credential")
	ErrNoDocuments       = errors.New("no documents loaded")
	ErrNotReady          = errors.New("service not initialized")
	ErrEmptyQuestion     = errors.New("empty question")
)

// LoadError wraps any failure to turn a descriptor into records.
type LoadError struct {
	Descriptor SourceDescriptor
	Err        error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s from %s: %v", e.Descriptor.Kind, e.Descriptor.Location, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
