package internalerr

import "errors"

// Sentinel errors for the failure classes of an accumulation run.
// Callers wrap them with context and classify with errors.Is.
var (
	// ErrConfiguration: the linker or its ontology/dictionary cannot be loaded.
	ErrConfiguration = errors.New("configuration error")
	// ErrEncoding: the document source cannot be decoded with the declared encoding.
	ErrEncoding = errors.New("encoding error")
	// ErrAnnotation: the annotation adapter failed on a document.
	ErrAnnotation = errors.New("annotation error")
	// ErrPersistence: a checkpoint or final snapshot could not be written.
	ErrPersistence = errors.New("persistence error")
	// ErrInvalidInput: malformed caller input (bad snapshot file, bad concept file).
	ErrInvalidInput = errors.New("invalid input")
)
