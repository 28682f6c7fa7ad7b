package models

import "errors"

// Upload rejection taxonomy. The handler maps each class to its transport
// status; the service layer only ever returns (or wraps) these.
var (
	// ErrMalformedUpload: the file part carries no original filename,
	// or a delta upload carries no deltaVersion field
	ErrMalformedUpload = errors.New("malformed upload")

	// ErrMissingReference: the request names no firmware identity, or the
	// identity is unknown to the record store; nothing to attach the file to
	ErrMissingReference = errors.New("missing firmware reference")

	// ErrUnsupportedMedia: wrong file extension or media type
	ErrUnsupportedMedia = errors.New("unsupported media")

	// ErrPayloadTooLarge: the byte stream exceeded the upload cap
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrEmptyUpload: parsing finished with zero accepted files
	ErrEmptyUpload = errors.New("empty upload")

	// ErrNotFound: no firmware record for the given identity
	ErrNotFound = errors.New("firmware not found")

	// ErrInternal: directory creation or record store failure; never
	// retried by the pipeline, the caller must resubmit
	ErrInternal = errors.New("internal error")
)
