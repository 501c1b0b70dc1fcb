package entities

import "errors"

var (
	// ErrUnsupportedFormat means the input could not be decoded as a
	// supported image. Never retried.
	ErrUnsupportedFormat = errors.New("unsupported image format")

	// ErrTransform is an internal decode/encode failure during variant
	// generation. Retried as part of job re-attempts.
	ErrTransform = errors.New("image transform failed")

	// ErrStorage wraps object store failures. Retried up to MaxAttempts.
	ErrStorage = errors.New("object storage failure")

	// ErrSigning is a URL signer failure. Always has a direct-URL fallback.
	ErrSigning = errors.New("url signing failed")

	// ErrAwaitTimeout means the caller stopped waiting; the job itself is
	// unaffected and may still complete.
	ErrAwaitTimeout = errors.New("timed out waiting for job")

	ErrJobNotFound = errors.New("job not found")
)
