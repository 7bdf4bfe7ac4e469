package extractor

import "errors"

var (
	// ErrInvalidKey is returned when loading an unknown extractor key.
	ErrInvalidKey = errors.New("invalid extractor key")

	// ErrInvalidHandle is returned for unknown or retired handles.
	ErrInvalidHandle = errors.New("invalid extractor handle")

	ErrAlreadyConfigured = errors.New("extractor already configured")

	ErrNotConfigured = errors.New("extractor not configured")

	// ErrChannelCountMismatch is returned when a block's buffer count
	// differs from the configured channel count.
	ErrChannelCountMismatch = errors.New("channel count mismatch")

	ErrInvalidOutputIdentifier = errors.New("invalid output identifier")

	// ErrAdjusterConstruction is returned when an output's timing cannot be
	// reconciled: a missing sample rate or step duration.
	ErrAdjusterConstruction = errors.New("feature time adjuster construction failed")

	// ErrExtractorFinished is returned by extractors used after Finish.
	ErrExtractorFinished = errors.New("extractor already finished")
)
