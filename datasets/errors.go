package datasets

import "errors"

var (
	// ErrInvalidManifest means the parallel record arrays disagree in length,
	// or a manifest does not match the record count it was materialized with.
	ErrInvalidManifest = errors.New("invalid manifest")
	// ErrNotMaterialized is returned by operations that need a local manifest
	// before Download, Open or Split has produced one.
	ErrNotMaterialized = errors.New("dataset has not been created")
	// ErrRemoteFetch wraps object-store failures. There is no retry.
	ErrRemoteFetch = errors.New("remote fetch failed")
	// ErrDecode means the active decoder rejected the payload.
	ErrDecode = errors.New("decode failed")
	// ErrLabel means the target extractor rejected the annotation.
	ErrLabel = errors.New("label extraction failed")

	ErrIndexOutOfRange = errors.New("index out of range")
	ErrInvalidRatio    = errors.New("split ratio must be within [0, 1]")
	ErrNoMaterializer  = errors.New("dataset has no materializer")
)
