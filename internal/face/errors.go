package face

import "errors"

// Error kinds returned across the face-finder packages.
// Call sites wrap them with context; match with errors.Is.
var (
	ErrInvalidArgument        = errors.New("invalid argument")
	ErrAmbiguousQuery         = errors.New("query image contains no face")
	ErrMultiFaceQuery         = errors.New("query image contains more than one face")
	ErrDegenerateVector       = errors.New("degenerate embedding")
	ErrInvalidMetric          = errors.New("metric out of domain")
	ErrNotFound               = errors.New("not found")
	ErrCorruptData            = errors.New("corrupt face data")
	ErrPersistence            = errors.New("persistence failed")
	ErrInsufficientCandidates = errors.New("not enough candidates")
	ErrStorageUnavailable     = errors.New("storage location unavailable")
)
