package forecast

import "errors"

// Only InvalidQuery and InvalidProfile reach callers of Predict.
// The unavailable errors are absorbed by the fallback policy and kept for logs.
var (
	ErrInvalidQuery          = errors.New("invalid query")
	ErrInvalidProfile        = errors.New("invalid restaurant profile")
	ErrEncodingUnavailable   = errors.New("encoding unavailable")
	ErrStoreUnavailable      = errors.New("pattern store unavailable")
	ErrGenerationUnavailable = errors.New("generation unavailable")
)
