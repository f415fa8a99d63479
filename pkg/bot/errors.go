package bot

import "errors"

// Handler failure classes. Every user-facing failure maps to exactly one
// of these so responses and logs stay consistent. Quota denials carry
// their own type, ratelimit.QuotaError, with the full check result.
var (
	// ErrDownstreamFailure means the search provider or the model call
	// failed after admission.
	ErrDownstreamFailure = errors.New("downstream failure")

	// ErrStaleSession means a navigation reference points at a
	// superseded or nonexistent pagination session.
	ErrStaleSession = errors.New("pagination session expired")

	// ErrDisabled means the requested capability is switched off.
	ErrDisabled = errors.New("capability disabled")
)
