package mrp

// AuthenticationError covers every fatal check in the pair-setup/pair-verify
// state machines: SRP proof mismatch, Ed25519 signature failure, or AEAD
// authentication failure (spec.md §7). Pairing/verify errors are never
// retried — they surface immediately to the caller.
type AuthenticationError struct {
	reason string
	cause  error
}

func (e *AuthenticationError) Error() string {
	if e.cause != nil {
		return "mrp: authentication failed: " + e.reason + ": " + e.cause.Error()
	}
	return "mrp: authentication failed: " + e.reason
}

func (e *AuthenticationError) Unwrap() error { return e.cause }

func authErr(reason string, cause error) *AuthenticationError {
	return &AuthenticationError{reason: reason, cause: cause}
}
