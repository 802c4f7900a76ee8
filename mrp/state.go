package mrp

// State is a pair/verify state machine's terminal status (spec.md §4.E).
type State int

const (
	// Idle is the state before either handshake has been attempted.
	Idle State = iota
	// Paired indicates a successful pair-setup; Credentials are available.
	Paired
	// Authenticated indicates a successful pair-verify; SessionKeys are available.
	Authenticated
	// Failed indicates any check, signature, or AEAD failure aborted the handshake.
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Paired:
		return "Paired"
	case Authenticated:
		return "Authenticated"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}
