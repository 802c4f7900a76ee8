package tlv

// Named tags used throughout the MRP pair-setup/pair-verify handshake.
// Numbering matches the wire tags used by Apple's pairing TLV format (the
// same numbering HomeKit accessory pairing uses).
const (
	Method        byte = 0
	Identifier    byte = 1
	Salt          byte = 2
	PublicKey     byte = 3
	Proof         byte = 4
	EncryptedData byte = 5
	State         byte = 6
	Error         byte = 7
	Signature     byte = 10
	Sequence      byte = 12
)

// ErrorCode values carried in an Error TLV record.
type ErrorCode byte

const (
	ErrorUnknown        ErrorCode = 1
	ErrorAuthentication ErrorCode = 2
	ErrorBackoff        ErrorCode = 3
	ErrorMaxPeers       ErrorCode = 4
	ErrorMaxTries       ErrorCode = 5
	ErrorUnavailable    ErrorCode = 6
	ErrorBusy           ErrorCode = 7
)
