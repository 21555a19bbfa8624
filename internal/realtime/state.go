package realtime

// ConnectionState is the lifecycle stage of the push connection.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	// Error is transient: it is always followed by Connecting or
	// Disconnected.
	Error
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}
