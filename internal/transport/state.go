package transport

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

type ReconnectPolicy string

const (
	// ReconnectManual never redials on its own; the caller uses Reconnect.
	ReconnectManual ReconnectPolicy = "manual"
	// ReconnectBackoff redials with exponential backoff after a drop.
	ReconnectBackoff ReconnectPolicy = "backoff"
)

func ParseReconnectPolicy(s string) (ReconnectPolicy, bool) {
	switch ReconnectPolicy(s) {
	case ReconnectManual, "":
		return ReconnectManual, true
	case ReconnectBackoff:
		return ReconnectBackoff, true
	}
	return "", false
}
