package telephony

import "time"

// Listener policy for the media WebSocket. The server pings on PingInterval;
// a peer that misses the pong past PongDeadline is considered gone.
const (
	PingInterval   = 30 * time.Second
	PongDeadline   = 15 * time.Second
	MaxMessageSize = 1 << 20 // 1 MiB
	SendQueueSize  = 64
	CloseDeadline  = 10 * time.Second
)

// LivenessWindow is the read deadline granted between pongs
const LivenessWindow = PingInterval + PongDeadline
