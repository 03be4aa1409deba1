package registry

import "time"

const (
	DefaultHeartbeatInterval = 60 * time.Second
	DefaultIdleTimeout       = 5 * time.Minute
	DefaultSendTimeout       = 5 * time.Second
)

type hubConfig struct {
	heartbeatInterval time.Duration
	idleTimeout       time.Duration
	sendTimeout       time.Duration
}

// Option defines a functional configuration type for the Hub.
type Option func(*Hub)

// WithHeartbeatInterval configures how often the [JANITOR] sweeps idle entries.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.config.heartbeatInterval = d
		}
	}
}

// WithIdleTimeout defines the [QUIET_PERIOD] after which an entry is evicted.
func WithIdleTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.config.idleTimeout = d
		}
	}
}

// WithSendTimeout bounds a single Push.
func WithSendTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.config.sendTimeout = d
		}
	}
}
