/*
Package registry tracks which users currently hold a live delivery channel.

Key concepts:
  - One entry per user: a second connection for the same user replaces the
    first and the replaced channel is closed.
  - Liveness: every entry carries a lastSeen timestamp refreshed on connect and
    on client activity. A heartbeat janitor evicts entries idle for longer than
    the idle timeout.
  - Delivery: Push hands a serialized frame to the user's channel under a send
    timeout. A failed send evicts the entry; it is never retried here.

The registry is process-local bookkeeping. Losing it loses live push only;
notifications are persisted elsewhere.
*/
package registry

import (
	"sync/atomic"
	"time"
)

// Entry is the registry's view of one live user channel.
type Entry struct {
	UserID      string
	Channel     Channel
	ConnectedAt time.Time

	// [ATOMIC_FIELD] unix nanos
	lastSeen atomic.Int64
}

func newEntry(userID string, ch Channel) *Entry {
	now := time.Now()
	e := &Entry{
		UserID:      userID,
		Channel:     ch,
		ConnectedAt: now,
	}
	e.lastSeen.Store(now.UnixNano())
	return e
}

func (e *Entry) touch() {
	e.lastSeen.Store(time.Now().UnixNano())
}

func (e *Entry) LastSeen() time.Time {
	return time.Unix(0, e.lastSeen.Load())
}

// IsIdle reports whether no activity was observed within timeout.
func (e *Entry) IsIdle(timeout time.Duration) bool {
	return time.Since(e.LastSeen()) > timeout
}
