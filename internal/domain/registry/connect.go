package registry

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrChannelClosed = errors.New("registry: channel closed")
	ErrBackpressure  = errors.New("registry: channel buffer full")
)

// Channel is the opaque real-time handle the registry pushes to.
type Channel interface {
	Send(ctx context.Context, data []byte) error
	Close() error
}

// Interface guard
var _ Channel = (*Connector)(nil)

// Connector is a buffered Channel drained by a transport loop (websocket
// writer or long-poll response).
type Connector struct {
	id     uuid.UUID
	userID string
	sendCh chan []byte

	ctx       context.Context
	cancelFn  context.CancelFunc
	closeOnce sync.Once
}

func NewConnector(ctx context.Context, userID string, bufferSize int) *Connector {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	childCtx, cancel := context.WithCancel(ctx)
	return &Connector{
		id:       uuid.New(),
		userID:   userID,
		sendCh:   make(chan []byte, bufferSize),
		ctx:      childCtx,
		cancelFn: cancel,
	}
}

func (c *Connector) ID() uuid.UUID  { return c.id }
func (c *Connector) UserID() string { return c.userID }

// Send waits for buffer space until ctx is done. A saturated buffer for the
// whole window is reported as ErrBackpressure.
func (c *Connector) Send(ctx context.Context, data []byte) error {
	select {
	// [LIFECYCLE_GATE]
	case <-c.ctx.Done():
		return ErrChannelClosed
	default:
	}

	select {
	case <-c.ctx.Done():
		return ErrChannelClosed
	case c.sendCh <- data:
		return nil
	case <-ctx.Done():
		return ErrBackpressure
	}
}

// Recv yields frames in send order. It is never closed; watch Done instead.
func (c *Connector) Recv() <-chan []byte { return c.sendCh }

// Done is closed once the connector is closed.
func (c *Connector) Done() <-chan struct{} { return c.ctx.Done() }

// Close is idempotent.
func (c *Connector) Close() error {
	c.closeOnce.Do(c.cancelFn)
	return nil
}
