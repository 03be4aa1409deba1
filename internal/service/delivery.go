package service

import (
	"context"

	"github.com/webitel/im-gamification-service/internal/domain/registry"
)

// [DELIVERY_SERVICE] PRIMARY INTERFACE FOR TRANSPORT HANDLERS (websocket / long-poll)
type Deliverer interface {
	Subscribe(ctx context.Context, userID string) (*registry.Connector, error)
	Unsubscribe(userID string, conn *registry.Connector)
	// Dispatch routes an inbound client command received on conn.
	Dispatch(ctx context.Context, userID string, conn *registry.Connector, cmd registry.Command) error
}

const defaultBufferSize = 256

type DeliveryService struct {
	hub    registry.Hubber
	router *registry.CommandRouter
}

func NewDeliveryService(hub registry.Hubber, router *registry.CommandRouter) *DeliveryService {
	return &DeliveryService{hub: hub, router: router}
}

// Subscribe opens a buffered connector and registers it as the user's live
// channel, replacing any previous one.
func (s *DeliveryService) Subscribe(ctx context.Context, userID string) (*registry.Connector, error) {
	conn := registry.NewConnector(ctx, userID, defaultBufferSize)
	s.hub.Add(userID, conn)
	return conn, nil
}

// Unsubscribe detaches conn if it is still the user's channel and closes it.
func (s *DeliveryService) Unsubscribe(userID string, conn *registry.Connector) {
	s.hub.Detach(userID, conn)
	_ = conn.Close()
}

func (s *DeliveryService) Dispatch(ctx context.Context, userID string, conn *registry.Connector, cmd registry.Command) error {
	return s.router.Dispatch(ctx, userID, conn, cmd)
}
