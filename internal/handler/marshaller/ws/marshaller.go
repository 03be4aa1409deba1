package wsmarshaller

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/webitel/im-gamification-service/internal/domain/model"
	"github.com/webitel/im-gamification-service/internal/domain/registry"
)

var ErrEmptyCommand = errors.New("ws: command type is required")

// MarshallConnected builds the handshake frame written right after upgrade.
func MarshallConnected(connID string) ([]byte, error) {
	return registry.EncodeFrame(registry.FrameConnected, &model.ConnectedPayload{
		Ok:            true,
		ConnectionID:  connID,
		ServerVersion: model.ServerVersion,
	})
}

// UnmarshallCommand decodes one inbound text frame into a client command.
func UnmarshallCommand(data []byte) (registry.Command, error) {
	var cmd registry.Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return registry.Command{}, fmt.Errorf("ws: decode command: %w", err)
	}
	if cmd.Type == "" {
		return registry.Command{}, ErrEmptyCommand
	}
	return cmd, nil
}
