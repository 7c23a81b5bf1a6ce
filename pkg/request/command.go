package request

import (
	"fmt"

	"github.com/spineio/spineweb.go/pkg/models"
)

// CommandFactory creates commands for the actor of its Factory.
type CommandFactory struct {
	factory *Factory
}

// Create wraps msg into a command envelope.
// The message must pack into an Any, which is how it travels to the backend.
func (f *CommandFactory) Create(msg models.TypedValue) (*models.Command, error) {
	if _, err := msg.Pack(); err != nil {
		return nil, fmt.Errorf("cannot create command: %w", err)
	}

	actorContext := f.factory.actorContext()
	return &models.Command{
		ID:      newID(""),
		Message: msg,
		Context: models.CommandContext{ActorContext: actorContext},
	}, nil
}
