package bus

import (
	"context"

	"github.com/ckindle-42/portal/pkg/models"
)

// Broker relays published events to other Portal instances. The
// in-process bus works without one; attaching a broker adds
// cross-process delivery on top of local dispatch.
type Broker interface {
	// Publish forwards one locally published event to the other
	// instances. The bus logs failures and never surfaces them to
	// publishers.
	Publish(ctx context.Context, ev models.Event) error

	// Start begins receiving remote events, handing each one to
	// deliver. deliver must be safe for concurrent use.
	Start(ctx context.Context, deliver func(models.Event)) error

	// Stop tears the broker down and waits for its receive loop to
	// exit.
	Stop()
}
