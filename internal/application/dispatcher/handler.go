package dispatcher

import (
	"context"

	"github.com/haulwise/rebate-claims/internal/domain/event"
)

// Handler processes one claim event
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo names a registered handler for log output
type HandlerInfo struct {
	Name      string
	EventType event.Type
	Handler   Handler
}
