package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sync/internal/events"
)

// NotificationService logs pipeline events for operator visibility. The
// sync state machine is the source of truth; everything here is advisory.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleEvent("TicketCreated"))
	n.dispatcher.Subscribe(events.EventTicketSynced, n.handleEvent("TicketSynced"))
	n.dispatcher.Subscribe(events.EventTicketSyncFailed, n.handleEvent("TicketSyncFailed"))
	n.dispatcher.Subscribe(events.EventTicketReconciled, n.handleEvent("TicketReconciled"))
	n.dispatcher.Subscribe(events.EventReplySent, n.handleEvent("ReplySent"))
}

func (n *NotificationService) handleEvent(name string) events.EventHandler {
	return func(ctx context.Context, event events.Event) error {
		n.logger.Info(name,
			zap.String("ticket_id", event.TicketID.String()),
			zap.Any("payload", event.Payload))
		return nil
	}
}
