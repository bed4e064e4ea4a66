package workers

import (
	"context"
	"log/slog"
	"time"

	"deal-lab/contract"
	"deal-lab/domain"
	"deal-lab/domain/event"
)

// Ensure *RouterWorker implements the contract.Worker interface at compile time.
var _ contract.Worker = (*RouterWorker)(nil)

// RouterWorker drains the event channel and fans each event out to the
// connections entitled to see it, resolved through the presence registry.
//
// Delivery is at-most-once, best-effort with no guarantees regarding
// ordering, durability, or retries. An offline target is simply skipped;
// the durable state mutation already happened before the event was
// emitted, so a reconnecting client re-fetches instead of relying on
// replay. RouterWorker is safe to run as a pool: the registry does its
// own locking and events are consumed from a shared channel.
type RouterWorker struct {
	log         *slog.Logger
	registry    contract.IRegistry
	events      chan event.DomainEvent
	sinkTimeout time.Duration
}

func NewRouterWorker(log *slog.Logger, registry contract.IRegistry,
	events chan event.DomainEvent, sinkTimeout time.Duration) *RouterWorker {
	return &RouterWorker{log: log, registry: registry, events: events, sinkTimeout: sinkTimeout}
}

func (w *RouterWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping event routing")
			return nil
		case evt, ok := <-w.events:
			if !ok {
				w.log.Debug("Event channel closed")
				return nil
			}
			w.route(ctx, evt)
		}
	}
}

// route picks the audience per event type:
//   - message.created: the transaction room if transaction-addressed,
//     else the direct recipient plus an echo to the sender.
//   - read receipts: the original sender(s) only.
//   - everything else: the scope's room audience.
func (w *RouterWorker) route(ctx context.Context, e event.DomainEvent) {
	switch evt := e.(type) {
	case event.MessageCreated:
		if evt.TransactionID != nil {
			w.deliverAll(ctx, w.registry.SinksForRoom(domain.Room(*evt.TransactionID)), e)
			return
		}
		w.deliverUser(ctx, evt.RecipientID, e)
		w.deliverUser(ctx, evt.SenderID, e) // client-side reconciliation echo
	case event.MessageRead:
		w.deliverUser(ctx, evt.SenderID, e)
	case event.ConversationRead:
		for _, senderID := range evt.SenderIDs {
			w.deliverUser(ctx, senderID, e)
		}
	default:
		w.deliverAll(ctx, w.sinksForScope(e.Scope()), e)
	}
}

func (w *RouterWorker) sinksForScope(scope event.Scope) []contract.EventSink {
	kind, id, ok := scope.Split()
	if !ok {
		w.log.Warn("Event with malformed scope dropped", "scope", scope)
		return nil
	}
	switch kind {
	case event.ScopeTransaction:
		return w.registry.SinksForRoom(domain.RoomID(id))
	case event.ScopeUser:
		if sink, online := w.registry.SinkForUser(id); online {
			return []contract.EventSink{sink}
		}
	}
	return nil
}

func (w *RouterWorker) deliverUser(ctx context.Context, userID string, e event.DomainEvent) {
	sink, online := w.registry.SinkForUser(userID)
	if !online {
		// Best effort: target offline, drop silently.
		return
	}
	w.deliver(ctx, sink, e)
}

func (w *RouterWorker) deliverAll(ctx context.Context, sinks []contract.EventSink, e event.DomainEvent) {
	for _, sink := range sinks {
		w.deliver(ctx, sink, e)
	}
}

// deliver pushes one event into one sink under a timeout. A slow or
// broken connection loses the event; it never stalls the router.
func (w *RouterWorker) deliver(ctx context.Context, sink contract.EventSink, e event.DomainEvent) {
	deliveryCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
	defer cancel()

	if err := sink.Consume(deliveryCtx, e); err != nil {
		w.log.Debug("Event delivery dropped", "scope", e.Scope(), "error", err)
	}
}
