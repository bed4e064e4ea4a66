// Package runtime handles presence, event propagation, and worker
// supervision. It orchestrates the system without containing business
// logic or domain rules.
package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"deal-lab/contract"
	"deal-lab/domain"
	"deal-lab/domain/event"
	"deal-lab/runtime/workers"
)

// Broadcaster owns the fan-out pipeline: a buffered event channel
// drained by a bounded pool of router workers under supervision.
// Publish is fire-and-forget so a durable mutation can never be stalled
// by network fan-out.
type Broadcaster struct {
	mu             sync.Mutex
	log            *slog.Logger
	registry       contract.IRegistry
	supervisor     contract.ISupervisor
	events         chan event.DomainEvent
	numWorkers     int
	sinkTimeout    time.Duration
	metricInterval time.Duration
}

func NewBroadcaster(log *slog.Logger, supervisor contract.ISupervisor, registry contract.IRegistry,
	numWorkers, bufferSize int, sinkTimeout, metricInterval time.Duration) *Broadcaster {
	return &Broadcaster{
		log:            log,
		registry:       registry,
		supervisor:     supervisor,
		events:         make(chan event.DomainEvent, bufferSize),
		numWorkers:     numWorkers,
		sinkTimeout:    sinkTimeout,
		metricInterval: metricInterval,
	}
}

// Publish enqueues an event for fan-out. When the buffer is full the
// event is dropped with a log line: real-time delivery is best-effort
// and the durable write already succeeded.
func (b *Broadcaster) Publish(e event.DomainEvent) {
	select {
	case b.events <- e:
	default:
		b.log.Warn("Event buffer full, dropping event", "scope", e.Scope())
	}
}

// Dispatch routes an inbound client intent. Room membership changes go
// straight to the registry; typing signals become ephemeral events.
func (b *Broadcaster) Dispatch(cmd domain.Command) {
	switch c := cmd.(type) {
	case domain.JoinRoomCommand:
		b.registry.JoinRoom(c.UserID, c.RoomID())
	case domain.LeaveRoomCommand:
		b.registry.LeaveRoom(c.UserID, c.RoomID())
	case domain.StartTypingCommand:
		b.Publish(event.TypingStarted{TransactionID: c.TransactionID, UserID: c.UserID, At: c.At})
	case domain.StopTypingCommand:
		b.Publish(event.TypingStopped{TransactionID: c.TransactionID, UserID: c.UserID, At: c.At})
	default:
		b.log.Warn("Unknown command dropped", "room", cmd.RoomID())
	}
}

// Start registers the router pool and the health worker with the
// supervisor and runs them. Blocks until the context is canceled.
func (b *Broadcaster) Start(ctx context.Context) error {
	b.mu.Lock()
	for i := 0; i < b.numWorkers; i++ {
		b.supervisor.Add(workers.NewRouterWorker(b.log, b.registry, b.events, b.sinkTimeout))
	}
	b.supervisor.Add(workers.NewHealthWorker(b.log, b.metricInterval))
	b.mu.Unlock()

	b.log.Info("Starting broadcaster and all supervised workers", "routers", b.numWorkers)
	b.supervisor.Run(ctx)
	return nil
}

// Stop initiates a graceful shutdown by canceling the supervised context.
func (b *Broadcaster) Stop() {
	b.log.Info("Requesting broadcaster shutdown")
	b.supervisor.Stop()
}

var (
	_ contract.IEventBus   = (*Broadcaster)(nil)
	_ contract.IDispatcher = (*Broadcaster)(nil)
)
