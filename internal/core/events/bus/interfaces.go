package bus

// EventBus is a thread-safe, in-process pub/sub bus.
//
// Key characteristics:
//   - Type-based fan-out: handlers subscribe by Event.Type() or to every type.
//   - Ordered, synchronous delivery: Publish calls handlers in the caller
//     goroutine, in subscription order.
//   - Error aggregation: handler errors are joined and returned from Publish/PublishBatch.
//   - Optional observability: metrics are produced only when observers are registered.
//
// Handlers may subscribe or unsubscribe from inside a delivery; the change
// takes effect for the next published event.
type EventBus interface {
	// Publish delivers the event to all active subscribers of event.Type()
	// and to wildcard subscribers.
	Publish(event Event) error
	// PublishBatch publishes events sequentially and aggregates errors across them.
	PublishBatch(events ...Event) error

	// Subscribe registers a handler for a specific event type.
	Subscribe(eventType string, handler EventHandler) (Subscription, error)
	// SubscribeAll registers a handler receiving every event.
	SubscribeAll(handler EventHandler) (Subscription, error)
	// Unsubscribe cancels the given Subscription. It is safe to call with nil.
	Unsubscribe(Subscription) error

	// AddObserver registers obs for the lifetime of the bus.
	AddObserver(obs EventBusObserver)
	// GetMetrics returns accumulated metrics. Metrics are only collected
	// while at least one observer is registered.
	GetMetrics() EventBusMetrics
	// Subscribers reports the number of active subscriptions.
	Subscribers() int
}

// Event is an immutable message transported by the EventBus.
type Event interface {
	Type() string
	Source() string
	Data() any
}

type (
	// EventHandler is invoked per delivered event. Returned errors are
	// aggregated by Publish.
	EventHandler func(event Event) error
)

// Subscription represents a registered handler.
type Subscription interface {
	ID() string
	// EventType returns the subscribed type, or Wildcard.
	EventType() string
	IsActive() bool
	// Cancel de-registers the handler. Multiple calls are safe.
	Cancel() error
}

// EventBusObserver is notified about deliveries. Observers should return quickly.
type EventBusObserver interface {
	OnPublish(eventType string, event Event)
	OnDelivered(eventType string, handlers int, err error, durationMicros int64)
}

type EventBusMetrics struct {
	Published         uint64
	DeliveredHandlers uint64
	Errors            uint64
	SubscribersActive uint64
}
