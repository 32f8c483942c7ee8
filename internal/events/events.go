package events

// Publisher delivers domain events to an external broker. Implementations
// must be safe for concurrent use.
type Publisher interface {
	Publish(topic string, event any) error
	Close() error
}
