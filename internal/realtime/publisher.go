// Package realtime delivers state-change events to connected clients
// through an external pub/sub provider. Delivery is best-effort: callers
// publish after their mutation has committed and only log failures.
package realtime

import "context"

// Publisher pushes a named event with a JSON-serializable payload onto a
// channel.
type Publisher interface {
	Publish(ctx context.Context, channel, event string, payload any) error
}

// NopPublisher discards every event. It stands in when no realtime
// credentials are configured and in tests.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, channel, event string, payload any) error {
	return nil
}
