package bus

import "context"

// Publisher delivers outbox events to the message bus. Delivery is
// at-least-once: a crash between broker ack and the processed-flag write
// means the same event may be published again, so consumers deduplicate by
// message id.
type Publisher interface {
	Publish(ctx context.Context, messageID string, topic string, key string, payload []byte) error
}
