package queue

import "context"

const (
	// WorkQueueName is the single campaign trigger queue. Both the
	// scheduler and the send-now action publish here; the claim on the
	// campaign row makes duplicate messages harmless.
	WorkQueueName = "campaigns"

	// DeadLetterQueueName collects trigger messages the consumer rejected.
	DeadLetterQueueName = "campaigns.dlq"
)

// Publisher publishes campaign trigger messages.
type Publisher interface {
	Publish(ctx context.Context, msg CampaignMessage) error
	Close() error
}

// MessageHandler handles a consumed trigger message.
type MessageHandler func(ctx context.Context, msg CampaignMessage) error

// Consumer consumes campaign trigger messages.
type Consumer interface {
	Consume(ctx context.Context, handler MessageHandler) error
	Close() error
}
