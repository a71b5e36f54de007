// Package channel defines the adapter interface shared by every inbound
// message surface (built-in channels and extension channels alike).
package channel

import "context"

// InboundMessage is a single message received from a channel.
type InboundMessage struct {
	Text string
	// ReplyTo, when non-empty, lets a channel correlate the eventual
	// response with the message that triggered it (e.g. a chat id).
	ReplyTo string
}

// Channel is the minimal shape every messaging surface implements:
// connect, block for the next inbound message, and send a reply.
// Extension channels (subprocess-backed) satisfy the same three verbs.
type Channel interface {
	// Name identifies the channel (e.g. "telegram").
	Name() string

	// Connect establishes the channel's connection (long-poll, socket,
	// subprocess) and returns once it is ready to receive.
	Connect(ctx context.Context) error

	// Recv blocks until the next inbound message arrives or ctx is
	// cancelled.
	Recv(ctx context.Context) (InboundMessage, error)

	// Send delivers a reply back out the channel.
	Send(ctx context.Context, replyTo, text string) error

	// Close releases the channel's resources.
	Close() error
}
