// Package channels drives the generic channel loop spec.md describes once,
// parametrized over any channel.Channel: connect, block for the next
// message, dispatch it to the runtime, send the reply, repeat.
package channels

import (
	"context"
	"sync"
	"time"

	"github.com/pith-agent/pith/internal/channel"
	. "github.com/pith-agent/pith/internal/logging"
)

// Dispatcher hands an inbound message to the runtime's chat loop and
// returns the text to send back.
type Dispatcher interface {
	Handle(ctx context.Context, msg channel.InboundMessage) (string, error)
}

// Manager owns the lifecycle of every running channel adapter.
type Manager struct {
	mu       sync.Mutex
	cancels  map[string]context.CancelFunc
	dispatch Dispatcher
}

// NewManager creates a channel manager that routes every channel's inbound
// messages to dispatch.
func NewManager(dispatch Dispatcher) *Manager {
	return &Manager{
		cancels:  make(map[string]context.CancelFunc),
		dispatch: dispatch,
	}
}

// Start connects ch and runs its receive/dispatch/send loop in the
// background until ctx is cancelled or StopAll is called. Connect failures are
// retried with exponential backoff, capped at 5 minutes.
func (m *Manager) Start(ctx context.Context, ch channel.Channel) {
	chCtx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	m.cancels[ch.Name()] = cancel
	m.mu.Unlock()

	go m.runWithRetry(chCtx, ch)
}

func (m *Manager) runWithRetry(ctx context.Context, ch channel.Channel) {
	backoff := 5 * time.Second
	maxBackoff := 5 * time.Minute

	for {
		if err := ch.Connect(ctx); err != nil {
			L_warn("channels: connect failed, retrying", "channel", ch.Name(), "error", err, "backoff", backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		L_info("channels: connected", "channel", ch.Name())
		m.loop(ctx, ch)
		return
	}
}

func (m *Manager) loop(ctx context.Context, ch channel.Channel) {
	defer ch.Close()

	for {
		msg, err := ch.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				L_info("channels: shutting down", "channel", ch.Name())
				return
			}
			L_error("channels: recv failed", "channel", ch.Name(), "error", err)
			return
		}

		reply, err := m.dispatch.Handle(ctx, msg)
		if err != nil {
			L_error("channels: dispatch failed", "channel", ch.Name(), "error", err)
			reply = "Error: " + err.Error()
		}
		if reply == "" {
			continue
		}

		if err := ch.Send(ctx, msg.ReplyTo, reply); err != nil {
			L_error("channels: send failed", "channel", ch.Name(), "error", err)
		}
	}
}

// StopAll cancels every running channel's loop.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, cancel := range m.cancels {
		L_debug("channels: stopping", "channel", name)
		cancel()
	}
	m.cancels = make(map[string]context.CancelFunc)
}
