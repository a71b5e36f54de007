package runtime

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/pith-agent/pith/internal/secrets"

	. "github.com/pith-agent/pith/internal/logging"
)

// secretWaitTimeout is how long store_secret blocks for a value to
// arrive over the out-of-band channel before giving up.
const secretWaitTimeout = 60 * time.Second

// bindSecretBridge installs the bridge that will receive
// on_secret_request callbacks for every store_secret call made during
// sessionID's current turn.
func (r *Runtime) bindSecretBridge(sessionID string, bridge ChatBridge) {
	r.secretsMu.Lock()
	defer r.secretsMu.Unlock()
	if r.bridges == nil {
		r.bridges = make(map[string]ChatBridge)
	}
	r.bridges[sessionID] = bridge
}

func (r *Runtime) unbindSecretBridge(sessionID string) {
	r.secretsMu.Lock()
	defer r.secretsMu.Unlock()
	delete(r.bridges, sessionID)
}

func (r *Runtime) bridgeFor(sessionID string) ChatBridge {
	r.secretsMu.Lock()
	defer r.secretsMu.Unlock()
	return r.bridges[sessionID]
}

// toolStoreSecret implements the store_secret built-in per spec.md
// §4.4.5: it generates a request id, registers a waiter, asks the
// turn's bridge to prompt the user out of band, and blocks until
// ProvideSecret delivers a value or the wait times out. The agent
// never sees the raw value — only the confirmation that it was stored.
func (r *Runtime) toolStoreSecret(ctx context.Context, name string) (string, error) {
	sessionID := sessionIDFromContext(ctx)
	bridge := r.bridgeFor(sessionID)
	if bridge == nil {
		return "error: non-interactive session — no secret channel is available to prompt for a value", nil
	}

	requestID, err := newRequestID()
	if err != nil {
		return "", err
	}

	wait := make(chan secretDelivery, 1)
	r.secretsMu.Lock()
	r.pending[requestID] = wait
	r.secretsMu.Unlock()
	defer func() {
		r.secretsMu.Lock()
		delete(r.pending, requestID)
		r.secretsMu.Unlock()
	}()

	bridge.OnSecretRequest(requestID, name)

	select {
	case delivery := <-wait:
		if err := secrets.Set(r.envPath, name, delivery.value); err != nil {
			return "", err
		}
		os.Setenv(name, delivery.value)
		return fmt.Sprintf("stored secret '%s'", name), nil
	case <-time.After(secretWaitTimeout):
		return "error: timed out waiting for secret input", nil
	case <-ctx.Done():
		return "error: timed out waiting for secret input", nil
	}
}

// ProvideSecret wakes the store_secret call waiting on requestID,
// handing it value. It satisfies http.ChatRunner.ProvideSecret.
func (r *Runtime) ProvideSecret(requestID, value string) error {
	r.secretsMu.Lock()
	wait, ok := r.pending[requestID]
	r.secretsMu.Unlock()
	if !ok {
		return fmt.Errorf("runtime: unknown or expired secret request %q", requestID)
	}

	select {
	case wait <- secretDelivery{value: value}:
	default:
		L_warn("runtime: secret request already delivered", "request_id", requestID)
	}
	return nil
}

func newRequestID() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("runtime: generate secret request id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
