package consent

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/quillscribe/quill/pkg/types"
)

// Message types exchanged with the tray UI over the localhost WebSocket.
const (
	msgConsentRequest  = "consent_request"
	msgConsentResponse = "consent_response"
	msgStatus          = "status"
)

// writeTimeout bounds best-effort status writes so a stuck UI cannot stall
// session teardown.
const writeTimeout = 5 * time.Second

// wireMessage is the single envelope for both directions. The tray UI is a
// separate process; keeping one flat JSON shape keeps its parser trivial.
type wireMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Platform  string `json:"platform,omitempty"`

	// Accepted is meaningful on consent_response: true accepts recording,
	// false disables the session.
	Accepted bool `json:"accepted,omitempty"`

	// Event is meaningful on status: detected, recording, finalizing,
	// complete, failed, disabled.
	Event string `json:"event,omitempty"`

	// Detail carries optional human-readable context for status events.
	Detail string `json:"detail,omitempty"`
}

// Hub is the WebSocket bridge to the external tray/popup UI process. It
// implements Prompter and additionally publishes status events, so the UI can
// render recording indicators without a second channel.
//
// One UI client is expected; when a new one connects it replaces the old.
// Prompts issued while no client is connected are delivered on connect, so a
// slow-starting tray still sees them before the consent timeout fires.
type Hub struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	waiters map[string]chan types.ConsentDecision
	pending map[string]wireMessage
}

// NewHub returns a Hub ready to accept a UI connection.
func NewHub() *Hub {
	return &Hub{
		waiters: make(map[string]chan types.ConsentDecision),
		pending: make(map[string]wireMessage),
	}
}

// ServeHTTP upgrades the request to a WebSocket and serves it until the
// client disconnects. Mount it on the localhost listener only; consent must
// never be answerable from another machine.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{})
	if err != nil {
		slog.Warn("consent: websocket accept failed", "err", err)
		return
	}

	h.mu.Lock()
	if h.conn != nil {
		h.conn.Close(websocket.StatusPolicyViolation, "replaced by newer UI connection")
	}
	h.conn = conn
	backlog := make([]wireMessage, 0, len(h.pending))
	for _, m := range h.pending {
		backlog = append(backlog, m)
	}
	h.mu.Unlock()

	slog.Info("consent: ui connected", "remote", r.RemoteAddr)

	ctx := r.Context()
	for _, m := range backlog {
		if err := writeMessage(ctx, conn, m); err != nil {
			slog.Warn("consent: backlog delivery failed", "err", err)
		}
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			break
		}
		var msg wireMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("consent: malformed message from ui", "err", err)
			continue
		}
		if msg.Type == msgConsentResponse {
			h.resolve(msg)
		}
	}

	h.mu.Lock()
	if h.conn == conn {
		h.conn = nil
	}
	h.mu.Unlock()
	conn.Close(websocket.StatusNormalClosure, "")
	slog.Info("consent: ui disconnected")
}

// Show implements Prompter. It sends a consent_request to the UI and blocks
// until a matching consent_response arrives or ctx is done (the controller
// supplies the timeout).
func (h *Hub) Show(ctx context.Context, req Request) (types.ConsentDecision, error) {
	ch := make(chan types.ConsentDecision, 1)
	msg := wireMessage{
		Type:      msgConsentRequest,
		SessionID: req.SessionID,
		Platform:  string(req.Platform),
	}

	h.mu.Lock()
	h.waiters[req.SessionID] = ch
	h.pending[req.SessionID] = msg
	conn := h.conn
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.waiters, req.SessionID)
		delete(h.pending, req.SessionID)
		h.mu.Unlock()
	}()

	if conn != nil {
		if err := writeMessage(ctx, conn, msg); err != nil {
			slog.Warn("consent: prompt delivery failed, waiting for reconnect", "session_id", req.SessionID, "err", err)
		}
	}

	select {
	case d := <-ch:
		return d, nil
	case <-ctx.Done():
		return types.ConsentDisabled, ctx.Err()
	}
}

// Publish sends a status event to the UI, best effort. Nothing in the
// session lifecycle depends on delivery.
func (h *Hub) Publish(sessionID string, platform types.Platform, event, detail string) {
	h.mu.Lock()
	conn := h.conn
	h.mu.Unlock()
	if conn == nil {
		return
	}
	msg := wireMessage{
		Type:      msgStatus,
		SessionID: sessionID,
		Platform:  string(platform),
		Event:     event,
		Detail:    detail,
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := writeMessage(ctx, conn, msg); err != nil {
		slog.Debug("consent: status publish failed", "event", event, "err", err)
	}
}

func (h *Hub) resolve(msg wireMessage) {
	h.mu.Lock()
	ch, ok := h.waiters[msg.SessionID]
	h.mu.Unlock()
	if !ok {
		slog.Debug("consent: response for unknown session", "session_id", msg.SessionID)
		return
	}
	decision := types.ConsentDisabled
	if msg.Accepted {
		decision = types.ConsentAccepted
	}
	select {
	case ch <- decision:
	default:
	}
}

func writeMessage(ctx context.Context, conn *websocket.Conn, msg wireMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// Ensure Hub implements Prompter at compile time.
var _ Prompter = (*Hub)(nil)
