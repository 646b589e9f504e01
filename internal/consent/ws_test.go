package consent

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/quillscribe/quill/pkg/types"
)

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial hub: %v", err)
	}
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) wireMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return msg
}

func writeTestMessage(t *testing.T, conn *websocket.Conn, msg wireMessage) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestHub_ShowDeliversPromptAndResolvesResponse(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialHub(t, srv)
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Give the hub a moment to register the connection.
	time.Sleep(50 * time.Millisecond)

	type result struct {
		d   types.ConsentDecision
		err error
	}
	resCh := make(chan result, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		d, err := hub.Show(ctx, Request{SessionID: "s1", Platform: types.PlatformZoom})
		resCh <- result{d, err}
	}()

	msg := readMessage(t, conn)
	if msg.Type != msgConsentRequest || msg.SessionID != "s1" || msg.Platform != "zoom" {
		t.Fatalf("unexpected prompt message: %+v", msg)
	}

	writeTestMessage(t, conn, wireMessage{Type: msgConsentResponse, SessionID: "s1", Accepted: true})

	res := <-resCh
	if res.err != nil {
		t.Fatalf("Show: %v", res.err)
	}
	if res.d != types.ConsentAccepted {
		t.Errorf("decision = %q, want accepted", res.d)
	}
}

func TestHub_DeclineResolvesDisabled(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialHub(t, srv)
	defer conn.Close(websocket.StatusNormalClosure, "")
	time.Sleep(50 * time.Millisecond)

	resCh := make(chan types.ConsentDecision, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		d, _ := hub.Show(ctx, Request{SessionID: "s2", Platform: types.PlatformTeams})
		resCh <- d
	}()

	readMessage(t, conn)
	writeTestMessage(t, conn, wireMessage{Type: msgConsentResponse, SessionID: "s2", Accepted: false})

	if d := <-resCh; d != types.ConsentDisabled {
		t.Errorf("decision = %q, want disabled", d)
	}
}

func TestHub_ShowWithoutClientTimesOut(t *testing.T) {
	hub := NewHub()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	d, err := hub.Show(ctx, Request{SessionID: "s3"})
	if err == nil {
		t.Fatal("expected context error with no UI connected")
	}
	if d == types.ConsentAccepted {
		t.Fatal("no UI must never yield Accepted")
	}
}

func TestHub_PendingPromptDeliveredOnConnect(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	resCh := make(chan types.ConsentDecision, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		d, _ := hub.Show(ctx, Request{SessionID: "s4", Platform: types.PlatformGoogleMeet})
		resCh <- d
	}()

	// Let Show register the pending prompt before the UI connects.
	time.Sleep(50 * time.Millisecond)

	conn := dialHub(t, srv)
	defer conn.Close(websocket.StatusNormalClosure, "")

	msg := readMessage(t, conn)
	if msg.Type != msgConsentRequest || msg.SessionID != "s4" {
		t.Fatalf("expected backlogged prompt, got %+v", msg)
	}

	writeTestMessage(t, conn, wireMessage{Type: msgConsentResponse, SessionID: "s4", Accepted: true})
	if d := <-resCh; d != types.ConsentAccepted {
		t.Errorf("decision = %q, want accepted", d)
	}
}
