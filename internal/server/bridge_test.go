package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/normanking/jarvis/internal/resolver"
	"github.com/normanking/jarvis/pkg/types"
)

// stubResolver returns a fixed resolution, optionally asking the clarifier
// first.
type stubResolver struct {
	res          types.Resolution
	needsClarify bool
}

func (s *stubResolver) ResolveWith(ctx context.Context, utt types.Utterance, clarifier resolver.Clarifier) types.Resolution {
	if s.needsClarify && clarifier != nil {
		confirmed, err := clarifier.Confirm(ctx, utt.Text, s.res)
		if err != nil || !confirmed {
			return types.Unresolved()
		}
	}
	return s.res
}

func dialTestBridge(t *testing.T, res UtteranceResolver) *websocket.Conn {
	t.Helper()

	srv := New("127.0.0.1:0", res)
	ts := httptest.NewServer(http.HandlerFunc(srv.handleUtterances))
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestBridgeResolvesUtterance(t *testing.T) {
	stub := &stubResolver{res: types.Resolution{
		Intent:     types.IntentSystemTime,
		Action:     "tell_time",
		Confidence: 0.9,
		Source:     types.SourceLocal,
	}}
	conn := dialTestBridge(t, stub)

	if err := conn.WriteJSON(Frame{Type: FrameUtterance, Text: "what time is it"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	var reply Frame
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if reply.Type != FrameResolution {
		t.Fatalf("expected resolution frame, got %q", reply.Type)
	}
	if reply.Action != "tell_time" {
		t.Errorf("expected action tell_time, got %q", reply.Action)
	}
	if reply.SessionID == "" {
		t.Error("expected a session id")
	}
}

func TestBridgeRejectsEmptyUtterance(t *testing.T) {
	conn := dialTestBridge(t, &stubResolver{})

	if err := conn.WriteJSON(Frame{Type: FrameUtterance}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	var reply Frame
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if reply.Type != FrameError {
		t.Errorf("expected error frame, got %q", reply.Type)
	}
}

func TestBridgeClarifyRoundTrip(t *testing.T) {
	stub := &stubResolver{
		res: types.Resolution{
			Intent:     types.IntentAppLaunch,
			Action:     "open_app",
			Parameters: map[string]string{"app": "chrome"},
			Confidence: 0.4,
			Source:     types.SourceLocal,
		},
		needsClarify: true,
	}
	conn := dialTestBridge(t, stub)

	if err := conn.WriteJSON(Frame{Type: FrameUtterance, Text: "open chrome maybe"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	var clarify Frame
	if err := conn.ReadJSON(&clarify); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if clarify.Type != FrameClarify {
		t.Fatalf("expected clarify frame, got %q", clarify.Type)
	}
	if clarify.Action != "open_app" {
		t.Errorf("expected candidate action open_app, got %q", clarify.Action)
	}

	confirmed := true
	if err := conn.WriteJSON(Frame{Type: FrameClarifyResponse, Confirmed: &confirmed}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	var reply Frame
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if reply.Type != FrameResolution {
		t.Fatalf("expected resolution frame, got %q", reply.Type)
	}
	if reply.Action != "open_app" {
		t.Errorf("expected confirmed action open_app, got %q", reply.Action)
	}
}

func TestBridgeClarifyDecline(t *testing.T) {
	stub := &stubResolver{
		res: types.Resolution{
			Intent:     types.IntentAppLaunch,
			Action:     "open_app",
			Confidence: 0.4,
			Source:     types.SourceLocal,
		},
		needsClarify: true,
	}
	conn := dialTestBridge(t, stub)

	if err := conn.WriteJSON(Frame{Type: FrameUtterance, Text: "open chrome maybe"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	var clarify Frame
	if err := conn.ReadJSON(&clarify); err != nil {
		t.Fatalf("read failed: %v", err)
	}

	declined := false
	if err := conn.WriteJSON(Frame{Type: FrameClarifyResponse, Confirmed: &declined}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	var reply Frame
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if reply.Source != string(types.SourceUnresolved) {
		t.Errorf("expected unresolved after decline, got %q", reply.Source)
	}
}

func TestBridgeUnknownFrameType(t *testing.T) {
	conn := dialTestBridge(t, &stubResolver{})

	if err := conn.WriteJSON(Frame{Type: "bogus"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	var reply Frame
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if reply.Type != FrameError {
		t.Errorf("expected error frame, got %q", reply.Type)
	}
}
