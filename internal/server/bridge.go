// Package server exposes the resolver over a local WebSocket bridge so a
// speech front end can stream utterances in and receive resolutions back.
// One connection carries one session: frames are JSON, clarification
// round-trips happen on the same connection, and closing the connection
// cancels any in-flight remote call for it.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/normanking/jarvis/internal/resolver"
	"github.com/normanking/jarvis/pkg/types"
)

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second

	// clarifyWait bounds how long the bridge waits for the user to answer
	// a clarification prompt before treating it as declined.
	clarifyWait = 30 * time.Second
)

// Frame types on the wire.
const (
	FrameUtterance       = "utterance"
	FrameResolution      = "resolution"
	FrameClarify         = "clarify"
	FrameClarifyResponse = "clarify_response"
	FrameError           = "error"
)

// Frame is the bridge wire format. Fields are populated per Type.
type Frame struct {
	Type       string            `json:"type"`
	Text       string            `json:"text,omitempty"`
	SessionID  string            `json:"session_id,omitempty"`
	Intent     string            `json:"intent,omitempty"`
	Action     string            `json:"action,omitempty"`
	Parameters map[string]string `json:"parameters,omitempty"`
	Confidence float64           `json:"confidence,omitempty"`
	Source     string            `json:"source,omitempty"`
	Confirmed  *bool             `json:"confirmed,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// UtteranceResolver is the resolver surface the bridge needs.
type UtteranceResolver interface {
	ResolveWith(ctx context.Context, utt types.Utterance, clarifier resolver.Clarifier) types.Resolution
}

// Server is the WebSocket bridge.
type Server struct {
	addr     string
	resolver UtteranceResolver
	upgrader websocket.Upgrader

	httpServer *http.Server
	mu         sync.Mutex
	started    bool
}

// New creates a bridge bound to addr.
func New(addr string, res UtteranceResolver) *Server {
	return &Server{
		addr:     addr,
		resolver: res,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 5 * time.Second,
			// Local bridge only; the listener should be loopback-bound.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Start serves the bridge until ctx is cancelled. It blocks.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("bridge already started")
	}
	s.started = true

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/utterances", s.handleUtterances)
	mux.HandleFunc("/healthz", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:        s.addr,
		Handler:     mux,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", s.addr).Msg("utterance bridge listening")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleUtterances upgrades the connection and runs the per-session loop.
func (s *Server) handleUtterances(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	session := newSession(conn, s.resolver)
	defer session.close()

	log.Info().Str("session_id", session.id).Str("remote", r.RemoteAddr).Msg("bridge session opened")
	session.run(r.Context())
	log.Info().Str("session_id", session.id).Msg("bridge session closed")
}

// session is one connection's state. Reads happen on one goroutine;
// clarification answers are forwarded to the resolver goroutine through
// a channel so the read loop stays in control of the socket.
type session struct {
	id       string
	conn     *websocket.Conn
	resolver UtteranceResolver

	writeMu sync.Mutex

	clarifyMu sync.Mutex
	clarifyCh chan bool // non-nil while a clarification is pending
}

func newSession(conn *websocket.Conn, res UtteranceResolver) *session {
	return &session{
		id:       uuid.NewString(),
		conn:     conn,
		resolver: res,
	}
}

func (s *session) close() {
	s.conn.Close()
}

// run reads frames until the connection drops. Connection teardown cancels
// the session context, which aborts any in-flight remote resolution.
func (s *session) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	for {
		var frame Frame
		if err := s.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("session_id", s.id).Msg("bridge read failed")
			}
			return
		}

		switch frame.Type {
		case FrameUtterance:
			if frame.Text == "" {
				s.writeFrame(Frame{Type: FrameError, Error: "utterance text is required"})
				continue
			}
			// Resolve on a separate goroutine so clarify_response frames
			// can still be read while the chain waits on the user.
			go s.resolve(ctx, frame)

		case FrameClarifyResponse:
			s.deliverClarifyResponse(frame.Confirmed != nil && *frame.Confirmed)

		default:
			s.writeFrame(Frame{Type: FrameError, Error: fmt.Sprintf("unknown frame type %q", frame.Type)})
		}
	}
}

func (s *session) resolve(ctx context.Context, frame Frame) {
	utt := types.Utterance{
		Text:       frame.Text,
		SessionID:  s.id,
		ReceivedAt: time.Now(),
	}

	res := s.resolver.ResolveWith(ctx, utt, s)

	s.writeFrame(Frame{
		Type:       FrameResolution,
		Text:       frame.Text,
		SessionID:  s.id,
		Intent:     res.Intent,
		Action:     res.Action,
		Parameters: res.Parameters,
		Confidence: res.Confidence,
		Source:     string(res.Source),
	})
}

// Confirm implements resolver.Clarifier over the connection: it sends a
// clarify frame and waits for the matching clarify_response. Timeout and
// connection teardown both count as a decline.
func (s *session) Confirm(ctx context.Context, utterance string, candidate types.Resolution) (bool, error) {
	s.clarifyMu.Lock()
	if s.clarifyCh != nil {
		s.clarifyMu.Unlock()
		return false, fmt.Errorf("clarification already pending")
	}
	ch := make(chan bool, 1)
	s.clarifyCh = ch
	s.clarifyMu.Unlock()

	defer func() {
		s.clarifyMu.Lock()
		s.clarifyCh = nil
		s.clarifyMu.Unlock()
	}()

	err := s.writeFrame(Frame{
		Type:       FrameClarify,
		Text:       utterance,
		SessionID:  s.id,
		Intent:     candidate.Intent,
		Action:     candidate.Action,
		Parameters: candidate.Parameters,
		Confidence: candidate.Confidence,
		Source:     string(candidate.Source),
	})
	if err != nil {
		return false, err
	}

	select {
	case confirmed := <-ch:
		return confirmed, nil
	case <-time.After(clarifyWait):
		return false, fmt.Errorf("clarification timed out")
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (s *session) deliverClarifyResponse(confirmed bool) {
	s.clarifyMu.Lock()
	ch := s.clarifyCh
	s.clarifyMu.Unlock()

	if ch == nil {
		log.Debug().Str("session_id", s.id).Msg("clarify response with no pending clarification")
		return
	}
	select {
	case ch <- confirmed:
	default:
	}
}

func (s *session) writeFrame(frame Frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(frame); err != nil {
		log.Debug().Err(err).Str("session_id", s.id).Msg("bridge write failed")
		return err
	}
	return nil
}
