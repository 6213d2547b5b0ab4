package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/normanking/jarvis/pkg/types"
)

// newTestResolver points a resolver at a fake Gemini endpoint.
func newTestResolver(t *testing.T, handler http.HandlerFunc) *Resolver {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return New(Config{
		Endpoint: srv.URL,
		Model:    "gemini-1.5-flash",
		APIKey:   "test-key",
		Timeout:  2 * time.Second,
	})
}

// geminiReply wraps model text in the Gemini response envelope.
func geminiReply(text string) string {
	return fmt.Sprintf(`{"candidates":[{"content":{"parts":[{"text":%q}],"role":"model"},"finishReason":"STOP"}]}`, text)
}

func TestResolve(t *testing.T) {
	t.Run("parses structured reply", func(t *testing.T) {
		r := newTestResolver(t, func(w http.ResponseWriter, req *http.Request) {
			if got := req.Header.Get("x-goog-api-key"); got != "test-key" {
				t.Errorf("expected api key header, got %q", got)
			}
			fmt.Fprint(w, geminiReply(`{"intent":"app_launch","action":"open_app","parameters":{"app":"chrome"},"confidence":0.92}`))
		})

		res, err := r.Resolve(context.Background(), "open chrome")
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if res.Intent != types.IntentAppLaunch {
			t.Errorf("expected intent app_launch, got %q", res.Intent)
		}
		if res.Source != types.SourceRemote {
			t.Errorf("expected source remote, got %q", res.Source)
		}
		if res.Confidence != 0.92 {
			t.Errorf("expected confidence 0.92, got %v", res.Confidence)
		}
	})

	t.Run("strips code fence", func(t *testing.T) {
		r := newTestResolver(t, func(w http.ResponseWriter, req *http.Request) {
			fmt.Fprint(w, geminiReply("```json\n{\"intent\":\"system_time\",\"action\":\"tell_time\",\"confidence\":0.8}\n```"))
		})

		res, err := r.Resolve(context.Background(), "what time is it")
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if res.Action != "tell_time" {
			t.Errorf("expected action tell_time, got %q", res.Action)
		}
	})

	t.Run("clamps out of range confidence", func(t *testing.T) {
		r := newTestResolver(t, func(w http.ResponseWriter, req *http.Request) {
			fmt.Fprint(w, geminiReply(`{"intent":"help","action":"show_help","confidence":1.7}`))
		})

		res, err := r.Resolve(context.Background(), "help")
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if res.Confidence != 1.0 {
			t.Errorf("expected clamped confidence 1.0, got %v", res.Confidence)
		}
	})

	t.Run("server error maps to unavailable", func(t *testing.T) {
		r := newTestResolver(t, func(w http.ResponseWriter, req *http.Request) {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		})

		_, err := r.Resolve(context.Background(), "open chrome")
		if !errors.Is(err, ErrUnavailable) {
			t.Errorf("expected ErrUnavailable, got %v", err)
		}
	})

	t.Run("timeout maps to unavailable", func(t *testing.T) {
		r := newTestResolver(t, func(w http.ResponseWriter, req *http.Request) {
			time.Sleep(200 * time.Millisecond)
			fmt.Fprint(w, geminiReply(`{"intent":"help","action":"show_help","confidence":0.9}`))
		})
		r.config.Timeout = 50 * time.Millisecond
		r.client.Timeout = 50 * time.Millisecond

		_, err := r.Resolve(context.Background(), "help")
		if !errors.Is(err, ErrUnavailable) {
			t.Errorf("expected ErrUnavailable, got %v", err)
		}
	})

	t.Run("cancellation maps to unavailable", func(t *testing.T) {
		r := newTestResolver(t, func(w http.ResponseWriter, req *http.Request) {
			time.Sleep(500 * time.Millisecond)
		})

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()

		_, err := r.Resolve(ctx, "open chrome")
		if !errors.Is(err, ErrUnavailable) {
			t.Errorf("expected ErrUnavailable, got %v", err)
		}
	})

	t.Run("non json reply is malformed", func(t *testing.T) {
		r := newTestResolver(t, func(w http.ResponseWriter, req *http.Request) {
			fmt.Fprint(w, geminiReply("Sure! I'd be happy to open Chrome for you."))
		})

		_, err := r.Resolve(context.Background(), "open chrome")
		if !errors.Is(err, ErrMalformedResponse) {
			t.Errorf("expected ErrMalformedResponse, got %v", err)
		}
	})

	t.Run("empty candidates is malformed", func(t *testing.T) {
		r := newTestResolver(t, func(w http.ResponseWriter, req *http.Request) {
			fmt.Fprint(w, `{"candidates":[]}`)
		})

		_, err := r.Resolve(context.Background(), "open chrome")
		if !errors.Is(err, ErrMalformedResponse) {
			t.Errorf("expected ErrMalformedResponse, got %v", err)
		}
	})
}

func TestParseIntentPayload(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"valid", `{"intent":"exit","action":"exit_assistant","confidence":0.9}`, false},
		{"unknown intent needs no action", `{"intent":"unknown","action":"","confidence":0}`, false},
		{"missing intent", `{"action":"open_app","confidence":0.9}`, true},
		{"missing confidence", `{"intent":"help","action":"show_help"}`, true},
		{"out of vocabulary intent", `{"intent":"make_coffee","action":"brew","confidence":0.9}`, true},
		{"missing action for known intent", `{"intent":"help","confidence":0.9}`, true},
		{"truncated json", `{"intent":"help","action":"sh`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseIntentPayload(tt.raw)
			if tt.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if tt.wantErr && !errors.Is(err, ErrMalformedResponse) {
				t.Errorf("expected ErrMalformedResponse, got %v", err)
			}
		})
	}
}
