package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/roach88/jmap/internal/transport"
)

// SessionURL is where ScriptedTransport serves the session document.
const SessionURL = "https://jmap.example.com/.well-known/jmap"

// Handler answers one exchange.
type Handler func(req *transport.Request) (*transport.Response, error)

// ScriptedTransport is an in-process JMAP server implementing
// transport.Transport.
//
// GET SessionURL returns the session document. Routes registered with
// Handle match on method and exact URL. Any other POST is an API request:
// it is answered by the next queued reply, or echoed when the queue is
// empty. Every request is recorded.
//
// Thread-safety: all methods are safe for concurrent use.
type ScriptedTransport struct {
	mu           sync.Mutex
	session      []byte
	sessionErr   int
	sessionState string
	routes       map[string]Handler
	replies      []Handler
	requests     []transport.Request
}

// NewScriptedTransport creates a transport serving the fixture session for opts.
func NewScriptedTransport(opts SessionOptions) *ScriptedTransport {
	state := opts.State
	if state == "" {
		state = "s1"
	}
	return &ScriptedTransport{
		session:      SessionDocument(opts),
		sessionState: state,
		routes:       make(map[string]Handler),
	}
}

// SetSession replaces the session document and the sessionState echoed
// responses report.
func (s *ScriptedTransport) SetSession(opts SessionOptions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = SessionDocument(opts)
	s.sessionState = opts.State
	if s.sessionState == "" {
		s.sessionState = "s1"
	}
	s.sessionErr = 0
}

// FailSession makes session fetches return status.
func (s *ScriptedTransport) FailSession(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionErr = status
}

// SetSessionState changes the sessionState of echoed responses without
// changing the session document.
func (s *ScriptedTransport) SetSessionState(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionState = state
}

// Handle registers h for method and url.
func (s *ScriptedTransport) Handle(method, url string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[method+" "+url] = h
}

// Reply queues a canned API response.
func (s *ScriptedTransport) Reply(status int, body string) {
	s.ReplyWith(func(*transport.Request) (*transport.Response, error) {
		return &transport.Response{StatusCode: status, Body: []byte(body)}, nil
	})
}

// ReplyWith queues a handler for the next API request.
func (s *ScriptedTransport) ReplyWith(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, h)
}

// Requests returns every request received, in order.
func (s *ScriptedTransport) Requests() []transport.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]transport.Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// APIBodies returns the bodies of API requests, in order.
func (s *ScriptedTransport) APIBodies() [][]byte {
	var out [][]byte
	for _, r := range s.Requests() {
		if r.Method == http.MethodPost && r.URL != SessionURL {
			if _, routed := s.route(r.Method, r.URL); !routed {
				out = append(out, r.Body)
			}
		}
	}
	return out
}

func (s *ScriptedTransport) route(method, url string) (Handler, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.routes[method+" "+url]
	return h, ok
}

// Exchange implements transport.Transport.
func (s *ScriptedTransport) Exchange(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.requests = append(s.requests, *req)
	s.mu.Unlock()

	if h, ok := s.route(req.Method, req.URL); ok {
		return h(req)
	}

	if req.Method == http.MethodGet && req.URL == SessionURL {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.sessionErr != 0 {
			return &transport.Response{StatusCode: s.sessionErr}, nil
		}
		return &transport.Response{StatusCode: http.StatusOK, Body: s.session}, nil
	}

	if req.Method != http.MethodPost {
		return &transport.Response{StatusCode: http.StatusNotFound}, nil
	}

	s.mu.Lock()
	var h Handler
	if len(s.replies) > 0 {
		h = s.replies[0]
		s.replies = s.replies[1:]
	}
	state := s.sessionState
	s.mu.Unlock()

	if h != nil {
		return h(req)
	}
	body, err := EchoResponse(req.Body, state)
	if err != nil {
		return &transport.Response{StatusCode: http.StatusBadRequest, Body: []byte(err.Error())}, nil
	}
	return &transport.Response{StatusCode: http.StatusOK, Body: body}, nil
}

// EchoResponse answers a batch request by returning every call's arguments
// as its own result, in request order.
func EchoResponse(request []byte, sessionState string) ([]byte, error) {
	var req struct {
		MethodCalls []json.RawMessage `json:"methodCalls"`
	}
	if err := json.Unmarshal(request, &req); err != nil {
		return nil, fmt.Errorf("echo: %w", err)
	}
	resp := map[string]any{
		"methodResponses": req.MethodCalls,
		"sessionState":    sessionState,
	}
	if req.MethodCalls == nil {
		resp["methodResponses"] = []json.RawMessage{}
	}
	return json.Marshal(resp)
}

// Response renders a batch response from invocations of the form
// [name, result, callID].
func Response(sessionState string, invocations ...[3]any) string {
	resp := map[string]any{
		"methodResponses": invocations,
		"sessionState":    sessionState,
	}
	if invocations == nil {
		resp["methodResponses"] = [][3]any{}
	}
	data, err := json.Marshal(resp)
	if err != nil {
		panic(err)
	}
	return string(data)
}
