// Package northbound owns the session with the authoritative tracking
// backend: login, stream subscription, credential rotation, teardown.
package northbound

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"colorum/internal/metrics"
)

// State of the northbound session.
type State int32

const (
	StateDisconnected State = iota
	StateAuthenticating
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateAuthenticating:
		return "authenticating"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Credentials for the northbound login exchange.
type Credentials struct {
	Username string
	Password string
}

// ErrAlreadyConnected is returned by Connect when a stream is already open;
// use Rotate to replace credentials on a live session.
var ErrAlreadyConnected = errors.New("northbound session already connected")

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Session manages the northbound connection lifecycle. Connect, Rotate and
// Disconnect are mutually exclusive: a rotation requested while another
// operation is in flight waits for it. One goroutine reads the stream and
// dispatches events by name, so inbound pushes are processed sequentially.
type Session struct {
	baseURL string
	httpc   *http.Client
	dialer  *websocket.Dialer
	logger  zerolog.Logger

	// handlers must be registered before Connect; not guarded.
	handlers map[string]Handler

	mu           sync.Mutex
	conn         *websocket.Conn
	readerDone   chan struct{}
	accessToken  string
	refreshToken string

	state int32
}

const writeTimeout = 5 * time.Second

// NewSession creates a session for the northbound service at baseURL
// (http/https). loginTimeout bounds the login exchange and the websocket
// handshake.
func NewSession(baseURL string, loginTimeout time.Duration, logger zerolog.Logger) *Session {
	return &Session{
		baseURL:  strings.TrimRight(baseURL, "/"),
		httpc:    &http.Client{Timeout: loginTimeout},
		dialer:   &websocket.Dialer{HandshakeTimeout: loginTimeout},
		logger:   logger.With().Str("component", "northbound").Logger(),
		handlers: map[string]Handler{},
	}
}

// Handle registers the handler for a named event channel. Must be called
// before Connect.
func (s *Session) Handle(event string, h Handler) {
	s.handlers[event] = h
}

// State reports the current session state.
func (s *Session) State() State {
	return State(atomic.LoadInt32(&s.state))
}

func (s *Session) setState(st State) {
	atomic.StoreInt32(&s.state, int32(st))
}

// Connect logs in with creds and opens the event stream. On login failure
// the session stays Disconnected and stored tokens are untouched.
func (s *Session) Connect(ctx context.Context, creds Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectLocked(ctx, creds)
}

func (s *Session) connectLocked(ctx context.Context, creds Credentials) error {
	if s.conn != nil {
		return ErrAlreadyConnected
	}
	s.setState(StateAuthenticating)
	tok, err := s.login(ctx, creds)
	if err != nil {
		s.setState(StateDisconnected)
		metrics.SessionOps.WithLabelValues("connect", "login_failed").Inc()
		return err
	}
	conn, err := s.dial(ctx, tok.AccessToken)
	if err != nil {
		s.setState(StateDisconnected)
		metrics.SessionOps.WithLabelValues("connect", "dial_failed").Inc()
		return err
	}
	done := make(chan struct{})
	go s.readLoop(conn, done)

	if err := writeFrame(conn, Frame{Event: SignalStartStream}); err != nil {
		_ = conn.Close()
		<-done
		s.setState(StateDisconnected)
		metrics.SessionOps.WithLabelValues("connect", "start_failed").Inc()
		return fmt.Errorf("emit start-of-stream: %w", err)
	}

	s.conn = conn
	s.readerDone = done
	s.accessToken = tok.AccessToken
	s.refreshToken = tok.RefreshToken
	s.setState(StateConnected)
	metrics.SessionOps.WithLabelValues("connect", "ok").Inc()
	s.logger.Info().Msg("northbound stream connected")
	return nil
}

// Rotate tears down the current stream, waits for the reader to confirm
// teardown, then reconnects with the new credentials. The wait is a
// handshake, not a timer: reconnect never races a still-draining stream.
func (s *Session) Rotate(ctx context.Context, creds Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.disconnectLocked(ctx); err != nil {
		metrics.SessionOps.WithLabelValues("rotate", "teardown_failed").Inc()
		return fmt.Errorf("teardown before rotate: %w", err)
	}
	if err := s.connectLocked(ctx, creds); err != nil {
		return err
	}
	metrics.SessionOps.WithLabelValues("rotate", "ok").Inc()
	s.logger.Info().Msg("northbound credentials rotated")
	return nil
}

// Disconnect emits the stop-of-stream signal best effort and closes the
// connection. Calling it while already disconnected is a no-op.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnectLocked(ctx)
}

func (s *Session) disconnectLocked(ctx context.Context) error {
	if s.conn == nil {
		s.setState(StateDisconnected)
		return nil
	}
	// Best effort: the stop signal may fail on a dead connection.
	if err := writeFrame(s.conn, Frame{Event: SignalStopStream}); err != nil {
		s.logger.Warn().Err(err).Msg("stop-of-stream signal not delivered")
	}
	_ = s.conn.Close()
	select {
	case <-s.readerDone:
	case <-ctx.Done():
		s.conn = nil
		s.readerDone = nil
		s.setState(StateDisconnected)
		return ctx.Err()
	}
	s.conn = nil
	s.readerDone = nil
	s.setState(StateDisconnected)
	metrics.SessionOps.WithLabelValues("disconnect", "ok").Inc()
	s.logger.Info().Msg("northbound stream disconnected")
	return nil
}

func (s *Session) login(ctx context.Context, creds Credentials) (tokenResponse, error) {
	var tok tokenResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/login/", nil)
	if err != nil {
		return tok, err
	}
	req.SetBasicAuth(creds.Username, creds.Password)
	resp, err := s.httpc.Do(req)
	if err != nil {
		return tok, fmt.Errorf("northbound login: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return tok, fmt.Errorf("northbound login: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return tok, fmt.Errorf("northbound login response: %w", err)
	}
	if tok.AccessToken == "" {
		return tok, errors.New("northbound login response missing access_token")
	}
	return tok, nil
}

func (s *Session) dial(ctx context.Context, accessToken string) (*websocket.Conn, error) {
	wsURL := "ws" + strings.TrimPrefix(s.baseURL, "http") + "/stream"
	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer "+accessToken)
	conn, resp, err := s.dialer.DialContext(ctx, wsURL, hdr)
	if err != nil {
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		return nil, fmt.Errorf("northbound subscribe: %w", err)
	}
	return conn, nil
}

// readLoop drains the stream and dispatches events until the connection
// closes. Closing done acknowledges teardown to Disconnect/Rotate.
func (s *Session) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			// Only an unexpected drop flips state here; deliberate
			// teardown has already moved it off Connected.
			if atomic.CompareAndSwapInt32(&s.state, int32(StateConnected), int32(StateDisconnected)) {
				s.logger.Warn().Err(err).Msg("northbound stream closed")
			}
			return
		}
		h, ok := s.handlers[f.Event]
		if !ok {
			s.logger.Debug().Str("event", f.Event).Msg("unhandled northbound event")
			continue
		}
		h(f.Data)
	}
}

func writeFrame(conn *websocket.Conn, f Frame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(f)
}
