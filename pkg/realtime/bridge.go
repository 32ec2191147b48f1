// Package realtime subscribes to a customer's private billing channel and
// forwards named events to caller-supplied callbacks.
//
// The transport is the Pusher wire protocol as spoken by Laravel Reverb:
// a websocket handshake, an HTTP call to the broadcasting auth endpoint
// authenticated with the customer token, then a channel subscription.
//
// The bridge is an explicitly owned object: construct one per process,
// Connect it once, and Close it on teardown. There is no automatic
// reconnect; a bridge whose connection drops returns to Disabled and stays
// there until Connect is called again.
//
// The bridge never touches the SDK's cache. Callers wanting cache-coherent
// realtime behavior invalidate manually inside their event callbacks
// (sdk.InvalidateAll and friends); the decoupling is deliberate.
package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Event types delivered on the customer channel.
const (
	EventUsageUpdated         = "usage.updated"
	EventBalanceUpdated       = "balance.updated"
	EventSubscriptionUpdated  = "subscription.updated"
	EventTransactionCompleted = "transaction.completed"
)

const (
	defaultHost        = "localhost"
	defaultPort        = 8080
	protocolVersion    = "7"
	writeWait          = 10 * time.Second
	maxAuthBodyBytes   = 64 * 1024
	handshakeFrameWait = 30 * time.Second
)

// ErrDisabled is returned by Connect when the bridge has no realtime
// configuration or realtime is switched off.
var ErrDisabled = errors.New("realtime: bridge is disabled")

// ErrAlreadyConnected is returned by Connect on a bridge that is already
// connecting or connected.
var ErrAlreadyConnected = errors.New("realtime: bridge already connected")

// State is the bridge lifecycle state.
type State int

const (
	// Disabled: no configuration, realtime switched off, or torn down.
	Disabled State = iota
	// Connecting: channel subscription requested, not yet acknowledged.
	Connecting
	// Connected: channel subscription acknowledged.
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disabled"
	}
}

// Event is one named event from the customer channel. Data is the opaque
// payload mapping.
type Event struct {
	Type string
	Data map[string]any
}

// Handler receives delivered events.
type Handler func(Event)

// EventObserver counts delivered events, e.g. for metrics.
type EventObserver interface {
	ObserveRealtimeEvent(eventType string)
}

// Config holds the realtime transport settings. A zero or disabled Config
// produces a bridge whose methods are no-ops.
type Config struct {
	// Enabled switches the bridge on. Off by default.
	Enabled bool
	// AppKey is the Reverb application key.
	AppKey string
	// Host of the websocket server. Defaults to "localhost".
	Host string
	// Port of the websocket server. Defaults to 8080.
	Port int
	// ForceTLS dials wss instead of ws.
	ForceTLS bool
	// APIURL is the billing API base URL; the channel auth endpoint is its
	// origin plus /broadcasting/auth unless AuthURL overrides it.
	APIURL string
	// AuthURL optionally overrides the derived auth endpoint.
	AuthURL string
	// CustomerID selects the private channel, private-customer.{id}.
	CustomerID string
	// CustomerToken is the bearer credential for channel authorization.
	CustomerToken string
}

func (c Config) disabled() bool {
	return !c.Enabled || c.AppKey == "" || c.CustomerID == ""
}

// Bridge is a single connection to the customer's private channel.
type Bridge struct {
	cfg        Config
	logger     zerolog.Logger
	dialer     *websocket.Dialer
	authClient *http.Client
	observer   EventObserver

	mu          sync.Mutex
	state       State
	conn        *websocket.Conn
	subscribed  bool
	handlers    map[string][]Handler
	anyHandlers []Handler

	writeMu sync.Mutex
}

// Option customizes a Bridge.
type Option func(*Bridge)

// WithLogger sets the bridge logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(b *Bridge) { b.logger = logger }
}

// WithDialer replaces the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(b *Bridge) {
		if d != nil {
			b.dialer = d
		}
	}
}

// WithAuthHTTPClient replaces the HTTP client used for channel authorization.
func WithAuthHTTPClient(hc *http.Client) Option {
	return func(b *Bridge) {
		if hc != nil {
			b.authClient = hc
		}
	}
}

// WithEventObserver wires delivered-event counting.
func WithEventObserver(o EventObserver) Option {
	return func(b *Bridge) { b.observer = o }
}

// New creates a bridge. The bridge starts Disabled; call Connect to
// subscribe.
func New(cfg Config, opts ...Option) *Bridge {
	if cfg.Host == "" {
		cfg.Host = defaultHost
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultPort
	}

	b := &Bridge{
		cfg:        cfg,
		logger:     zerolog.Nop(),
		dialer:     websocket.DefaultDialer,
		authClient: &http.Client{Timeout: 10 * time.Second},
		handlers:   make(map[string][]Handler),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State returns the current lifecycle state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// IsConnected reports whether the channel subscription is acknowledged.
func (b *Bridge) IsConnected() bool {
	return b.State() == Connected
}

// Channel returns the private channel name for the configured customer.
func (b *Bridge) Channel() string {
	return "private-customer." + b.cfg.CustomerID
}

// Listen registers a callback for one named event. No-op on a disabled
// bridge. Listen may be called before or after Connect.
func (b *Bridge) Listen(eventName string, handler Handler) {
	if b.cfg.disabled() || handler == nil {
		return
	}
	b.mu.Lock()
	b.handlers[eventName] = append(b.handlers[eventName], handler)
	b.mu.Unlock()
}

// ListenAll registers a callback for every delivered event.
func (b *Bridge) ListenAll(handler Handler) {
	if b.cfg.disabled() || handler == nil {
		return
	}
	b.mu.Lock()
	b.anyHandlers = append(b.anyHandlers, handler)
	b.mu.Unlock()
}

// Connect dials the websocket server, authorizes the private channel, and
// subscribes. It returns once the subscription is acknowledged; events are
// then delivered from a background read loop until the connection drops or
// Close is called.
func (b *Bridge) Connect(ctx context.Context) error {
	if b.cfg.disabled() {
		return ErrDisabled
	}

	b.mu.Lock()
	if b.state != Disabled {
		b.mu.Unlock()
		return ErrAlreadyConnected
	}
	b.state = Connecting
	b.mu.Unlock()

	conn, err := b.subscribe(ctx)
	if err != nil {
		b.mu.Lock()
		b.state = Disabled
		b.mu.Unlock()
		return err
	}

	b.mu.Lock()
	b.conn = conn
	b.subscribed = true
	b.state = Connected
	b.mu.Unlock()

	b.logger.Debug().Str("channel", b.Channel()).Msg("realtime channel subscribed")
	go b.readLoop(conn)
	return nil
}

func (b *Bridge) subscribe(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := b.dialer.DialContext(ctx, b.websocketURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("realtime: dial: %w", err)
	}

	socketID, err := b.awaitConnectionEstablished(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}

	auth, err := b.authorizeChannel(ctx, socketID)
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := b.writeFrame(conn, frame{
		Event: "pusher:subscribe",
		Data:  mustRaw(map[string]string{"auth": auth, "channel": b.Channel()}),
	}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("realtime: subscribe: %w", err)
	}

	if err := b.awaitSubscriptionSucceeded(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func (b *Bridge) websocketURL() string {
	scheme := "ws"
	if b.cfg.ForceTLS {
		scheme = "wss"
	}
	u := url.URL{
		Scheme:   scheme,
		Host:     b.cfg.Host + ":" + strconv.Itoa(b.cfg.Port),
		Path:     "/app/" + b.cfg.AppKey,
		RawQuery: "protocol=" + protocolVersion + "&client=ascendraa-go&version=1",
	}
	return u.String()
}

func (b *Bridge) awaitConnectionEstablished(conn *websocket.Conn) (string, error) {
	conn.SetReadDeadline(time.Now().Add(handshakeFrameWait))
	defer conn.SetReadDeadline(time.Time{})

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return "", fmt.Errorf("realtime: handshake: %w", err)
		}
		switch f.Event {
		case "pusher:connection_established":
			payload := decodeData(f.Data)
			socketID, _ := payload["socket_id"].(string)
			if socketID == "" {
				return "", errors.New("realtime: handshake: missing socket_id")
			}
			return socketID, nil
		case "pusher:error":
			return "", fmt.Errorf("realtime: handshake rejected: %s", errorMessage(f.Data))
		default:
			// Skip anything else the server sends before establishing.
		}
	}
}

func (b *Bridge) awaitSubscriptionSucceeded(conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(handshakeFrameWait))
	defer conn.SetReadDeadline(time.Time{})

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return fmt.Errorf("realtime: subscription: %w", err)
		}
		switch f.Event {
		case "pusher_internal:subscription_succeeded":
			return nil
		case "pusher:error":
			return fmt.Errorf("realtime: subscription rejected: %s", errorMessage(f.Data))
		case "pusher:ping":
			if err := b.writeFrame(conn, frame{Event: "pusher:pong"}); err != nil {
				return fmt.Errorf("realtime: pong: %w", err)
			}
		default:
		}
	}
}

// authorizeChannel obtains a private-channel signature from the billing
// backend. The request carries the customer token as a bearer header; the
// token never appears in returned errors.
func (b *Bridge) authorizeChannel(ctx context.Context, socketID string) (string, error) {
	endpoint, err := b.authEndpoint()
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(map[string]string{
		"socket_id":    socketID,
		"channel_name": b.Channel(),
	})
	if err != nil {
		return "", fmt.Errorf("realtime: encode auth request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("realtime: build auth request: %w", err)
	}
	request.Header.Set("Authorization", "Bearer "+b.cfg.CustomerToken)
	request.Header.Set("Accept", "application/json")
	request.Header.Set("Content-Type", "application/json")

	response, err := b.authClient.Do(request)
	if err != nil {
		return "", fmt.Errorf("realtime: channel auth request failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("realtime: channel auth rejected with status %d", response.StatusCode)
	}

	var payload struct {
		Auth string `json:"auth"`
	}
	raw, err := io.ReadAll(io.LimitReader(response.Body, maxAuthBodyBytes))
	if err != nil {
		return "", fmt.Errorf("realtime: read auth response: %w", err)
	}
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Auth == "" {
		return "", errors.New("realtime: channel auth response missing auth signature")
	}
	return payload.Auth, nil
}

func (b *Bridge) authEndpoint() (string, error) {
	if b.cfg.AuthURL != "" {
		return b.cfg.AuthURL, nil
	}
	parsed, err := url.Parse(b.cfg.APIURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("realtime: cannot derive auth endpoint from api url %q", b.cfg.APIURL)
	}
	return parsed.Scheme + "://" + parsed.Host + "/broadcasting/auth", nil
}

func (b *Bridge) readLoop(conn *websocket.Conn) {
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			b.mu.Lock()
			if b.conn == conn {
				b.conn = nil
				b.subscribed = false
				b.state = Disabled
			}
			b.mu.Unlock()
			b.logger.Debug().Err(err).Msg("realtime connection closed")
			return
		}

		switch f.Event {
		case "pusher:ping":
			if err := b.writeFrame(conn, frame{Event: "pusher:pong"}); err != nil {
				b.logger.Debug().Err(err).Msg("realtime pong failed")
			}
		case "pusher:error":
			b.logger.Warn().Str("message", errorMessage(f.Data)).Msg("realtime server error")
		default:
			if isProtocolEvent(f.Event) {
				continue
			}
			b.dispatch(Event{Type: f.Event, Data: decodeData(f.Data)})
		}
	}
}

func (b *Bridge) dispatch(event Event) {
	b.mu.Lock()
	handlers := append([]Handler(nil), b.handlers[event.Type]...)
	handlers = append(handlers, b.anyHandlers...)
	b.mu.Unlock()

	if b.observer != nil {
		b.observer.ObserveRealtimeEvent(event.Type)
	}
	for _, handler := range handlers {
		handler(event)
	}
}

// LeaveChannel unsubscribes from the private channel and closes the
// websocket. The bridge subscribes to a single channel, so an unsubscribed
// connection has nothing left to deliver; the bridge returns to Disabled
// and Connect may be called again. Idempotent; no-op when not subscribed.
func (b *Bridge) LeaveChannel() {
	b.mu.Lock()
	if !b.subscribed {
		b.mu.Unlock()
		return
	}
	conn := b.conn
	b.conn = nil
	b.subscribed = false
	b.state = Disabled
	b.mu.Unlock()

	if conn == nil {
		return
	}
	if err := b.writeFrame(conn, frame{
		Event: "pusher:unsubscribe",
		Data:  mustRaw(map[string]string{"channel": b.Channel()}),
	}); err != nil {
		b.logger.Debug().Err(err).Msg("realtime unsubscribe failed")
	}
	conn.Close()
}

// Close tears the bridge down. Idempotent. The bridge returns to Disabled
// and may be connected again later.
func (b *Bridge) Close() error {
	b.mu.Lock()
	conn := b.conn
	b.conn = nil
	b.subscribed = false
	b.state = Disabled
	b.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (b *Bridge) writeFrame(conn *websocket.Conn, f frame) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(f)
}

// frame is the Pusher protocol envelope. Data may be a JSON object or a
// string containing JSON, depending on the server.
type frame struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func isProtocolEvent(event string) bool {
	return strings.HasPrefix(event, "pusher:") || strings.HasPrefix(event, "pusher_internal:")
}

func decodeData(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err == nil {
		return payload
	}

	// Pusher frequently double-encodes: data is a string holding JSON.
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if err := json.Unmarshal([]byte(text), &payload); err == nil {
			return payload
		}
	}
	return nil
}

func errorMessage(raw json.RawMessage) string {
	payload := decodeData(raw)
	if message, ok := payload["message"].(string); ok && message != "" {
		return message
	}
	return string(raw)
}

func mustRaw(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}
