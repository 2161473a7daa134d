// Package pusherws implements transport.Socket over the Pusher Channels
// websocket protocol (version 7) using gorilla/websocket.
package pusherws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/crystaldolphin/pusherbridge/internal/transport"
)

const (
	protocolVersion = 7
	clientName      = "pusherbridge-go"
	clientVersion   = "0.1.0"

	defaultCluster         = "mt1"
	defaultActivityTimeout = 120 * time.Second
	defaultPongTimeout     = 30 * time.Second
	defaultReconnectDelay  = 5 * time.Second
	writeTimeout           = 10 * time.Second
)

var errNotConnected = errors.New("pusherws: not connected")

// ProtocolError is a pusher:error received from the server.
type ProtocolError struct {
	Code    int
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("pusher error %d: %s", e.Code, e.Message)
}

// Fatal reports whether the server asked the client not to reconnect.
func (e *ProtocolError) Fatal() bool { return e.Code >= 4000 && e.Code < 4100 }

// Immediate reports whether the client should reconnect without delay.
func (e *ProtocolError) Immediate() bool { return e.Code >= 4200 && e.Code < 4300 }

// Socket is a Pusher websocket connection. Create it with New, hand it to
// the bridge, then call Run.
type Socket struct {
	appKey     string
	opts       transport.Options
	url        string
	log        *slog.Logger
	dialer     *websocket.Dialer
	httpClient *http.Client
	life       transport.Lifecycle

	mu       sync.Mutex
	conn     *websocket.Conn
	socketID string
	channels map[string]*Channel

	writeMu sync.Mutex
}

// New creates a Socket. Missing options fall back to Pusher defaults.
func New(appKey string, opts transport.Options, log *slog.Logger) *Socket {
	if log == nil {
		log = slog.Default()
	}
	if opts.ActivityTimeout <= 0 {
		opts.ActivityTimeout = defaultActivityTimeout
	}
	if opts.PongTimeout <= 0 {
		opts.PongTimeout = defaultPongTimeout
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}
	return &Socket{
		appKey:     appKey,
		opts:       opts,
		url:        buildURL(appKey, opts),
		log:        log,
		dialer:     websocket.DefaultDialer,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		channels:   make(map[string]*Channel),
	}
}

// Factory returns a transport.Factory creating pusherws sockets.
func Factory(log *slog.Logger) transport.Factory {
	return func(appKey string, opts transport.Options) (transport.Socket, error) {
		if appKey == "" {
			return nil, fmt.Errorf("pusherws: app key not configured")
		}
		return New(appKey, opts, log), nil
	}
}

func buildURL(appKey string, o transport.Options) string {
	scheme, port := "ws", 80
	if o.UseTLS {
		scheme, port = "wss", 443
	}
	if o.Port != 0 {
		port = o.Port
	}
	host := o.Host
	if host == "" {
		cluster := o.Cluster
		if cluster == "" {
			cluster = defaultCluster
		}
		host = "ws-" + cluster + ".pusher.com"
	}
	q := url.Values{}
	q.Set("protocol", strconv.Itoa(protocolVersion))
	q.Set("client", clientName)
	q.Set("version", clientVersion)
	q.Set("flash", "false")
	u := url.URL{
		Scheme:   scheme,
		Host:     net.JoinHostPort(host, strconv.Itoa(port)),
		Path:     "/app/" + appKey,
		RawQuery: q.Encode(),
	}
	return u.String()
}

func (s *Socket) URL() string                      { return s.url }
func (s *Socket) State() transport.State           { return s.life.State() }
func (s *Socket) Connection() transport.Connection { return &s.life }

// SocketID returns the id assigned by the server, or "" when not connected.
func (s *Socket) SocketID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.socketID
}

// Run connects and keeps the connection alive until ctx is cancelled or the
// server rejects the client with a 4000-4099 error.
func (s *Socket) Run(ctx context.Context) error {
	for {
		s.life.Transition(transport.StateConnecting)
		err := s.connectOnce(ctx)
		if ctx.Err() != nil {
			s.life.Transition(transport.StateDisconnected)
			return ctx.Err()
		}

		delay := s.opts.ReconnectDelay
		var perr *ProtocolError
		if errors.As(err, &perr) {
			if perr.Fatal() {
				s.log.Error("pusherws: connection refused by server", "code", perr.Code, "message", perr.Message)
				s.life.Transition(transport.StateFailed)
				return err
			}
			if perr.Immediate() {
				delay = 0
			}
		}

		s.life.Transition(transport.StateUnavailable)
		s.log.Warn("pusherws: connection lost, reconnecting", "err", err, "delay", delay)
		select {
		case <-ctx.Done():
			s.life.Transition(transport.StateDisconnected)
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (s *Socket) connectOnce(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.url, err)
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	ka := newKeepalive(s, conn)
	defer func() {
		ka.stop()
		stop()
		conn.Close()
		s.mu.Lock()
		s.conn = nil
		s.socketID = ""
		s.mu.Unlock()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		ka.touch()
		if err := s.handle(raw, ka); err != nil {
			return err
		}
	}
}

type frame struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	UserID  string          `json:"user_id,omitempty"`
}

func (s *Socket) handle(raw []byte, ka *keepalive) error {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		s.log.Debug("pusherws: dropping malformed frame", "err", err)
		return nil
	}

	switch f.Event {
	case "pusher:connection_established":
		var est struct {
			SocketID        string `json:"socket_id"`
			ActivityTimeout int    `json:"activity_timeout"`
		}
		if err := decodeInto(f.Data, &est); err != nil {
			return fmt.Errorf("decode connection_established: %w", err)
		}
		if est.ActivityTimeout > 0 {
			ka.setActivityTimeout(time.Duration(est.ActivityTimeout) * time.Second)
		}
		s.established(est.SocketID)
	case "pusher:error":
		var pe struct {
			Code    *int   `json:"code"`
			Message string `json:"message"`
		}
		_ = decodeInto(f.Data, &pe)
		if pe.Code == nil || *pe.Code < 4000 || *pe.Code >= 4300 {
			s.log.Warn("pusherws: server error", "code", pe.Code, "message", pe.Message)
			return nil
		}
		return &ProtocolError{Code: *pe.Code, Message: pe.Message}
	case "pusher:ping":
		if err := s.send("pusher:pong", map[string]any{}); err != nil {
			s.log.Debug("pusherws: pong failed", "err", err)
		}
	case "pusher:pong":
	case "pusher_internal:subscription_succeeded":
		if ch := s.lookup(f.Channel); ch != nil {
			ch.setSubscribed(true)
			ch.Emit("pusher:subscription_succeeded", decodeData(f.Data))
		}
	case "pusher_internal:member_added", "pusher_internal:member_removed":
		if ch := s.lookup(f.Channel); ch != nil {
			ch.Emit("pusher:"+f.Event[len("pusher_internal:"):], decodeData(f.Data))
		}
	default:
		if f.Channel == "" {
			s.log.Debug("pusherws: unhandled event", "event", f.Event)
			return nil
		}
		if ch := s.lookup(f.Channel); ch != nil {
			ch.Emit(f.Event, decodeData(f.Data))
		}
	}
	return nil
}

// established records the socket id, re-sends subscriptions for every known
// channel, then reports connected. Channels created from connected callbacks
// subscribe themselves.
func (s *Socket) established(socketID string) {
	s.mu.Lock()
	s.socketID = socketID
	pending := make([]*Channel, 0, len(s.channels))
	for _, ch := range s.channels {
		pending = append(pending, ch)
	}
	s.mu.Unlock()

	sort.Slice(pending, func(i, j int) bool { return pending[i].name < pending[j].name })
	for _, ch := range pending {
		ch.setSubscribed(false)
		s.sendSubscribe(ch.name)
	}
	s.log.Info("pusherws: connected", "socket_id", socketID)
	s.life.Transition(transport.StateConnected)
}

func (s *Socket) lookup(name string) *Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channels[name]
}

func (s *Socket) Channel(name string) transport.Channel {
	if ch := s.lookup(name); ch != nil {
		return ch
	}
	return nil
}

func (s *Socket) Subscribe(name string) transport.Channel {
	s.mu.Lock()
	ch, ok := s.channels[name]
	if ok {
		s.mu.Unlock()
		return ch
	}
	ch = &Channel{name: name, s: s}
	s.channels[name] = ch
	connected := s.socketID != ""
	s.mu.Unlock()

	if connected {
		s.sendSubscribe(name)
	}
	return ch
}

func (s *Socket) Unsubscribe(name string) {
	s.mu.Lock()
	ch, ok := s.channels[name]
	delete(s.channels, name)
	connected := s.socketID != ""
	s.mu.Unlock()
	if !ok {
		return
	}
	ch.Clear()
	if connected {
		if err := s.send("pusher:unsubscribe", map[string]string{"channel": name}); err != nil {
			s.log.Warn("pusherws: unsubscribe failed", "channel", name, "err", err)
		}
	}
}

func (s *Socket) sendSubscribe(name string) {
	data := map[string]string{"channel": name}
	if isPrivate(name) {
		auth, err := s.authorize(name)
		if err != nil {
			s.log.Error("pusherws: channel authorization failed", "channel", name, "err", err)
			return
		}
		data["auth"] = auth.Auth
		if auth.ChannelData != "" {
			data["channel_data"] = auth.ChannelData
		}
	}
	if err := s.send("pusher:subscribe", data); err != nil {
		s.log.Warn("pusherws: subscribe failed", "channel", name, "err", err)
	}
}

func (s *Socket) send(event string, data any) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return errNotConnected
	}
	return s.write(conn, map[string]any{"event": event, "data": data})
}

func (s *Socket) write(conn *websocket.Conn, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// decodeData unwraps Pusher's string-encoded data. JSON inside the string is
// decoded; anything else is returned as the plain string.
func decodeData(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		var v any
		if err := json.Unmarshal([]byte(str), &v); err == nil {
			return v
		}
		return str
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

func decodeInto(raw json.RawMessage, v any) error {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		raw = json.RawMessage(str)
	}
	return json.Unmarshal(raw, v)
}
