package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"portalchat/internal/app"
	"portalchat/internal/metrics"
	"portalchat/internal/model"
)

const (
	relayTimeout     = 5 * time.Second
	assistantTimeout = 60 * time.Second
)

// Relay forwards locally broadcast frames to other instances.
type Relay interface {
	Publish(ctx context.Context, frame []byte) error
}

// Responder produces an assistant reply for a session.
type Responder interface {
	Respond(ctx context.Context, sessionID string) (string, error)
}

type Options struct {
	SendBuffer      int
	MaxMessageBytes int64
	WriteWait       time.Duration
	PongWait        time.Duration
	// AllowedOrigins lists browser origins that may connect. Requests without
	// an Origin header are always accepted; "*" accepts everything.
	AllowedOrigins []string
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = 64 << 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	return o
}

// Server is the WebSocket endpoint. Inbound frames are persisted through the
// conversation store and fanned out through the hub.
type Server struct {
	store    app.ConversationStore
	hub      *Hub
	opts     Options
	upgrader websocket.Upgrader

	relay     Relay
	responder Responder

	metrics *metrics.Metrics
	log     zerolog.Logger

	// closing is set by Shutdown; no reply goroutine starts after it.
	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

func NewServer(store app.ConversationStore, hub *Hub, opts Options, m *metrics.Metrics, log zerolog.Logger) *Server {
	opts = opts.withDefaults()
	s := &Server{
		store:   store,
		hub:     hub,
		opts:    opts,
		metrics: m,
		log:     log,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}
	return s
}

func (s *Server) SetRelay(relay Relay) {
	s.relay = relay
}

func (s *Server) SetResponder(responder Responder) {
	s.responder = responder
}

func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	id := uuid.NewString()
	client := newClient(id, conn, s.opts.SendBuffer, s.log.With().Str("client_id", id).Logger())
	s.hub.register(client)
	client.log.Info().Str("remote_addr", r.RemoteAddr).Msg("client connected")

	pingPeriod := s.opts.PongWait * 9 / 10
	go client.writePump(s.opts.WriteWait, pingPeriod)

	s.readPump(r.Context(), client)
}

func (s *Server) readPump(ctx context.Context, c *Client) {
	defer func() {
		s.hub.unregister(c)
		c.log.Info().Msg("client disconnected")
	}()

	c.conn.SetReadLimit(s.opts.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.log.Debug().Err(err).Msg("read frame failed")
			}
			return
		}
		s.handleFrame(ctx, c, raw)
	}
}

// handleFrame processes one inbound frame. Bad input is answered with an error
// frame to the sender and never ends the connection.
func (s *Server) handleFrame(ctx context.Context, c *Client, raw []byte) {
	env, ok, err := parseEnvelope(raw)
	if err != nil {
		c.log.Debug().Err(err).Msg("malformed frame")
		s.metrics.RecordFrame("unknown", "malformed")
		s.replyError(c, errProcessFailed)
		return
	}
	if !ok {
		s.metrics.RecordFrame(frameLabel(env.Type), "invalid")
		s.replyError(c, errInvalidFormat)
		return
	}

	switch env.Type {
	case TypeMessage:
		err = s.handleMessage(ctx, c, env)
	case TypeTyping:
		err = s.handleTyping(c, env)
	default:
		c.log.Info().Str("type", env.Type).Str("session_id", env.SessionID).Msg("ignoring unknown frame type")
		s.metrics.RecordFrame("other", "ignored")
		return
	}
	if err != nil {
		c.log.Error().Err(err).Str("type", env.Type).Str("session_id", env.SessionID).Msg("handle frame failed")
		s.metrics.RecordFrame(env.Type, "error")
		s.replyError(c, errProcessFailed)
	}
}

func (s *Server) handleMessage(ctx context.Context, c *Client, env Envelope) error {
	var payload messagePayload
	if hasPayload(env.Payload) {
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			s.metrics.RecordFrame(TypeMessage, "invalid")
			s.replyError(c, errInvalidPayload)
			return nil
		}
	}
	if strings.TrimSpace(payload.Content) == "" || strings.TrimSpace(payload.Role) == "" {
		s.metrics.RecordFrame(TypeMessage, "invalid")
		s.replyError(c, errInvalidPayload)
		return nil
	}

	stored, err := s.store.AddMessage(ctx, model.Message{
		SessionID: env.SessionID,
		Role:      payload.Role,
		Content:   payload.Content,
	})
	if err != nil {
		return fmt.Errorf("add message failed: %w", err)
	}
	if err := s.broadcast(TypeMessage, Event{Type: TypeMessage, Payload: stored, SessionID: stored.SessionID}, nil); err != nil {
		return err
	}
	s.metrics.RecordFrame(TypeMessage, "ok")

	if s.responder != nil && stored.Role == model.RoleUser && s.trackReply() {
		go func() {
			defer s.wg.Done()
			s.respond(stored.SessionID)
		}()
	}
	return nil
}

// trackReply registers one pending assistant reply unless shutdown has begun.
func (s *Server) trackReply() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Server) handleTyping(c *Client, env Envelope) error {
	var payload TypingPayload
	if hasPayload(env.Payload) {
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return fmt.Errorf("decode typing payload failed: %w", err)
		}
	}
	if err := s.broadcast(TypeTyping, Event{Type: TypeTyping, Payload: payload, SessionID: env.SessionID}, c); err != nil {
		return err
	}
	s.metrics.RecordFrame(TypeTyping, "ok")
	return nil
}

func (s *Server) respond(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), assistantTimeout)
	defer cancel()

	log := s.log.With().Str("session_id", sessionID).Logger()
	reply, err := s.responder.Respond(ctx, sessionID)
	if err != nil {
		log.Error().Err(err).Msg("assistant reply failed")
		return
	}
	stored, err := s.store.AddMessage(ctx, model.Message{
		SessionID: sessionID,
		Role:      model.RoleAssistant,
		Content:   reply,
	})
	if err != nil {
		log.Error().Err(err).Msg("store assistant reply failed")
		return
	}
	if err := s.broadcast(TypeMessage, Event{Type: TypeMessage, Payload: stored, SessionID: sessionID}, nil); err != nil {
		log.Error().Err(err).Msg("broadcast assistant reply failed")
	}
}

func (s *Server) broadcast(eventType string, event Event, except *Client) error {
	frame, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event failed: %w", eventType, err)
	}
	s.hub.Broadcast(frame, except)
	s.metrics.RecordBroadcast(eventType)

	if s.relay != nil {
		ctx, cancel := context.WithTimeout(context.Background(), relayTimeout)
		defer cancel()
		err := s.relay.Publish(ctx, frame)
		s.metrics.RecordRelayEvent("out", err)
		if err != nil {
			s.log.Warn().Err(err).Str("type", eventType).Msg("relay publish failed")
		}
	}
	return nil
}

// DeliverRelayed fans a frame published by another instance out to every
// local client.
func (s *Server) DeliverRelayed(frame []byte) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(frame, &probe); err != nil {
		s.log.Warn().Err(err).Msg("discarding malformed relayed frame")
		return
	}
	s.hub.Broadcast(frame, nil)
	s.metrics.RecordBroadcast(probe.Type)
}

func (s *Server) replyError(c *Client, message string) {
	frame, err := json.Marshal(ErrorFrame{Error: message})
	if err != nil {
		return
	}
	if !c.enqueue(frame) {
		c.log.Debug().Msg("error frame not queued")
	}
}

// Shutdown disconnects every client and waits for pending assistant replies.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.hub.closeAll()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("realtime shutdown failed: %w", ctx.Err())
	}
}

func frameLabel(frameType string) string {
	switch frameType {
	case TypeMessage, TypeTyping:
		return frameType
	case "":
		return "unknown"
	default:
		return "other"
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	allowAll := false
	for _, origin := range allowed {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			allowAll = true
		}
		set[strings.ToLower(origin)] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowAll {
			return true
		}
		_, ok := set[strings.ToLower(origin)]
		return ok
	}
}
