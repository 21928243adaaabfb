package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	stdhttp "net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatline-server/internal/config"
	"github.com/vovakirdan/chatline-server/internal/core"
	"github.com/vovakirdan/chatline-server/internal/metrics"
	"github.com/vovakirdan/chatline-server/internal/proto"
)

var (
	errSendBufferFull  = errors.New("send buffer full")
	errTransportClosed = errors.New("transport closed")
	errServerClosing   = errors.New("server closing")
)

// wsTransport queues outbound frames for the connection's write loop.
// Send never blocks; a full buffer fails the push.
type wsTransport struct {
	out  chan proto.Outbound
	done chan struct{}
	once sync.Once
}

func newWSTransport(buffer int) *wsTransport {
	if buffer <= 0 {
		buffer = 64
	}
	return &wsTransport{
		out:  make(chan proto.Outbound, buffer),
		done: make(chan struct{}),
	}
}

func (t *wsTransport) Send(_ context.Context, ev core.Event) error {
	return t.enqueue(outboundFromEvent(ev))
}

func (t *wsTransport) enqueue(msg proto.Outbound) error {
	select {
	case <-t.done:
		return errTransportClosed
	default:
	}
	select {
	case t.out <- msg:
		return nil
	default:
		return errSendBufferFull
	}
}

func (t *wsTransport) close() {
	t.once.Do(func() { close(t.done) })
}

// WSHandler authenticates the handshake, upgrades the connection and bridges it to the gateway.
// Upgraded sockets are hijacked and outlive http.Server.Shutdown, so the handler
// tracks them itself and closes them in Shutdown.
type WSHandler struct {
	gateway *core.Gateway
	cfg     *config.Config
	log     *zerolog.Logger

	mu      sync.Mutex
	closed  bool
	closing chan struct{}
	active  sync.WaitGroup
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(gateway *core.Gateway, cfg *config.Config, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{gateway: gateway, cfg: cfg, log: logger, closing: make(chan struct{})}
}

// track registers a socket handler; it fails once Shutdown has started.
func (h *WSHandler) track() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.active.Add(1)
	return true
}

// Shutdown closes every open socket with a going-away status and waits for
// their handlers to return, or for ctx to expire.
func (h *WSHandler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	if !h.closed {
		h.closed = true
		close(h.closing)
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("ws shutdown: %w", ctx.Err())
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	if !h.track() {
		stdhttp.Error(w, "server shutting down", stdhttp.StatusServiceUnavailable)
		return
	}
	defer h.active.Done()

	transport := newWSTransport(h.cfg.SendBuffer)
	defer transport.close()

	client := core.NewConn(transport)
	defer h.gateway.Close(client)

	hs := core.Handshake{
		Cookie: r.Header.Get("Cookie"),
		Token:  handshakeToken(r),
	}
	if _, err := h.gateway.Authenticate(r.Context(), client, hs); err != nil {
		if errors.Is(err, core.ErrUnauthenticated) {
			stdhttp.Error(w, "unauthorized", stdhttp.StatusUnauthorized)
			return
		}
		h.log.Error().Err(err).Msg("ws handshake failed")
		stdhttp.Error(w, "service unavailable", stdhttp.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     h.cfg.AllowedOrigins,
		InsecureSkipVerify: len(h.cfg.AllowedOrigins) == 0,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := h.gateway.Activate(ctx, client); err != nil {
		h.log.Warn().Err(err).Str("conn_id", client.ID()).Msg("ws activate")
		conn.Close(websocket.StatusPolicyViolation, "activation failed")
		return
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client, transport)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client, transport)
	}()

	err = <-errCh

	// Close before cancel: a cancelled Read tears the socket down with its own status.
	status, reason := closeStatus(err)
	if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
		h.log.Warn().Err(err).Str("conn_id", client.ID()).Msg("ws connection closed with error")
	}
	conn.Close(status, reason)
	cancel()
	<-errCh
}

func closeStatus(err error) (websocket.StatusCode, string) {
	if errors.Is(err, errServerClosing) {
		return websocket.StatusGoingAway, "server shutting down"
	}
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return websocket.StatusNormalClosure, "closing"
	}
	switch s := websocket.CloseStatus(err); s {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return websocket.StatusNormalClosure, "closing"
	case -1:
		return websocket.StatusInternalError, "internal error"
	default:
		return s, "closing"
	}
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Conn, transport *wsTransport) error {
	limiter := newRateLimiter(h.cfg.InboundRateLimit)

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		if !limiter.allow() {
			metrics.InboundDiscarded.WithLabelValues("rate_limited").Inc()
			_ = transport.enqueue(proto.Outbound{
				Type:  proto.OutboundTypeError,
				Error: &proto.Error{Code: core.ErrCodeRateLimited, Msg: "too many events"},
			})
			continue
		}

		cmd, err := decodeInbound(typ, data)
		if err == nil {
			err = h.gateway.Handle(ctx, client, cmd)
		}
		if err != nil {
			if errors.Is(err, core.ErrConnNotActive) {
				return err
			}
			metrics.InboundDiscarded.WithLabelValues("malformed").Inc()
			h.log.Debug().Err(err).Str("conn_id", client.ID()).Msg("inbound discarded")
			_ = transport.enqueue(outboundFromError(err))
		}
	}
}

func decodeInbound(typ websocket.MessageType, data []byte) (core.Command, error) {
	if typ != websocket.MessageText {
		return core.Command{}, core.Malformed("text frames only")
	}
	var inbound proto.Inbound
	if err := json.Unmarshal(data, &inbound); err != nil {
		return core.Command{}, core.Malformed("invalid json")
	}
	return inboundToCommand(inbound)
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Conn, transport *wsTransport) error {
	for {
		select {
		case msg := <-transport.out:
			if err := h.write(ctx, conn, msg); err != nil {
				h.log.Error().Err(err).Str("conn_id", client.ID()).Msg("write ws event")
				return err
			}
		case <-h.closing:
			return errServerClosing
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) write(ctx context.Context, conn *websocket.Conn, msg proto.Outbound) error {
	timeout := h.cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return wsjson.Write(ctx, conn, msg)
}

// handshakeToken reads the auxiliary credential: ?token= first, then a Bearer header.
func handshakeToken(r *stdhttp.Request) string {
	if v := r.URL.Query().Get("token"); v != "" {
		return v
	}
	return bearerToken(r.Header.Get("Authorization"))
}
