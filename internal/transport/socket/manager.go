package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rocketscienceinc/tictactoe-client/internal/entity"
)

const (
	ReasonClientDisconnect = "io client disconnect"
	ReasonServerDisconnect = "io server disconnect"
	ReasonTransportClose   = "transport close"
)

const defaultSendBuffer = 32

var ErrSendBufferFull = errors.New("send buffer is full")

type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// Handler receives the raw payload of an event.
type Handler func(payload json.RawMessage)

// Dispatcher decides where handlers run. The application passes the event loop.
type Dispatcher interface {
	Post(task func()) bool
}

type Options struct {
	URL              string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	SendBuffer       int
}

// Manager owns the single connection to the match server for the whole client lifetime.
type Manager struct {
	logger     *slog.Logger
	dialer     *websocket.Dialer
	dispatcher Dispatcher
	options    Options

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	status     Status
	attempt    string
	conn       *websocket.Conn
	dialCancel context.CancelFunc
	pending    [][]byte
	handlers   map[string][]Handler

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

func New(ctx context.Context, logger *slog.Logger, dispatcher Dispatcher, options Options) *Manager {
	ctx, cancel := context.WithCancel(ctx)

	if options.SendBuffer <= 0 {
		options.SendBuffer = defaultSendBuffer
	}

	return &Manager{
		logger: logger.With("component", "socket"),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: options.HandshakeTimeout,
		},
		dispatcher: dispatcher,
		options:    options,

		ctx:    ctx,
		cancel: cancel,

		status:   StatusDisconnected,
		handlers: make(map[string][]Handler),
	}
}

func (that *Manager) Status() Status {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.status
}

func (that *Manager) Connected() bool {
	return that.Status() == StatusConnected
}

// Connect - starts dialing the server unless a connection exists or is being established.
// The outcome is reported through the connect or connect_error event.
func (that *Manager) Connect() {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.status != StatusDisconnected || that.ctx.Err() != nil {
		return
	}

	dialCtx, dialCancel := context.WithCancel(that.ctx)

	that.status = StatusConnecting
	that.attempt = uuid.NewString()
	that.dialCancel = dialCancel

	that.wg.Add(1)
	go that.dial(dialCtx, that.attempt)
}

// Disconnect - closes the current connection on the client's initiative.
func (that *Manager) Disconnect() {
	that.mu.Lock()
	conn := that.conn
	wasActive := that.status != StatusDisconnected

	that.releaseDialLocked()
	that.conn = nil
	that.attempt = ""
	that.status = StatusDisconnected
	that.pending = nil
	that.mu.Unlock()

	if conn != nil {
		that.closeConn(conn)
	}

	if wasActive {
		that.logger.Info("disconnected", "reason", ReasonClientDisconnect)
		that.dispatch(entity.EventDisconnect, reasonPayload(ReasonClientDisconnect))
	}
}

// Close - tears the manager down at process exit. Handlers are not notified.
func (that *Manager) Close() {
	that.cancel()

	that.mu.Lock()
	conn := that.conn
	that.conn = nil
	that.attempt = ""
	that.status = StatusDisconnected
	that.handlers = make(map[string][]Handler)
	that.mu.Unlock()

	if conn != nil {
		that.closeConn(conn)
	}

	that.wg.Wait()
}

// Emit - sends an event to the server. While no connection is open the message
// is buffered and flushed in order once the connection is established.
func (that *Manager) Emit(event string, payload any) error {
	data, err := encodeMessage(event, payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", event, err)
	}

	that.mu.Lock()

	if that.status == StatusConnected {
		conn := that.conn
		that.mu.Unlock()

		return that.write(conn, data)
	}

	defer that.mu.Unlock()

	if len(that.pending) >= that.options.SendBuffer {
		return fmt.Errorf("%w: %s", ErrSendBufferFull, event)
	}

	that.pending = append(that.pending, data)

	return nil
}

// On registers handler for event.
func (that *Manager) On(event string, handler Handler) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.handlers[event] = append(that.handlers[event], handler)
}

// Off removes every handler registered for event.
func (that *Manager) Off(event string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	delete(that.handlers, event)
}

func (that *Manager) dial(ctx context.Context, attempt string) {
	defer that.wg.Done()

	log := that.logger.With("method", "dial", "connID", attempt)

	conn, resp, err := that.dialer.DialContext(ctx, that.options.URL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	if err != nil {
		that.mu.Lock()
		if that.attempt != attempt {
			that.mu.Unlock()
			return
		}

		dropped := len(that.pending)
		that.status = StatusDisconnected
		that.attempt = ""
		that.pending = nil
		that.releaseDialLocked()
		that.mu.Unlock()

		log.Warn("failed to connect", "error", err, "dropped", dropped)
		that.dispatch(entity.EventConnectError, reasonPayload(err.Error()))

		return
	}

	that.writeMu.Lock()
	that.mu.Lock()

	if that.attempt != attempt {
		that.mu.Unlock()
		that.writeMu.Unlock()
		conn.Close()

		return
	}

	that.conn = conn
	that.status = StatusConnected
	pending := that.pending
	that.pending = nil
	that.mu.Unlock()

	for _, data := range pending {
		if err = that.writeLocked(conn, data); err != nil {
			log.Error("failed to flush buffered message", "error", err)
			break
		}
	}
	that.writeMu.Unlock()

	log.Info("connected", "flushed", len(pending))
	that.dispatch(entity.EventConnect, nil)

	that.wg.Add(1)
	go that.readLoop(conn, attempt)
}

func (that *Manager) readLoop(conn *websocket.Conn, attempt string) {
	defer that.wg.Done()

	log := that.logger.With("method", "readLoop", "connID", attempt)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			that.handleDrop(conn, err)
			return
		}

		msg, err := decodeMessage(data)
		if err != nil {
			log.Warn("skipping malformed message", "error", err)
			continue
		}

		that.dispatch(msg.Action, msg.Payload)
	}
}

func (that *Manager) handleDrop(conn *websocket.Conn, err error) {
	that.mu.Lock()
	if that.conn != conn {
		that.mu.Unlock()
		return
	}

	attempt := that.attempt
	that.conn = nil
	that.attempt = ""
	that.status = StatusDisconnected
	that.releaseDialLocked()
	that.mu.Unlock()

	conn.Close()

	reason := ReasonTransportClose
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		reason = ReasonServerDisconnect
	}

	that.logger.Warn("connection lost", "connID", attempt, "reason", reason, "error", err)
	that.dispatch(entity.EventDisconnect, reasonPayload(reason))
}

// dispatch resolves handlers at execution time, so a handler removed in the
// meantime is never called.
func (that *Manager) dispatch(event string, payload json.RawMessage) {
	if that.ctx.Err() != nil {
		return
	}

	that.dispatcher.Post(func() {
		that.mu.Lock()
		handlers := append([]Handler(nil), that.handlers[event]...)
		that.mu.Unlock()

		if len(handlers) == 0 {
			that.logger.Debug("no handler for event", "event", event)
			return
		}

		for _, handler := range handlers {
			handler(payload)
		}
	})
}

// releaseDialLocked cancels the context of the current attempt. Callers hold mu.
func (that *Manager) releaseDialLocked() {
	if that.dialCancel != nil {
		that.dialCancel()
		that.dialCancel = nil
	}
}

func (that *Manager) write(conn *websocket.Conn, data []byte) error {
	that.writeMu.Lock()
	defer that.writeMu.Unlock()

	return that.writeLocked(conn, data)
}

func (that *Manager) writeLocked(conn *websocket.Conn, data []byte) error {
	if that.options.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(that.options.WriteTimeout)); err != nil {
			return fmt.Errorf("failed to set write deadline: %w", err)
		}
	}

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

func (that *Manager) closeConn(conn *websocket.Conn) {
	that.writeMu.Lock()
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, ReasonClientDisconnect)
	_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
	that.writeMu.Unlock()

	if err := conn.Close(); err != nil {
		that.logger.Debug("failed to close connection", "error", err)
	}
}
