package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"discuss/internal/models"
	"discuss/internal/typing"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	ErrNotConnected = errors.New("not connected")
	ErrClosed       = errors.New("client closed")
)

const defaultTypingRefresh = time.Second

type Handlers struct {
	OnNewMessage  func(models.Message)
	OnUserTyping  func(models.TypingEvent)
	OnStateChange func(state State, connErr error)
}

type Config struct {
	Dialer    Dialer
	Typing    typing.Contract
	Clock     typing.Clock
	Reconnect ReconnectPolicy
	// NewBackOff builds the redial schedule for ReconnectBackoff.
	NewBackOff func() backoff.BackOff
	// TypingRefresh is the minimum gap between repeated typing-start emits.
	TypingRefresh time.Duration
	Logger        *zap.SugaredLogger
}

// Client owns one live chat connection at a time.
type Client struct {
	dialer     Dialer
	handlers   Handlers
	policy     ReconnectPolicy
	newBackOff func() backoff.BackOff
	logger     *zap.SugaredLogger

	typing  *typing.Debouncer
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	conn         Conn
	gen          uint64
	state        State
	connErr      error
	closed       bool
	reconnecting bool

	writeMu sync.Mutex
}

func NewClient(cfg Config, handlers Handlers) *Client {
	if cfg.Typing.TTL <= 0 {
		cfg.Typing = typing.DefaultContract()
	}
	if cfg.TypingRefresh <= 0 {
		cfg.TypingRefresh = defaultTypingRefresh
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.NewBackOff == nil {
		cfg.NewBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 30 * time.Second
			b.MaxElapsedTime = 0
			return b
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		dialer:     cfg.Dialer,
		handlers:   handlers,
		policy:     cfg.Reconnect,
		newBackOff: cfg.NewBackOff,
		logger:     cfg.Logger,
		limiter:    rate.NewLimiter(rate.Every(cfg.TypingRefresh), 1),
		ctx:        ctx,
		cancel:     cancel,
	}
	c.typing = typing.NewDebouncer(cfg.Clock, cfg.Typing.TTL, c.autoStopTyping)
	return c
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// ConnectionError is the last dial or connect_error failure, if any.
func (c *Client) ConnectionError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connErr
}

// Connect opens the connection unless one is already live.
func (c *Client) Connect(ctx context.Context) error {
	err := c.connect(ctx)
	if err != nil && !errors.Is(err, ErrClosed) {
		c.maybeRedial()
	}
	return err
}

// Reconnect detaches the current connection and dials a new one.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	old := c.conn
	c.conn = nil
	c.gen++
	c.state = StateDisconnected
	c.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	c.logger.Infow("Reconnecting chat socket", "had_connection", old != nil)
	return c.Connect(ctx)
}

// Close stops typing, closes the connection and waits for its loops.
func (c *Client) Close() error {
	c.StopTyping()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.gen++
	c.state = StateDisconnected
	c.mu.Unlock()

	c.cancel()
	var err error
	if conn != nil {
		err = conn.Close()
	}
	c.wg.Wait()
	c.notifyState(StateDisconnected, nil)
	return err
}

// SendMessage emits the message without waiting for an acknowledgement.
// The stored message comes back through OnNewMessage.
func (c *Client) SendMessage(msg models.OutgoingMessage) error {
	if !c.IsConnected() {
		c.logger.Warnw("Cannot send message: socket not connected", "content_length", len(msg.Content))
		return ErrNotConnected
	}
	if msg.MessageType == "" {
		msg.MessageType = models.MessageTypeText
	}
	if msg.ClientID == "" {
		msg.ClientID = uuid.NewString()
	}
	return c.emit(models.EventSendGlobalMessage, msg)
}

// StartTyping announces typing and (re)arms the auto-stop timer.
func (c *Client) StartTyping() {
	if !c.IsConnected() {
		return
	}
	idle := c.typing.Start()
	allowed := c.limiter.Allow()
	if idle || allowed {
		if err := c.emit(models.EventTypingStart, nil); err != nil {
			c.logger.Debugw("typing-start emit failed", "error", err)
		}
	}
}

// StopTyping announces the end of typing and clears the timer.
func (c *Client) StopTyping() {
	c.typing.Stop()
	if !c.IsConnected() {
		return
	}
	if err := c.emit(models.EventTypingStop, nil); err != nil {
		c.logger.Debugw("typing-stop emit failed", "error", err)
	}
}

// Blur force-stops typing when the user leaves the client.
func (c *Client) Blur() {
	if c.typing.Active() {
		c.StopTyping()
	}
}

func (c *Client) autoStopTyping() {
	if !c.IsConnected() {
		return
	}
	if err := c.emit(models.EventTypingStop, nil); err != nil {
		c.logger.Debugw("typing-stop emit failed", "error", err)
	}
}

func (c *Client) emit(event models.EventName, payload any) error {
	env := models.Envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal %s payload: %w", event, err)
		}
		env.Data = data
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteJSON(env); err != nil {
		return fmt.Errorf("failed to emit %s: %w", event, err)
	}
	return nil
}

func (c *Client) connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.conn != nil || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.gen++
	gen := c.gen
	c.mu.Unlock()
	c.notifyState(StateConnecting, nil)

	conn, err := c.dialer.Dial(ctx)

	c.mu.Lock()
	if gen != c.gen || c.closed {
		// detached by Reconnect or Close while dialing
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		if err == nil {
			err = ErrClosed
		}
		return err
	}
	if err != nil {
		c.state = StateFailed
		c.connErr = err
		c.mu.Unlock()
		c.logger.Warnw("Chat socket connect failed", "error", err)
		c.notifyState(StateFailed, err)
		return err
	}
	c.conn = conn
	c.state = StateConnected
	c.connErr = nil
	c.wg.Add(1)
	c.mu.Unlock()

	c.logger.Infow("Chat socket connected")
	c.notifyState(StateConnected, nil)

	go func() {
		defer c.wg.Done()
		c.handle(conn, gen)
	}()
	return nil
}

func (c *Client) handle(conn Conn, gen uint64) {
	ctx, cancel := context.WithCancel(c.ctx)
	defer cancel()

	inbound := make(chan models.Envelope)
	errCh := make(chan error, 1)
	go func() {
		errCh <- c.pump(ctx, conn, inbound)
	}()

	for {
		select {
		case env := <-inbound:
			if err := c.dispatch(env); err != nil {
				cancel()
				_ = conn.Close()
				<-errCh
				c.dropped(gen, err, true)
				return
			}
		case err := <-errCh:
			c.dropped(gen, err, false)
			return
		case <-ctx.Done():
			_ = conn.Close()
			<-errCh
			return
		}
	}
}

func (c *Client) pump(ctx context.Context, conn Conn, inbound chan<- models.Envelope) error {
	for {
		var env models.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return err
		}
		select {
		case inbound <- env:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) dispatch(env models.Envelope) error {
	switch env.Event {
	case models.EventNewGlobalMessage:
		var msg models.Message
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			c.logger.Warnw("Dropping malformed chat message", "error", err)
			return nil
		}
		if c.handlers.OnNewMessage != nil {
			c.handlers.OnNewMessage(msg)
		}
	case models.EventUserTyping:
		var ev models.TypingEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			c.logger.Warnw("Dropping malformed typing event", "error", err)
			return nil
		}
		if c.handlers.OnUserTyping != nil {
			c.handlers.OnUserTyping(ev)
		}
	case models.EventConnectError:
		var ce models.ConnectError
		_ = json.Unmarshal(env.Data, &ce)
		if ce.Message == "" {
			ce.Message = "connection rejected"
		}
		return errors.New(ce.Message)
	default:
		c.logger.Debugw("Ignoring chat event", "event", env.Event)
	}
	return nil
}

// dropped handles the end of the connection with the given generation.
// A rejected connection becomes Failed, anything else Disconnected.
func (c *Client) dropped(gen uint64, err error, rejected bool) {
	c.mu.Lock()
	if gen != c.gen || c.closed {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	state := StateDisconnected
	var connErr error
	if rejected {
		state = StateFailed
		connErr = err
		c.connErr = err
	}
	c.state = state
	c.mu.Unlock()

	c.typing.Stop()
	c.logger.Infow("Chat socket disconnected", "reason", err, "state", state.String())
	c.notifyState(state, connErr)
	c.maybeRedial()
}

func (c *Client) maybeRedial() {
	if c.policy != ReconnectBackoff {
		return
	}

	c.mu.Lock()
	if c.closed || c.reconnecting {
		c.mu.Unlock()
		return
	}
	c.reconnecting = true
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			c.reconnecting = false
			c.mu.Unlock()
		}()

		b := backoff.WithContext(c.newBackOff(), c.ctx)
		err := backoff.RetryNotify(func() error {
			c.mu.Lock()
			live := c.conn != nil
			c.mu.Unlock()
			if live {
				return nil
			}
			err := c.connect(c.ctx)
			if errors.Is(err, ErrClosed) {
				return backoff.Permanent(err)
			}
			return err
		}, b, func(err error, next time.Duration) {
			c.logger.Infow("Chat socket redial scheduled", "error", err, "in", next)
		})
		if err != nil && !errors.Is(err, ErrClosed) && !errors.Is(err, context.Canceled) {
			c.logger.Warnw("Chat socket redial gave up", "error", err)
		}
	}()
}

func (c *Client) notifyState(state State, err error) {
	if c.handlers.OnStateChange != nil {
		c.handlers.OnStateChange(state, err)
	}
}
