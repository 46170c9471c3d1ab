package streamclient

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/actalabs/acta-core/internal/config"
	"github.com/actalabs/acta-core/internal/protocol"
	"github.com/actalabs/acta-core/internal/transcript"
	"github.com/nats-io/nats.go"
)

// Callbacks receive typed inbound events. Nil members are skipped.
type Callbacks struct {
	OnTranscript    func(protocol.TranscriptEvent)
	OnStatus        func(protocol.StatusEvent)
	OnSpeechStarted func(protocol.SpeechStartedEvent)
	OnUtteranceEnd  func(protocol.UtteranceEndEvent)
	OnError         func(message string)
	OnStateChange   func(transcript.ConnectionState)
}

// conn is the slice of the NATS connection the client needs; tests
// substitute a fake.
type conn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler nats.MsgHandler) (subscription, error)
	IsConnected() bool
	Close()
}

type subscription interface {
	Drain() error
}

type natsConn struct {
	*nats.Conn
}

func (c natsConn) Subscribe(subject string, handler nats.MsgHandler) (subscription, error) {
	return c.Conn.Subscribe(subject, handler)
}

// Client owns the bidirectional event channel to the recognition
// backend for one session. Reconnection is bounded: a fixed attempt
// limit with a fixed retry interval, no backoff. Disconnect is
// permanent.
type Client struct {
	cfg       config.StreamConfig
	sessionID string
	keyterms  []string
	logger    *slog.Logger
	callbacks Callbacks
	dial      func(*Client) (conn, error)

	mu           sync.Mutex
	conn         conn
	sub          subscription
	state        transcript.ConnectionState
	transcribing bool
	disconnected bool // set by Disconnect, disables reconnection for good
	lastError    string
}

func New(cfg config.StreamConfig, sessionID string, keyterms []string, callbacks Callbacks, logger *slog.Logger) *Client {
	if len(keyterms) > cfg.KeytermLimit {
		keyterms = keyterms[:cfg.KeytermLimit]
	}
	return &Client{
		cfg:       cfg,
		sessionID: sessionID,
		keyterms:  keyterms,
		logger:    logger.With(slog.String("component", "stream-client"), slog.String("session", sessionID)),
		callbacks: callbacks,
		dial:      dialNATS,
		state:     transcript.StateDisconnected,
	}
}

func dialNATS(c *Client) (conn, error) {
	options := []nats.Option{
		nats.Name("acta-stream-" + c.sessionID),
		nats.MaxReconnects(c.cfg.ReconnectAttempts),
		nats.ReconnectWait(time.Duration(c.cfg.ReconnectDelayMS) * time.Millisecond),
		nats.ReconnectJitter(0, 0),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.handleChannelDown(err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			c.handleChannelUp()
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			c.handleChannelClosed()
		}),
	}
	url := c.cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url, options...)
	if err != nil {
		return nil, err
	}
	return natsConn{nc}, nil
}

// Connect opens the channel. Calling it while a previous dial still
// owns the channel is a no-op, even mid-reconnect; the bounded retry
// loop keeps ownership until the connection closes for good.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.disconnected {
		c.mu.Unlock()
		return errors.New("stream client permanently disconnected")
	}
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	cn, err := c.dial(c)
	if err != nil {
		c.setError(fmt.Sprintf("connect recognition channel: %v", err))
		return fmt.Errorf("connect recognition channel: %w", err)
	}

	sub, err := cn.Subscribe(protocol.RecognitionSubject(c.sessionID), c.handleMessage)
	if err != nil {
		cn.Close()
		return fmt.Errorf("subscribe recognition events: %w", err)
	}

	c.mu.Lock()
	if c.disconnected || c.conn != nil {
		lost := c.disconnected
		c.mu.Unlock()
		_ = sub.Drain()
		cn.Close()
		if lost {
			return errors.New("stream client permanently disconnected")
		}
		return nil
	}
	c.conn = cn
	c.sub = sub
	c.transcribing = true
	c.mu.Unlock()
	c.setState(transcript.StateConnected)

	if err := c.sendStart(); err != nil {
		c.logger.Warn("failed to announce stream start", slog.String("error", err.Error()))
	}
	return nil
}

func (c *Client) sendStart() error {
	payload, err := json.Marshal(protocol.StartCommand{
		Type:       protocol.TypeStart,
		SessionID:  c.sessionID,
		Language:   c.cfg.Language,
		SampleRate: c.cfg.SampleRate,
		Keyterms:   c.keyterms,
	})
	if err != nil {
		return err
	}
	return c.publish(protocol.ControlSubject(c.sessionID), payload)
}

// SendAudioChunk transmits one audio frame. Chunks sent while the
// channel is not open are dropped.
func (c *Client) SendAudioChunk(data []byte, sequence int) error {
	c.mu.Lock()
	open := c.conn != nil && c.conn.IsConnected() && !c.disconnected
	c.mu.Unlock()
	if !open {
		return nil
	}

	payload, err := json.Marshal(protocol.AudioChunk{
		Type:      protocol.TypeAudioChunk,
		Data:      base64.StdEncoding.EncodeToString(data),
		Sequence:  sequence,
		Timestamp: float64(time.Now().UnixMilli()) / 1000.0,
	})
	if err != nil {
		return err
	}
	if err := c.publish(protocol.AudioSubject(c.sessionID), payload); err != nil {
		// Transport errors surface as an error string; only a channel
		// close drives reconnection.
		c.setError(fmt.Sprintf("send audio chunk: %v", err))
		return err
	}
	return nil
}

// Stop signals end-of-utterance to the backend and marks local
// transcribing state off. The channel stays open.
func (c *Client) Stop() error {
	c.mu.Lock()
	c.transcribing = false
	open := c.conn != nil && c.conn.IsConnected()
	c.mu.Unlock()
	if !open {
		return nil
	}

	payload, err := json.Marshal(protocol.StopCommand{Type: protocol.TypeStop})
	if err != nil {
		return err
	}
	return c.publish(protocol.ControlSubject(c.sessionID), payload)
}

// Disconnect closes the channel permanently and disables reconnection.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.disconnected {
		c.mu.Unlock()
		return
	}
	c.disconnected = true
	c.transcribing = false
	sub := c.sub
	cn := c.conn
	c.sub = nil
	c.conn = nil
	c.mu.Unlock()

	if sub != nil {
		_ = sub.Drain()
	}
	if cn != nil {
		cn.Close()
	}
	c.setState(transcript.StateDisconnected)
}

func (c *Client) publish(subject string, payload []byte) error {
	c.mu.Lock()
	cn := c.conn
	c.mu.Unlock()
	if cn == nil {
		return errors.New("channel not open")
	}
	return cn.Publish(subject, payload)
}

// handleMessage routes one inbound payload. Malformed payloads and
// unknown tags are logged and dropped; they never crash the client.
func (c *Client) handleMessage(msg *nats.Msg) {
	evt, err := protocol.DecodeEvent(msg.Data)
	if err != nil {
		c.logger.Warn("dropping malformed recognition payload", slog.String("error", err.Error()))
		return
	}

	switch e := evt.(type) {
	case protocol.TranscriptEvent:
		if c.callbacks.OnTranscript != nil {
			c.callbacks.OnTranscript(e)
		}
	case protocol.StatusEvent:
		if c.callbacks.OnStatus != nil {
			c.callbacks.OnStatus(e)
		}
	case protocol.SpeechStartedEvent:
		if c.callbacks.OnSpeechStarted != nil {
			c.callbacks.OnSpeechStarted(e)
		}
	case protocol.UtteranceEndEvent:
		if c.callbacks.OnUtteranceEnd != nil {
			c.callbacks.OnUtteranceEnd(e)
		}
	case protocol.ErrorEvent:
		// Backend-reported errors are user-visible but do not close the
		// connection.
		c.setError(e.Message)
	default:
		c.logger.Warn("unhandled event variant", slog.String("type", evt.EventType()))
	}
}

func (c *Client) handleChannelDown(err error) {
	c.mu.Lock()
	permanent := c.disconnected
	c.mu.Unlock()
	if permanent {
		return
	}
	if err != nil {
		c.setError(err.Error())
	}
	c.setState(transcript.StateReconnecting)
	c.logger.Warn("recognition channel lost, retrying on fixed interval",
		slog.Int("max_attempts", c.cfg.ReconnectAttempts),
		slog.Int("delay_ms", c.cfg.ReconnectDelayMS))
}

func (c *Client) handleChannelUp() {
	c.setState(transcript.StateConnected)
	c.logger.Info("recognition channel restored")
}

// handleChannelClosed fires when the connection gives up for good, the
// reconnect budget included. Releasing the conn reference here is what
// lets a later Connect dial fresh.
func (c *Client) handleChannelClosed() {
	c.mu.Lock()
	c.conn = nil
	c.sub = nil
	c.mu.Unlock()
	c.setState(transcript.StateDisconnected)
	c.logger.Info("recognition channel closed")
}

func (c *Client) setState(state transcript.ConnectionState) {
	c.mu.Lock()
	changed := c.state != state
	c.state = state
	c.mu.Unlock()
	if changed && c.callbacks.OnStateChange != nil {
		c.callbacks.OnStateChange(state)
	}
}

func (c *Client) setError(message string) {
	c.mu.Lock()
	c.lastError = message
	c.mu.Unlock()
	if c.callbacks.OnError != nil {
		c.callbacks.OnError(message)
	}
}

// State returns the current connection state.
func (c *Client) State() transcript.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Transcribing reports whether the session is actively streaming.
func (c *Client) Transcribing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcribing
}

// LastError returns the most recent user-visible error string.
func (c *Client) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}
