package bus

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/actalabs/acta-core/internal/config"
	"github.com/actalabs/acta-core/internal/protocol"
	"github.com/nats-io/nats.go"
)

// renderStreamName is the durable JetStream stream capturing render
// deltas so late-joining views can replay a hearing's patch history.
const renderStreamName = "ACTA_RENDER"

// Client wraps the shared NATS connection with minimal helpers. Session
// stream clients manage their own connections; this one carries render
// deltas and control traffic for the runtime.
type Client struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	log  *slog.Logger
}

func Connect(ctx context.Context, cfg config.BusConfig, log *slog.Logger) (*Client, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("no NATS servers configured")
	}

	options := []nats.Option{
		nats.Name("acta-core"),
		nats.Timeout(time.Duration(cfg.ConnectTimeout) * time.Millisecond),
	}

	if cfg.Username != "" || cfg.Password != "" {
		options = append(options, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		options = append(options, nats.Token(cfg.Token))
	}
	if cfg.TLSInsecure {
		options = append(options, nats.Secure(&tls.Config{InsecureSkipVerify: true}))
	}

	url := strings.Join(cfg.Servers, ",")
	conn, err := nats.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	log.Info("connected to NATS", slog.String("servers", url))

	return &Client{
		conn: conn,
		js:   js,
		log:  log,
	}, nil
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	c.log.Info("closing NATS connection")
	c.conn.Drain()
	c.conn.Close()
}

func (c *Client) Healthy() bool {
	return c != nil && c.conn != nil && c.conn.Status() == nats.CONNECTED
}

// EnsureRenderStream provisions the durable render-delta stream. Safe
// to call on every startup; an existing stream is left untouched. A
// zero maxAge keeps deltas until the stream is deleted.
func (c *Client) EnsureRenderStream(maxAge time.Duration) error {
	_, err := c.js.StreamInfo(renderStreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("query render stream: %w", err)
	}
	_, err = c.js.AddStream(&nats.StreamConfig{
		Name:     renderStreamName,
		Subjects: []string{protocol.SubjectRenderPrefix + ".>"},
		Storage:  nats.FileStorage,
		MaxAge:   maxAge,
	})
	if err != nil {
		return fmt.Errorf("create render stream: %w", err)
	}
	c.log.Info("render delta stream provisioned", slog.String("stream", renderStreamName))
	return nil
}

func (c *Client) JetStream() nats.JetStreamContext {
	return c.js
}

func (c *Client) Conn() *nats.Conn {
	return c.conn
}
