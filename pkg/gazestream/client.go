// Package gazestream receives eye-tracker gaze samples over a websocket
// and delivers them on a channel, reconnecting with backoff until the
// context is cancelled. Video acquisition stays elsewhere; this is only
// the gaze datum feed.
package gazestream

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-screengaze/internal/log"
	"github.com/teslashibe/go-screengaze/pkg/gazemapper"
)

const (
	// pongWait is how long to wait between pongs before declaring the
	// connection dead.
	pongWait = 60 * time.Second

	// maxMessageSize bounds a single gaze datum message.
	maxMessageSize = 4 * 1024
)

// Config holds gaze stream configuration.
type Config struct {
	// URL of the gaze websocket endpoint.
	URL string

	// ReconnectDelay is the initial delay before redialing; it doubles
	// per consecutive failure up to MaxReconnectDelay.
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration

	// HandshakeTimeout bounds the websocket dial.
	HandshakeTimeout time.Duration

	// Buffer is the sample channel capacity. When the consumer falls
	// behind, the oldest buffered sample is dropped.
	Buffer int
}

// DefaultConfig returns production defaults for the given endpoint.
func DefaultConfig(url string) Config {
	return Config{
		URL:               url,
		ReconnectDelay:    time.Second,
		MaxReconnectDelay: 30 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		Buffer:            64,
	}
}

// datum is the wire format of one gaze sample.
type datum struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Worn      bool    `json:"worn"`
	Timestamp float64 `json:"timestamp_unix_seconds"`
}

// Client is a reconnecting websocket gaze source.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer
	out    chan gazemapper.Gaze
}

// New creates a gaze stream client. Call Run to start receiving.
func New(cfg Config) *Client {
	// deliver sheds the oldest buffered sample when full; that needs at
	// least one slot to make progress.
	if cfg.Buffer < 1 {
		cfg.Buffer = 1
	}
	return &Client{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		out: make(chan gazemapper.Gaze, cfg.Buffer),
	}
}

// Samples returns the channel gaze samples are delivered on. It is closed
// when Run returns.
func (c *Client) Samples() <-chan gazemapper.Gaze {
	return c.out
}

// Run dials the endpoint and pumps gaze samples until ctx is cancelled.
// Connection failures trigger a redial with doubling backoff; the only
// way Run returns is context cancellation.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.out)

	delay := c.cfg.ReconnectDelay
	for {
		connected, err := c.readLoop(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			delay = c.cfg.ReconnectDelay
		}

		log.Warn("gaze stream disconnected", "url", c.cfg.URL, "error", err, "retry_in", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = c.nextDelay(delay, connected)
	}
}

// nextDelay doubles the redial delay up to the configured maximum;
// a round that managed to connect starts the doubling over.
func (c *Client) nextDelay(cur time.Duration, connected bool) time.Duration {
	if connected {
		return c.cfg.ReconnectDelay
	}
	next := cur * 2
	if next > c.cfg.MaxReconnectDelay {
		next = c.cfg.MaxReconnectDelay
	}
	return next
}

// readLoop reports whether the dial succeeded so Run can reset its
// backoff after a real connection.
func (c *Client) readLoop(ctx context.Context) (bool, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	log.Info("gaze stream connected", "url", c.cfg.URL)

	// Unblock the blocking reads when the context ends.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var d datum
		if err := json.Unmarshal(payload, &d); err != nil {
			log.Debug("dropping malformed gaze datum", "error", err)
			continue
		}

		c.deliver(gazemapper.Gaze{
			X:                    d.X,
			Y:                    d.Y,
			Worn:                 d.Worn,
			TimestampUnixSeconds: d.Timestamp,
		})
	}
}

// deliver queues a sample, shedding the oldest buffered one when the
// consumer lags. Gaze data is perishable; newest wins.
func (c *Client) deliver(g gazemapper.Gaze) {
	for {
		select {
		case c.out <- g:
			return
		default:
			select {
			case <-c.out:
			default:
			}
		}
	}
}
