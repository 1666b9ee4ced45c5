// Package client talks to a running speech server over its /stream WebSocket and /config endpoint.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/plataforma/vibevoice-launcher/internal/metrics"
	"go.uber.org/zap"
)

// DefaultTimeout bounds the wait for each message, not the whole stream.
const DefaultTimeout = 60 * time.Second

// Request is one synthesis request.
type Request struct {
	Text     string
	Voice    string
	CFGScale float64
	Steps    int
}

// Values encodes the request as /stream query parameters.
func (r Request) Values() url.Values {
	v := url.Values{}
	v.Set("text", r.Text)
	v.Set("voice", r.Voice)
	v.Set("cfg", strconv.FormatFloat(r.CFGScale, 'f', -1, 64))
	v.Set("steps", strconv.Itoa(r.Steps))
	return v
}

// Event is a JSON text frame emitted by the server alongside audio.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Result summarises one stream.
type Result struct {
	RunID  string
	Chunks int
	// Bytes is the sum of all binary frame lengths.
	Bytes      int64
	Events     []Event
	Duration   time.Duration
	FirstChunk time.Duration
	// TimedOut is set when the stream ended because no message arrived within the timeout.
	TimedOut bool
}

// ServerConfig is the body of GET /config.
type ServerConfig struct {
	Voices []string `json:"voices"`
}

// Client is a speech server client. It is safe for concurrent use; each call opens its own connection.
type Client struct {
	baseURL string
	timeout time.Duration
	dialer  *websocket.Dialer
	http    *http.Client
	log     *zap.Logger
}

// New creates a client for a server at baseURL (ws:// or wss://).
func New(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		http: &http.Client{Timeout: timeout},
		log:  log.Named("client"),
	}
}

// StreamURL is the WebSocket URL for req.
func (c *Client) StreamURL(req Request) string {
	return c.baseURL + "/stream?" + req.Values().Encode()
}

// Stream sends req and calls onChunk for each binary frame until the server closes the
// connection or no message arrives within the timeout. Frames are handled strictly in order.
func (c *Client) Stream(ctx context.Context, req Request, onChunk func([]byte)) (Result, error) {
	result := Result{RunID: uuid.NewString()}
	log := c.log.With(zap.String("run", result.RunID))

	start := time.Now()
	conn, resp, err := c.dialer.DialContext(ctx, c.StreamURL(req), nil)
	if err != nil {
		if resp != nil {
			return result, fmt.Errorf("failed to connect: %w (status %s)", err, resp.Status)
		}
		return result, fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	log.Debug("connected", zap.String("voice", req.Voice), zap.Int("steps", req.Steps))

	for {
		if err := conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return result, fmt.Errorf("failed to set read deadline: %w", err)
		}
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			result.Duration = time.Since(start)
			return result, c.endOfStream(ctx, log, &result, err)
		}

		switch messageType {
		case websocket.BinaryMessage:
			if result.Chunks == 0 {
				result.FirstChunk = time.Since(start)
				metrics.SmokeFirstChunkSeconds.Observe(result.FirstChunk.Seconds())
			}
			result.Chunks++
			result.Bytes += int64(len(data))
			metrics.SmokeFramesReceived.WithLabelValues("binary").Inc()
			metrics.SmokeBytesReceived.Add(float64(len(data)))
			if onChunk != nil {
				onChunk(data)
			}
		case websocket.TextMessage:
			metrics.SmokeFramesReceived.WithLabelValues("text").Inc()
			var event Event
			if err := json.Unmarshal(data, &event); err != nil || event.Event == "" {
				log.Debug("ignoring text frame", zap.ByteString("frame", data))
				continue
			}
			log.Debug("event", zap.String("event", event.Event))
			result.Events = append(result.Events, event)
		}
	}
}

// endOfStream classifies the error that ended the read loop. Close and timeout are normal ends.
func (c *Client) endOfStream(ctx context.Context, log *zap.Logger, result *Result, err error) error {
	var (
		netErr   net.Error
		closeErr *websocket.CloseError
	)
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.As(err, &netErr) && netErr.Timeout():
		result.TimedOut = true
		log.Warn("no message within timeout, ending stream", zap.Duration("timeout", c.timeout))
		return nil
	case errors.As(err, &closeErr):
		log.Debug("server closed the stream", zap.Int("code", closeErr.Code))
		return nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return nil
	default:
		return fmt.Errorf("failed to read message: %w", err)
	}
}

// Synthesize streams req and returns the concatenated audio.
func (c *Client) Synthesize(ctx context.Context, req Request) ([]byte, Result, error) {
	var audio []byte
	result, err := c.Stream(ctx, req, func(chunk []byte) {
		audio = append(audio, chunk...)
	})
	return audio, result, err
}

// HTTPURL maps the WebSocket base URL onto its HTTP equivalent.
func (c *Client) HTTPURL() string {
	switch {
	case strings.HasPrefix(c.baseURL, "wss://"):
		return "https://" + strings.TrimPrefix(c.baseURL, "wss://")
	case strings.HasPrefix(c.baseURL, "ws://"):
		return "http://" + strings.TrimPrefix(c.baseURL, "ws://")
	}
	return c.baseURL
}

// Config fetches the server configuration, including the available voices.
func (c *Client) Config(ctx context.Context) (ServerConfig, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.HTTPURL()+"/config", nil)
	if err != nil {
		return ServerConfig{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return ServerConfig{}, fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ServerConfig{}, fmt.Errorf("unexpected status from /config: %s", resp.Status)
	}
	var cfg ServerConfig
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("failed to decode /config: %w", err)
	}
	return cfg, nil
}

// Healthy reports whether the server answers /config.
func (c *Client) Healthy(ctx context.Context) error {
	_, err := c.Config(ctx)
	return err
}

// WaitReady polls Healthy every interval until it succeeds or wait has elapsed.
// A wait of zero checks once.
func (c *Client) WaitReady(ctx context.Context, wait, interval time.Duration) error {
	deadline := time.Now().Add(wait)
	for {
		err := c.Healthy(ctx)
		if err == nil {
			return nil
		}
		if time.Now().Add(interval).After(deadline) {
			return fmt.Errorf("server at %s is not ready: %w", c.HTTPURL(), err)
		}
		c.log.Debug("waiting for server", zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
