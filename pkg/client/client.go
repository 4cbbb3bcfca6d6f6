// Package client implements the remote call contract over HTTP.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/networkfs/internal/logging"
	"github.com/fruitsalade/networkfs/internal/metrics"
	"github.com/fruitsalade/networkfs/pkg/protocol"
	"github.com/fruitsalade/networkfs/pkg/retry"
)

// Client performs remote calls against the directory service.
// Only idempotent methods are retried.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	retryConfig retry.Config
	codec       protocol.Codec
	log         *zap.Logger

	mu       sync.RWMutex
	online   bool
	lastPing time.Time
}

var _ protocol.Caller = (*Client)(nil)

// Config holds client configuration.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	RetryConfig retry.Config
	Codec       protocol.Codec
	Logger      *zap.Logger
	HTTPClient  *http.Client
}

// New creates a new client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryConfig.MaxAttempts == 0 {
		cfg.RetryConfig = retry.DefaultConfig()
	}
	if cfg.Codec == nil {
		cfg.Codec = protocol.FixedCodec{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Named("client")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}

	return &Client{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient:  httpClient,
		retryConfig: cfg.RetryConfig,
		codec:       cfg.Codec,
		log:         cfg.Logger,
		online:      true,
	}
}

// Codec returns the wire codec the client negotiates.
func (c *Client) Codec() protocol.Codec {
	return c.codec
}

// IsOnline returns true if the server was reachable on the last attempt.
func (c *Client) IsOnline() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.online
}

func (c *Client) setOnline(online bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.online != online {
		if online {
			c.log.Info("server is back online", zap.String("server", c.baseURL))
		} else {
			c.log.Error("server is offline", zap.String("server", c.baseURL))
		}
	}
	c.online = online
	c.lastPing = time.Now()
}

// Ping checks if the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.setOnline(false)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.setOnline(false)
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	c.setOnline(true)
	return nil
}

// Call implements protocol.Caller.
func (c *Client) Call(ctx context.Context, token string, method protocol.Method, maxSize int, params ...protocol.Param) ([]byte, error) {
	start := time.Now()

	cfg := c.retryConfig
	if !method.Idempotent() {
		cfg = retry.Once()
	}
	cfg.OnRetry = func(attempt int, err error) {
		metrics.RecordRemoteRetry(string(method))
		c.log.Debug("retrying remote call",
			logging.Method(method),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}

	payload, err := retry.DoWithResult(ctx, cfg, func() ([]byte, error) {
		return c.do(ctx, token, method, maxSize, params)
	})
	err = retry.Unwrap(err)
	if err != nil {
		if _, ok := protocol.AsCallError(err); !ok {
			err = &protocol.CallError{Method: method, Status: protocol.StatusTransport, Err: err}
		}
	}

	metrics.RecordRemoteCall(string(method), outcome(err), time.Since(start))
	c.log.Debug("remote call",
		logging.Method(method),
		zap.Int("params", len(params)),
		zap.Int("payload", len(payload)),
		zap.Duration("duration", time.Since(start)),
		zap.Error(err),
	)
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (c *Client) do(ctx context.Context, token string, method protocol.Method, maxSize int, params []protocol.Param) ([]byte, error) {
	fail := func(status protocol.Status, httpStatus int, err error) *protocol.CallError {
		return &protocol.CallError{Method: method, Status: status, HTTPStatus: httpStatus, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(method, params), nil)
	if err != nil {
		return nil, fail(protocol.StatusTransport, 0, err)
	}
	req.Header.Set("Accept", c.codec.ContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.setOnline(false)
		return nil, retry.Retryable(fail(protocol.StatusTransport, 0, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= 500 {
			c.setOnline(false)
			return nil, retry.Retryable(fail(protocol.StatusUnexpectedHTTP, resp.StatusCode, nil))
		}
		c.setOnline(true)
		return nil, fail(protocol.StatusUnexpectedHTTP, resp.StatusCode, nil)
	}
	c.setOnline(true)

	if maxSize < 0 {
		maxSize = 0
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(protocol.HeaderSize+maxSize+1)))
	if err != nil {
		return nil, retry.Retryable(fail(protocol.StatusTransport, 0, err))
	}

	status, payload, err := c.codec.ReadResponse(body)
	if err != nil {
		return nil, fail(protocol.StatusMalformedResponse, 0, err)
	}
	if status != protocol.StatusOK {
		return nil, fail(status, 0, nil)
	}
	if len(payload) > maxSize {
		return nil, fail(protocol.StatusResponseTooLarge, 0, fmt.Errorf("payload exceeds %d bytes", maxSize))
	}
	return payload, nil
}

// endpoint builds the request URL. Parameters keep their order.
func (c *Client) endpoint(method protocol.Method, params []protocol.Param) string {
	var b strings.Builder
	b.WriteString(c.baseURL)
	b.WriteString("/fs/")
	b.WriteString(url.PathEscape(string(method)))
	for i, p := range params {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.Value))
	}
	return b.String()
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var ce *protocol.CallError
	if errors.As(err, &ce) {
		if ce.Status.Local() {
			return "transport"
		}
		return "rejected"
	}
	return "transport"
}
