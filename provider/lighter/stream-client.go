package lighter

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/recws-org/recws"
	"go.uber.org/zap"

	promclient "github.com/spooky-finn/go-lighter-cpty/infrastructure/prometheus"
)

const (
	DefaultWebsocketEndpoint = "wss://mainnet.zklighter.elliot.ai/stream"
	pingDelay                = 30 * time.Second
	notConnectedPause        = 100 * time.Millisecond
)

type StreamConfig struct {
	URL              string
	HandshakeTimeout time.Duration
	KeepAlive        time.Duration
	ReconnectMin     time.Duration
	ReconnectMax     time.Duration
	// AuthHeader, when set, is sent as a bearer token on the handshake.
	AuthHeader AuthTokenSource
}

func (c *StreamConfig) setDefaults() {
	if c.URL == "" {
		c.URL = DefaultWebsocketEndpoint
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 5 * time.Second
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = pingDelay
	}
	if c.ReconnectMin <= 0 {
		c.ReconnectMin = time.Second
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = time.Minute
	}
}

// StreamClient keeps one reconnecting websocket to the exchange and feeds
// every inbound frame to the dispatcher from a single read goroutine.
type StreamClient struct {
	logger     *zap.Logger
	cfg        StreamConfig
	dispatcher *Dispatcher
	conn       atomic.Pointer[recws.RecConn]
}

func NewStreamClient(logger *zap.Logger, cfg StreamConfig, dispatcher *Dispatcher) *StreamClient {
	cfg.setDefaults()
	return &StreamClient{
		logger:     logger.Named("stream-client"),
		cfg:        cfg,
		dispatcher: dispatcher,
	}
}

// Run dials and reads until ctx is done. Reconnects use recws' jittered
// exponential backoff between ReconnectMin and ReconnectMax.
func (c *StreamClient) Run(ctx context.Context) error {
	header := http.Header{}
	if c.cfg.AuthHeader != nil {
		token, err := c.cfg.AuthHeader()
		if err != nil {
			return errors.Wrap(err, "stream auth token")
		}
		header.Set("Authorization", "Bearer "+token)
	}

	conn := &recws.RecConn{
		RecIntvlMin:      c.cfg.ReconnectMin,
		RecIntvlMax:      c.cfg.ReconnectMax,
		RecIntvlFactor:   2,
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.cfg.HandshakeTimeout,
		KeepAliveTimeout: c.cfg.KeepAlive,
		NonVerbose:       true,
		SubscribeHandler: c.onConnect,
	}
	c.conn.Store(conn)
	c.dispatcher.Attach(conn)

	c.logger.Info("connecting", zap.String("url", c.cfg.URL))
	conn.Dial(c.cfg.URL, header)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	c.read(ctx, conn)
	return ctx.Err()
}

// onConnect runs inside recws after every successful dial. recws treats an
// error here as fatal, so failures are only logged.
func (c *StreamClient) onConnect() error {
	promclient.StreamReconnectCounter.Inc()
	if err := c.dispatcher.Resubscribe(); err != nil {
		c.logger.Error("resubscribe", zap.Error(err))
	}
	return nil
}

func (c *StreamClient) read(ctx context.Context, conn *recws.RecConn) {
	connected := false
	for ctx.Err() == nil {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if connected {
				connected = false
				c.logger.Warn("stream lost, books invalidated", zap.Error(err))
				c.dispatcher.OnDisconnect()
			}
			if errors.Is(err, recws.ErrNotConnected) {
				select {
				case <-ctx.Done():
				case <-time.After(notConnectedPause):
				}
			}
			continue
		}

		// recws closes without redialling on a normal closure frame and
		// reports it as an empty read
		if len(msg) == 0 && !conn.IsConnected() {
			if connected {
				connected = false
				c.logger.Warn("stream closed by server, books invalidated")
				c.dispatcher.OnDisconnect()
			}
			if ctx.Err() == nil {
				conn.CloseAndReconnect()
			}
			continue
		}

		connected = true
		c.dispatcher.HandleMessage(msg)
	}
}

func (c *StreamClient) IsConnected() bool {
	conn := c.conn.Load()
	return conn != nil && conn.IsConnected()
}
