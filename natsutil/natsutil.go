// Package natsutil builds NATS connections with the reconnect policy
// shared by every NATS-facing resource: retry on a failed initial
// connect, unlimited reconnects and structured logging of connection
// state changes.
package natsutil

import (
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/datagate-io/datagate/errors"
)

// Option is a functional option for configuring a connection.
type Option func(*settings)

type settings struct {
	name          string
	username      string
	password      string
	token         string
	timeout       time.Duration
	reconnectWait time.Duration
	onReconnect   func()
}

// WithName sets the client name for identification on the broker.
func WithName(name string) Option {
	return func(s *settings) { s.name = name }
}

// WithCredentials sets username and password for authentication.
func WithCredentials(username, password string) Option {
	return func(s *settings) {
		s.username = username
		s.password = password
	}
}

// WithToken sets a token for authentication.
func WithToken(token string) Option {
	return func(s *settings) { s.token = token }
}

// WithTimeout sets the connection timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// WithReconnectCallback sets a callback run after every reconnect, in
// addition to the logged handler.
func WithReconnectCallback(fn func()) Option {
	return func(s *settings) { s.onReconnect = fn }
}

// Connect dials the given URL. The connection survives broker restarts:
// it keeps retrying forever and logs each disconnect and reconnect.
func Connect(url string, logger *slog.Logger, opts ...Option) (*nats.Conn, error) {
	s := settings{
		timeout:       5 * time.Second,
		reconnectWait: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(&s)
	}

	natsOpts := []nats.Option{
		nats.Timeout(s.timeout),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(s.reconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "url", url, "error", err)
		}),
		nats.ReconnectHandler(func(*nats.Conn) {
			logger.Info("nats reconnected", "url", url)
			if s.onReconnect != nil {
				s.onReconnect()
			}
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Debug("nats connection closed", "url", url)
		}),
	}
	if s.name != "" {
		natsOpts = append(natsOpts, nats.Name(s.name))
	}
	if s.username != "" {
		natsOpts = append(natsOpts, nats.UserInfo(s.username, s.password))
	}
	if s.token != "" {
		natsOpts = append(natsOpts, nats.Token(s.token))
	}

	conn, err := nats.Connect(url, natsOpts...)
	if err != nil {
		return nil, errors.WrapTransient(errors.ErrNoConnection, "natsutil", "Connect", url+": "+err.Error())
	}
	return conn, nil
}

// Close drains the connection so pending publishes flush, falling back
// to a hard close when the drain fails.
func Close(conn *nats.Conn) {
	if conn == nil {
		return
	}
	if err := conn.Drain(); err != nil {
		conn.Close()
	}
}
