package client

import (
	"time"

	"github.com/ridge/livequery/retry"
	"github.com/ridge/livequery/tws"
	"go.uber.org/zap"
)

// DefaultMaxAttempts is the default cap on consecutive connection attempts
const DefaultMaxAttempts = 5

// DefaultBackoffConfig is the default backoff policy between connection
// attempts
var DefaultBackoffConfig = retry.ExpConfig{
	Min:   time.Second,
	Max:   time.Minute,
	Scale: 2.0,
}

// Option configures a Connection
type Option func(c *Connection)

// WithCredentials sets the provider of the identity fields presented to the
// server. Default: no credentials.
func WithCredentials(p CredentialsProvider) Option {
	return func(c *Connection) { c.creds = p }
}

// WithTransport makes the connection use a shared transport multiplexer
// instead of creating its own
func WithTransport(t Transport) Option {
	return func(c *Connection) { c.transport = t }
}

// WithConfig sets the WebSocket configuration used when the connection
// creates its own transport. Ignored together with WithTransport.
func WithConfig(config tws.Config) Option {
	return func(c *Connection) { c.wsConfig = config }
}

// WithDelegate sets the connection-level delegate
func WithDelegate(d Delegate) Option {
	return func(c *Connection) { c.delegate = d }
}

// WithStats sets the transport measurement hooks
func WithStats(s Stats) Option {
	return func(c *Connection) { c.stats = s }
}

// WithLogger sets the logger. Default: no logging.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Connection) { c.logger = logger }
}

// WithMaxAttempts caps consecutive connection attempts; once exhausted, the
// connection reports a single fatal error and stops retrying. 0 = unlimited.
func WithMaxAttempts(n int) Option {
	return func(c *Connection) { c.maxAttempts = n }
}

// WithBackoff sets the backoff policy between connection attempts. The
// attempt budget comes from WithMaxAttempts; a MaxAttempts set in the config
// is ignored.
func WithBackoff(config retry.ExpConfig) Option {
	return func(c *Connection) { c.backoffCfg = config }
}

// WithCallbackExecutor redirects delegate and subscription callbacks to the
// given executor. The executor must preserve submission order. Default: a
// dedicated goroutine owned by the connection.
func WithCallbackExecutor(exec func(fn func())) Option {
	return func(c *Connection) { c.execFn = exec }
}
