package livequery

import (
	"github.com/ridge/livequery/client"
	"github.com/ridge/livequery/registry"
	"github.com/ridge/livequery/wire"
)

// Connection is one live query channel to one server
type Connection = client.Connection

// Query selects the objects to watch
type Query = wire.Query

// Credentials are the identity fields presented to the server
type Credentials = wire.Credentials

// Handler receives the traffic of one subscription
type Handler = registry.Handler

// Delegate receives connection-level notifications
type Delegate = client.Delegate

// Stats receives transport-level measurements
type Stats = client.Stats

// Option configures a Connection
type Option = client.Option

// New creates a Connection
var New = client.New

// Connection options
var (
	WithCredentials      = client.WithCredentials
	WithTransport        = client.WithTransport
	WithConfig           = client.WithConfig
	WithDelegate         = client.WithDelegate
	WithStats            = client.WithStats
	WithLogger           = client.WithLogger
	WithMaxAttempts      = client.WithMaxAttempts
	WithBackoff          = client.WithBackoff
	WithCallbackExecutor = client.WithCallbackExecutor
)

// StaticCredentials is a credentials provider with fixed values
type StaticCredentials = client.StaticCredentials

// NewStaticCredentials creates a StaticCredentials, generating an
// installation identity if none is given
var NewStaticCredentials = client.NewStaticCredentials

// SetDefault installs the process-wide default connection
var SetDefault = client.SetDefault

// Default returns the process-wide default connection
var Default = client.Default
