// Package lqwatch is a command-line tool that subscribes to a live query
// and logs every event the server pushes. Useful for poking at a server
// and for watching what a query actually matches.
package lqwatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ridge/livequery/client"
	"github.com/ridge/livequery/retry"
	"github.com/ridge/livequery/run"
	"github.com/ridge/livequery/tlog"
	"github.com/ridge/livequery/wire"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// Config contains the watcher parameters
type Config struct {
	Server           string
	Credentials      wire.Credentials
	Class            string
	Where            string
	Fields           []string
	UnlimitedRetries bool
}

// Main handles the command line and runs the watcher
func Main(args []string) {
	var cfg Config
	pflag.StringVar(&cfg.Server, "server", "", "Live query server URL")
	pflag.StringVar(&cfg.Credentials.ApplicationID, "app-id", "", "Application ID")
	pflag.StringVar(&cfg.Credentials.ClientKey, "client-key", "", "Client key")
	pflag.StringVar(&cfg.Credentials.SessionToken, "session-token", "", "Session token")
	pflag.StringVar(&cfg.Class, "class", "", "Class to watch")
	pflag.StringVar(&cfg.Where, "where", "", "Query condition (JSON)")
	pflag.StringArrayVar(&cfg.Fields, "field", nil, "Field to include in events (can be repeated). Default: all fields")
	pflag.BoolVar(&cfg.UnlimitedRetries, "retry-forever", false, "Never give up reconnecting")
	_ = pflag.CommandLine.Parse(args[1:])

	if cfg.Server == "" {
		panic(fmt.Errorf("--server is required"))
	}
	if cfg.Class == "" {
		panic(fmt.Errorf("--class is required"))
	}

	run.Tool(func(ctx context.Context) error {
		return Run(ctx, cfg)
	})
}

// Run watches the configured query until the context is closed
func Run(ctx context.Context, config Config) error {
	logger := tlog.Get(ctx)

	query := wire.Query{ClassName: config.Class, Fields: config.Fields}
	if config.Where != "" {
		if !json.Valid([]byte(config.Where)) {
			return fmt.Errorf("--where is not valid JSON: %s", config.Where)
		}
		query.Where = json.RawMessage(config.Where)
	}

	opts := []client.Option{
		client.WithLogger(logger),
		client.WithCredentials(client.NewStaticCredentials(config.Credentials)),
		client.WithDelegate(watchDelegate{logger}),
	}
	if config.UnlimitedRetries {
		opts = append(opts, client.WithMaxAttempts(0))
	}

	conn, err := client.New(config.Server, opts...)
	if err != nil {
		return err
	}
	defer conn.Shutdown()

	if err := conn.Subscribe(query, watchHandler{logger}); err != nil {
		return err
	}
	if err := conn.Open(); err != nil {
		return err
	}

	// Hold the announcement until the handshake goes through
	err = retry.Do(ctx, retry.FixedConfig{RetryAfter: time.Second}, func() error {
		if !conn.Connected() {
			return retry.Retriable(errors.New("handshake not complete"))
		}
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info("Watching", zap.String("class", config.Class), zap.String("server", config.Server))

	<-ctx.Done()
	return ctx.Err()
}

type watchHandler struct {
	logger *zap.Logger
}

func (h watchHandler) OnEvent(data []byte) {
	h.logger.Info("Event", zap.ByteString("message", data))
}

func (h watchHandler) OnSubscribed(isNew bool) {
	h.logger.Info("Subscribed", zap.Bool("new", isNew))
}

func (h watchHandler) OnUnsubscribed() {
	h.logger.Info("Unsubscribed")
}

type watchDelegate struct {
	logger *zap.Logger
}

func (d watchDelegate) SocketOpened(*client.Connection) {
	d.logger.Debug("Socket opened")
}

func (d watchDelegate) SocketClosed(_ *client.Connection, err error) {
	d.logger.Info("Socket closed", zap.Error(err))
}

func (d watchDelegate) ConnectionError(_ *client.Connection, err error) {
	d.logger.Warn("Connection error", zap.Error(err))
}

func (d watchDelegate) UnsupportedMessage(_ *client.Connection, data []byte) {
	d.logger.Warn("Unsupported message", zap.Int("bytes", len(data)))
}
