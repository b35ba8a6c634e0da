package sink

import (
	"context"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/datagate-io/datagate/errors"
	"github.com/datagate-io/datagate/message"
	"github.com/datagate-io/datagate/natsutil"
)

func init() {
	mustRegisterWriter("nats", newNATSWriter)
}

// natsWriter publishes each encoded payload to the resolved target
// subject. Args: url (required), username/password/token (optional
// auth).
type natsWriter struct {
	cfg    Config
	url    string
	logger *slog.Logger
	conn   *nats.Conn
}

func newNATSWriter(cfg Config, logger *slog.Logger) (Writer, error) {
	url, err := stringArg(cfg.Args, "url")
	if err != nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Sink", "nats", err.Error())
	}
	return &natsWriter{cfg: cfg, url: url, logger: logger}, nil
}

func (w *natsWriter) Connect(context.Context) error {
	conn, err := natsutil.Connect(w.url, w.logger,
		natsutil.WithName("datagate-sink-"+w.cfg.ID),
		natsutil.WithCredentials(optStringArg(w.cfg.Args, "username", ""), optStringArg(w.cfg.Args, "password", "")),
		natsutil.WithToken(optStringArg(w.cfg.Args, "token", "")),
	)
	if err != nil {
		return err
	}
	w.conn = conn
	return nil
}

func (w *natsWriter) Write(_ context.Context, target string, payload []byte, _ *message.Batch) error {
	if w.conn == nil || !w.conn.IsConnected() {
		return errors.WrapTransient(errors.ErrConnectionLost, "Sink", "nats", "publish to "+target)
	}
	if err := w.conn.Publish(target, payload); err != nil {
		return errors.WrapTransient(err, "Sink", "nats", "publish to "+target)
	}
	return nil
}

func (w *natsWriter) Close(time.Duration) error {
	natsutil.Close(w.conn)
	w.conn = nil
	return nil
}
