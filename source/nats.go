package source

import (
	"context"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/datagate-io/datagate/errors"
	"github.com/datagate-io/datagate/natsutil"
)

func init() {
	mustRegisterAdapter("nats", newNATSAdapter)
}

// natsAdapter subscribes to a NATS subject and emits each message's
// data. Args: url (required), subject (required), queue (optional
// queue group for load-balanced ingestion), username/password/token
// (optional auth).
type natsAdapter struct {
	cfg     Config
	url     string
	subject string
	queue   string
	logger  *slog.Logger
	conn    *nats.Conn
	sub     *nats.Subscription
}

func newNATSAdapter(cfg Config, logger *slog.Logger) (Adapter, error) {
	url, err := stringArg(cfg.Args, "url")
	if err != nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Source", "nats", err.Error())
	}
	subject, err := stringArg(cfg.Args, "subject")
	if err != nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Source", "nats", err.Error())
	}
	return &natsAdapter{
		cfg:     cfg,
		url:     url,
		subject: subject,
		queue:   optStringArg(cfg.Args, "queue", ""),
		logger:  logger,
	}, nil
}

func (a *natsAdapter) Start(_ context.Context, emit func([]byte)) error {
	conn, err := natsutil.Connect(a.url, a.logger,
		natsutil.WithName("datagate-source-"+a.cfg.ID),
		natsutil.WithCredentials(optStringArg(a.cfg.Args, "username", ""), optStringArg(a.cfg.Args, "password", "")),
		natsutil.WithToken(optStringArg(a.cfg.Args, "token", "")),
	)
	if err != nil {
		return err
	}

	handler := func(m *nats.Msg) { emit(m.Data) }
	var sub *nats.Subscription
	if a.queue != "" {
		sub, err = conn.QueueSubscribe(a.subject, a.queue, handler)
	} else {
		sub, err = conn.Subscribe(a.subject, handler)
	}
	if err != nil {
		conn.Close()
		return errors.WrapTransient(err, "Source", "nats", "subscribe "+a.subject)
	}

	a.conn = conn
	a.sub = sub
	return nil
}

func (a *natsAdapter) Stop(time.Duration) error {
	if a.sub != nil {
		if err := a.sub.Unsubscribe(); err != nil {
			a.logger.Warn("nats unsubscribe failed", "subject", a.subject, "error", err)
		}
		a.sub = nil
	}
	natsutil.Close(a.conn)
	a.conn = nil
	return nil
}
