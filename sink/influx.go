package sink

import (
	"context"
	"log/slog"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/datagate-io/datagate/errors"
	"github.com/datagate-io/datagate/message"
)

func init() {
	mustRegisterWriter("influx", newInfluxWriter)
}

// influxWriter writes each message of a batch as one point into an
// InfluxDB bucket, the resolved target naming the measurement. Scalar
// fields become point fields; fields listed in tag_fields become tags.
// Args: url, token, org, bucket (required), tag_fields (optional).
type influxWriter struct {
	url       string
	token     string
	org       string
	bucket    string
	tagFields map[string]bool
	logger    *slog.Logger

	client influxdb2.Client
	write  api.WriteAPIBlocking
}

func newInfluxWriter(cfg Config, logger *slog.Logger) (Writer, error) {
	w := &influxWriter{tagFields: make(map[string]bool), logger: logger}
	for _, key := range []string{"url", "token", "org", "bucket"} {
		v, err := stringArg(cfg.Args, key)
		if err != nil {
			return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Sink", "influx", err.Error())
		}
		switch key {
		case "url":
			w.url = v
		case "token":
			w.token = v
		case "org":
			w.org = v
		case "bucket":
			w.bucket = v
		}
	}
	if raw, ok := cfg.Args["tag_fields"].([]any); ok {
		for _, e := range raw {
			if s, ok := e.(string); ok {
				w.tagFields[s] = true
			}
		}
	}
	return w, nil
}

func (w *influxWriter) Connect(context.Context) error {
	w.client = influxdb2.NewClient(w.url, w.token)
	w.write = w.client.WriteAPIBlocking(w.org, w.bucket)
	return nil
}

func (w *influxWriter) Write(ctx context.Context, target string, _ []byte, b *message.Batch) error {
	now := time.Now()
	for _, m := range b.Messages() {
		tags := make(map[string]string)
		fields := make(map[string]any)
		m.Range(func(name string, v message.Value) bool {
			s, scalar := templateString(v)
			if w.tagFields[name] {
				if scalar {
					tags[name] = s
				}
				return true
			}
			if fv, ok := influxField(v); ok {
				fields[name] = fv
			}
			return true
		})
		if len(fields) == 0 {
			continue
		}
		p := influxdb2.NewPoint(target, tags, fields, now)
		if err := w.write.WritePoint(ctx, p); err != nil {
			return errors.WrapTransient(err, "Sink", "influx", "write to "+w.bucket)
		}
	}
	return nil
}

func (w *influxWriter) Close(time.Duration) error {
	if w.client != nil {
		w.client.Close()
		w.client = nil
		w.write = nil
	}
	return nil
}

// influxField maps a scalar Value to a native influx field value.
// Arrays, objects and nulls have no line-protocol representation and
// are skipped.
func influxField(v message.Value) (any, bool) {
	if i, ok := v.AsInt(); ok {
		return i, true
	}
	if u, ok := v.AsUint(); ok {
		return u, true
	}
	if f, ok := v.AsFloat(); ok {
		return f, true
	}
	if b, ok := v.AsBool(); ok {
		return b, true
	}
	if s, ok := v.AsString(); ok {
		return s, true
	}
	return nil, false
}
