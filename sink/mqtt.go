package sink

import (
	"context"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/datagate-io/datagate/errors"
	"github.com/datagate-io/datagate/message"
)

func init() {
	mustRegisterWriter("mqtt", newMQTTWriter)
}

// mqttWriter publishes each encoded payload to the resolved target
// topic. Args: broker (required), client_id, qos, retain.
type mqttWriter struct {
	broker   string
	clientID string
	qos      byte
	retain   bool
	logger   *slog.Logger
	client   mqtt.Client
}

func newMQTTWriter(cfg Config, logger *slog.Logger) (Writer, error) {
	broker, err := stringArg(cfg.Args, "broker")
	if err != nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Sink", "mqtt", err.Error())
	}
	qos := optIntArg(cfg.Args, "qos", 0)
	if qos < 0 || qos > 2 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Sink", "mqtt", "qos must be 0, 1 or 2")
	}
	retain, _ := cfg.Args["retain"].(bool)
	return &mqttWriter{
		broker:   broker,
		clientID: optStringArg(cfg.Args, "client_id", "datagate-sink-"+cfg.ID),
		qos:      byte(qos),
		retain:   retain,
		logger:   logger,
	}, nil
}

func (w *mqttWriter) Connect(context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(w.broker).
		SetClientID(w.clientID).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			w.logger.Warn("mqtt connection lost", "broker", w.broker, "error", err)
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return errors.WrapTransient(errors.ErrNoConnection, "Sink", "mqtt", "connect to "+w.broker+": "+err.Error())
	}
	w.client = client
	return nil
}

func (w *mqttWriter) Write(_ context.Context, target string, payload []byte, _ *message.Batch) error {
	if w.client == nil || !w.client.IsConnected() {
		return errors.WrapTransient(errors.ErrConnectionLost, "Sink", "mqtt", "publish to "+target)
	}
	token := w.client.Publish(target, w.qos, w.retain, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return errors.WrapTransient(err, "Sink", "mqtt", "publish to "+target)
	}
	return nil
}

func (w *mqttWriter) Close(timeout time.Duration) error {
	if w.client != nil {
		w.client.Disconnect(uint(timeout.Milliseconds()))
		w.client = nil
	}
	return nil
}
