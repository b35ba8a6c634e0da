package source

import (
	"context"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/datagate-io/datagate/errors"
)

func init() {
	mustRegisterAdapter("mqtt", newMQTTAdapter)
}

// mqttAdapter subscribes to an MQTT topic and emits each publication's
// payload. Args: broker (required), topic (required), client_id, qos.
type mqttAdapter struct {
	broker   string
	topic    string
	clientID string
	qos      byte
	logger   *slog.Logger
	client   mqtt.Client
}

func newMQTTAdapter(cfg Config, logger *slog.Logger) (Adapter, error) {
	broker, err := stringArg(cfg.Args, "broker")
	if err != nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Source", "mqtt", err.Error())
	}
	topic, err := stringArg(cfg.Args, "topic")
	if err != nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Source", "mqtt", err.Error())
	}
	qos := optIntArg(cfg.Args, "qos", 0)
	if qos < 0 || qos > 2 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Source", "mqtt", "qos must be 0, 1 or 2")
	}
	return &mqttAdapter{
		broker:   broker,
		topic:    topic,
		clientID: optStringArg(cfg.Args, "client_id", "datagate-source-"+cfg.ID),
		qos:      byte(qos),
		logger:   logger,
	}, nil
}

func (a *mqttAdapter) Start(_ context.Context, emit func([]byte)) error {
	opts := mqtt.NewClientOptions().
		AddBroker(a.broker).
		SetClientID(a.clientID).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			a.logger.Warn("mqtt connection lost", "broker", a.broker, "error", err)
		}).
		SetOnConnectHandler(func(c mqtt.Client) {
			// Re-subscribe after every (re)connect so a broker restart
			// does not leave the source silently deaf.
			token := c.Subscribe(a.topic, a.qos, func(_ mqtt.Client, m mqtt.Message) {
				emit(m.Payload())
			})
			token.Wait()
			if err := token.Error(); err != nil {
				a.logger.Error("mqtt subscribe failed", "topic", a.topic, "error", err)
			}
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return errors.WrapTransient(errors.ErrNoConnection, "Source", "mqtt", "connect to "+a.broker+": "+err.Error())
	}
	a.client = client
	return nil
}

func (a *mqttAdapter) Stop(timeout time.Duration) error {
	if a.client == nil {
		return nil
	}
	token := a.client.Unsubscribe(a.topic)
	token.WaitTimeout(timeout)
	a.client.Disconnect(uint(timeout.Milliseconds()))
	a.client = nil
	return nil
}
