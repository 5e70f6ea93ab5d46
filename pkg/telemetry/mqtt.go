// Package telemetry mirrors device property changes to an MQTT broker.
package telemetry

import (
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"mmshutter/pkg/metrics"
	"mmshutter/pkg/mmdevice"
)

const publishTimeout = 2 * time.Second

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Publisher publishes every property change as a retained message on
// <root>/<device>/<property>.
type Publisher struct {
	client publisher
	root   string
	logger log.FieldLogger
}

func NewPublisher(client publisher, topicRoot string, logger log.FieldLogger) *Publisher {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Publisher{
		client: client,
		root:   strings.Trim(topicRoot, "/"),
		logger: logger,
	}
}

func (p *Publisher) Topic(device, property string) string {
	return fmt.Sprintf("%s/%s/%s", p.root, device, property)
}

func (p *Publisher) OnPropertyChanged(device, name, value string) {
	topic := p.Topic(device, name)
	token := p.client.Publish(topic, 0, true, value)
	if !token.WaitTimeout(publishTimeout) {
		metrics.IncError(metrics.ErrMQTTPublish)
		p.logger.Warnf("Timeout publishing %s", topic)
		return
	}
	if err := token.Error(); err != nil {
		metrics.IncError(metrics.ErrMQTTPublish)
		p.logger.Errorf("Error publishing %s: %v", topic, err)
		return
	}
	p.logger.Debugf("Published %s = %s", topic, value)
}

// Connect creates an MQTT client from cfg and waits for the connection.
func Connect(cfg mmdevice.MQTTConfig, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.SetClientID(clientID)
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port))
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %v", token.Error())
	}
	return client, nil
}
