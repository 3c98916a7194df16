package events

import (
	"BUREAU/config"
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTPublisher mirrors detection events to <topic>/<event type>.
type MQTTPublisher struct {
	client  mqtt.Client
	topic   string
	timeout time.Duration
	log     *zap.Logger
}

func NewMQTTPublisher(cfg config.MQTTConfig, timeout time.Duration, log *zap.Logger) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("mqtt connection lost", zap.Error(err))
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("mqtt: connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connection error: %w", err)
	}

	log.Info("mqtt connected", zap.String("broker", cfg.Broker))
	return newMQTTPublisher(client, cfg.Topic, timeout, log), nil
}

func newMQTTPublisher(client mqtt.Client, topic string, timeout time.Duration, log *zap.Logger) *MQTTPublisher {
	return &MQTTPublisher{client: client, topic: topic, timeout: timeout, log: log}
}

func (p *MQTTPublisher) Publish(_ context.Context, ev DetectionEvent) {
	if !p.client.IsConnected() {
		p.log.Warn("mqtt not connected, event dropped", zap.String("type", ev.Type))
		return
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		p.log.Error("failed to encode event", zap.Error(err))
		return
	}

	topic := p.topic + "/" + ev.Type
	token := p.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(p.timeout) {
		p.log.Warn("mqtt publish timeout", zap.String("topic", topic))
		return
	}
	if err := token.Error(); err != nil {
		p.log.Warn("mqtt publish failed", zap.String("topic", topic), zap.Error(err))
	}
}

func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
