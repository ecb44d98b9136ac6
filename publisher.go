package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/nats-io/nats.go"
)

// TickSummary is what publishers send for each merged fleet tick.
type TickSummary struct {
	Timestamp time.Time         `json:"timestamp"`
	Stats     Stats             `json:"stats"`
	Vehicles  []VehicleSnapshot `json:"vehicles"`
}

// Publisher forwards tick summaries to a message bus.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, payload []byte) error
	Close()
}

type natsPublisher struct {
	conn    *nats.Conn
	subject string
}

func newNatsPublisher(log *slog.Logger, url, subject, user, password string) (*natsPublisher, error) {
	opts := []nats.Option{
		nats.Name("fleetview"),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("disconnected from NATS", "err", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("reconnected to NATS", "url", nc.ConnectedUrl())
		}),
	}
	if user != "" {
		opts = append(opts, nats.UserInfo(user, password))
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS %s: %w", url, err)
	}
	return &natsPublisher{conn: nc, subject: subject}, nil
}

func (p *natsPublisher) Name() string { return "nats" }

func (p *natsPublisher) Publish(_ context.Context, payload []byte) error {
	return p.conn.Publish(p.subject, payload)
}

func (p *natsPublisher) Close() { p.conn.Close() }

type mqttPublisher struct {
	client mqtt.Client
	topic  string
}

func newMQTTPublisher(broker, clientID, topic string, timeout time.Duration) (*mqttPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(timeout)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to MQTT %s: %w", broker, token.Error())
	}
	return &mqttPublisher{client: client, topic: topic}, nil
}

func (p *mqttPublisher) Name() string { return "mqtt" }

func (p *mqttPublisher) Publish(ctx context.Context, payload []byte) error {
	token := p.client.Publish(p.topic, 0, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *mqttPublisher) Close() { p.client.Disconnect(250) }

// publishOnFleet sends a summary of every fully merged tick to each publisher.
func publishOnFleet(log *slog.Logger, pubs []Publisher, timeout time.Duration, now func() time.Time) func(FleetUpdate) {
	return func(u FleetUpdate) {
		if !u.Published || u.Degraded || len(pubs) == 0 {
			return
		}
		payload, err := json.Marshal(TickSummary{Timestamp: now().UTC(), Stats: u.Stats, Vehicles: u.Snapshots})
		if err != nil {
			log.Error("encode tick summary", "err", err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		for _, p := range pubs {
			if err := p.Publish(ctx, payload); err != nil {
				log.Warn("publish tick failed", "publisher", p.Name(), "err", err)
			}
		}
	}
}
