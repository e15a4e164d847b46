package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/mahidalhan/axon/internal/eeg"
	"go.uber.org/zap"
)

// MQTTConfig points at the broker a headband bridge publishes to. The bridge
// announces devices on <prefix>/<address>/announce and streams samples on
// <prefix>/<address>/eeg.
type MQTTConfig struct {
	Broker         string
	TopicPrefix    string
	ClientID       string
	QoS            byte
	ConnectTimeout time.Duration
	BufferSize     int
}

func (c MQTTConfig) withDefaults() MQTTConfig {
	if c.TopicPrefix == "" {
		c.TopicPrefix = "muse"
	}
	if c.ClientID == "" {
		c.ClientID = "axon"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 1024
	}
	return c
}

func sampleTopic(prefix, address string) string { return prefix + "/" + address + "/eeg" }

func announceFilter(prefix string) string { return prefix + "/+/announce" }

// wireSample is the bridge's JSON payload. Timestamp is unix seconds.
type wireSample struct {
	Timestamp float64 `json:"timestamp"`
	TP9       float64 `json:"tp9"`
	AF7       float64 `json:"af7"`
	AF8       float64 `json:"af8"`
	TP10      float64 `json:"tp10"`
	Aux       float64 `json:"aux"`
}

func decodeSample(payload []byte, now func() time.Time) (eeg.Sample, error) {
	var w wireSample
	if err := json.Unmarshal(payload, &w); err != nil {
		return eeg.Sample{}, fmt.Errorf("failed to decode sample: %w", err)
	}
	ts := now()
	if w.Timestamp > 0 {
		sec, frac := math.Modf(w.Timestamp)
		ts = time.Unix(int64(sec), int64(frac*1e9))
	}
	return eeg.Sample{
		Timestamp: ts,
		Values:    [eeg.NumChannels]float64{w.TP9, w.AF7, w.AF8, w.TP10},
		Aux:       w.Aux,
	}, nil
}

func decodeAnnouncement(topic string, payload []byte) (Device, bool) {
	var d Device
	if err := json.Unmarshal(payload, &d); err != nil {
		return Device{}, false
	}
	if d.Address == "" {
		parts := strings.Split(topic, "/")
		if len(parts) < 3 {
			return Device{}, false
		}
		d.Address = parts[len(parts)-2]
	}
	if d.Name == "" {
		d.Name = d.Address
	}
	return d, true
}

func (c MQTTConfig) clientOptions(suffix string) *mqtt.ClientOptions {
	return mqtt.NewClientOptions().
		AddBroker(c.Broker).
		SetClientID(c.ClientID + "-" + suffix).
		SetConnectTimeout(c.ConnectTimeout).
		SetAutoReconnect(true)
}

func waitToken(ctx context.Context, tok mqtt.Token, timeout time.Duration) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(timeout):
		return fmt.Errorf("timed out after %s", timeout)
	}
}

// Discover lists the devices announced on the broker within timeout.
func Discover(ctx context.Context, cfg MQTTConfig, timeout time.Duration, log *zap.Logger) ([]Device, error) {
	cfg = cfg.withDefaults()
	client := mqtt.NewClient(cfg.clientOptions("discover"))
	if err := waitToken(ctx, client.Connect(), cfg.ConnectTimeout); err != nil {
		return nil, fmt.Errorf("failed to connect to broker %s: %w", cfg.Broker, err)
	}
	defer client.Disconnect(250)

	var mu sync.Mutex
	seen := map[string]Device{}
	var order []string
	handler := func(_ mqtt.Client, msg mqtt.Message) {
		d, ok := decodeAnnouncement(msg.Topic(), msg.Payload())
		if !ok {
			log.Warn("Ignoring malformed device announcement", zap.String("topic", msg.Topic()))
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if _, dup := seen[d.Address]; !dup {
			order = append(order, d.Address)
		}
		seen[d.Address] = d
	}
	if err := waitToken(ctx, client.Subscribe(announceFilter(cfg.TopicPrefix), cfg.QoS, handler), cfg.ConnectTimeout); err != nil {
		return nil, fmt.Errorf("failed to subscribe to announcements: %w", err)
	}

	select {
	case <-time.After(timeout):
	case <-ctx.Done():
	}
	client.Unsubscribe(announceFilter(cfg.TopicPrefix))

	mu.Lock()
	defer mu.Unlock()
	out := make([]Device, 0, len(order))
	for _, addr := range order {
		out = append(out, seen[addr])
	}
	log.Info("Device discovery finished", zap.Int("count", len(out)))
	return out, nil
}

// MQTTSource streams one headband through the bridge.
type MQTTSource struct {
	cfg     MQTTConfig
	address string
	log     *zap.Logger
	broker  *Broker
	onDrop  func()
	now     func() time.Time

	mu         sync.Mutex
	client     mqtt.Client
	pump       *pump
	subscribed atomic.Bool
	active     atomic.Bool
}

func NewMQTTSource(cfg MQTTConfig, address string, log *zap.Logger) *MQTTSource {
	return &MQTTSource{
		cfg:     cfg.withDefaults(),
		address: address,
		log:     log.With(zap.String("device", address)),
		broker:  NewBroker(),
		now:     time.Now,
	}
}

func (s *MQTTSource) Name() string { return "mqtt" }

func (s *MQTTSource) OnDrop(fn func()) { s.onDrop = fn }

func (s *MQTTSource) Subscribe(h Handler) func() { return s.broker.Subscribe(h) }

// Active is true while the broker connection is up and the sample topic is
// subscribed.
func (s *MQTTSource) Active() bool {
	return s.active.Load() && s.subscribed.Load()
}

// Start connects and subscribes to the device's sample topic. Failing either
// step returns ErrOpenChannel. After that, transport errors are logged and
// samples resume once the client reconnects.
func (s *MQTTSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return ErrAlreadyStarted
	}

	topic := sampleTopic(s.cfg.TopicPrefix, s.address)
	opts := s.cfg.clientOptions(s.address).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			s.subscribed.Store(false)
			s.log.Warn("Lost connection to MQTT broker", zap.Error(err))
		}).
		SetOnConnectHandler(func(c mqtt.Client) {
			if !s.active.Load() {
				return
			}
			tok := c.Subscribe(topic, s.cfg.QoS, s.onMessage)
			if tok.WaitTimeout(s.cfg.ConnectTimeout) && tok.Error() == nil {
				s.subscribed.Store(true)
				s.log.Info("Resubscribed after reconnect", zap.String("topic", topic))
				return
			}
			s.log.Error("Failed to resubscribe after reconnect", zap.String("topic", topic), zap.Error(tok.Error()))
		})

	client := mqtt.NewClient(opts)
	if err := waitToken(ctx, client.Connect(), s.cfg.ConnectTimeout); err != nil {
		return fmt.Errorf("%w: connect %s: %v", ErrOpenChannel, s.cfg.Broker, err)
	}

	s.pump = newPump(s.cfg.BufferSize, s.broker, s.onDrop)
	if err := waitToken(ctx, client.Subscribe(topic, s.cfg.QoS, s.onMessage), s.cfg.ConnectTimeout); err != nil {
		client.Disconnect(250)
		s.pump.close()
		return fmt.Errorf("%w: subscribe %s: %v", ErrOpenChannel, topic, err)
	}

	s.client = client
	s.subscribed.Store(true)
	s.active.Store(true)
	s.log.Info("MQTT stream started", zap.String("topic", topic))
	return nil
}

func (s *MQTTSource) onMessage(_ mqtt.Client, msg mqtt.Message) {
	sample, err := decodeSample(msg.Payload(), s.now)
	if err != nil {
		s.log.Warn("Dropping malformed sample", zap.Error(err))
		return
	}
	s.pump.offer(sample)
}

func (s *MQTTSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return
	}
	s.active.Store(false)
	s.subscribed.Store(false)
	s.client.Unsubscribe(sampleTopic(s.cfg.TopicPrefix, s.address))
	s.client.Disconnect(250)
	s.pump.close()
	s.client = nil
	s.log.Info("MQTT stream stopped", zap.Uint64("dropped", s.pump.Dropped()))
}
