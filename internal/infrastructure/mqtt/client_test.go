package mqtt

import (
	"encoding/json"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/smartpot-core/internal/infrastructure/config"
	"github.com/nerrad567/smartpot-core/internal/infrastructure/logging"
)

const testBrokerAddr = "127.0.0.1:1883"

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "smartpot-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// connectOrSkip returns a live client, or skips when no broker listens on
// the default local port.
func connectOrSkip(t *testing.T, clientID string) *Client {
	t.Helper()
	conn, err := net.DialTimeout("tcp", testBrokerAddr, 500*time.Millisecond)
	if err != nil {
		t.Skipf("no MQTT broker at %s: %v", testBrokerAddr, err)
	}
	conn.Close()

	cfg := testConfig()
	cfg.Broker.ClientID = clientID
	c, err := Connect(cfg, logging.Discard())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func disconnectedClient() *Client {
	return &Client{subscriptions: make(map[string]subscription)}
}

func TestTopics(t *testing.T) {
	topics := Topics{}
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"SensorAck", topics.SensorAck("p1"), "smartpot/sensor/p1/ack"},
		{"SystemStatus", topics.SystemStatus(), "smartpot/system/status"},
		{"AllSensorReadings", topics.AllSensorReadings(), "smartpot/sensor/+/reading"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestParseSensorReadingTopic(t *testing.T) {
	tests := []struct {
		topic  string
		want   string
		wantOK bool
	}{
		{"smartpot/sensor/abc/reading", "abc", true},
		{TopicPrefix + "/sensor/0b6f3c2e/reading", "0b6f3c2e", true},
		{"smartpot/sensor/abc/ack", "", false},
		{"smartpot/sensor//reading", "", false},
		{"smartpot/sensor/+/reading", "", false},
		{"other/sensor/abc/reading", "", false},
		{"smartpot/sensor/a/b/reading", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			got, ok := ParseSensorReadingTopic(tt.topic)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseSensorReadingTopic(%q) = (%q, %v), want (%q, %v)", tt.topic, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "pot"
	cfg.Auth.Password = "secret"
	cfg.Broker.TLS = true

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want ssl://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "smartpot-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "pot" || opts.Password != "secret" {
		t.Errorf("credentials not applied: %q/%q", opts.Username, opts.Password)
	}
	if opts.TLSConfig == nil {
		t.Error("TLSConfig nil with TLS enabled")
	}
	if !opts.WillEnabled || opts.WillTopic != "smartpot/system/status" || !opts.WillRetained {
		t.Errorf("will = enabled:%v topic:%q retained:%v", opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}
	if !strings.Contains(string(opts.WillPayload), `"unexpected_disconnect"`) {
		t.Errorf("will payload = %s", opts.WillPayload)
	}
}

func TestStatusPayload(t *testing.T) {
	var msg statusMessage
	if err := json.Unmarshal(statusPayload("core-1", "online", ""), &msg); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if msg.Status != "online" || msg.ClientID != "core-1" || msg.Reason != "" {
		t.Errorf("payload = %+v", msg)
	}
	if _, err := time.Parse(time.RFC3339, msg.Timestamp); err != nil {
		t.Errorf("timestamp %q: %v", msg.Timestamp, err)
	}
}

func TestValidationWithoutConnection(t *testing.T) {
	c := disconnectedClient()
	noop := func(string, []byte) error { return nil }

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"publish empty topic", c.Publish("", nil, 0, false), ErrInvalidTopic},
		{"publish bad qos", c.Publish("t", nil, 3, false), ErrInvalidQoS},
		{"publish oversize", c.Publish("t", make([]byte, maxPayloadSize+1), 0, false), ErrPublishFailed},
		{"publish disconnected", c.Publish("t", []byte("x"), 1, false), ErrNotConnected},
		{"subscribe empty topic", c.Subscribe("", 0, noop), ErrInvalidTopic},
		{"subscribe bad qos", c.Subscribe("t", 3, noop), ErrInvalidQoS},
		{"subscribe nil handler", c.Subscribe("t", 0, nil), ErrSubscribeFailed},
		{"subscribe disconnected", c.Subscribe("t", 0, noop), ErrNotConnected},
		{"unsubscribe empty topic", c.Unsubscribe(""), ErrInvalidTopic},
		{"unsubscribe disconnected", c.Unsubscribe("t"), ErrNotConnected},
		{"health disconnected", c.HealthCheck(t.Context()), ErrNotConnected},
	}
	for _, tt := range tests {
		if !errors.Is(tt.err, tt.want) {
			t.Errorf("%s: error = %v, want %v", tt.name, tt.err, tt.want)
		}
	}
	if len(c.subscriptions) != 0 {
		t.Errorf("%d subscriptions tracked after failed subscribes", len(c.subscriptions))
	}
}

func TestCloseNil(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Errorf("nil Close() = %v", err)
	}
	if err := disconnectedClient().Close(); err != nil {
		t.Errorf("Close() without paho client = %v", err)
	}
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func TestWrapHandler_RecoversPanic(t *testing.T) {
	c := disconnectedClient()
	c.logger = logging.Discard()

	called := false
	h := c.wrapHandler(func(topic string, payload []byte) error {
		called = true
		if topic != "smartpot/sensor/p/reading" || string(payload) != "{}" {
			t.Errorf("handler got (%q, %q)", topic, payload)
		}
		panic("boom")
	})

	h(nil, fakeMessage{topic: "smartpot/sensor/p/reading", payload: []byte("{}")})
	if !called {
		t.Error("handler not invoked")
	}
}

func TestPublishSubscribeRoundtrip(t *testing.T) {
	c := connectOrSkip(t, "smartpot-test-roundtrip")

	plantID := "roundtrip-" + time.Now().Format("150405.000000")
	var (
		mu  sync.Mutex
		got string
	)
	received := make(chan struct{}, 1)

	err := c.Subscribe(Topics{}.AllSensorReadings(), 1, func(topic string, payload []byte) error {
		if id, ok := ParseSensorReadingTopic(topic); !ok || id != plantID {
			return nil
		}
		mu.Lock()
		got = string(payload)
		mu.Unlock()
		select {
		case received <- struct{}{}:
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	c.subMu.RLock()
	tracked := len(c.subscriptions)
	c.subMu.RUnlock()
	if tracked != 1 {
		t.Errorf("tracked subscriptions = %d, want 1", tracked)
	}

	if err := c.Publish(TopicPrefix+"/sensor/"+plantID+"/reading", []byte(`{"moisture":1}`), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case <-received:
	case <-time.After(5 * time.Second):
		t.Fatal("message not received")
	}
	mu.Lock()
	defer mu.Unlock()
	if got != `{"moisture":1}` {
		t.Errorf("payload = %q", got)
	}

	if err := c.Unsubscribe(Topics{}.AllSensorReadings()); err != nil {
		t.Errorf("Unsubscribe() error = %v", err)
	}
	if err := c.HealthCheck(t.Context()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}
