package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/nerrad567/tswrite/internal/infrastructure/config"
)

// ===== Topics =====

func TestTopics(t *testing.T) {
	tests := []struct {
		name   string
		topics Topics
		got    func(Topics) string
		want   string
	}{
		{"status", NewTopics("site/tswrite"), Topics.Status, "site/tswrite/status"},
		{"dead letter", NewTopics("site/tswrite"), func(tp Topics) string { return tp.DeadLetter("buffer_overrun") }, "site/tswrite/deadletter/buffer_overrun"},
		{"default prefix", NewTopics(""), Topics.Status, "tswrite/status"},
		{"zero value", Topics{}, func(tp Topics) string { return tp.DeadLetter("permanent") }, "tswrite/deadletter/permanent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.got(tt.topics); got != tt.want {
				t.Errorf("topic = %q, want %q", got, tt.want)
			}
		})
	}
}

// ===== Options =====

func testConfig() config.MQTTConfig {
	cfg := config.MQTTConfig{}
	cfg.Broker.Host = "localhost"
	cfg.Broker.Port = 1883
	cfg.Broker.ClientID = "tswrite-test"
	cfg.QoS = 1
	cfg.Reconnect.InitialDelay = 1
	cfg.Reconnect.MaxDelay = 60
	return cfg
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "writer"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://localhost:1883" {
		t.Errorf("Servers = %v, want [tcp://localhost:1883]", opts.Servers)
	}
	if opts.ClientID != "tswrite-test" {
		t.Errorf("ClientID = %q, want tswrite-test", opts.ClientID)
	}
	if opts.Username != "writer" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q, want writer/secret", opts.Username, opts.Password)
	}
	if !opts.AutoReconnect {
		t.Error("AutoReconnect = false, want true")
	}
	if opts.MaxReconnectInterval != 60*time.Second {
		t.Errorf("MaxReconnectInterval = %v, want 60s", opts.MaxReconnectInterval)
	}
}

func TestBuildClientOptions_TLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883

	opts := buildClientOptions(cfg)

	if opts.Servers[0].String() != "ssl://localhost:8883" {
		t.Errorf("Servers[0] = %v, want ssl://localhost:8883", opts.Servers[0])
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLSConfig not set with minimum version")
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureLWT(opts, NewTopics("tswrite"), "tswrite-test")

	if !opts.WillEnabled {
		t.Fatal("WillEnabled = false, want true")
	}
	if opts.WillTopic != "tswrite/status" {
		t.Errorf("WillTopic = %q, want tswrite/status", opts.WillTopic)
	}
	if !opts.WillRetained {
		t.Error("WillRetained = false, want true")
	}

	var s status
	if err := json.Unmarshal(opts.WillPayload, &s); err != nil {
		t.Fatalf("Unmarshal(will) error = %v", err)
	}
	if s.Status != "offline" || s.Reason != "unexpected_disconnect" || s.ClientID != "tswrite-test" {
		t.Errorf("will = %+v", s)
	}
}

func TestStatusPayload(t *testing.T) {
	var s status
	if err := json.Unmarshal(statusPayload("c1", "online", ""), &s); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if s.Status != "online" || s.ClientID != "c1" {
		t.Errorf("status = %+v", s)
	}
	if _, err := time.Parse(time.RFC3339, s.Timestamp); err != nil {
		t.Errorf("Timestamp %q is not RFC3339: %v", s.Timestamp, err)
	}
}

// ===== Publish validation =====

func TestPublish_Validation(t *testing.T) {
	c := &Client{}

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"bad qos", "a/b", []byte("x"), 3, ErrInvalidQoS},
		{"too large", "a/b", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"not connected", "a/b", []byte("x"), 1, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPublishJSON_EncodingError(t *testing.T) {
	c := &Client{}
	err := c.PublishJSON("a/b", make(chan int))
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("PublishJSON() error = %v, want ErrPublishFailed", err)
	}
}

func TestClient_ZeroValue(t *testing.T) {
	c := &Client{}
	if c.IsConnected() {
		t.Error("IsConnected() = true on zero client")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

// ===== Broker =====

// requireBroker skips unless a broker accepts connections on localhost:1883.
func requireBroker(t *testing.T) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", "localhost:1883", 500*time.Millisecond)
	if err != nil {
		t.Skip("no MQTT broker on localhost:1883")
	}
	conn.Close()
}

func TestConnect_PublishAndClose(t *testing.T) {
	requireBroker(t)

	cfg := testConfig()
	cfg.Broker.ClientID = fmt.Sprintf("tswrite-test-%d", time.Now().UnixNano())

	c, err := Connect(cfg, NewTopics("tswrite-test"))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if !c.IsConnected() {
		t.Error("IsConnected() = false after Connect")
	}
	if err := c.PublishJSON(c.Topics().DeadLetter("permanent"), map[string]int{"points": 1}); err != nil {
		t.Errorf("PublishJSON() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
}
