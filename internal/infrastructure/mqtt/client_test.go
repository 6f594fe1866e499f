package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/indihub/internal/control"
	"github.com/nerrad567/indihub/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration. Only the integration
// tests dial it; a running broker is expected at 127.0.0.1:1883.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "indihub-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v, want nil", err)
	}
}

func TestIsConnected_InitialState(t *testing.T) {
	client := &Client{}
	if client.IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
}

func TestHealthCheck(t *testing.T) {
	client := &Client{}

	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v, want context.Canceled", err)
	}
}

func TestPublishValidation(t *testing.T) {
	client := &Client{}
	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"empty topic", "", nil, 1, ErrInvalidTopic},
		{"invalid qos", "indihub/test", nil, 3, ErrInvalidQoS},
		{"oversized payload", "indihub/test", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"not connected", "indihub/test", []byte("x"), 1, ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubscribeValidation(t *testing.T) {
	client := &Client{subscriptions: map[string]subscription{}}
	handler := func(string, []byte) error { return nil }

	tests := []struct {
		name    string
		topic   string
		qos     byte
		handler MessageHandler
		wantErr error
	}{
		{"empty topic", "", 1, handler, ErrInvalidTopic},
		{"invalid qos", "indihub/control", 3, handler, ErrInvalidQoS},
		{"nil handler", "indihub/control", 1, nil, ErrSubscribeFailed},
		{"not connected", "indihub/control", 1, handler, ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.Subscribe(tt.topic, tt.qos, tt.handler)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Subscribe() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
	if client.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d after failed subscribes, want 0", client.SubscriptionCount())
	}

	if err := client.SubscribeControl(func(control.Command) {}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SubscribeControl() error = %v, want ErrNotConnected", err)
	}
}

func TestClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Auth.Username = "observatory"
	cfg.Auth.Password = "secret"

	opts := clientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want ssl://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "indihub-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "observatory" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q", opts.Username, opts.Password)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLSConfig not set to the minimum version")
	}
	if !opts.WillEnabled || opts.WillTopic != "indihub/status" || !opts.WillRetained {
		t.Errorf("will = %v %q retained=%v", opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}

	var will map[string]string
	if err := json.Unmarshal(opts.WillPayload, &will); err != nil {
		t.Fatalf("will payload is not JSON: %v", err)
	}
	if will["status"] != "offline" || will["reason"] != "unexpected_disconnect" {
		t.Errorf("will payload = %v", will)
	}
}

func TestClientOptions_ReconnectFallbacks(t *testing.T) {
	tests := []struct {
		name      string
		initial   int
		max       int
		wantRetry time.Duration
		wantMax   time.Duration
	}{
		{"configured", 2, 30, 2 * time.Second, 30 * time.Second},
		{"zero", 0, 0, fallbackRetryInterval, fallbackMaxReconnect},
		{"negative", -1, -5, fallbackRetryInterval, fallbackMaxReconnect},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Reconnect.InitialDelay = tt.initial
			cfg.Reconnect.MaxDelay = tt.max

			opts := clientOptions(cfg)
			if opts.ConnectRetryInterval != tt.wantRetry {
				t.Errorf("ConnectRetryInterval = %v, want %v", opts.ConnectRetryInterval, tt.wantRetry)
			}
			if opts.MaxReconnectInterval != tt.wantMax {
				t.Errorf("MaxReconnectInterval = %v, want %v", opts.MaxReconnectInterval, tt.wantMax)
			}
		})
	}
}

func TestStatusPayloads(t *testing.T) {
	tests := []struct {
		name       string
		payload    []byte
		wantStatus string
		wantReason string
	}{
		{"online", onlinePayload("hub"), "online", ""},
		{"graceful", offlinePayload("hub", reasonShutdown), "offline", "graceful_shutdown"},
		{"unexpected", offlinePayload("hub", reasonUnexpected), "offline", "unexpected_disconnect"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got map[string]string
			if err := json.Unmarshal(tt.payload, &got); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if got["status"] != tt.wantStatus || got["reason"] != tt.wantReason || got["client_id"] != "hub" {
				t.Errorf("payload = %v", got)
			}
			if got["timestamp"] == "" {
				t.Error("timestamp missing")
			}
		})
	}
}

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"Status", topics.Status(), "indihub/status"},
		{"Event", topics.Event("driver.retired"), "indihub/events/driver.retired"},
		{"Stats", topics.Stats(), "indihub/stats"},
		{"Control", topics.Control(), "indihub/control"},
		{"AllEvents", topics.AllEvents(), "indihub/events/+"},
		{"AllTopics", topics.AllTopics(), "indihub/#"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
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

func TestWrapHandler(t *testing.T) {
	logger := &mockLogger{}
	client := &Client{}
	client.SetLogger(logger)

	client.wrapHandler(func(string, []byte) error {
		return errors.New("bad payload")
	})(nil, fakeMessage{topic: "indihub/control"})

	client.wrapHandler(func(string, []byte) error {
		panic("boom")
	})(nil, fakeMessage{topic: "indihub/control"})

	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.warns) != 1 {
		t.Errorf("warns = %v, want one handler error", logger.warns)
	}
	if len(logger.errors) != 1 {
		t.Errorf("errors = %v, want one recovered panic", logger.errors)
	}
}

// mockLogger implements Logger for testing.
type mockLogger struct {
	errors []string
	warns  []string
	mu     sync.Mutex
}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}
