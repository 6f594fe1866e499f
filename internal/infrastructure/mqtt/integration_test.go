//go:build integration

package mqtt

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/indihub/internal/control"
)

// Integration tests need a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func TestIntegration_Connect(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "indihub-int-connect"

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
}

func TestIntegration_BrokerRefused(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 19998

	_, err := Connect(cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestIntegration_SubscriptionTracking(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "indihub-int-sub-track"

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	topics := []string{"indihub/int/one", "indihub/int/two"}
	for _, topic := range topics {
		if err := client.Subscribe(topic, 1, func(string, []byte) error { return nil }); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", topic, err)
		}
	}
	if client.SubscriptionCount() != len(topics) {
		t.Errorf("SubscriptionCount() = %d, want %d", client.SubscriptionCount(), len(topics))
	}

	if err := client.Subscribe(topics[0], 0, func(string, []byte) error { return nil }); err != nil {
		t.Fatalf("re-Subscribe() error = %v", err)
	}
	if client.SubscriptionCount() != len(topics) {
		t.Errorf("SubscriptionCount() = %d after re-subscribe, want %d", client.SubscriptionCount(), len(topics))
	}
}

func TestIntegration_ControlRoundtrip(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "indihub-int-control-sub"
	sub, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() subscriber error = %v", err)
	}
	defer sub.Close()

	cfg.Broker.ClientID = "indihub-int-control-pub"
	pub, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() publisher error = %v", err)
	}
	defer pub.Close()

	received := make(chan control.Command, 1)
	if err := sub.SubscribeControl(func(cmd control.Command) { received <- cmd }); err != nil {
		t.Fatalf("SubscribeControl() error = %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if err := pub.Publish(Topics{}.Control(), []byte("stop indi_eqmod"), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case cmd := <-received:
		if cmd.Verb != control.VerbStop || cmd.Driver != "indi_eqmod" {
			t.Errorf("command = %+v", cmd)
		}
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for control command")
	}
}

func TestIntegration_CallbacksRegistered(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "indihub-int-callbacks"

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	var disconnected atomic.Bool
	client.SetOnDisconnect(func(error) { disconnected.Store(true) })
	client.SetOnConnect(func() {})

	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	// A clean Disconnect does not fire the connection-lost handler.
	if disconnected.Load() {
		t.Error("OnDisconnect fired for a clean Close()")
	}
}
