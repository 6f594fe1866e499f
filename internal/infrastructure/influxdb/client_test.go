package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/indihub/internal/infrastructure/config"
	"github.com/nerrad567/indihub/internal/infrastructure/influxdb"
)

// fakeInflux answers /ping and records write bodies.
type fakeInflux struct {
	mu     sync.Mutex
	bodies []string
	query  string
}

func (f *fakeInflux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/ping", "/health":
		w.WriteHeader(http.StatusNoContent)
	case "/api/v2/write":
		body, _ := io.ReadAll(r.Body) //nolint:errcheck // test server
		f.mu.Lock()
		f.bodies = append(f.bodies, string(body))
		f.query = r.URL.RawQuery
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeInflux) written() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.bodies, "")
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "indihub-test-token",
		Org:           "observatory",
		Bucket:        "indihub",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

func connectFake(t *testing.T) (*influxdb.Client, *fakeInflux) {
	t.Helper()
	fake := &fakeInflux{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := influxdb.Connect(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client, fake
}

func waitForBody(t *testing.T, fake *fakeInflux, want string) string {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		got := fake.written()
		if strings.Contains(got, want) {
			return got
		}
		if time.Now().After(deadline) {
			t.Fatalf("written = %q, want it to contain %q", got, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestConnect(t *testing.T) {
	client, _ := connectFake(t)

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:8086")
	cfg.Enabled = false

	_, err := influxdb.Connect(cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := influxdb.Connect(testConfig(url))
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestWriteBrokerStats(t *testing.T) {
	client, fake := connectFake(t)
	at := time.Unix(1775070000, 0)

	client.WriteBrokerStats(map[string]any{"clients": 3, "queued_bytes": int64(4096)}, at)
	client.WriteDriverStats("indi_simulator_ccd", "active", map[string]any{"restarts": 1}, at)
	client.Flush()

	got := waitForBody(t, fake, "driver_stats")
	for _, want := range []string{
		"broker_stats clients=3i,queued_bytes=4096i 1775070000000000000",
		"driver_stats,driver=indi_simulator_ccd,state=active restarts=1i 1775070000000000000",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("written = %q, want line %q", got, want)
		}
	}

	fake.mu.Lock()
	query := fake.query
	fake.mu.Unlock()
	if !strings.Contains(query, "bucket=indihub") || !strings.Contains(query, "org=observatory") {
		t.Errorf("write query = %q", query)
	}
}

func TestPointBuilders(t *testing.T) {
	at := time.Unix(10, 0)
	tests := []struct {
		name  string
		point *write.Point
		want  string
	}{
		{
			name:  "broker",
			point: influxdb.BrokerPoint(map[string]any{"drivers": 2}, at),
			want:  "broker_stats drivers=2i 10000000000",
		},
		{
			name:  "driver with space in name",
			point: influxdb.DriverPoint("CCD Simulator", "pending_restart", map[string]any{"devices": 1}, at),
			want:  `driver_stats,driver=CCD\ Simulator,state=pending_restart devices=1i 10000000000`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := strings.TrimSpace(write.PointToLineProtocol(tt.point, time.Nanosecond))
			if got != tt.want {
				t.Errorf("line = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClose(t *testing.T) {
	client, fake := connectFake(t)

	client.WritePoint("custom", map[string]string{"source": "close"}, map[string]interface{}{"value": 1.5})
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	waitForBody(t, fake, "custom,source=close value=1.5")

	// Writes after close are dropped, flush is a no-op.
	client.WriteBrokerStats(map[string]any{"clients": 1}, time.Now())
	client.Flush()
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrNotConnected", err)
	}
}

func TestClose_Nil(t *testing.T) {
	var client *influxdb.Client
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() on nil client = true")
	}
}
