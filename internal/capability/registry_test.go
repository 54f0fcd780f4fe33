package capability

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/loqalabs/loqa-listen/internal/bus"
	"github.com/loqalabs/loqa-listen/internal/config"
	"github.com/loqalabs/loqa-listen/internal/natsserver"
	"github.com/loqalabs/loqa-listen/internal/protocol"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startBus(t *testing.T) *bus.Client {
	t.Helper()
	cfg := config.BusConfig{Enabled: true, Embedded: true, Port: -1, StoreDir: t.TempDir(), ConnectTimeout: 2000}
	srv, err := natsserver.Start(cfg, newLogger())
	if err != nil {
		t.Fatalf("start embedded nats: %v", err)
	}
	t.Cleanup(srv.Shutdown)
	cfg.Servers = []string{srv.ClientURL()}
	client, err := bus.Connect(context.Background(), "capability-test", cfg, newLogger())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func TestLocalCapabilities(t *testing.T) {
	cfg := config.Default()
	caps := Local(cfg)
	if len(caps) != 1 || caps[0].Name != Capture || caps[0].Attributes["backend"] != "synthetic" {
		t.Fatalf("unexpected capture-only capabilities %+v", caps)
	}
	cfg.Recognizer.Serve = true
	caps = Local(cfg)
	if len(caps) != 2 || caps[1].Name != Transcribe || caps[1].Attributes["language"] != cfg.Recognizer.Language {
		t.Fatalf("expected transcribe capability when serving, got %+v", caps)
	}
}

func TestRegistriesDiscoverEachOther(t *testing.T) {
	client := startBus(t)
	nodeCfg := func(id string) config.NodeConfig {
		return config.NodeConfig{ID: id, HeartbeatInterval: 50, HeartbeatTimeout: 500}
	}

	listener, err := NewRegistry(context.Background(), nodeCfg("mic"), []protocol.NodeCapability{{Name: Capture}}, client, newLogger())
	if err != nil {
		t.Fatalf("listener registry: %v", err)
	}
	t.Cleanup(listener.Close)
	if !listener.Healthy() {
		t.Fatal("expected node to be healthy after announcing itself")
	}

	worker, err := NewRegistry(context.Background(), nodeCfg("gpu"), []protocol.NodeCapability{{Name: Transcribe}}, client, newLogger())
	if err != nil {
		t.Fatalf("worker registry: %v", err)
	}
	t.Cleanup(worker.Close)

	deadline := time.Now().Add(2 * time.Second)
	for {
		found := listener.Query(Live(Transcribe))
		if len(found) == 1 && found[0].ID == "gpu" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("listener never saw the transcribing node: %+v", listener.Query(nil))
		}
		time.Sleep(20 * time.Millisecond)
	}

	// heartbeats carry no capabilities, but they still register the sender
	deadline = time.Now().Add(2 * time.Second)
	for len(worker.Query(nil)) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("worker never heard the listener heartbeat: %+v", worker.Query(nil))
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestSilentNodesBecomeUnhealthy(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r := &Registry{
		cfg:   config.NodeConfig{ID: "self", HeartbeatInterval: 100, HeartbeatTimeout: 300},
		log:   newLogger(),
		nodes: make(map[string]*NodeInfo),
		now:   func() time.Time { return now },
	}
	r.updateNode("self", []protocol.NodeCapability{{Name: Capture}}, now)
	r.updateNode("peer", []protocol.NodeCapability{{Name: Transcribe}}, now.Add(-time.Second))
	r.updateNode("", nil, now)

	r.evaluateHealth()
	if !r.Healthy() {
		t.Fatal("self should stay healthy")
	}
	if got := r.Query(Live(Transcribe)); len(got) != 0 {
		t.Fatalf("expected stale peer to be filtered out, got %+v", got)
	}
	if got := r.Query(WithCapability(Transcribe)); len(got) != 1 || got[0].Healthy {
		t.Fatalf("expected stale peer listed as unhealthy, got %+v", got)
	}
	if len(r.Query(nil)) != 2 {
		t.Fatal("empty node ids must be ignored")
	}
}
