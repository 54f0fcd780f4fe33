package permission

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/loqalabs/loqa-listen/internal/bus"
	"github.com/loqalabs/loqa-listen/internal/config"
	"github.com/loqalabs/loqa-listen/internal/natsserver"
	"github.com/loqalabs/loqa-listen/internal/protocol"
	"github.com/nats-io/nats.go"
)

func TestParseStatus(t *testing.T) {
	cases := map[string]Status{
		"authorized":     Authorized,
		" Denied ":       Denied,
		"restricted":     Restricted,
		"not_determined": NotDetermined,
		"":               NotDetermined,
	}
	for in, want := range cases {
		got, err := ParseStatus(in)
		if err != nil || got != want {
			t.Fatalf("ParseStatus(%q) = %s, %v; want %s", in, got, err, want)
		}
	}
	if _, err := ParseStatus("maybe"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestStatusErr(t *testing.T) {
	if Authorized.Err() != nil {
		t.Fatal("authorized must not produce an error")
	}
	if Denied.Err() == nil || Restricted.Err() == nil || NotDetermined.Err() == nil {
		t.Fatal("non-authorized statuses must produce errors")
	}
}

func TestEnvAuthorizerReadsAtQueryTime(t *testing.T) {
	auth := EnvAuthorizer{Fallback: Denied}
	status, err := auth.Authorize(context.Background())
	if err != nil || status != Denied {
		t.Fatalf("expected fallback denied, got %s %v", status, err)
	}
	t.Setenv(EnvStatusKey, "authorized")
	status, err = auth.Authorize(context.Background())
	if err != nil || status != Authorized {
		t.Fatalf("expected authorized after env change, got %s %v", status, err)
	}
}

func TestNewAuthorizerModes(t *testing.T) {
	log := newLogger()
	if _, err := NewAuthorizer(config.AuthorizationConfig{Mode: "static", Status: "denied"}, nil, log); err != nil {
		t.Fatalf("static: %v", err)
	}
	if _, err := NewAuthorizer(config.AuthorizationConfig{Mode: "env"}, nil, log); err != nil {
		t.Fatalf("env: %v", err)
	}
	if _, err := NewAuthorizer(config.AuthorizationConfig{Mode: "bus"}, nil, log); err == nil {
		t.Fatal("bus mode without client should fail")
	}
	if _, err := NewAuthorizer(config.AuthorizationConfig{Mode: "static", Status: "perhaps"}, nil, log); err == nil {
		t.Fatal("invalid status should fail")
	}
}

func TestBusAuthorizer(t *testing.T) {
	log := newLogger()
	cfg := config.BusConfig{Enabled: true, Embedded: true, Port: -1, StoreDir: t.TempDir(), ConnectTimeout: 2000}
	srv, err := natsserver.Start(cfg, log)
	if err != nil {
		t.Fatalf("start embedded nats: %v", err)
	}
	t.Cleanup(srv.Shutdown)
	cfg.Servers = []string{srv.ClientURL()}
	client, err := bus.Connect(context.Background(), "permission-test", cfg, log)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)

	sub, err := client.Conn().Subscribe(protocol.SubjectAuthorization, func(msg *nats.Msg) {
		var req protocol.AuthorizationRequest
		_ = json.Unmarshal(msg.Data, &req)
		status := "denied"
		if req.Service == "speech" {
			status = "restricted"
		}
		data, _ := json.Marshal(protocol.AuthorizationReply{Status: status})
		_ = msg.Respond(data)
	})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	auth, err := NewBusAuthorizer(client, 0)
	if err != nil {
		t.Fatal(err)
	}
	status, err := auth.Authorize(context.Background())
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if status != Restricted {
		t.Fatalf("expected restricted, got %s", status)
	}
}
