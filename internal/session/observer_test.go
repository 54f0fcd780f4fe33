package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/loqalabs/loqa-listen/internal/bus"
	"github.com/loqalabs/loqa-listen/internal/config"
	"github.com/loqalabs/loqa-listen/internal/natsserver"
	"github.com/loqalabs/loqa-listen/internal/protocol"
	"github.com/nats-io/nats.go"
)

func TestFanoutAndStatusObserver(t *testing.T) {
	rec := &recordingObserver{}
	status := NewStatusObserver()
	fan := Fanout{rec, status, NewLogObserver(newLogger())}

	fan.SetButtonStatus(true)
	fan.SetGuideMessage(GuideSpeak)
	fan.SetResult("hello")

	expectCalls(t, rec.take(), "button:true", "guide:"+GuideSpeak, "result:hello")
	snap := status.Snapshot()
	if !snap.ButtonEnabled || snap.Guide != GuideSpeak || snap.Result != "hello" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestBusObserverPublishesUIEvents(t *testing.T) {
	log := newLogger()
	cfg := config.BusConfig{Enabled: true, Embedded: true, Port: -1, StoreDir: t.TempDir(), ConnectTimeout: 2000}
	srv, err := natsserver.Start(cfg, log)
	if err != nil {
		t.Fatalf("start embedded nats: %v", err)
	}
	t.Cleanup(srv.Shutdown)
	cfg.Servers = []string{srv.ClientURL()}
	client, err := bus.Connect(context.Background(), "observer-test", cfg, log)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)

	msgs := make(chan *nats.Msg, 4)
	sub, err := client.Conn().ChanSubscribe(protocol.SubjectUIEventPrefix+".>", msgs)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()
	if err := client.Conn().Flush(); err != nil {
		t.Fatal(err)
	}

	obs := NewBusObserver(client, log)
	obs.SetButtonStatus(false)
	obs.SetResult("konnichiwa")

	want := []struct {
		subject string
		kind    string
	}{
		{"listen.ui.button", protocol.UIEventButton},
		{"listen.ui.result", protocol.UIEventResult},
	}
	for _, w := range want {
		select {
		case msg := <-msgs:
			if msg.Subject != w.subject {
				t.Fatalf("expected subject %s, got %s", w.subject, msg.Subject)
			}
			var evt protocol.UIEvent
			if err := json.Unmarshal(msg.Data, &evt); err != nil {
				t.Fatal(err)
			}
			if evt.Kind != w.kind {
				t.Fatalf("expected kind %s, got %s", w.kind, evt.Kind)
			}
			if w.kind == protocol.UIEventButton && (evt.Enabled == nil || *evt.Enabled) {
				t.Fatalf("expected disabled button event, got %+v", evt)
			}
			if w.kind == protocol.UIEventResult && evt.Text != "konnichiwa" {
				t.Fatalf("unexpected text %q", evt.Text)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", w.subject)
		}
	}
}
