package session

import (
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-listen/internal/bus"
	"github.com/loqalabs/loqa-listen/internal/protocol"
)

// BusObserver mirrors presentation updates onto listen.ui.<kind> so remote
// displays can follow the session.
type BusObserver struct {
	bus *bus.Client
	log *slog.Logger
	now func() time.Time
}

func NewBusObserver(busClient *bus.Client, log *slog.Logger) *BusObserver {
	return &BusObserver{bus: busClient, log: log, now: time.Now}
}

func (o *BusObserver) SetButtonStatus(enabled bool) {
	o.publish(protocol.UIEvent{Kind: protocol.UIEventButton, Enabled: &enabled})
}

func (o *BusObserver) SetGuideMessage(text string) {
	o.publish(protocol.UIEvent{Kind: protocol.UIEventGuide, Text: text})
}

func (o *BusObserver) SetResult(text string) {
	o.publish(protocol.UIEvent{Kind: protocol.UIEventResult, Text: text})
}

func (o *BusObserver) publish(evt protocol.UIEvent) {
	evt.Timestamp = o.now().UTC()
	if err := o.bus.PublishJSON(protocol.SubjectUIEventPrefix+"."+evt.Kind, evt); err != nil {
		o.log.Warn("failed to publish ui event", slog.String("kind", evt.Kind), slog.String("error", err.Error()))
	}
}
