package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/loqalabs/loqa-listen/internal/audio"
	"github.com/loqalabs/loqa-listen/internal/bus"
	"github.com/loqalabs/loqa-listen/internal/capability"
	"github.com/loqalabs/loqa-listen/internal/control"
	"github.com/loqalabs/loqa-listen/internal/eventstore"
	"github.com/loqalabs/loqa-listen/internal/natsserver"
	"github.com/loqalabs/loqa-listen/internal/permission"
	"github.com/loqalabs/loqa-listen/internal/session"
	"github.com/loqalabs/loqa-listen/internal/stt"
	"github.com/loqalabs/loqa-listen/internal/transliterate"
)

type components struct {
	embedded *natsserver.EmbeddedServer
	bus      *bus.Client
	registry *capability.Registry
	store    *eventstore.Store
	service  *stt.Service
	session  *session.Session
	gate     *permission.Gate
	hub      *control.Hub
	handler  http.Handler
	closers  []func()
}

// close releases components in reverse order of construction.
func (c *components) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

func (r *Runtime) build(ctx context.Context, metricsHandler http.Handler) (_ *components, err error) {
	cfg := r.cfg
	c := &components{}
	defer func() {
		if err != nil {
			c.close()
		}
	}()

	c.embedded, err = natsserver.Start(cfg.Bus, r.logger.With(slog.String("component", "nats")))
	if err != nil {
		return nil, fmt.Errorf("start embedded nats: %w", err)
	}
	c.closers = append(c.closers, c.embedded.Shutdown)

	if cfg.Bus.Enabled {
		busCfg := cfg.Bus
		if c.embedded != nil {
			busCfg.Servers = []string{c.embedded.ClientURL()}
		}
		c.bus, err = bus.Connect(ctx, cfg.RuntimeName, busCfg, r.logger.With(slog.String("component", "bus")))
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, c.bus.Close)

		c.registry, err = capability.NewRegistry(ctx, cfg.Node, capability.Local(cfg), c.bus, r.logger)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, c.registry.Close)
	}

	c.store, err = eventstore.Open(ctx, cfg.EventStore, r.logger)
	if err != nil {
		return nil, fmt.Errorf("open timeline: %w", err)
	}
	c.closers = append(c.closers, func() { _ = c.store.Close() })

	if cfg.Recognizer.Serve {
		transcriber, err := stt.NewTranscriber(cfg.Recognizer)
		if err != nil {
			return nil, err
		}
		c.service = stt.NewService(ctx, cfg.Recognizer, c.bus, transcriber, r.logger)
		if err := c.service.Start(); err != nil {
			return nil, err
		}
		c.closers = append(c.closers, c.service.Close)
	}

	dev, err := audio.OpenDevice(cfg.Capture)
	if err != nil {
		return nil, err
	}
	engine, err := audio.NewEngine(dev, r.logger.With(slog.String("component", "audio-engine")))
	if err != nil {
		return nil, err
	}
	configurator, err := audio.OpenConfigurator(cfg.Capture)
	if err != nil {
		return nil, err
	}
	captureOpts, err := audio.OptionsFromStrings(cfg.Capture.Category, cfg.Capture.Mode)
	if err != nil {
		return nil, err
	}

	recognizer, err := stt.NewRecognizer(cfg.Recognizer, c.bus, r.logger)
	if err != nil {
		return nil, err
	}

	var translit session.Transliterator
	if cfg.Transliteration.Enabled {
		seg, err := transliterate.NewKagomeSegmenter()
		if err != nil {
			return nil, err
		}
		translit = transliterate.New(seg, r.logger)
	}

	status := session.NewStatusObserver()
	c.hub = control.NewHub(r.logger)
	c.closers = append(c.closers, c.hub.Close)
	observers := session.Fanout{session.NewLogObserver(r.logger), status, c.hub}
	if c.bus != nil {
		observers = append(observers, session.NewBusObserver(c.bus, r.logger))
	}

	c.session, err = session.New(session.Options{
		Engine:         engine,
		Configurator:   configurator,
		Recognizer:     recognizer,
		Observer:       observers,
		Timeline:       c.store,
		Transliterator: translit,
		Logger:         r.logger,
		CaptureOptions: captureOpts,
		BufferFrames:   cfg.Capture.BufferFrames,
		QueueDepth:     cfg.Recognizer.QueueDepth,
		Language:       cfg.Recognizer.Language,
		ActorID:        cfg.Session.ActorID,
		Privacy:        cfg.Session.Privacy,
	})
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, c.session.Close)

	authorizer, err := permission.NewAuthorizer(cfg.Authorization, c.bus, r.logger)
	if err != nil {
		return nil, err
	}
	c.gate = permission.NewGate(authorizer, c.session, observers, r.logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady(c))
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}
	opts := control.Options{
		Session:  c.session,
		Gate:     c.gate,
		Status:   status,
		Hub:      c.hub,
		Timeline: c.store,
		Logger:   r.logger,
	}
	if c.registry != nil {
		opts.Nodes = c.registry
	}
	control.NewServer(opts).Register(mux)
	c.handler = mux

	return c, nil
}
