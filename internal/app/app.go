package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"zulipnotify/internal/config"
	"zulipnotify/internal/eventbus"
	"zulipnotify/internal/ingress"
	"zulipnotify/internal/links"
	"zulipnotify/internal/metrics"
	rtsup "zulipnotify/internal/runtime/supervisor"
	"zulipnotify/internal/storage"
	"zulipnotify/internal/title"
	"zulipnotify/internal/transport"
	"zulipnotify/internal/zulip"
	logx "zulipnotify/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	m     *metrics.Metrics

	poster     *transport.Poster
	dispatcher *zulip.Dispatcher
	server     *ingress.Server
}

// New loads the config at cfgPath and builds every component. Nothing runs
// until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	return newApp(cfgm, cfg)
}

func newApp(cfgm *config.ConfigManager, cfg *config.Config) (*App, error) {
	logSvc, log := logx.NewService(mapLogConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	store, err := OpenStore(cfg, log)
	if err != nil {
		return nil, err
	}

	ic, err := mapIngressConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	bus := eventbus.New()
	m := metrics.New()
	set := settings{cfgm: cfgm}

	poster := transport.New(mapTransportConfig(cfg), &http.Client{}, log, bus, m)
	dispatcher := NewDispatcher(cfgm, store, poster, Observers{Log: log, Bus: bus, Metrics: m})

	hd := ingress.HandlerDeps{
		Notifier: dispatcher,
		Projects: store,
		Token:    set.token,
		Log:      log.With(logx.String("comp", "ingress")),
	}
	if cfg.Metrics.Enabled {
		hd.Metrics = m.Handler()
		hd.MetricsPath = metricsPath(cfg)
	}
	server := ingress.NewServer(ic, ingress.NewHandler(hd), func() bool {
		return strings.TrimSpace(set.token()) != ""
	}, log)

	return &App{
		cfgm:       cfgm,
		log:        log,
		logs:       logSvc,
		bus:        bus,
		store:      store,
		m:          m,
		poster:     poster,
		dispatcher: dispatcher,
		server:     server,
	}, nil
}

// OpenStore opens the metadata store cfg selects.
func OpenStore(cfg *config.Config, log logx.Logger) (storage.Store, error) {
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Debug("storage opened", logx.String("driver", sc.Driver))
	return store, nil
}

// Observers are the optional log, bus and metrics sinks of a dispatcher.
type Observers struct {
	Log     logx.Logger
	Bus     eventbus.Bus
	Metrics *metrics.Metrics
}

// NewDispatcher wires a dispatcher to store and poster with the default title
// formatter and task links, reading global settings from cfgm on every call.
func NewDispatcher(cfgm *config.ConfigManager, store storage.Store, poster transport.AsyncPoster, o Observers) *zulip.Dispatcher {
	set := settings{cfgm: cfgm}
	return zulip.New(zulip.Deps{
		Metadata: store,
		Projects: store,
		Settings: set,
		Titles:   title.New(),
		URLs:     links.NewBuilder(set.ApplicationURL),
		Poster:   poster,
		Log:      o.Log,
		Bus:      o.Bus,
		Metrics:  o.Metrics,
	})
}

// Dispatcher exposes the dispatcher for embedding callers.
func (a *App) Dispatcher() *zulip.Dispatcher { return a.dispatcher }

// Addr returns the ingress listen address once bound.
func (a *App) Addr() string { return a.server.Addr() }

// Ready is closed once the ingress listener is bound.
func (a *App) Ready() <-chan struct{} { return a.server.Ready() }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		if _, err := mapIngressConfig(cfg); err != nil {
			return err
		}
		return nil
	})

	a.poster.Start(a.sup.Context())
	a.server.Start(a.sup.Context())

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				a.logEvent(e)
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return nil
			case newCfg, ok := <-sub:
				if !ok {
					return nil
				}
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

func (a *App) applyConfig(prev, next *config.Config) {
	sections, attrs, restart := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if len(restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(restart, ",")))
	}

	a.logs.Apply(mapLogConfig(next))
	a.poster.Apply(mapTransportConfig(next))

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) logEvent(e eventbus.Event) {
	if !a.log.Enabled(logx.LevelDebug) {
		return
	}
	fields := []logx.Field{logx.String("type", e.Type)}
	switch d := e.Data.(type) {
	case eventbus.PostEvent:
		fields = append(fields, logx.String("host", d.Host))
		if d.Status != 0 {
			fields = append(fields, logx.Int("status", d.Status))
		}
		if d.Error != "" {
			fields = append(fields, logx.String("err", d.Error))
		}
	case eventbus.DispatchEvent:
		fields = append(fields,
			logx.String("scope", d.Scope),
			logx.Int64("subject_id", d.SubjectID),
			logx.String("event", d.EventName),
		)
	}
	a.log.Debug("event", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem < max {
					max = rem
				}
			}
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	// Stop intake first so queued posts can still drain.
	step("ingress", 2*time.Second, func(c context.Context) error { a.server.Stop(c); return nil })
	step("transport", 3*time.Second, func(c context.Context) error { a.poster.Stop(c); return nil })
	a.sup.Cancel()
	step("storage", 1*time.Second, func(context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
