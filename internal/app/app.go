package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"golang.org/x/sync/errgroup"

	"stockbot/internal/command"
	"stockbot/internal/config"
	"stockbot/internal/eventbus"
	"stockbot/internal/plugin"
	"stockbot/internal/provider"
	"stockbot/internal/runtime/supervisor"
	"stockbot/internal/scheduler"
	"stockbot/internal/session"
	"stockbot/internal/storage"
	"stockbot/internal/task"
	"stockbot/internal/transport"
	"stockbot/internal/transport/httpapi"
	"stockbot/internal/transport/telegram"
	"stockbot/plugins/fundamental"
	"stockbot/plugins/insider"
	"stockbot/plugins/quote"
	"stockbot/plugins/schedule"
	"stockbot/plugins/scrape"
	logx "stockbot/pkg/logx"
)

// App is the bot host: it owns the command tree, sessions, schedulers and
// transports built from one config file.
type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	root logx.Logger
	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store     storage.Store
	providers *provider.Registry
	plugins   *plugin.Manager
	disp      *command.Dispatcher
	runner    *task.Runner
	sessions  *session.Manager
	group     *scheduler.Group
	window    scheduler.Window
	ticker    *scheduler.Ticker
	router    *Router

	mux      *transport.Mux
	adapters []transport.Adapter
	http     *httpapi.Server
	inbound  chan transport.Message

	offline bool
	timeout time.Duration
}

type options struct {
	offline   bool
	lookup    config.LookupFunc
	logLevel  string
	providers []namedProvider
	insider   insider.Client
	analytics fundamental.Analytics
	scraper   scrape.Scraper
	adapters  []transport.Adapter
	timeout   time.Duration
}

type namedProvider struct {
	name string
	svc  provider.Service
}

type Option func(*options)

// Offline builds the command tree and sessions without the configured
// Telegram and HTTP transports (one-shot CLI use).
func Offline() Option { return func(o *options) { o.offline = true } }

// WithEnv replaces the environment lookup used for config overrides.
func WithEnv(fn config.LookupFunc) Option { return func(o *options) { o.lookup = fn } }

// WithLogLevel overrides logging.level.
func WithLogLevel(level string) Option { return func(o *options) { o.logLevel = level } }

// WithProvider registers a quote provider under name.
func WithProvider(name string, s provider.Service) Option {
	return func(o *options) { o.providers = append(o.providers, namedProvider{name: name, svc: s}) }
}

func WithInsider(c insider.Client) Option { return func(o *options) { o.insider = c } }

// WithAnalytics backs the fundamental commands.
func WithAnalytics(a fundamental.Analytics) Option {
	return func(o *options) { o.analytics = a }
}

func WithScraper(s scrape.Scraper) Option { return func(o *options) { o.scraper = s } }
func WithAdapter(a transport.Adapter) Option {
	return func(o *options) { o.adapters = append(o.adapters, a) }
}

// WithCommandTimeout bounds every bound operation (0 disables).
func WithCommandTimeout(d time.Duration) Option { return func(o *options) { o.timeout = d } }

func New(cfgPath string, opts ...Option) (*App, error) {
	o := options{timeout: 30 * time.Second}
	for _, fn := range opts {
		if fn != nil {
			fn(&o)
		}
	}

	cfgm := config.NewManager(cfgPath)
	if o.lookup != nil {
		cfgm.SetLookup(o.lookup)
	}
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	validate := cfg.Validate
	if o.offline {
		validate = cfg.ValidateOffline
	}
	if err := validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	mux := transport.NewMux()

	// Bootstrap with chat logging off so Apply does not warn before the
	// target is known, then apply the final config.
	bootCfg := cfg.LogConfig()
	bootCfg.Chat.Enabled = false
	logSvc, root := logx.New(bootCfg, mux)
	if cfg.Telegram.LogChatID != 0 {
		logSvc.SetChatTarget(transport.TelegramTarget(cfg.Telegram.LogChatID, cfg.Telegram.LogThreadID))
	}
	logSvc.Apply(cfg.LogConfig())
	log := root.With(logx.String("comp", "app"))
	cfgm.SetLogger(root)

	bus := eventbus.New()

	sc, err := storageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, root.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	log.Info("storage opened", logx.String("driver", sc.Driver))

	providers := provider.NewRegistry()
	for _, p := range o.providers {
		providers.RegisterService(p.name, p.svc)
	}

	window, err := cfg.SchedulerWindow()
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	a := &App{
		cfgm:      cfgm,
		root:      root,
		log:       log,
		logs:      logSvc,
		bus:       bus,
		store:     store,
		providers: providers,
		window:    window,
		mux:       mux,
		inbound:   make(chan transport.Message, 256),
		offline:   o.offline,
		timeout:   o.timeout,
	}
	if err := a.buildTree(cfg, o); err != nil {
		_ = store.Close()
		return nil, err
	}
	if err := a.buildSessions(cfg); err != nil {
		_ = store.Close()
		return nil, err
	}
	if err := a.buildTransports(cfg, o); err != nil {
		_ = store.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) buildTree(cfg *config.Config, o options) error {
	root := command.NewRoot()
	a.plugins = plugin.NewManager(a.root.With(logx.String("comp", "plugins")), a.bus)
	if err := a.plugins.Add(
		helpPlugin{},
		quote.New(a.store.Hints(), cfg.Providers.Default),
		fundamental.New(o.analytics),
		schedule.New(a.window),
		insider.New(o.insider),
		scrape.New(o.scraper),
	); err != nil {
		return err
	}
	if err := a.plugins.Register(root); err != nil {
		return fmt.Errorf("register commands: %w", err)
	}

	a.runner = task.NewRunner(a.root.With(logx.String("comp", "tasks")), a.bus)
	disp, err := command.NewDispatcher(root,
		command.WithRunner(a.runner),
		command.WithLogger(a.root.With(logx.String("comp", "commands"))),
		command.WithMiddleware(command.RequestLog(), command.Timeout(o.timeout)),
	)
	if err != nil {
		return fmt.Errorf("command tree: %w", err)
	}
	a.disp = disp
	return nil
}

func (a *App) buildSessions(cfg *config.Config) error {
	d, err := sessionDefaults(cfg)
	if err != nil {
		return err
	}
	a.sessions = session.NewManager(a.store, d, a.root)
	a.group = scheduler.NewGroup()
	schedLog := a.root.With(logx.String("comp", "scheduler"))
	a.sessions.OnCreate(func(s *session.Session) {
		a.group.Add(scheduler.New(s, a.disp, a.mux,
			scheduler.WithWindow(a.window),
			scheduler.WithProviders(a.providers),
			scheduler.WithLogger(schedLog.With(logx.String("session", s.Key()))),
		))
	})

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	t, err := scheduler.NewTicker(cfg.Scheduler.Tick, loc, a.group, a.root)
	if err != nil {
		return fmt.Errorf("scheduler.tick: %w", err)
	}
	a.ticker = t

	a.router = NewRouter(a.disp, a.sessions, a.providers, a.mux, a.root)

	// Known chats get their session (and scheduler) up front.
	for _, id := range cfg.Telegram.ChatIDs {
		a.sessions.GetOrCreate(transport.TelegramTarget(id, 0))
	}
	return nil
}

func (a *App) buildTransports(cfg *config.Config, o options) error {
	for _, ad := range o.adapters {
		a.addAdapter(ad)
	}
	if a.offline {
		return nil
	}
	if cfg.Telegram.Enabled() {
		tc, err := telegramConfig(cfg)
		if err != nil {
			return err
		}
		ad, err := telegram.New(tc, a.root.With(logx.String("comp", "telegram")))
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		a.addAdapter(ad)
	}
	if cfg.HTTP.Enabled {
		a.http = httpapi.New(httpapi.Config{Addr: cfg.HTTP.Addr, Token: cfg.HTTP.Token},
			a.router, a.disp, a.runner, a.root.With(logx.String("comp", "http")))
		a.mux.Handle(a.http.Channel(), a.http)
	}
	return nil
}

func (a *App) addAdapter(ad transport.Adapter) {
	if ad == nil {
		return
	}
	a.adapters = append(a.adapters, ad)
	a.mux.Handle(ad.Channel(), ad)
}

func (a *App) Logger() logx.Logger             { return a.log }
func (a *App) Config() *config.Config          { return a.cfgm.Get() }
func (a *App) Dispatcher() *command.Dispatcher { return a.disp }
func (a *App) Router() *Router                 { return a.router }
func (a *App) Sessions() *session.Manager      { return a.sessions }
func (a *App) Schedulers() *scheduler.Group    { return a.group }
func (a *App) Providers() *provider.Registry   { return a.providers }
func (a *App) Plugins() *plugin.Manager        { return a.plugins }
func (a *App) Tasks() *task.Runner             { return a.runner }
func (a *App) Sink() transport.Sink            { return a.mux }

// HTTPAddr reports the API listen address once it is serving ("" otherwise).
func (a *App) HTTPAddr() string {
	if a.http == nil {
		return ""
	}
	return a.http.Addr()
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// transactional reload: validate before commit/publish
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if a.offline {
			return cfg.ValidateOffline()
		}
		return cfg.Validate()
	})

	// Adapters start together; the first failure aborts Start.
	var g errgroup.Group
	for _, ad := range a.adapters {
		if ad.Channel() == transport.ChannelConsole {
			continue
		}
		g.Go(func() error {
			if err := ad.Start(a.sup.Context(), a.inbound); err != nil {
				return fmt.Errorf("%s adapter: %w", ad.Channel(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		a.sup.Cancel()
		return err
	}
	// Console adapters block on their reader, so they run supervised.
	for _, ad := range a.adapters {
		if ad.Channel() != transport.ChannelConsole {
			continue
		}
		a.sup.Go0("console.read", func(c context.Context) {
			if err := ad.Start(c, a.inbound); err != nil {
				a.log.Warn("console adapter stopped", logx.Err(err))
			}
		})
	}
	if a.http != nil {
		a.sup.Go("http.serve", a.http.Start)
	}

	a.sup.Go("commands.dispatch", a.dispatchLoop)

	a.ticker.Start()

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				fields := []logx.Field{logx.String("type", e.Type), logx.Time("time", e.Time)}
				for k, v := range e.Attrs {
					fields = append(fields, logx.String(k, v))
				}
				a.log.Debug("event", fields...)
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				// keep only the latest config of a burst
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							next = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(last, next)
				last = next
			}
		}
	})

	a.sup.Go("config.watch", a.cfgm.Watch)

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Debug("sd_notify ready failed", logx.Err(err))
	} else if ok {
		a.log.Debug("sd_notify ready sent")
	}
	a.log.Info("app started",
		logx.Int("adapters", len(a.adapters)),
		logx.Bool("http", a.http != nil),
		logx.Strings("plugins", a.plugins.Names()),
	)
	return nil
}

func (a *App) dispatchLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-a.inbound:
			a.handle(ctx, msg)
		}
	}
}

func (a *App) handle(ctx context.Context, msg transport.Message) {
	for _, line := range a.router.Route(ctx, msg) {
		if err := a.mux.Send(ctx, msg.Target, line); err != nil {
			a.log.Warn("send failed", logx.String("to", msg.Target.Key()), logx.Err(err))
			return
		}
	}
}

// applyConfig re-applies the parts of cfg that can change at runtime.
func (a *App) applyConfig(prev, next *config.Config) {
	changed, attrs := config.SummarizeChange(prev, next)
	if len(changed) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(changed, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	if restart := config.RequiresRestart(changed); len(restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect", logx.Strings("sections", restart))
	}

	// update log target first so Apply does not warn about a missing target
	if next.Telegram.LogChatID != 0 {
		a.logs.SetChatTarget(transport.TelegramTarget(next.Telegram.LogChatID, next.Telegram.LogThreadID))
	} else {
		a.logs.SetChatTarget(transport.Target{})
	}
	a.logs.Apply(next.LogConfig())

	if d, err := sessionDefaults(next); err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	} else {
		a.sessions.SetDefaults(d)
	}

	a.log.Info("config reloaded", fields...)
}

// Stop shuts the app down in reverse start order. Each step is bounded so
// one component cannot stall the whole stop.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return a.close()
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	a.sup.Cancel()

	var errs []error
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		sctx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()
		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(sctx)
		}()
		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-sctx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("ticker", 2*time.Second, a.ticker.Stop)
	step("tasks", 3*time.Second, a.runner.Wait)
	for _, ad := range a.adapters {
		step("adapter."+ad.Channel(), 2*time.Second, ad.Stop)
	}
	step("supervisor", 2*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	if err := a.close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) close() error {
	var errs []error
	if a.bus != nil {
		errs = append(errs, a.bus.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.logs != nil {
		errs = append(errs, a.logs.Close())
	}
	return errors.Join(errs...)
}

// Exec runs one command line in the session addressed by to and returns its
// lines. Task notifications are sent through the transport mux.
func (a *App) Exec(ctx context.Context, to transport.Target, text string) []string {
	return a.router.Route(ctx, transport.Message{Target: to, Text: text})
}
