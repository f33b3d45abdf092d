// Package core wires the application together and owns its lifecycle.
package core

import (
	"context"
	"fmt"
	"time"

	logx "roomwatch/pkg/logx"

	"roomwatch/internal/config"
	"roomwatch/internal/ktalk"
	"roomwatch/internal/registry"
	rtsup "roomwatch/internal/runtime/supervisor"
	"roomwatch/internal/services/notify"
	"roomwatch/internal/storage"
	"roomwatch/internal/transport"
	"roomwatch/internal/transport/telegram/adapter"
	"roomwatch/internal/transport/telegram/router"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log     logx.Logger
	logs    *logx.Service
	logSink *telegramSink

	adapter *adapter.Adapter
	client  *ktalk.Client
	store   storage.Store
	notif   *notify.Service
	reg     *registry.Registry
	router  *router.Router

	updates chan transport.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	durs, err := cfg.Durations()
	if err != nil {
		return nil, err
	}
	ad, err := adapter.New(adapter.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: durs.PollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	sink := newTelegramSink(ad)
	applySinkConfig(sink, cfg)
	logSvc.AddSink(sink)

	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		DSN:         cfg.Storage.DSN,
		BusyTimeout: durs.BusyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	if store == nil {
		log.Warn("storage disabled, session state will not survive restarts")
	}

	client := ktalk.NewClient(ktalk.Config{
		BaseURL:        cfg.KTalk.BaseURL,
		CountPath:      cfg.KTalk.CountPath,
		RequestTimeout: durs.RequestTimeout,
	}, log.With(logx.String("comp", "ktalk")))

	notifSvc := notify.New(notify.Config{
		RatePerSec: cfg.Notify.RatePerSec,
	}, ad, log.With(logx.String("comp", "notifier")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		logSink: sink,
		adapter: ad,
		client:  client,
		store:   store,
		notif:   notifSvc,
		updates: make(chan transport.Update, 256),
	}, nil
}

func applySinkConfig(sink *telegramSink, cfg *config.Config) {
	tg := cfg.Logging.Telegram
	sink.Apply(tg.Enabled, tg.MinLevel,
		transport.ChatTarget{ChatID: tg.ChatID, ThreadID: tg.ThreadID},
		float64(tg.RatePerSec))
}

// Done is closed when the app supervisor context is canceled.
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
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	a.reg = registry.New(a.client, a.notif, a.sup, a.log.With(logx.String("comp", "registry")))
	a.router = router.New(a.reg, a.store, a.notif, a.log.With(logx.String("comp", "router")))
	a.router.SetBotName(a.adapter.Username())
	a.router.SetOwners(a.cfgm.Get().Telegram.OwnerUserIDs)
	if durs, err := a.cfgm.Get().Durations(); err == nil && durs.DefaultInterval > 0 {
		a.router.SetDefaultInterval(durs.DefaultInterval.Milliseconds())
	}

	// reject bad hot-reloads before they are committed
	a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
		if _, err := cfg.Durations(); err != nil {
			return err
		}
		if cfg.Logging.Telegram.RatePerSec < 0 {
			return fmt.Errorf("logging.telegram.rate_per_sec must be >= 0")
		}
		return nil
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	// bring back persisted sessions before accepting commands
	a.reg.Restore(a.sup.Context(), a.store)

	a.sup.Go0("router.dispatch", func(c context.Context) {
		a.router.Run(c, a.updates)
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// coalesce bursts, keep only the newest
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(newCfg)
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started", logx.Int("sessions", a.reg.Len()))
	return nil
}

func (a *App) applyConfig(cfg *config.Config) {
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	applySinkConfig(a.logSink, cfg)

	if durs, err := cfg.Durations(); err == nil {
		a.client.SetTimeout(durs.RequestTimeout)
		if durs.DefaultInterval > 0 {
			a.router.SetDefaultInterval(durs.DefaultInterval.Milliseconds())
		}
	}
	a.notif.Apply(notify.Config{RatePerSec: cfg.Notify.RatePerSec})
	a.router.SetOwners(cfg.Telegram.OwnerUserIDs)

	a.log.Info("config reloaded")
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")
	a.sup.Cancel()

	// bound each shutdown phase so one stuck component can't stall the rest
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
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
			} else {
				a.log.Debug("stop step done", logx.String("name", name), logx.Duration("took", time.Since(start)))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	// stop pollers first so their final state writes land before the store closes
	step("pollers", 3*time.Second, func(c context.Context) error { a.reg.StopAll(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	if a.store != nil {
		step("storage", 1*time.Second, func(context.Context) error { return a.store.Close() })
	}

	a.log.Info("stopped")
	return a.logs.Close()
}
