// Package app wires the bot together: config, logging, storage, the telegram
// adapter, and the services that consume its update stream.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"relaybot/internal/config"
	"relaybot/internal/eventbus"
	"relaybot/internal/recipient"
	"relaybot/internal/router"
	"relaybot/internal/runtime/supervisor"
	"relaybot/internal/services/broadcast"
	"relaybot/internal/services/reconcile"
	"relaybot/internal/services/sweeper"
	"relaybot/internal/storage"
	"relaybot/internal/transport"
	"relaybot/internal/transport/telegram"
	"relaybot/pkg/logx"
)

const shutdownGrace = 10 * time.Second

// Run starts the bot and blocks until ctx is cancelled. It returns an error
// only for startup failures; a clean shutdown returns nil.
func Run(ctx context.Context, cfgPath string) error {
	boot := logx.NewConsole("info")

	mgr := config.NewManager(cfgPath, boot)
	cfg, err := mgr.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	})
	defer logSvc.Close()
	log = log.With(logx.String("app", "relaybot"))

	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: cfg.BusyTimeout(),
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	set, err := store.Load()
	if err != nil {
		return fmt.Errorf("load recipients: %w", err)
	}
	reg := recipient.NewRegistry(set, store, log.With(logx.String("comp", "registry")))
	log.Info("recipient store loaded", logx.Any("stats", reg.Stats()))

	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: cfg.PollTimeout(),
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}

	bsvc := broadcast.New(broadcast.Config{SendInterval: cfg.SendInterval()},
		adapter, reg, log.With(logx.String("comp", "broadcast")))
	rec := reconcile.New(reconcile.Config{Greeting: cfg.Messages.Greeting},
		reg, adapter, log.With(logx.String("comp", "reconcile")))
	rtr := router.New(router.Settings{
		AdminGroupID: cfg.Admin.GroupID,
		AdminUserIDs: cfg.Admin.UserIDs,
		Welcome:      cfg.Messages.Welcome,
	}, adapter, reg, bsvc, store, log.With(logx.String("comp", "router")))

	sup := supervisor.New(ctx, log)
	bus := eventbus.New()

	routerCh, unsubRouter := bus.Subscribe(64)
	defer unsubRouter()
	reconcileCh, unsubReconcile := bus.Subscribe(64)
	defer unsubReconcile()

	sup.Go("router", func(c context.Context) { rtr.Run(c, routerCh) })
	sup.Go("reconcile", func(c context.Context) { rec.Run(c, reconcileCh) })

	// The adapter pushes into one inbound channel; the bus fans out to the
	// router and the reconciler on independent buffers.
	inbound := make(chan transport.Update, 128)
	sup.Go("bus.pump", func(c context.Context) {
		for {
			select {
			case <-c.Done():
				return
			case u := <-inbound:
				bus.Publish(u)
			}
		}
	})

	var swp *sweeper.Service
	if cfg.Cleanup.Enabled {
		swp, err = sweeper.New(cfg.Cleanup.Schedule, bsvc, log.With(logx.String("comp", "sweeper")))
		if err != nil {
			return fmt.Errorf("cleanup schedule: %w", err)
		}
		swp.Start()
	}

	// Hot reload: logging, pacing, and the admin/text settings follow the
	// file. Token and storage changes need a restart.
	reloads := mgr.Subscribe(1)
	defer mgr.Unsubscribe(reloads)
	sup.Go("config.watch", func(c context.Context) {
		if err := mgr.Watch(c); err != nil {
			log.Warn("config watcher stopped", logx.Err(err))
		}
	})
	sup.Go("config.apply", func(c context.Context) {
		for {
			select {
			case <-c.Done():
				return
			case nc, ok := <-reloads:
				if !ok {
					return
				}
				logSvc.Apply(logx.Config{
					Level:   nc.Logging.Level,
					Console: nc.Logging.Console,
					File:    logx.FileConfig{Enabled: nc.Logging.File.Enabled, Path: nc.Logging.File.Path},
				})
				bsvc.Apply(broadcast.Config{SendInterval: nc.SendInterval()})
				rtr.Apply(router.Settings{
					AdminGroupID: nc.Admin.GroupID,
					AdminUserIDs: nc.Admin.UserIDs,
					Welcome:      nc.Messages.Welcome,
				})
				log.Info("runtime settings applied")
			}
		}
	})

	if err := adapter.Start(sup.Context(), inbound); err != nil {
		sup.Cancel()
		return fmt.Errorf("start adapter: %w", err)
	}

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Debug("sd_notify ready failed", logx.Err(err))
	}
	log.Info("bot started")

	<-ctx.Done()

	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		log.Debug("sd_notify stopping failed", logx.Err(err))
	}
	log.Info("shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := adapter.Stop(stopCtx); err != nil {
		log.Warn("adapter stop", logx.Err(err))
	}
	if swp != nil {
		swp.Stop()
	}
	sup.Cancel()
	if err := sup.Wait(stopCtx); err != nil {
		log.Warn("shutdown timed out", logx.Err(err))
	}
	log.Info("bye")
	return nil
}
