package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/awsl-project/gproxy/internal/config"
	"github.com/awsl-project/gproxy/internal/converter"
	"github.com/awsl-project/gproxy/internal/core"
	"github.com/awsl-project/gproxy/internal/domain"
	"github.com/awsl-project/gproxy/internal/event"
	"github.com/awsl-project/gproxy/internal/executor"
	"github.com/awsl-project/gproxy/internal/handler"
	"github.com/awsl-project/gproxy/internal/pool"
	"github.com/awsl-project/gproxy/internal/provider"
	"github.com/awsl-project/gproxy/internal/repository"
	"github.com/awsl-project/gproxy/internal/repository/sqlite"
	"github.com/awsl-project/gproxy/internal/upstream"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.WithError(err).Fatal("config")
	}
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	store, err := sqlite.Open(cfg.DSN)
	if err != nil {
		log.WithError(err).Fatal("storage open")
	}

	hub := event.NewHub()
	hub.Attach(event.LogSink{})
	var storeSink event.Sink = &event.StoreSink{Appender: store}
	if cfg.EventRedactSensitive {
		storeSink = &event.RedactingSink{Next: storeSink}
	}
	hub.Attach(storeSink)
	wsSink := event.NewWebSocketSink()
	hub.Attach(wsSink)

	httpClient, err := upstream.ForProxy(cfg.OutboundProxy)
	if err != nil {
		log.WithError(err).Fatal("outbound client")
	}
	env := &provider.Env{
		HTTP:    httpClient,
		Tokens:  pool.Tokens(),
		DataDir: cfg.DataDir,
	}

	runtimes := executor.NewRuntimes(&storeStateSink{store: store, hub: hub})
	snapshot, err := store.LoadSnapshot()
	if err != nil {
		log.WithError(err).Fatal("snapshot load")
	}
	if err := runtimes.Rebuild(snapshot); err != nil {
		log.WithError(err).Fatal("runtime build")
	}

	keyAuth := handler.NewKeyAuthenticator()
	keyAuth.Reload(snapshot.UserKeys)
	adminAuth := handler.NewAdminAuth(cfg.AdminKey)

	exec := executor.New(runtimes, env, converter.NewRegistry(), hub, store)

	bindChanged := make(chan string, 1)
	components := &core.Components{
		Proxy:   handler.NewProxyHandler(exec, keyAuth),
		Admin:   handler.NewAdminHandler(store, runtimes, adminAuth, keyAuth, bindChanged),
		EventWS: wsSink,
	}

	addr := cfg.Addr()
	if snapshot.GlobalConfig != nil && snapshot.GlobalConfig.BindPort != 0 {
		host := snapshot.GlobalConfig.BindHost
		if host == "" {
			host = cfg.Host
		}
		addr = core.JoinHostPort(host, snapshot.GlobalConfig.BindPort)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := core.NewServer(addr, components, bindChanged)
	if err := server.Run(ctx); err != nil {
		log.WithError(err).Fatal("serve")
	}
	hub.Close()
}

// storeStateSink feeds pool state changes into the store and the hub.
type storeStateSink struct {
	store repository.Store
	hub   *event.Hub
}

func (s *storeStateSink) UpsertDisallow(record domain.DisallowRecord) {
	if err := s.store.UpsertDisallow(record); err != nil {
		log.WithError(err).Warn("disallow persist failed")
	}
}

func (s *storeStateSink) Operational(evt domain.OperationalEvent) {
	s.hub.Operational(evt)
	if evt.Kind == domain.EventUnavailableEnd || evt.Kind == domain.EventModelUnavailableEnd {
		if err := s.store.DeleteDisallow(evt.Provider, evt.CredentialID, evt.Model); err != nil {
			log.WithError(err).Warn("disallow delete failed")
		}
	}
}
