package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OOJ984/Fidget-Street-sub003/internal/anomaly"
	"github.com/OOJ984/Fidget-Street-sub003/internal/audit"
	"github.com/OOJ984/Fidget-Street-sub003/internal/auth"
	"github.com/OOJ984/Fidget-Street-sub003/internal/catalog"
	"github.com/OOJ984/Fidget-Street-sub003/internal/config"
	"github.com/OOJ984/Fidget-Street-sub003/internal/giftcard"
	"github.com/OOJ984/Fidget-Street-sub003/internal/httpapi"
	"github.com/OOJ984/Fidget-Street-sub003/internal/mfa"
	"github.com/OOJ984/Fidget-Street-sub003/internal/obs"
	"github.com/OOJ984/Fidget-Street-sub003/internal/orders"
	"github.com/OOJ984/Fidget-Street-sub003/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

type principalStore interface {
	auth.PrincipalStore
	mfa.Store
}

type auditStore interface {
	audit.Store
	anomaly.Counter
}

// backend groups the stores behind the services.
type backend struct {
	principals principalStore
	audit      auditStore
	catalog    catalog.Store
	orders     orders.Store
	giftCards  giftcard.Store
	ready      httpapi.ReadyProbe
	close      func()
}

func openBackend(ctx context.Context, cfg *config.Config) (backend, error) {
	if cfg.DatabaseDSN == "" {
		principals := auth.NewMemoryStore()
		if cfg.Bootstrap.Email != "" {
			p, err := auth.NewService(principals).CreatePrincipal(ctx,
				cfg.Bootstrap.Email, cfg.Bootstrap.Password, auth.RoleWebsiteAdmin)
			if err != nil {
				return backend{}, err
			}
			obs.Logger().Info("bootstrap admin created", "user_id", p.ID, "email", p.Email)
		}
		return backend{
			principals: principals,
			audit:      audit.NewMemoryStore(),
			catalog:    catalog.NewMemoryStore(),
			orders:     orders.NewMemoryStore(),
			giftCards:  giftcard.NewMemoryStore(),
			close:      func() {},
		}, nil
	}

	store, err := pg.Open(cfg.DatabaseDSN)
	if err != nil {
		return backend{}, err
	}
	return backend{
		principals: store,
		audit:      store,
		catalog:    store,
		orders:     store,
		giftCards:  store,
		ready:      httpapi.ReadyProbe{DB: store},
		close:      func() { _ = store.Close() },
	}, nil
}

func main() {
	configPath := flag.String("config", os.Getenv("FIDGET_CONFIG"), "path to YAML config")
	flag.Parse()

	log := obs.Logger()
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("load config", "error", err.Error())
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "error", err.Error())
		os.Exit(1)
	}
	if cfg.AuthSecret == "" {
		log.Warn("auth_secret is not set; admin and order routes will answer with a configuration error")
	}

	be, err := openBackend(context.Background(), cfg)
	if err != nil {
		log.Error("open storage", "error", err.Error())
		os.Exit(1)
	}
	defer be.close()
	if cfg.DatabaseDSN == "" {
		log.Warn("database_dsn is not set; using in-memory storage")
	}

	rec := audit.NewRecorder(be.audit)
	rec.SetObserver(anomaly.New(be.audit, rec, anomaly.RulesFromConfig(cfg.Detectors)))

	svc := httpapi.Services{
		Tokens: auth.NewTokenizer(cfg.AuthSecret,
			auth.WithTokenTTL(cfg.TokenTTL),
			auth.WithTokenIssuer(cfg.TokenIssuer),
		),
		Accounts: auth.NewService(be.principals),
		MFA: mfa.NewEngine(be.principals,
			mfa.WithIssuer(cfg.MFA.Issuer),
			mfa.WithBackupCodeCount(cfg.MFA.BackupCodeCount),
		),
		Audit:     rec,
		Catalog:   catalog.NewService(be.catalog),
		Orders:    orders.NewService(be.orders, be.catalog),
		GiftCards: giftcard.NewService(be.giftCards),
	}
	api := httpapi.New(svc, be.ready, httpapi.Options{
		Version:        version,
		AllowedOrigins: cfg.AllowedOrigins,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		RequestTimeout: cfg.RequestTimeout,
		LoginThrottle:  cfg.LoginThrottle,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info("starting fidget-street-api", "version", version, "addr", srv.Addr)

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("listen", "error", err.Error())
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown", "error", err.Error())
	}
	log.Info("stopped")
}
