// Package app wires configuration into the services and the HTTP server.
package app

import (
	"context"
	"net/http"

	"github.com/pkg/errors"

	"github.com/alvarorichard/anistream/internal/catalog"
	"github.com/alvarorichard/anistream/internal/config"
	"github.com/alvarorichard/anistream/internal/relay"
	"github.com/alvarorichard/anistream/internal/resolver"
	"github.com/alvarorichard/anistream/internal/server"
	"github.com/alvarorichard/anistream/internal/session"
	"github.com/alvarorichard/anistream/internal/tracking"
	"github.com/alvarorichard/anistream/internal/util"
)

// Services are the request-independent building blocks shared by the server
// and the CLI.
type Services struct {
	// Pages fetches site pages with navigation headers and a per-call jar.
	Pages    *session.Client
	Resolver *resolver.Resolver
	Relay    *relay.Relay
	Catalog  *catalog.Service
}

// NewServices builds the fetch clients and the services on top of them.
func NewServices(cfg *config.Config) (*Services, error) {
	pageHTTP, err := util.NewHTTPClient(util.ClientOptions{
		Proxy:            cfg.Session.Proxy,
		FingerprintHosts: cfg.Session.FingerprintHosts,
	})
	if err != nil {
		return nil, errors.Wrap(err, "page client")
	}
	pages := session.New(pageHTTP, session.Options{
		MaxRedirects: session.RedirectBudget(cfg.Session.MaxRedirects),
		Profile:      session.Navigation(cfg.Session.UserAgent, cfg.Sites.BaseURL),
		UseJar:       true,
		SiteRoot:     cfg.Sites.BaseURL,
	})

	unifiedHTTP, err := util.NewHTTPClient(util.ClientOptions{Proxy: cfg.Session.Proxy})
	if err != nil {
		return nil, errors.Wrap(err, "unified client")
	}
	unified := resolver.NewUnified(unifiedHTTP, resolver.UnifiedConfig{
		Endpoint:  cfg.Unified.Endpoint,
		Param:     cfg.Unified.Param,
		Source:    cfg.Unified.Source,
		Timeout:   cfg.Unified.Timeout,
		UserAgent: cfg.Session.UserAgent,
	})

	res, err := resolver.New(pages, unified, cfg.Sites.BaseURL, resolver.DefaultRules(cfg.Resolver.TrustedHosts))
	if err != nil {
		return nil, err
	}

	relayHTTP, err := util.NewHTTPClient(util.ClientOptions{
		Proxy:        cfg.Session.Proxy,
		BlockPrivate: cfg.Relay.BlockPrivate,
	})
	if err != nil {
		return nil, errors.Wrap(err, "relay client")
	}
	referers, err := cfg.RefererMap()
	if err != nil {
		return nil, err
	}
	opener := relay.NewOpener(relayHTTP, cfg.Session.UserAgent, session.RedirectBudget(cfg.Session.MaxRedirects),
		relay.Referers(referers, cfg.Sites.BaseURL))
	rel := relay.New(opener, relay.Config{
		ImageMaxAge: cfg.Relay.ImageMaxAge,
		MaxBytes:    cfg.Relay.MaxBytes,
	})

	cat, err := catalog.New(pages, cfg.Sites.BaseURL, catalog.Options{
		Workers: cfg.Enrich.Workers,
		Rate:    cfg.Enrich.Rate,
	})
	if err != nil {
		return nil, err
	}

	return &Services{Pages: pages, Resolver: res, Relay: rel, Catalog: cat}, nil
}

// OpenStore opens the SQLite store at path, falling back to memory when the
// path is empty or the binary was built without cgo.
func OpenStore(path string) (tracking.Store, error) {
	if path == "" {
		util.Warn("store.path is empty, user data will not survive restarts")
		return tracking.NewMemoryStore(), nil
	}
	store, err := tracking.NewSQLiteStore(path)
	if errors.Is(err, tracking.ErrCgoDisabled) {
		util.Warn("built without cgo, user data will not survive restarts")
		return tracking.NewMemoryStore(), nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "opening store %s", path)
	}
	return store, nil
}

// App is the assembled HTTP service.
type App struct {
	Config   *config.Config
	Services *Services
	Store    tracking.Store
	Server   *server.Server
}

// New assembles the HTTP service from cfg.
func New(cfg *config.Config) (*App, error) {
	svc, err := NewServices(cfg)
	if err != nil {
		return nil, err
	}
	store, err := OpenStore(cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	srv := server.New(server.Config{
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	})
	server.NewHandlers(svc.Resolver, svc.Relay, svc.Catalog, store).RegisterRoutes(srv.Router())

	return &App{Config: cfg, Services: svc, Store: store, Server: srv}, nil
}

// Handler exposes the wrapped router, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.Server.Handler()
}

// Run serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	util.Info("anistream listening",
		"port", a.Config.Server.Port,
		"site", a.Config.Sites.BaseURL,
		"unified", a.Config.Unified.Endpoint != "",
	)
	return a.Server.Run(ctx)
}

// Close releases the store.
func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	return a.Store.Close()
}
