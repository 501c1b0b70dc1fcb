package app

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/dinver-app/dinver-media/cmd/migrate"
	"github.com/dinver-app/dinver-media/internal/cache"
	"github.com/dinver-app/dinver-media/internal/cdn"
	"github.com/dinver-app/dinver-media/internal/config"
	"github.com/dinver-app/dinver-media/internal/eventbus"
	"github.com/dinver-app/dinver-media/internal/processor"
	"github.com/dinver-app/dinver-media/internal/queue"
	"github.com/dinver-app/dinver-media/internal/r2"
	"github.com/dinver-app/dinver-media/internal/redisholder"
	"github.com/dinver-app/dinver-media/internal/repository/catalog"
	"github.com/dinver-app/dinver-media/internal/transport/handler"
	"github.com/dinver-app/dinver-media/internal/transport/router"
	"github.com/dinver-app/dinver-media/internal/uploader"
)

type App struct {
	HttpServer *http.Server
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := migrate.Migrate(cfg.Database.DSN, migrate.Migrations); err != nil {
		return nil, err
	}

	assets, err := catalog.New(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	holder, err := redisholder.Build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	rc := holder.Get()

	storage, err := r2.NewStorage(&cfg.R2)
	if err != nil {
		return nil, err
	}

	urlCache := cache.NewCache("media:urls", rc)
	resolver := cdn.New(cfg.CDN, nil, urlCache)

	gen := processor.NewGenerator()
	bus := eventbus.New()
	jobs := queue.Init(ctx, rc, cfg.Pipeline, storage, gen, assets, bus)

	uploads := uploader.New(gen, storage, jobs, resolver, assets, cfg.Upload.QuickMaxWidth)

	h := handler.New(uploads, jobs, resolver, storage, cfg)
	r := router.NewRouter(h)

	s := &http.Server{
		Handler:      r,
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &App{
		HttpServer: s,
	}, nil
}

func (a *App) Run() error {
	log.Printf("starting server")
	return a.HttpServer.ListenAndServe()
}
