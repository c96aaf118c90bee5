package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/gin-gonic/gin"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sre-norns/vellum/pkg/bark"
	"github.com/sre-norns/vellum/pkg/config"
	"github.com/sre-norns/vellum/pkg/dbstore"
	"github.com/sre-norns/vellum/pkg/destination"
	"github.com/sre-norns/vellum/pkg/grace"
	"github.com/sre-norns/vellum/pkg/nativelayer"
)

type ServerConfig struct {
	config.LogConfig `embed:""`

	Address         string        `help:"Address to serve the API on" default:":8080" env:"ADDRESS"`
	Database        string        `help:"SQLite database previews are stored in" default:"previews.db" env:"DATABASE"`
	ShutdownTimeout time.Duration `help:"Time to let in-flight requests finish on shutdown" default:"10s"`

	Renderer     nativelayer.Kind    `help:"Kind of renderer producing previews: stub, chrome or queue" default:"stub" env:"RENDERER"`
	Native       nativelayer.Options `embed:""`
	Destinations []string            `help:"Destination capability files (JSON or YAML) to serve" type:"path" env:"DESTINATIONS"`
}

var appConfig ServerConfig

func newProvider(paths []string) (destination.Provider, error) {
	if len(paths) == 0 {
		return destination.NewCatalog(destination.Template("FooDevice")), nil
	}

	return destination.LoadCatalog(paths...)
}

func main() {
	grace.ExitOrLog(config.LoadEnv(".env"))

	appCtx := kong.Parse(&appConfig,
		kong.Name("preview-server"),
		kong.Description("Print preview API: sessions, settings, tickets and rendered previews"),
	)

	logger, err := appConfig.NewLogger(os.Stderr)
	appCtx.FatalIfErrorf(err)

	mainCtx, stop := grace.SetupSignalHandler(context.Background())
	defer stop()

	db, err := gorm.Open(sqlite.Open(appConfig.Database), &gorm.Config{})
	appCtx.FatalIfErrorf(err)
	sqlDB, err := db.DB()
	appCtx.FatalIfErrorf(err)
	sqlDB.SetMaxOpenConns(1)

	store, err := dbstore.NewDbStore(db)
	appCtx.FatalIfErrorf(err)
	defer store.Close()
	appCtx.FatalIfErrorf(store.Migrate(mainCtx))

	provider, err := newProvider(appConfig.Destinations)
	appCtx.FatalIfErrorf(err)

	renderer, err := nativelayer.New(appConfig.Renderer, appConfig.Native, logger)
	appCtx.FatalIfErrorf(err)
	defer nativelayer.Close(renderer)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	service := bark.NewService(provider, renderer, store, registry, logger)
	defer service.Close()

	if appConfig.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), bark.LogRequests(logger))

	server := &http.Server{
		Addr:    appConfig.Address,
		Handler: service.Routes(router),
	}

	go func() {
		level.Info(logger).Log("msg", "serving preview API", "address", appConfig.Address, "renderer", appConfig.Renderer)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			level.Error(logger).Log("msg", "server failed", "err", err)
			stop()
		}
	}()

	<-mainCtx.Done()
	level.Info(logger).Log("msg", "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), appConfig.ShutdownTimeout)
	defer cancel()
	grace.ExitOrLog(server.Shutdown(shutdownCtx))
}
