package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/alecthomas/kong"
	"github.com/go-kit/log/level"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sre-norns/vellum/pkg/config"
	"github.com/sre-norns/vellum/pkg/dbstore"
	"github.com/sre-norns/vellum/pkg/grace"
	"github.com/sre-norns/vellum/pkg/nativelayer"
	"github.com/sre-norns/vellum/pkg/runner"
)

type WorkerConfig struct {
	config.LogConfig    `embed:""`
	runner.WorkerConfig `embed:""`

	Database       string `help:"SQLite database previews are stored in" default:"previews.db" env:"DATABASE"`
	MetricsAddress string `help:"Address to expose worker metrics on, empty to disable" default:":9091"`
}

var appConfig WorkerConfig

func main() {
	grace.ExitOrLog(config.LoadEnv(".env"))

	appCtx := kong.Parse(&appConfig,
		kong.Name("render-worker"),
		kong.Description("Picks up preview render jobs from the queue, renders them with Chrome and stores the results"),
	)

	logger, err := appConfig.NewLogger(os.Stderr)
	appCtx.FatalIfErrorf(err)

	db, err := gorm.Open(sqlite.Open(appConfig.Database), &gorm.Config{})
	appCtx.FatalIfErrorf(err)
	sqlDB, err := db.DB()
	appCtx.FatalIfErrorf(err)
	sqlDB.SetMaxOpenConns(1)

	store, err := dbstore.NewDbStore(db)
	appCtx.FatalIfErrorf(err)
	defer store.Close()

	mainCtx, stop := grace.SetupSignalHandler(context.Background())
	defer stop()
	appCtx.FatalIfErrorf(store.Migrate(mainCtx))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	chrome := nativelayer.NewChrome(appConfig.Chrome, logger)
	worker := runner.NewWorker(chrome, store, appConfig.Timeout, logger, runner.NewMetrics(registry))

	if appConfig.MetricsAddress != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(appConfig.MetricsAddress, mux); err != nil {
				level.Error(logger).Log("msg", "metrics endpoint failed", "err", err)
			}
		}()
	}

	labels := runner.GetRuntimeLabels()
	level.Info(logger).Log("msg", "starting render worker",
		"name", appConfig.Name,
		"redis", appConfig.Queue.RedisAddress,
		"queue", appConfig.Queue.Queue,
		"version", labels[runner.LabelBuildVersion],
		"os", labels[runner.LabelOS],
		"arch", labels[runner.LabelArch],
	)

	workerServer := asynq.NewServer(asynq.RedisClientOpt{Addr: appConfig.Queue.RedisAddress}, asynq.Config{
		Concurrency: appConfig.Concurrency,
		Queues:      map[string]int{appConfig.Queue.Queue: 1},
		BaseContext: func() context.Context { return mainCtx },
	})

	if err := workerServer.Start(worker.ServeMux()); err != nil {
		appCtx.FatalIfErrorf(fmt.Errorf("failed to start worker: %w", err))
	}

	<-mainCtx.Done()
	level.Info(logger).Log("msg", "shutting down")
	workerServer.Shutdown()
}
