package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"dispatchdesk/internal/api"
	"dispatchdesk/internal/auth"
	"dispatchdesk/internal/backend"
	"dispatchdesk/internal/buildinfo"
	"dispatchdesk/internal/config"
	"dispatchdesk/internal/dispatch"
	"dispatchdesk/internal/events"
	"dispatchdesk/internal/logging"
	"dispatchdesk/internal/metrics"
	"dispatchdesk/internal/pool"
	"dispatchdesk/internal/store"
	"dispatchdesk/internal/transform"
	"dispatchdesk/internal/webhooks"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("DISPATCHD_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	log := logging.New(logging.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Service: "dispatchd",
		Version: buildinfo.Version,
	})
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("dispatchd stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.RegisterDefault()

	st, err := store.New(cfg.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	client := backend.New(backend.Options{
		BaseURL:         cfg.Backend.BaseURL,
		Token:           cfg.Backend.Token,
		Timeout:         cfg.Backend.Timeout,
		RateRPS:         cfg.Backend.RateRPS,
		Burst:           cfg.Backend.Burst,
		BreakerFailures: cfg.Backend.BreakerFailures,
		BreakerCooldown: cfg.Backend.BreakerCooldown,
		Logger:          log.With("component", "backend"),
	})
	runner := transform.NewRunner(cfg.Transform.Workers)
	defer runner.Close()

	var em events.Emitter = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		em = events.NewKafkaEmitter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		log.Info("kafka events enabled", "topic", cfg.Kafka.Topic)
	}
	defer em.Close()

	observer := api.NewDispatchObserver(st, webhooks.NewPublisher(st, log), em, log)
	committer := dispatch.NewCommitter(client, runner, dispatch.CommitterOptions{
		Mode:        dispatch.Mode(cfg.Backend.DispatchMode),
		Concurrency: cfg.Backend.CommitConcurrency,
		PageSize:    cfg.Backend.PageSize,
		Observer:    observer,
		Logger:      log.With("component", "commit"),
	})

	var broker api.EventBroker = api.NewBroker()
	if cfg.Redis.URL != "" {
		rb, err := api.NewRedisBroker(cfg.Redis.URL)
		if err != nil {
			log.Warn("redis broker unavailable, using in-process broker", "err", err)
		} else {
			broker = rb
		}
	}
	defer broker.Close()

	srv := api.NewServer(api.Deps{
		Config:    cfg,
		Pool:      pool.NewAdapter(client),
		Submitter: dispatch.NewSubmitter(client, runner),
		Committer: committer,
		Edits:     client,
		Store:     st,
		Observer:  observer,
		Auth:      auth.NewVerifier(cfg.Auth),
		Broker:    broker,
		Log:       log,
	})
	defer srv.Sessions.CloseAll()

	hs := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		srv.Sessions.Run(gctx, cfg.Session.SweepInterval, cfg.Session.IdleTTL, log)
		return nil
	})
	g.Go(func() error {
		webhooks.NewWorker(st, cfg.Webhooks.MaxAttempts, cfg.Webhooks.Interval, log.With("component", "webhooks")).Run(gctx)
		return nil
	})
	g.Go(func() error {
		log.Info("listening", "addr", hs.Addr, "backend", cfg.Backend.BaseURL, "auth", cfg.Auth.Mode)
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return hs.Shutdown(shutdown)
	})
	return g.Wait()
}
