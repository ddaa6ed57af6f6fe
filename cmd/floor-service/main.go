package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/dutchiono/restaurant-pos-system/internal/broadcast"
	"github.com/dutchiono/restaurant-pos-system/internal/config"
	"github.com/dutchiono/restaurant-pos-system/internal/connections/database"
	"github.com/dutchiono/restaurant-pos-system/internal/connections/rabbitmq"
	"github.com/dutchiono/restaurant-pos-system/internal/domain"
	"github.com/dutchiono/restaurant-pos-system/internal/logger"
	"github.com/dutchiono/restaurant-pos-system/internal/service"
	"github.com/dutchiono/restaurant-pos-system/internal/storage"
)

type snapshotFunc func(ctx context.Context, channel string) (domain.ChannelSnapshot, error)

func (f snapshotFunc) Snapshot(ctx context.Context, channel string) (domain.ChannelSnapshot, error) {
	return f(ctx, channel)
}

func main() {
	cfgPath := flag.String("config", "", "path to config.yaml (optional)")
	inMemory := flag.Bool("memory", false, "run against the in-memory store instead of Postgres")
	noRelay := flag.Bool("no-relay", false, "skip the AMQP event relay")
	flag.Parse()

	_ = godotenv.Load()

	lg := logger.New("floor-service")

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		lg.Error("config_load_failed", err, map[string]any{"path": *cfgPath})
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var store storage.Store
	if *inMemory {
		store = storage.NewMemory()
	} else {
		db, err := database.ConnectDB(ctx, cfg.Database)
		if err != nil {
			lg.Error("db_connect_failed", err, nil)
			os.Exit(1)
		}
		store = storage.NewPostgres(db)
	}
	defer store.Close()

	// The broadcaster snapshots through the service, which in turn publishes
	// through the broadcaster; the indirection breaks the construction cycle.
	var svc *service.Service
	bc := broadcast.New(snapshotFunc(func(ctx context.Context, channel string) (domain.ChannelSnapshot, error) {
		return svc.Snapshot(ctx, channel)
	}), cfg.Service.EventBuffer, lg)
	defer bc.Close()

	svc = service.New(store, bc, lg, cfg.Service.TaxRate)

	if !*noRelay {
		mq, err := rabbitmq.Dial(rabbitmq.Config{
			Host: cfg.RabbitMQ.Host, Port: cfg.RabbitMQ.Port,
			User: cfg.RabbitMQ.User, Password: cfg.RabbitMQ.Password,
			VHost: cfg.RabbitMQ.VHost,
		})
		if err != nil {
			lg.Error("rabbitmq_connect_failed", err, nil)
			os.Exit(1)
		}
		defer mq.Close()

		relay := broadcast.NewRelay(mq, cfg.Service.RelayExchange, lg)
		sub := bc.Subscribe(broadcast.ChannelAll)
		go func() {
			if err := relay.Run(ctx, sub); err != nil {
				lg.Error("relay_stopped", err, nil)
			}
		}()
	}

	lg.Info("service_started", map[string]any{
		"store":    storeKind(*inMemory),
		"relay":    !*noRelay,
		"exchange": cfg.Service.RelayExchange,
	})

	<-ctx.Done()
	lg.Info("service_stopping", nil)
}

func storeKind(inMemory bool) string {
	if inMemory {
		return "memory"
	}
	return "postgres"
}
