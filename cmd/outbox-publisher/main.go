package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/angelmondragon/donations-backend/internal/bootstrap"
	"github.com/angelmondragon/donations-backend/pkg/outbox"
	"github.com/angelmondragon/donations-backend/pkg/outbox/registry"
	"github.com/angelmondragon/donations-backend/pkg/pubsub"
)

const serviceName = "outbox-publisher"

func main() {
	cfg, logg, err := bootstrap.Load(serviceName)
	if err != nil {
		bootstrap.Fatal(context.Background(), logg, "startup", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": cfg.Service.Kind})

	store, closeStore, err := bootstrap.OpenStore(ctx, cfg, logg)
	if err != nil {
		bootstrap.Fatal(ctx, logg, "startup", err)
	}
	defer closeStore()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		bootstrap.Fatal(ctx, logg, "connect pubsub", err)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "closing pubsub client", err)
		}
	}()

	events, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		bootstrap.Fatal(ctx, logg, "build event registry", err)
	}

	svc, err := NewService(ServiceParams{
		Config:        cfg.Outbox,
		Logger:        logg,
		DB:            store,
		PubSub:        pubsubClient,
		Repository:    outbox.NewRepository(store.DB()),
		DLQRepository: outbox.NewDLQRepository(store.DB()),
		Registry:      events,
		PublisherFactory: func(topic string) publisher {
			return newGCPPublisher(pubsubClient.Publisher(topic))
		},
	})
	if err != nil {
		bootstrap.Fatal(ctx, logg, "create outbox publisher", err)
	}

	logg.Info(ctx, "outbox publisher started")
	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		bootstrap.Fatal(ctx, logg, "outbox publisher stopped", err)
	}
	logg.Info(context.Background(), "outbox publisher stopped")
}
