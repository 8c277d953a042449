package main

import (
	"context"
	"log"
	"log/slog"
	"time"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"

	"github.com/damione1/collab-notes/internal/config"
	"github.com/damione1/collab-notes/internal/handlers"
	"github.com/damione1/collab-notes/internal/security"
	"github.com/damione1/collab-notes/internal/services"
	"github.com/damione1/collab-notes/internal/store"
	_ "github.com/damione1/collab-notes/migrations"
)

const shutdownTimeout = 10 * time.Second

func main() {
	app := pocketbase.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	metrics := services.NewMetrics()

	app.OnServe().BindFunc(func(se *core.ServeEvent) error {
		logger := se.App.Logger()

		docs, closeStore, err := openStore(se.App, cfg, logger)
		if err != nil {
			return err
		}

		reconciler := services.NewReconciler(docs, logger)
		persister := services.NewPersister(services.PersisterConfigFrom(cfg), reconciler, metrics, logger)
		reconciler.UsePending(persister)
		registry := services.NewRegistry(cfg.AnonymousName, metrics, logger)
		channel := services.NewSyncChannel(registry, reconciler, persister, metrics, logger)

		if err := persister.Start(); err != nil {
			return err
		}

		se.App.OnTerminate().BindFunc(func(te *core.TerminateEvent) error {
			registry.Shutdown()

			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := persister.Stop(ctx); err != nil {
				logger.Warn("unwritten content dropped at shutdown", "err", err)
			}
			closeStore()
			return te.Next()
		})

		notes := handlers.NewNotesHandlers(reconciler, logger)
		rooms := handlers.NewRoomHandlers(registry)
		ws := handlers.NewWSHandler(channel, security.NewOriginValidator(cfg.Origins()), logger)

		api := se.Router.Group("/api")
		api.Bind(handlers.RequestLogger(logger))
		api.GET("/notes/{roomId}", notes.ListByRoom)
		api.GET("/notes/{roomId}/latest", notes.Latest)
		api.POST("/notes", notes.Create)
		api.PUT("/notes/room/{roomId}", notes.UpdateByRoom)
		api.PUT("/notes/id/{noteId}", notes.UpdateByID)
		api.GET("/rooms", rooms.LiveRooms)
		api.GET("/rooms/new", rooms.NewRoom)

		se.Router.GET("/ws", ws.HandleWebSocket)
		se.Router.GET("/metrics", handlers.HandleMetrics(metrics))
		se.Router.GET("/healthz", handlers.HandleHealth(metrics, persister))

		logger.Info("collab notes ready", "store", cfg.StoreDriver, "persist_workers", cfg.PersistWorkers)
		return se.Next()
	})

	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
}

// openStore builds the document store selected by STORE_DRIVER and returns
// a function releasing its resources.
func openStore(app core.App, cfg *config.Config, logger *slog.Logger) (store.DocumentStore, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverBadger:
		db, err := store.OpenBadger(cfg.BadgerPath, logger)
		if err != nil {
			return nil, nil, err
		}
		return store.NewBadgerStore(db, logger), func() {
			if err := db.Close(); err != nil {
				logger.Error("failed to close badger", "err", err)
			}
		}, nil
	case config.DriverMemory:
		return store.NewMemoryStore(), func() {}, nil
	default:
		return store.NewPocketBaseStore(app), func() {}, nil
	}
}
