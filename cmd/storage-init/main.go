// Command storage-init provisions the configured backend: Mongo indexes or
// Azure tables. Re-running it is harmless.
package main

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"primetrade-api/config"
	"primetrade-api/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	log.WithField("backend", cfg.Backend).Info("storage init starting")

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	switch cfg.Backend {
	case config.BackendTables:
		tables, err := storage.NewTables(cfg.StorageConnectionString, cfg.TasksTable, cfg.UsersTable)
		if err != nil {
			log.Fatalf("storage: %v", err)
		}
		if err := tables.EnsureTables(ctx); err != nil {
			log.Fatalf("create tables: %v", err)
		}
	default:
		mongo, err := storage.NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			log.Fatalf("mongo: %v", err)
		}
		defer func() {
			if err := mongo.Close(context.Background()); err != nil {
				log.WithError(err).Warn("close mongo")
			}
		}()
		if err := mongo.EnsureIndexes(ctx); err != nil {
			log.Fatalf("create indexes: %v", err)
		}
	}

	log.Info("storage init complete")
}
