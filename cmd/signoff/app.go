package main

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/zulandar/signoff/internal/config"
	"github.com/zulandar/signoff/internal/db"
	"github.com/zulandar/signoff/internal/directory"
	"github.com/zulandar/signoff/internal/docstore"
	"github.com/zulandar/signoff/internal/extract"
	"github.com/zulandar/signoff/internal/kv"
	"github.com/zulandar/signoff/internal/logger"
	"github.com/zulandar/signoff/internal/messaging"
)

// app bundles the stores every command works against.
type app struct {
	cfg   *config.Config
	log   *zap.Logger
	store *docstore.Store
	queue *messaging.Queue
	dir   *directory.Directory

	// Set only when opened with the database.
	db    *gorm.DB
	flags *kv.Store
}

// openApp loads the config and opens the JSON stores. withDB additionally
// connects and migrates the database.
func openApp(configPath string, withDB bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	store, err := docstore.Open(docstore.StoreOpts{
		Path:         cfg.DocumentsPath(),
		BaseDir:      cfg.Documents.BaseDir,
		FallbackDirs: cfg.Documents.FallbackDirs,
		Extractor:    extract.New(),
		Logger:       log,
	})
	if err != nil {
		return nil, err
	}
	queue, err := messaging.NewQueue(messaging.QueueOpts{
		Path:       cfg.NotificationsPath(),
		MaxEntries: cfg.Notifications.MaxEntries,
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}
	dir, err := directory.New(directory.Opts{Path: cfg.ConversationsPath(), Logger: log})
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log, store: store, queue: queue, dir: dir}
	if !withDB {
		return a, nil
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to %s database: %w", cfg.Database.Driver, err)
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return nil, err
	}
	flags, err := kv.New(gormDB)
	if err != nil {
		return nil, err
	}
	a.db = gormDB
	a.flags = flags
	return a, nil
}

func (a *app) close() {
	a.log.Sync()
	if a.db == nil {
		return
	}
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
}
