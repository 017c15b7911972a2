package main

import (
	"log"
	"os"

	"github.com/Sanyam07/diego/candidate"
	"github.com/Sanyam07/diego/internal/api"
	"github.com/Sanyam07/diego/internal/config"
	"github.com/Sanyam07/diego/storage"
	"github.com/Sanyam07/diego/study"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("diego: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
	)

	db, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	hub := study.NewHub()

	registry := candidate.NewRegistry()
	if err := registry.Register(candidate.BaselineGenerator()); err != nil {
		log.Fatalf("failed to register baseline candidate: %v", err)
	}

	srv := api.NewServer(cfg.ListenAddr, db, hub, registry, logger)

	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
