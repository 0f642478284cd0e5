package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/evantohost/tesseract/internal/api"
	"github.com/evantohost/tesseract/internal/capability"
	"github.com/evantohost/tesseract/internal/config"
	"github.com/evantohost/tesseract/internal/store"
	"github.com/evantohost/tesseract/internal/worker"
)

func main() {
	// A missing .env is fine; the environment wins either way.
	_ = godotenv.Load()

	cfg := config.Load()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("tessd: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"cache_dir", cfg.CacheDir,
		"lang_path", cfg.LangPath,
	)

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	host, err := capability.NewHost(capability.HostConfig{
		CacheDir: cfg.CacheDir,
	})
	if err != nil {
		log.Fatalf("failed to initialize host adapter: %v", err)
	}

	session := worker.NewSession(host, nil, logger, worker.Defaults{
		CorePath:  cfg.CorePath,
		LangPath:  cfg.LangPath,
		CachePath: cfg.CacheDir,
	})
	dispatcher := worker.NewDispatcher(session, db, logger)

	srv := api.NewServer(cfg.ListenAddr, db, dispatcher, logger)

	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}

	// Release the recognizer and engine module before the store closes.
	if _, err := session.Terminate(); err != nil {
		logger.Warn("terminating session", "error", err)
	}
}
