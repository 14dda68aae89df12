package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"
	_ "modernc.org/sqlite"

	"github.com/featurebin/qsketch/pkg/api"
	"github.com/featurebin/qsketch/pkg/storage"
)

func main() {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)

	dbPath := os.Getenv("QSKETCH_DB_PATH")
	if dbPath == "" {
		dbPath = "qsketch.sqlite"
	}
	level.Info(logger).Log("msg", "opening database", "path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		level.Error(logger).Log("msg", "open sqlite db", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	// Pragmas for better performance
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")

	if err := storage.EnsureTables(context.Background(), db); err != nil {
		level.Error(logger).Log("msg", "ensure tables", "err", err)
		os.Exit(1)
	}

	r := mux.NewRouter()
	if err := api.RegisterRoutes(r, db, logger); err != nil {
		level.Error(logger).Log("msg", "register routes", "err", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	level.Info(logger).Log("msg", "listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		level.Error(logger).Log("msg", "server error", "err", err)
		os.Exit(1)
	}
	level.Info(logger).Log("msg", "server stopped")
}
