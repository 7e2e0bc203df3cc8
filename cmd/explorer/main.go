package main

import (
	"database/sql"
	"fmt"

	"github.com/joho/godotenv"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/viper"

	core "movesqlize/core"
	config "movesqlize/pkg/config"
)

func main() {
	_ = godotenv.Load(".env")
	viper.AutomaticEnv()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		logger.Warnf("config: %v, falling back to defaults", err)
		cfg = &config.Config{}
	}

	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath = "./movesqlize.db"
	}
	bindAddr := cfg.Explorer.BindAddress
	if bindAddr == "" {
		bindAddr = ":8081"
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000", dbPath))
	if err != nil {
		logger.Fatalf("open db: %v", err)
	}
	defer db.Close()

	store, err := core.NewModuleStore(db, nil)
	if err != nil {
		logger.Fatalf("module store: %v", err)
	}
	resolver := core.NewResolver(store, nil)
	reader := core.NewReader(resolver)
	svc := NewSchemaService(db, store, resolver, reader)

	srv := NewServer(bindAddr, svc)
	logger.Infof("listening on %s (db=%s)", bindAddr, dbPath)
	if err := srv.Start(); err != nil {
		logger.Fatalf("server: %v", err)
	}
}
