package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"

	"movesqlize/internal/testutil"
)

func TestLoadConfigDefault(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()

	if err := os.Chdir(".."); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	LoadConfig("")
	if AppConfig.Database.Path != "./movesqlize.db" {
		t.Fatalf("unexpected database path: %s", AppConfig.Database.Path)
	}
	if AppConfig.Cache.ModuleCacheSize != 4096 {
		t.Fatalf("unexpected module cache size: %d", AppConfig.Cache.ModuleCacheSize)
	}
}

func TestLoadConfigOverride(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()

	if err := os.Chdir(".."); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	LoadConfig("bootstrap")
	if AppConfig.Cache.ModuleCacheSize != 65536 {
		t.Fatalf("expected module cache size 65536, got %d", AppConfig.Cache.ModuleCacheSize)
	}
	if AppConfig.Replay.BatchSize != 200 {
		t.Fatalf("expected replay batch size override")
	}
}

func TestLoadConfigSandbox(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox failed: %v", err)
	}
	defer sb.Cleanup()

	if err := os.Mkdir(sb.Path("config"), 0700); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}

	data := []byte("database:\n  path: sandbox.db\ncache:\n  module_cache_size: 42\n")
	if err := sb.WriteFile("config/default.yaml", data, 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()

	if err := os.Chdir(sb.Root); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	LoadConfig("")

	if AppConfig.Database.Path != "sandbox.db" {
		t.Fatalf("expected database path sandbox.db, got %s", AppConfig.Database.Path)
	}
	if AppConfig.Cache.ModuleCacheSize != 42 {
		t.Fatalf("expected module cache size 42, got %d", AppConfig.Cache.ModuleCacheSize)
	}
}
