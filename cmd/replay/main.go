package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	core "movesqlize/core"
	config "movesqlize/pkg/config"
)

var logger = logrus.StandardLogger()

func main() {
	_ = godotenv.Load(".env")
	viper.AutomaticEnv()

	rootCmd := &cobra.Command{Use: "replay"}
	rootCmd.AddCommand(genesisCmd())
	rootCmd.AddCommand(runCmd())
	if err := rootCmd.Execute(); err != nil {
		logger.Fatal(err)
	}
}

// buildState opens the database and wires every core component a replay
// session needs, per SPEC_FULL.md §1.
func buildState(cfg *config.Config) (*sql.DB, *core.ModuleStore, *core.Resolver, *core.Annotator, *core.Writer, *core.Reader, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=%d", cfg.Database.Path, cfg.Database.BusyTimeMS)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, nil, nil, nil, nil, nil, fmt.Errorf("open db: %w", err)
	}
	store, err := core.NewModuleStore(db, nil)
	if err != nil {
		return nil, nil, nil, nil, nil, nil, err
	}
	resolver := core.NewResolver(store, nil)
	annotator := core.NewAnnotator(resolver, nil)
	reader := core.NewReader(resolver)
	writer := core.NewWriter(resolver, annotator, reader)
	return db, store, resolver, annotator, writer, reader, nil
}

func loadConfig(cmd *cobra.Command) *config.Config {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		logger.Warnf("config: %v, using defaults", err)
		cfg = &config.Config{}
	}
	if path, _ := cmd.Flags().GetString("db"); path != "" {
		cfg.Database.Path = path
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./movesqlize.db"
	}
	if cfg.Replay.BatchSize == 0 {
		cfg.Replay.BatchSize = 50
	}
	return cfg
}

func serveMetrics(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		logger.Infof("metrics listening on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Errorf("metrics server: %v", err)
		}
	}()
}

func genesisCmd() *cobra.Command {
	var writeSetPath, metricsAddr string
	cmd := &cobra.Command{
		Use:   "genesis",
		Short: "bootstrap the database from a genesis write-set file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig(cmd)
			serveMetrics(metricsAddr)

			data, err := os.ReadFile(writeSetPath)
			if err != nil {
				return fmt.Errorf("read genesis write-set: %w", err)
			}
			var bf blockFile
			if err := json.Unmarshal(data, &bf); err != nil {
				return fmt.Errorf("decode genesis write-set: %w", err)
			}

			db, store, _, _, _, _, err := buildState(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			entries := make([]core.WriteSetEntry, 0, len(bf.Ops))
			ops := make([]core.WriteSetOp, 0, len(bf.Ops))
			for _, raw := range bf.Ops {
				addr, err := ParseAddressHex(raw.Address)
				if err != nil {
					return err
				}
				op := core.WriteSetOp{Path: core.AccessPath{Address: addr}}
				switch {
				case raw.Code != nil:
					modAddr, err := ParseAddressHex(raw.Code.Address)
					if err != nil {
						return err
					}
					op.Path.Path.Code = &core.ModuleID{Address: modAddr, Name: core.Identifier(raw.Code.Name)}
				case raw.Resource != nil:
					resAddr, err := ParseAddressHex(raw.Resource.Address)
					if err != nil {
						return err
					}
					tag := core.StructTag{Address: resAddr, Module: core.Identifier(raw.Resource.Module), Name: core.Identifier(raw.Resource.Name)}
					op.Path.Path.Resource = &tag
				}
				if raw.Deletion {
					op.Op = core.WriteOp{Kind: core.WriteOpDeletion}
				} else {
					value, err := hexDecode(raw.Value)
					if err != nil {
						return err
					}
					op.Op = core.WriteOp{Kind: core.WriteOpValue, Value: value}
				}
				entries = append(entries, core.WriteSetEntry{Path: op.Path.Path, Op: op.Op})
				ops = append(ops, op)
			}

			resolver, err := core.NewResolverFromGenesisWriteSet(store, nil, entries)
			if err != nil {
				return err
			}
			annotator := core.NewAnnotator(resolver, nil)
			reader := core.NewReader(resolver)
			writer := core.NewWriter(resolver, annotator, reader)
			replay := core.NewReplay(db, store, resolver, annotator, writer, nil)

			if err := replay.ApplyBlock(ops); err != nil {
				return fmt.Errorf("apply genesis block: %w", err)
			}
			logger.Infof("genesis bootstrapped: %d ops applied", len(ops))
			return nil
		},
	}
	cmd.Flags().String("db", "", "database path (overrides config)")
	cmd.Flags().StringVar(&writeSetPath, "write-set", "", "path to a genesis write-set JSON file")
	cmd.Flags().StringVar(&metricsAddr, "metrics", "", "address to serve /metrics on, empty disables")
	cmd.MarkFlagRequired("write-set")
	return cmd
}

func runCmd() *cobra.Command {
	var blocksDir, metricsAddr string
	var from, to uint64
	cmd := &cobra.Command{
		Use:   "run",
		Short: "replay a chunked range of blocks from a directory of write-set files",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig(cmd)
			serveMetrics(metricsAddr)

			db, store, resolver, annotator, writer, _, err := buildState(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			fetcher, err := NewDirFetcher(blocksDir, cfg.Cache.FetcherLRUSize)
			if err != nil {
				return err
			}
			replay := core.NewReplay(db, store, resolver, annotator, writer, nil)

			var archive *WriteSetArchive
			if cfg.Archive.Enabled {
				archive, err = NewWriteSetArchive(cfg.Archive.ArchivePath)
				if err != nil {
					return err
				}
			}

			ctx := context.Background()
			batch := cfg.Replay.BatchSize
			for height := from; height <= to; height += uint64(batch) {
				for h := height; h < height+uint64(batch) && h <= to; h++ {
					ops, err := fetcher.FetchBlock(ctx, h)
					if err != nil {
						return fmt.Errorf("fetch block %d: %w", h, err)
					}
					if err := replay.ApplyBlock(ops); err != nil {
						return fmt.Errorf("apply block %d: %w", h, err)
					}
					if archive != nil {
						if err := archive.Append(h, ops); err != nil {
							return fmt.Errorf("archive block %d: %w", h, err)
						}
					}
				}
				logger.Infof("replayed blocks %d..%d", height, min(height+uint64(batch)-1, to))
			}
			return nil
		},
	}
	cmd.Flags().String("db", "", "database path (overrides config)")
	cmd.Flags().StringVar(&blocksDir, "blocks-dir", "", "directory of <height>.json write-set files")
	cmd.Flags().Uint64Var(&from, "from", 1, "first block height to replay")
	cmd.Flags().Uint64Var(&to, "to", 1, "last block height to replay, inclusive")
	cmd.Flags().StringVar(&metricsAddr, "metrics", "", "address to serve /metrics on, empty disables")
	cmd.MarkFlagRequired("blocks-dir")
	cmd.MarkFlagRequired("to")
	return cmd
}
