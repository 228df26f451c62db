package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/panbanda/rehabscore/internal/logging"
	"github.com/panbanda/rehabscore/internal/output"
	"github.com/panbanda/rehabscore/internal/store"
	"github.com/panbanda/rehabscore/pkg/config"
	"github.com/panbanda/rehabscore/pkg/norms"
	"github.com/panbanda/rehabscore/pkg/scale"
	"github.com/panbanda/rehabscore/pkg/scoring"
)

// loadConfig returns the config named by --config, else the first config
// file in the standard locations, else the defaults. The path is empty for
// defaults. A config file that exists but does not parse is an error.
func loadConfig(c *cli.Context) (*config.Config, string, error) {
	path := c.String("config")
	if path == "" {
		found, ok := config.Find()
		if !ok {
			return config.DefaultConfig(), "", nil
		}
		path = found
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// runtimeEnv is what most commands need before they touch the store.
type runtimeEnv struct {
	cfg    *config.Config
	logger *slog.Logger
	scales *scale.Registry
}

func setup(c *cli.Context) (*runtimeEnv, error) {
	cfg, _, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	level := cfg.Log.Level
	if c.Bool("verbose") {
		level = "debug"
	}
	logger, err := logging.New(os.Stderr, level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	reg, err := scale.Open(cfg.Scales.Dirs, cfg.Scales.Files)
	if err != nil {
		return nil, fmt.Errorf("loading scales: %w", err)
	}
	logger.Debug("scales loaded", "count", reg.Len(), "ids", reg.IDs())

	return &runtimeEnv{cfg: cfg, logger: logger, scales: reg}, nil
}

// openStore connects to the configured database and applies the schema.
func (e *runtimeEnv) openStore(c *cli.Context) (*store.SQL, error) {
	driver, err := store.ParseDriver(e.cfg.Database.Driver)
	if err != nil {
		return nil, err
	}
	dsn := e.cfg.Database.DSN
	if v := c.String("dsn"); v != "" {
		dsn = v
	}
	if driver == store.DriverSQLite {
		if p := sqlitePath(dsn); p != "" {
			if dir := filepath.Dir(p); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return nil, fmt.Errorf("failed to create directory %q: %w", dir, err)
				}
			}
		}
	}

	db, err := store.Open(c.Context, driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(c.Context, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	e.logger.Debug("store opened", "driver", driver)
	return store.NewSQL(db), nil
}

// sqlitePath extracts the file path from a SQLite DSN. It is empty for
// in-memory databases.
func sqlitePath(dsn string) string {
	p := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" || strings.HasPrefix(p, ":memory:") {
		return ""
	}
	return p
}

type normsSource interface {
	LoadNorms(ctx context.Context) ([]norms.Entry, error)
}

// normsTable layers norms from lowest to highest precedence: the scale
// definitions, the database, then the configured norms files.
func (e *runtimeEnv) normsTable(ctx context.Context, src normsSource) (*norms.Table, error) {
	layers := [][]norms.Entry{norms.FromScales(e.scales.All()...)}
	if src != nil {
		stored, err := src.LoadNorms(ctx)
		if err != nil {
			return nil, err
		}
		layers = append(layers, stored)
	}
	for _, f := range e.cfg.Norms.Files {
		entries, err := norms.LoadFile(f)
		if err != nil {
			return nil, err
		}
		layers = append(layers, entries)
	}
	table := norms.NewTable(layers...)
	e.logger.Debug("norms loaded", "strata", table.Len())
	return table, nil
}

func (e *runtimeEnv) engine(table *norms.Table) *scoring.Engine {
	return scoring.New(e.scales, table, scoring.WithLogger(e.logger))
}

// formatter builds the output formatter from --format/--output, falling back
// to the output section of the config.
func (e *runtimeEnv) formatter(c *cli.Context) (*output.Formatter, error) {
	format := c.String("format")
	if format == "" {
		format = e.cfg.Output.Format
	}
	colored := e.cfg.Output.Color && !c.Bool("no-color")
	return output.NewFormatter(output.ParseFormat(format), c.String("output"), colored)
}
