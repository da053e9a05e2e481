package rmdb

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/woqer/Database-from-Scratch/config"
	"github.com/woqer/Database-from-Scratch/execution"
	"github.com/woqer/Database-from-Scratch/logger"
)

// DB is the top-level container: a loaded configuration and the record manager built from it.
type DB struct {
	Config  *config.Cfg
	Records *execution.RecordManager
}

// Open loads the ini file at configPath over the defaults, configures logging and opens the page file it
// names. An empty configPath uses the defaults alone.
func Open(configPath string) (*DB, error) {
	cfg := config.NewCfg()
	if configPath != "" {
		if _, err := cfg.Load(configPath); err != nil {
			return nil, err
		}
	}
	return OpenWithConfig(cfg)
}

// OpenWithConfig is Open for a configuration built in code.
func OpenWithConfig(cfg *config.Cfg) (*DB, error) {
	initLogger(cfg)

	if cfg.PageFile != config.MemoryPageFile {
		if err := os.MkdirAll(filepath.Dir(cfg.PageFile), 0755); err != nil {
			return nil, errors.Wrapf(err, "create directory for %s", cfg.PageFile)
		}
	}
	records, err := execution.InitRecordManager(cfg)
	if err != nil {
		return nil, err
	}
	return &DB{Config: cfg, Records: records}, nil
}

// OpenExisting opens the database named by cfg without creating the page file or formatting it, so a
// database that is only read is left byte for byte as it was.
func OpenExisting(cfg *config.Cfg) (*DB, error) {
	initLogger(cfg)
	records, err := execution.OpenRecordManager(cfg)
	if err != nil {
		return nil, err
	}
	return &DB{Config: cfg, Records: records}, nil
}

func initLogger(cfg *config.Cfg) {
	// A log file that cannot be opened is not fatal; InitLogger already fell back to stderr.
	_ = logger.InitLogger(logger.LogConfig{LogPath: cfg.LogFile, LogLevel: cfg.LogLevel})
}

// Close shuts the record manager down.
func (db *DB) Close() error {
	return db.Records.Shutdown()
}
