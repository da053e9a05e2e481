package config

import (
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
)

// MemoryPageFile selects an in-memory page file instead of a file on disk.
const MemoryPageFile = ":memory:"

/*
[storage]
page_file = records.db
pool_size = 16
strategy  = lru

[logs]
log_level = info
log_file  =
*/
type Cfg struct {
	Raw *ini.File

	// storage
	PageFile string
	PoolSize int
	Strategy string

	// logs
	LogLevel string
	LogFile  string
}

func NewCfg() *Cfg {
	return &Cfg{
		Raw:      ini.Empty(),
		PageFile: "records.db",
		PoolSize: 16,
		Strategy: "lru",
		LogLevel: "info",
	}
}

// Load reads an ini file over the defaults. Keys that are absent keep their default value.
func (cfg *Cfg) Load(path string) (*Cfg, error) {
	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, errors.Wrapf(err, "load config %s", path)
	}
	cfg.Raw = iniFile

	if err := cfg.parseStorageCfg(cfg.Raw.Section("storage")); err != nil {
		return nil, err
	}
	cfg.parseLogsCfg(cfg.Raw.Section("logs"))
	return cfg, nil
}

func (cfg *Cfg) parseStorageCfg(section *ini.Section) error {
	cfg.PageFile = section.Key("page_file").MustString(cfg.PageFile)
	cfg.Strategy = strings.ToLower(section.Key("strategy").MustString(cfg.Strategy))

	if section.HasKey("pool_size") {
		n, err := section.Key("pool_size").Int()
		if err != nil {
			return errors.Wrap(err, "storage.pool_size")
		}
		if n <= 0 {
			return errors.Errorf("storage.pool_size must be positive, got %d", n)
		}
		cfg.PoolSize = n
	}
	return nil
}

func (cfg *Cfg) parseLogsCfg(section *ini.Section) {
	cfg.LogLevel = section.Key("log_level").MustString(cfg.LogLevel)
	cfg.LogFile = section.Key("log_file").MustString(cfg.LogFile)
}
