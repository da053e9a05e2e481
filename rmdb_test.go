package rmdb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/woqer/Database-from-Scratch/catalog"
	"github.com/woqer/Database-from-Scratch/common"
	"github.com/woqer/Database-from-Scratch/config"
	"github.com/woqer/Database-from-Scratch/logger"
)

func TestOpen_FromConfigFile(t *testing.T) {
	dir := t.TempDir()
	pageFile := filepath.Join(dir, "data", "people.db")
	conf := "[storage]\npage_file = " + pageFile + "\npool_size = 5\nstrategy = CLOCK\n\n[logs]\nlog_level = error\n"
	confPath := filepath.Join(dir, "rm.ini")
	require.NoError(t, os.WriteFile(confPath, []byte(conf), 0644))
	t.Cleanup(func() { _ = logger.InitLogger(logger.LogConfig{LogLevel: "warn"}) })

	db, err := Open(confPath)
	require.NoError(t, err)
	assert.Equal(t, 5, db.Records.BufferPool().NumFrames())
	assert.Equal(t, "clock", db.Config.Strategy)

	schema, err := catalog.NewSchema([]catalog.Column{{Name: "id", Type: common.IntType}}, nil)
	require.NoError(t, err)
	require.NoError(t, db.Records.CreateTable("people", schema))
	require.NoError(t, db.Close())

	db, err = Open(confPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"people"}, db.Records.TableNames())
	require.NoError(t, db.Close())
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.ini"))
	assert.Error(t, err)

	cfg := config.NewCfg()
	cfg.PageFile = config.MemoryPageFile
	cfg.LogLevel = "warn"
	db, err := OpenWithConfig(cfg)
	require.NoError(t, err)
	assert.Empty(t, db.Records.TableNames())
	require.NoError(t, db.Close())
}
