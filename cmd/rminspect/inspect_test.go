package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	rmdb "github.com/woqer/Database-from-Scratch"
	"github.com/woqer/Database-from-Scratch/catalog"
	"github.com/woqer/Database-from-Scratch/common"
	"github.com/woqer/Database-from-Scratch/config"
	"github.com/woqer/Database-from-Scratch/storage"
)

func TestInspect(t *testing.T) {
	cfg := config.NewCfg()
	cfg.PageFile = config.MemoryPageFile
	cfg.LogLevel = "warn"
	db, err := rmdb.OpenWithConfig(cfg)
	require.NoError(t, err)
	defer db.Close()

	schema, err := catalog.NewSchema([]catalog.Column{
		{Name: "id", Type: common.IntType},
		{Name: "name", Type: common.StringType, Length: 20},
	}, []int{0})
	require.NoError(t, err)
	require.NoError(t, db.Records.CreateTable("people", schema))
	table, err := db.Records.OpenTable("people")
	require.NoError(t, err)
	for i, name := range []string{"ada", "grace"} {
		rec := schema.CreateRecord()
		require.NoError(t, schema.SetAttr(rec, 0, common.NewIntValue(int32(i))))
		require.NoError(t, schema.SetAttr(rec, 1, common.NewStringValue(name)))
		require.NoError(t, table.InsertRecord(rec))
	}

	var out bytes.Buffer
	require.NoError(t, inspect(&out, db, true))
	text := out.String()
	assert.Contains(t, text, "1 table(s)")
	assert.Contains(t, text, "people (id:int, name:string[20]) key[0]")
	assert.Contains(t, text, "tuples 2, slots 2 of 170")
	assert.Contains(t, text, "rid(0, 1) id=1 name=grace")
	assert.Contains(t, text, "pool:")
}

func TestInspect_LeavesFileUntouched(t *testing.T) {
	cfg := config.NewCfg()
	cfg.PageFile = filepath.Join(t.TempDir(), "people.db")
	cfg.LogLevel = "warn"

	// A page file that never held a directory is reported, not formatted.
	file, err := storage.CreatePageFile(cfg.PageFile)
	require.NoError(t, err)
	require.NoError(t, file.Close())
	blank, err := os.ReadFile(cfg.PageFile)
	require.NoError(t, err)
	_, err = rmdb.OpenExisting(cfg)
	assert.True(t, common.IsErrorCode(err, common.CorruptHeaderError), "got %v", err)
	after, err := os.ReadFile(cfg.PageFile)
	require.NoError(t, err)
	assert.Equal(t, blank, after)

	db, err := rmdb.OpenWithConfig(cfg)
	require.NoError(t, err)
	schema, err := catalog.NewSchema([]catalog.Column{{Name: "id", Type: common.IntType}}, nil)
	require.NoError(t, err)
	require.NoError(t, db.Records.CreateTable("people", schema))
	require.NoError(t, db.Close())
	before, err := os.ReadFile(cfg.PageFile)
	require.NoError(t, err)

	db, err = rmdb.OpenExisting(cfg)
	require.NoError(t, err)
	var out bytes.Buffer
	require.NoError(t, inspect(&out, db, true))
	require.NoError(t, db.Close())
	assert.Contains(t, out.String(), "1 table(s)")

	after, err = os.ReadFile(cfg.PageFile)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
