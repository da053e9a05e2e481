package execution

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/woqer/Database-from-Scratch/common"
	"github.com/woqer/Database-from-Scratch/config"
	"github.com/woqer/Database-from-Scratch/storage"
)

func diskConfig(t *testing.T) *config.Cfg {
	cfg := config.NewCfg()
	cfg.PageFile = filepath.Join(t.TempDir(), "records.db")
	cfg.PoolSize = 4
	cfg.Strategy = "fifo"
	return cfg
}

func TestRecordManager_InMemory(t *testing.T) {
	cfg := config.NewCfg()
	cfg.PageFile = config.MemoryPageFile
	rm, err := InitRecordManager(cfg)
	require.NoError(t, err)

	assert.Empty(t, rm.TableNames())
	require.NoError(t, rm.CreateTable("t", testSchema(t)))
	assert.Equal(t, []string{"t"}, rm.TableNames())
	assert.Equal(t, storage.LRU, rm.BufferPool().Strategy())
	require.NoError(t, rm.Shutdown())
}

func TestRecordManager_BadConfig(t *testing.T) {
	cfg := diskConfig(t)
	cfg.Strategy = "random"
	_, err := InitRecordManager(cfg)
	assert.Error(t, err)

	cfg = diskConfig(t)
	cfg.PoolSize = 0
	_, err = InitRecordManager(cfg)
	assert.Error(t, err)
}

func TestRecordManager_TableDDL(t *testing.T) {
	rm, _ := makeTestDeps(t, 4)

	err := rm.CreateTable("test_table", testSchema(t))
	assert.True(t, common.IsErrorCode(err, common.DuplicateObjectError))

	err = rm.CreateTable(string(make([]byte, 65)), testSchema(t))
	assert.True(t, common.IsErrorCode(err, common.TableNameTooLongError))

	err = rm.CreateTable("no_schema", nil)
	assert.True(t, common.IsErrorCode(err, common.InvalidSchemaError))

	_, err = rm.OpenTable("missing")
	assert.True(t, common.IsErrorCode(err, common.TableNotFoundError))

	err = rm.DeleteTable("missing")
	assert.True(t, common.IsErrorCode(err, common.TableNotFoundError))

	require.NoError(t, rm.CreateTable("other", testSchema(t)))
	assert.Equal(t, []string{"test_table", "other"}, rm.TableNames())
	require.NoError(t, rm.DeleteTable("test_table"))
	assert.Equal(t, []string{"other"}, rm.TableNames())

	// The name is free again.
	require.NoError(t, rm.CreateTable("test_table", testSchema(t)))
}

// TestRecordManager_StaleHandles checks that handles fail once their table is closed or deleted, even
// after the table's pages were handed to a new table of the same name.
func TestRecordManager_StaleHandles(t *testing.T) {
	rm, table := makeTestDeps(t, 4)
	schema := table.Schema()
	rec := makeRecord(t, schema, 1, "a")
	require.NoError(t, table.InsertRecord(rec))

	other, err := rm.OpenTable("test_table")
	require.NoError(t, err)
	require.NoError(t, rm.CloseTable(other))
	_, err = other.GetNumTuples()
	assert.True(t, common.IsErrorCode(err, common.TableNotFoundError))
	require.NoError(t, rm.CloseTable(other), "closing twice is harmless")

	require.NoError(t, rm.DeleteTable("test_table"))
	_, err = table.GetNumTuples()
	assert.True(t, common.IsErrorCode(err, common.TableNotFoundError))
	assert.True(t, common.IsErrorCode(table.InsertRecord(rec), common.TableNotFoundError))
	_, err = table.StartScan(nil)
	assert.True(t, common.IsErrorCode(err, common.TableNotFoundError))

	// A new table with the same name is a different table to the old handle.
	require.NoError(t, rm.CreateTable("test_table", testSchema(t)))
	fresh, err := rm.OpenTable("test_table")
	require.NoError(t, err)
	assert.NotEqual(t, table.id, fresh.id)
	n, err := fresh.GetNumTuples()
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = table.GetNumTuples()
	assert.True(t, common.IsErrorCode(err, common.TableNotFoundError))
}

// TestRecordManager_RecreatedTableOnSamePages drops a table and recreates it so that the new table gets
// the old header page back. The old handle must neither read nor write the new table.
func TestRecordManager_RecreatedTableOnSamePages(t *testing.T) {
	rm, table := makeTestDeps(t, 4)
	schema := table.Schema()
	require.NoError(t, table.InsertRecord(makeRecord(t, schema, 1, "old")))

	require.NoError(t, rm.DeleteTable("test_table"))
	require.NoError(t, rm.CreateTable("u", testSchema(t)))
	require.NoError(t, rm.DeleteTable("u"))
	require.NoError(t, rm.CreateTable("test_table", testSchema(t)))
	fresh, err := rm.OpenTable("test_table")
	require.NoError(t, err)
	require.Equal(t, table.headerPage, fresh.headerPage, "free pages are handed out last in, first out")

	err = table.InsertRecord(makeRecord(t, schema, 2, "stale"))
	assert.True(t, common.IsErrorCode(err, common.TableNotFoundError), "got %v", err)
	_, err = table.GetNumTuples()
	assert.True(t, common.IsErrorCode(err, common.TableNotFoundError))
	_, err = table.StartScan(nil)
	assert.True(t, common.IsErrorCode(err, common.TableNotFoundError))
	err = table.DeleteRecord(common.RecordID{Page: 0, Slot: 0})
	assert.True(t, common.IsErrorCode(err, common.TableNotFoundError))

	n, err := fresh.GetNumTuples()
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, scanIDs(t, fresh, nil))

	// Ids survive a reload of the directory.
	require.NoError(t, rm.CloseTable(fresh))
	reloaded, err := NewRecordManager(rm.BufferPool())
	require.NoError(t, err)
	again, err := reloaded.OpenTable("test_table")
	require.NoError(t, err)
	assert.Equal(t, fresh.id, again.id)
}

func TestRecordManager_DeleteReusesPages(t *testing.T) {
	rm, table := makeTestDeps(t, 4)
	schema := table.Schema()
	for i := 0; i < 400; i++ {
		require.NoError(t, table.InsertRecord(makeRecord(t, schema, int32(i), "x")))
	}
	stats, err := table.Stats()
	require.NoError(t, err)
	used := append(append([]common.PageNum(nil), stats.HeaderPages...), stats.DataPages...)
	numPages := rm.BufferPool().File().NumPages()

	require.NoError(t, rm.DeleteTable("test_table"))
	require.NoError(t, rm.CreateTable("again", testSchema(t)))
	again, err := rm.OpenTable("again")
	require.NoError(t, err)
	for i := 0; i < 400; i++ {
		require.NoError(t, again.InsertRecord(makeRecord(t, schema, int32(i), "y")))
	}

	stats, err = again.Stats()
	require.NoError(t, err)
	reused := append(append([]common.PageNum(nil), stats.HeaderPages...), stats.DataPages...)
	assert.ElementsMatch(t, used, reused)
	assert.Equal(t, numPages, rm.BufferPool().File().NumPages(), "the file must not grow")
}

func TestRecordManager_Persistence(t *testing.T) {
	cfg := diskConfig(t)
	rm, err := InitRecordManager(cfg)
	require.NoError(t, err)

	schema := testSchema(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, rm.CreateTable(fmt.Sprintf("table_%d", i), schema))
	}
	table, err := rm.OpenTable("table_1")
	require.NoError(t, err)
	var rids []common.RecordID
	for i := 0; i < 250; i++ {
		rec := makeRecord(t, schema, int32(i), fmt.Sprintf("row-%d", i))
		require.NoError(t, table.InsertRecord(rec))
		rids = append(rids, rec.ID)
	}
	require.NoError(t, table.DeleteRecord(rids[7]))
	require.NoError(t, rm.CloseTable(table))
	require.NoError(t, rm.DeleteTable("table_2"))
	require.NoError(t, rm.Shutdown())

	_, err = rm.OpenTable("table_1")
	assert.Error(t, err, "the pool is closed")

	rm, err = InitRecordManager(cfg)
	require.NoError(t, err)
	defer rm.Shutdown()

	assert.Equal(t, []string{"table_0", "table_1"}, rm.TableNames())
	table, err = rm.OpenTable("table_1")
	require.NoError(t, err)
	assert.Equal(t, schema.String(), table.Schema().String())

	n, err := table.GetNumTuples()
	require.NoError(t, err)
	assert.Equal(t, 249, n)

	rec := schema.CreateRecord()
	require.NoError(t, table.GetRecord(rids[200], rec))
	v, err := schema.GetAttr(rec, 1)
	require.NoError(t, err)
	assert.Equal(t, "row-200", v.StringValue())
	assert.True(t, common.IsErrorCode(table.GetRecord(rids[7], rec), common.RecordNotActiveError))

	ids := scanIDs(t, table, nil)
	assert.Len(t, ids, 249)
	assert.NotContains(t, ids, int32(7))
}

func TestRecordManager_OpenExisting(t *testing.T) {
	cfg := diskConfig(t)
	_, err := OpenRecordManager(cfg)
	assert.True(t, common.IsErrorCode(err, common.FileNotFoundError), "got %v", err)

	// A page file without a directory is not formatted behind the caller's back.
	file, err := storage.CreatePageFile(cfg.PageFile)
	require.NoError(t, err)
	require.NoError(t, file.Close())
	before, err := os.ReadFile(cfg.PageFile)
	require.NoError(t, err)
	_, err = OpenRecordManager(cfg)
	assert.True(t, common.IsErrorCode(err, common.CorruptHeaderError), "got %v", err)
	after, err := os.ReadFile(cfg.PageFile)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	rm, err := InitRecordManager(cfg)
	require.NoError(t, err)
	require.NoError(t, rm.CreateTable("t", testSchema(t)))
	require.NoError(t, rm.Shutdown())

	rm, err = OpenRecordManager(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"t"}, rm.TableNames())
	require.NoError(t, rm.Shutdown())
}

func TestRecordManager_ShutdownWithPinnedPage(t *testing.T) {
	rm, _ := makeTestDeps(t, 4)
	h, err := rm.BufferPool().PinPage(0)
	require.NoError(t, err)
	err = rm.Shutdown()
	assert.True(t, common.IsErrorCode(err, common.PinnedPagesError))
	require.NoError(t, rm.BufferPool().UnpinPage(h))
	require.NoError(t, rm.Shutdown())
}
