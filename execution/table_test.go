package execution

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/woqer/Database-from-Scratch/catalog"
	"github.com/woqer/Database-from-Scratch/common"
	"github.com/woqer/Database-from-Scratch/expr"
	"github.com/woqer/Database-from-Scratch/storage"
)

// makeTestDeps creates a record manager over an in-memory file with a small pool and a table
// "test_table" of schema {id:int, name:string(20)}.
func makeTestDeps(t *testing.T, poolSize int) (*RecordManager, *Table) {
	bp, err := storage.NewBufferPool(storage.NewMemPageFile(), poolSize, storage.LRU)
	require.NoError(t, err)
	rm, err := NewRecordManager(bp)
	require.NoError(t, err)

	require.NoError(t, rm.CreateTable("test_table", testSchema(t)))
	table, err := rm.OpenTable("test_table")
	require.NoError(t, err)
	return rm, table
}

func testSchema(t *testing.T) *catalog.Schema {
	schema, err := catalog.NewSchema([]catalog.Column{
		{Name: "id", Type: common.IntType},
		{Name: "name", Type: common.StringType, Length: 20},
	}, []int{0})
	require.NoError(t, err)
	return schema
}

func makeRecord(t *testing.T, schema *catalog.Schema, id int32, name string) *storage.Record {
	rec := schema.CreateRecord()
	require.NoError(t, schema.SetAttr(rec, 0, common.NewIntValue(id)))
	require.NoError(t, schema.SetAttr(rec, 1, common.NewStringValue(name)))
	return rec
}

func recordID(t *testing.T, schema *catalog.Schema, rec *storage.Record) int32 {
	v, err := schema.GetAttr(rec, 0)
	require.NoError(t, err)
	return v.IntValue()
}

// scanIDs drains a scan and returns the ids of the records it produced.
func scanIDs(t *testing.T, table *Table, cond expr.Expr) []int32 {
	scan, err := table.StartScan(cond)
	require.NoError(t, err)
	defer scan.Close()

	var ids []int32
	rec := table.Schema().CreateRecord()
	for {
		err := scan.Next(rec)
		if common.IsErrorCode(err, common.NoMoreTuplesError) {
			return ids
		}
		require.NoError(t, err)
		ids = append(ids, recordID(t, table.Schema(), rec))
	}
}

// TestTable_EndToEnd inserts three records, deletes the second and checks that a scan and the tuple
// count reflect it.
func TestTable_EndToEnd(t *testing.T) {
	_, table := makeTestDeps(t, 4)
	schema := table.Schema()

	var rids []common.RecordID
	for i, name := range []string{"alice", "bob", "carol"} {
		rec := makeRecord(t, schema, int32(i+1), name)
		require.NoError(t, table.InsertRecord(rec))
		rids = append(rids, rec.ID)
	}
	assert.Equal(t, common.RecordID{Page: 0, Slot: 0}, rids[0])
	assert.Equal(t, common.RecordID{Page: 0, Slot: 2}, rids[2])

	require.NoError(t, table.DeleteRecord(rids[1]))

	assert.Equal(t, []int32{1, 3}, scanIDs(t, table, nil))
	n, err := table.GetNumTuples()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rec := schema.CreateRecord()
	require.NoError(t, table.GetRecord(rids[2], rec))
	name, err := schema.GetAttr(rec, 1)
	require.NoError(t, err)
	assert.Equal(t, "carol", name.StringValue())
	assert.Equal(t, rids[2], rec.ID)
}

// TestTable_SimpleLifecycle verifies the basic functionality of a table.
// It checks that:
// 1. Records can be inserted and retrieved correctly, crossing page boundaries.
// 2. Updates to existing records are persisted and retrieved correctly.
// 3. Deletions are respected by scans.
func TestTable_SimpleLifecycle(t *testing.T) {
	_, table := makeTestDeps(t, 3)
	schema := table.Schema()

	// 170 records of 24 bytes fit a page; 500 spans three data pages.
	numRecords := 500
	rids := make([]common.RecordID, numRecords)
	for i := 0; i < numRecords; i++ {
		rec := makeRecord(t, schema, int32(i), fmt.Sprintf("val-%d", i))
		require.NoError(t, table.InsertRecord(rec))
		rids[i] = rec.ID
	}
	assert.Equal(t, common.RecordID{Page: 2, Slot: int32(numRecords - 2*170 - 1)}, rids[numRecords-1])

	stats, err := table.Stats()
	require.NoError(t, err)
	assert.Len(t, stats.DataPages, 3)
	assert.Equal(t, numRecords, stats.NumTuples)
	assert.Equal(t, numRecords, stats.AllocatedSlots)

	rec := schema.CreateRecord()
	for i := 0; i < numRecords; i += 10 {
		require.NoError(t, table.GetRecord(rids[i], rec))
		assert.Equal(t, int32(i), recordID(t, schema, rec), "GetRecord id mismatch at index %d", i)
		v, err := schema.GetAttr(rec, 1)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("val-%d", i), v.StringValue())
	}

	for i := 50; i < 100; i++ {
		up := makeRecord(t, schema, int32(i), "updated")
		up.ID = rids[i]
		require.NoError(t, table.UpdateRecord(up))
	}
	for i := 0; i < numRecords; i += 2 {
		require.NoError(t, table.DeleteRecord(rids[i]))
	}

	seen := 0
	scan, err := table.StartScan(nil)
	require.NoError(t, err)
	for {
		err := scan.Next(rec)
		if common.IsErrorCode(err, common.NoMoreTuplesError) {
			break
		}
		require.NoError(t, err)
		id := recordID(t, schema, rec)
		assert.Equal(t, int32(1), id%2, "deleted record %d returned by scan", id)
		assert.Equal(t, rids[id], rec.ID)
		v, err := schema.GetAttr(rec, 1)
		require.NoError(t, err)
		if id >= 50 && id < 100 {
			assert.Equal(t, "updated", v.StringValue())
		} else {
			assert.Equal(t, fmt.Sprintf("val-%d", id), v.StringValue())
		}
		seen++
	}
	require.NoError(t, scan.Close())
	assert.Equal(t, numRecords/2, seen)

	n, err := table.GetNumTuples()
	require.NoError(t, err)
	assert.Equal(t, numRecords/2, n)
}

func TestTable_SlotReuse(t *testing.T) {
	_, table := makeTestDeps(t, 4)
	schema := table.Schema()

	var rids []common.RecordID
	for i := 0; i < 5; i++ {
		rec := makeRecord(t, schema, int32(i), "x")
		require.NoError(t, table.InsertRecord(rec))
		rids = append(rids, rec.ID)
	}
	require.NoError(t, table.DeleteRecord(rids[3]))
	require.NoError(t, table.DeleteRecord(rids[1]))

	// The lowest free slot is reused first.
	rec := makeRecord(t, schema, 10, "reused")
	require.NoError(t, table.InsertRecord(rec))
	assert.Equal(t, rids[1], rec.ID)

	rec = makeRecord(t, schema, 11, "reused")
	require.NoError(t, table.InsertRecord(rec))
	assert.Equal(t, rids[3], rec.ID)

	rec = makeRecord(t, schema, 12, "appended")
	require.NoError(t, table.InsertRecord(rec))
	assert.Equal(t, common.RecordID{Page: 0, Slot: 5}, rec.ID)

	assert.Equal(t, []int32{0, 10, 2, 11, 4, 12}, scanIDs(t, table, nil))
}

func TestTable_RecordErrors(t *testing.T) {
	_, table := makeTestDeps(t, 4)
	schema := table.Schema()

	rec := makeRecord(t, schema, 1, "a")
	require.NoError(t, table.InsertRecord(rec))
	live := rec.ID

	out := schema.CreateRecord()
	for _, rid := range []common.RecordID{{Page: 0, Slot: 1}, {Page: 1, Slot: 0}, {Page: -1, Slot: 0}, {Page: 0, Slot: 170}} {
		err := table.GetRecord(rid, out)
		assert.True(t, common.IsErrorCode(err, common.RecordOutOfRangeError), "GetRecord(%s): %v", rid, err)
		err = table.DeleteRecord(rid)
		assert.True(t, common.IsErrorCode(err, common.RecordOutOfRangeError), "DeleteRecord(%s): %v", rid, err)
	}

	require.NoError(t, table.DeleteRecord(live))
	err := table.GetRecord(live, out)
	assert.True(t, common.IsErrorCode(err, common.RecordNotActiveError))
	err = table.DeleteRecord(live)
	assert.True(t, common.IsErrorCode(err, common.RecordNotActiveError))
	rec.ID = live
	err = table.UpdateRecord(rec)
	assert.True(t, common.IsErrorCode(err, common.RecordNotActiveError))

	err = table.InsertRecord(&storage.Record{Data: make([]byte, 3)})
	assert.True(t, common.IsErrorCode(err, common.InvalidSchemaError))

	// GetRecord sizes the destination itself.
	rec = makeRecord(t, schema, 2, "b")
	require.NoError(t, table.InsertRecord(rec))
	empty := &storage.Record{}
	require.NoError(t, table.GetRecord(rec.ID, empty))
	assert.Equal(t, rec.Data, empty.Data)
}

func TestTable_ScanWithCondition(t *testing.T) {
	_, table := makeTestDeps(t, 4)
	schema := table.Schema()
	for i := 0; i < 20; i++ {
		require.NoError(t, table.InsertRecord(makeRecord(t, schema, int32(i), fmt.Sprintf("name-%d", i%3))))
	}

	id := expr.NewAttributeExpression(0)
	name := expr.NewAttributeExpression(1)
	cond := expr.NewBinaryLogicExpression(
		expr.NewComparisonExpression(id, expr.NewConstantValueExpression(common.NewIntValue(10)), expr.GreaterThanOrEqual),
		expr.NewComparisonExpression(name, expr.NewConstantValueExpression(common.NewStringValue("name-0")), expr.Equal),
		expr.And,
	)
	assert.Equal(t, []int32{12, 15, 18}, scanIDs(t, table, cond))

	none := expr.NewComparisonExpression(id, expr.NewConstantValueExpression(common.NewIntValue(-1)), expr.Equal)
	assert.Empty(t, scanIDs(t, table, none))

	scan, err := table.StartScan(expr.NewComparisonExpression(id, expr.NewConstantValueExpression(common.NewStringValue("1")), expr.Equal))
	require.NoError(t, err)
	err = scan.Next(schema.CreateRecord())
	assert.True(t, common.IsErrorCode(err, common.TypeMismatchError))
}

func TestTable_ScanResetAndClose(t *testing.T) {
	_, table := makeTestDeps(t, 4)
	schema := table.Schema()
	for i := 0; i < 3; i++ {
		require.NoError(t, table.InsertRecord(makeRecord(t, schema, int32(i), "r")))
	}

	scan, err := table.StartScan(nil)
	require.NoError(t, err)
	rec := schema.CreateRecord()
	for i := 0; i < 3; i++ {
		require.NoError(t, scan.Next(rec))
	}
	assert.True(t, common.IsErrorCode(scan.Next(rec), common.NoMoreTuplesError))
	assert.True(t, common.IsErrorCode(scan.Next(rec), common.NoMoreTuplesError))

	scan.Reset()
	require.NoError(t, scan.Next(rec))
	assert.Equal(t, int32(0), recordID(t, schema, rec))

	require.NoError(t, scan.Close())
	assert.True(t, common.IsErrorCode(scan.Next(rec), common.NoMoreTuplesError))
}

func TestTable_EmptyTableScan(t *testing.T) {
	_, table := makeTestDeps(t, 4)
	assert.Empty(t, scanIDs(t, table, nil))
	n, err := table.GetNumTuples()
	require.NoError(t, err)
	assert.Zero(t, n)
}

// TestTable_RandomizedShadow mirrors random inserts, updates and deletes in a map and checks that the
// table agrees with it after every phase.
func TestTable_RandomizedShadow(t *testing.T) {
	_, table := makeTestDeps(t, 5)
	schema := table.Schema()
	rng := rand.New(rand.NewSource(42))

	shadow := make(map[common.RecordID]int32)
	var live []common.RecordID
	for round := 0; round < 2000; round++ {
		switch op := rng.Intn(10); {
		case op < 6 || len(live) == 0:
			rec := makeRecord(t, schema, int32(round), "r")
			require.NoError(t, table.InsertRecord(rec))
			_, exists := shadow[rec.ID]
			require.False(t, exists, "slot %s handed out twice", rec.ID)
			shadow[rec.ID] = int32(round)
			live = append(live, rec.ID)
		case op < 8:
			i := rng.Intn(len(live))
			rec := makeRecord(t, schema, int32(-round), "u")
			rec.ID = live[i]
			require.NoError(t, table.UpdateRecord(rec))
			shadow[live[i]] = int32(-round)
		default:
			i := rng.Intn(len(live))
			require.NoError(t, table.DeleteRecord(live[i]))
			delete(shadow, live[i])
			live[i] = live[len(live)-1]
			live = live[:len(live)-1]
		}
	}

	n, err := table.GetNumTuples()
	require.NoError(t, err)
	assert.Equal(t, len(shadow), n)

	got := make(map[common.RecordID]int32)
	scan, err := table.StartScan(nil)
	require.NoError(t, err)
	rec := schema.CreateRecord()
	for {
		err := scan.Next(rec)
		if common.IsErrorCode(err, common.NoMoreTuplesError) {
			break
		}
		require.NoError(t, err)
		got[rec.ID] = recordID(t, schema, rec)
	}
	assert.Equal(t, shadow, got)
}

func TestTable_ConcurrentInserts(t *testing.T) {
	_, table := makeTestDeps(t, 6)
	schema := table.Schema()

	const workers, perWorker = 8, 100
	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				rec := schema.CreateRecord()
				_ = schema.SetAttr(rec, 0, common.NewIntValue(int32(w*perWorker+i)))
				_ = schema.SetAttr(rec, 1, common.NewStringValue("c"))
				if err := table.InsertRecord(rec); err != nil {
					errs <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	ids := scanIDs(t, table, nil)
	assert.Len(t, ids, workers*perWorker)
	seen := make(map[int32]bool)
	for _, id := range ids {
		assert.False(t, seen[id], "record %d stored twice", id)
		seen[id] = true
	}
}

// TestTable_DeleteLeavesDataPage checks that a delete only clears the occupancy bit: the data page is
// neither modified nor dirtied.
func TestTable_DeleteLeavesDataPage(t *testing.T) {
	rm, table := makeTestDeps(t, 4)
	schema := table.Schema()
	rec := makeRecord(t, schema, 7, "kept")
	require.NoError(t, table.InsertRecord(rec))
	stats, err := table.Stats()
	require.NoError(t, err)
	dataPage := stats.DataPages[0]

	bp := rm.BufferPool()
	require.NoError(t, bp.ForceFlushPool())
	require.NoError(t, table.DeleteRecord(rec.ID))

	frames, dirty := bp.FrameContents(), bp.DirtyFlags()
	found := false
	for i, p := range frames {
		if p == dataPage {
			found = true
			assert.False(t, dirty[i], "data page %d dirtied by a delete", p)
		}
	}
	require.True(t, found, "data page %d is not resident", dataPage)

	h, err := bp.PinPage(dataPage)
	require.NoError(t, err)
	buf := make([]byte, schema.RecordSize())
	storage.AsDataPage(h, schema.RecordSize()).ReadRecord(int(rec.ID.Slot), buf)
	require.NoError(t, bp.UnpinPage(h))
	assert.Equal(t, rec.Data, buf)

	assert.True(t, common.IsErrorCode(table.GetRecord(rec.ID, schema.CreateRecord()), common.RecordNotActiveError))
}

// TestTable_ScanUsesHeaderCopy checks that a scan keeps working from the header it loaded, picks up
// new records on Reset, and still notices that its table was dropped.
func TestTable_ScanUsesHeaderCopy(t *testing.T) {
	rm, table := makeTestDeps(t, 4)
	schema := table.Schema()
	for i := 0; i < 3; i++ {
		require.NoError(t, table.InsertRecord(makeRecord(t, schema, int32(i), "r")))
	}

	scan, err := table.StartScan(nil)
	require.NoError(t, err)
	rec := schema.CreateRecord()
	require.NoError(t, scan.Next(rec))
	assert.Equal(t, int32(0), recordID(t, schema, rec))

	require.NoError(t, table.InsertRecord(makeRecord(t, schema, 3, "late")))
	var ids []int32
	for {
		err := scan.Next(rec)
		if common.IsErrorCode(err, common.NoMoreTuplesError) {
			break
		}
		require.NoError(t, err)
		ids = append(ids, recordID(t, schema, rec))
	}
	assert.Equal(t, []int32{1, 2}, ids)

	scan.Reset()
	ids = ids[:0]
	for {
		err := scan.Next(rec)
		if common.IsErrorCode(err, common.NoMoreTuplesError) {
			break
		}
		require.NoError(t, err)
		ids = append(ids, recordID(t, schema, rec))
	}
	assert.Equal(t, []int32{0, 1, 2, 3}, ids)

	scan.Reset()
	require.NoError(t, rm.DeleteTable("test_table"))
	assert.True(t, common.IsErrorCode(scan.Next(rec), common.TableNotFoundError))
	require.NoError(t, scan.Close())
}

// growLimitedFile is an in-memory page file that refuses to grow once full is set.
type growLimitedFile struct {
	*storage.MemPageFile
	full bool
}

func (f *growLimitedFile) EnsureCapacity(numPages int) error {
	if f.full && numPages > f.NumPages() {
		return common.NewError(common.CapacityExceededError, "file is full at %d pages", f.NumPages())
	}
	return f.MemPageFile.EnsureCapacity(numPages)
}

func (f *growLimitedFile) AppendEmptyPage() error {
	if f.full {
		return common.NewError(common.CapacityExceededError, "file is full at %d pages", f.NumPages())
	}
	return f.MemPageFile.AppendEmptyPage()
}

// TestTable_InsertGivesPageBackOnFailure fills the first data page, makes the next page allocation fail
// and checks that the database header does not lose the page it tried to take.
func TestTable_InsertGivesPageBackOnFailure(t *testing.T) {
	file := &growLimitedFile{MemPageFile: storage.NewMemPageFile()}
	bp, err := storage.NewBufferPool(file, 4, storage.LRU)
	require.NoError(t, err)
	rm, err := NewRecordManager(bp)
	require.NoError(t, err)
	require.NoError(t, rm.CreateTable("test_table", testSchema(t)))
	table, err := rm.OpenTable("test_table")
	require.NoError(t, err)
	schema := table.Schema()

	stats, err := table.Stats()
	require.NoError(t, err)
	for i := 0; i < stats.SlotsPerPage; i++ {
		require.NoError(t, table.InsertRecord(makeRecord(t, schema, int32(i), "fill")))
	}
	nextAvail := rm.dir.Header().NextAvailPage

	file.full = true
	err = table.InsertRecord(makeRecord(t, schema, -1, "overflow"))
	assert.True(t, common.IsErrorCode(err, common.CapacityExceededError), "got %v", err)
	assert.Equal(t, nextAvail, rm.dir.Header().NextAvailPage)
	assert.Empty(t, rm.dir.Header().FreePages)
	stats, err = table.Stats()
	require.NoError(t, err)
	assert.Len(t, stats.DataPages, 1)
	assert.Equal(t, stats.SlotsPerPage, stats.NumTuples)

	file.full = false
	rec := makeRecord(t, schema, -1, "overflow")
	require.NoError(t, table.InsertRecord(rec))
	assert.Equal(t, common.RecordID{Page: 1, Slot: 0}, rec.ID)
	stats, err = table.Stats()
	require.NoError(t, err)
	assert.Equal(t, []common.PageNum{2, nextAvail}, stats.DataPages)
}
