package execution

import (
	"github.com/sirupsen/logrus"
	"github.com/woqer/Database-from-Scratch/catalog"
	"github.com/woqer/Database-from-Scratch/common"
	"github.com/woqer/Database-from-Scratch/logger"
	"github.com/woqer/Database-from-Scratch/storage"
)

// Table is a handle to an open table. It caches only the table's identity and schema: every operation
// rereads the table header through the buffer pool, so handles never see stale slot or page metadata.
// The handle stops working once the table is closed or deleted, even if a table of the same name is
// created later.
type Table struct {
	rm         *RecordManager
	name       string
	id         catalog.TableID
	headerPage common.PageNum
	schema     *catalog.Schema
	closed     bool
	log        *logrus.Entry
}

// TableStats summarizes the space a table uses.
type TableStats struct {
	NumTuples      int
	AllocatedSlots int
	SlotsPerPage   int
	DataPages      []common.PageNum
	HeaderPages    []common.PageNum
}

func newTable(rm *RecordManager, th *catalog.TableHeader) *Table {
	return &Table{
		rm:         rm,
		name:       th.Name,
		id:         th.ID,
		headerPage: th.HeaderPage(),
		schema:     th.Schema,
		log:        logger.WithTable("table", th.Name),
	}
}

// Name returns the table name.
func (t *Table) Name() string {
	return t.name
}

// Schema returns the schema the table was created with.
func (t *Table) Schema() *catalog.Schema {
	return t.schema
}

// check fails unless the handle is open and its table is still registered. The caller must hold the
// record manager latch.
func (t *Table) check() error {
	if t.closed {
		return common.NewError(common.TableNotFoundError, "table handle '%s' is closed", t.name)
	}
	if !t.rm.dir.HasTable(t.name, t.id) {
		return common.NewError(common.TableNotFoundError, "table '%s' no longer exists", t.name)
	}
	return nil
}

// header loads the current table header. The caller must hold the record manager latch.
func (t *Table) header() (*catalog.TableHeader, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	return t.rm.dir.ReadTableHeader(t.headerPage)
}

// GetNumTuples returns the number of live records.
func (t *Table) GetNumTuples() (int, error) {
	t.rm.latch.Lock()
	defer t.rm.latch.Unlock()
	th, err := t.header()
	if err != nil {
		return 0, err
	}
	return th.NumTuples, nil
}

// Stats reports the table's tuple count and the pages it owns.
func (t *Table) Stats() (TableStats, error) {
	t.rm.latch.Lock()
	defer t.rm.latch.Unlock()
	th, err := t.header()
	if err != nil {
		return TableStats{}, err
	}
	return TableStats{
		NumTuples:      th.NumTuples,
		AllocatedSlots: th.AllocatedSlots(),
		SlotsPerPage:   th.SlotsPerPage,
		DataPages:      th.Pages,
		HeaderPages:    th.Chain(),
	}, nil
}

func (t *Table) checkSize(th *catalog.TableHeader, rec *storage.Record) error {
	if len(rec.Data) != th.RecordSize {
		return common.NewError(common.InvalidSchemaError,
			"record is %d bytes, table '%s' stores %d", len(rec.Data), t.name, th.RecordSize)
	}
	return nil
}

// checkActive validates that rid names a live record of th.
func checkActive(th *catalog.TableHeader, rid common.RecordID) error {
	if !th.ValidRecordID(rid) {
		return common.NewError(common.RecordOutOfRangeError,
			"record %s is outside the %d allocated slots of '%s'", rid, th.AllocatedSlots(), th.Name)
	}
	if !th.Occupancy.LoadBit(th.SlotIndex(rid)) {
		return common.NewError(common.RecordNotActiveError, "record %s of '%s' is not active", rid, th.Name)
	}
	return nil
}

// withDataPage pins the data page holding rid, runs fn over it and unpins it, marking it dirty when
// dirty is set.
func (t *Table) withDataPage(th *catalog.TableHeader, rid common.RecordID, dirty bool, fn func(storage.DataPage, int)) error {
	bp := t.rm.bp
	h, err := bp.PinPage(th.Pages[rid.Page])
	if err != nil {
		return err
	}
	fn(storage.AsDataPage(h, th.RecordSize), int(rid.Slot))
	if dirty {
		if err := bp.MarkDirty(h); err != nil {
			_ = bp.UnpinPage(h)
			return err
		}
	}
	return bp.UnpinPage(h)
}

// InsertRecord stores rec in the first free slot and sets rec.ID to its new id. Slots freed by deletes
// are reused before new slots are handed out; a new data page is allocated when the last one is full.
func (t *Table) InsertRecord(rec *storage.Record) error {
	t.rm.latch.Lock()
	defer t.rm.latch.Unlock()
	th, err := t.header()
	if err != nil {
		return err
	}
	if err := t.checkSize(th, rec); err != nil {
		return err
	}

	// Set when a data page is added, so a failure can give the page back.
	var snapshot *catalog.DatabaseHeader
	idx := th.Occupancy.FindFirstZeroInRange(0, th.AllocatedSlots())
	if idx < 0 {
		if th.NextSlot == th.SlotsPerPage {
			snapshot = t.rm.dir.Snapshot()
			p, err := t.rm.dir.AllocPage()
			if err != nil {
				t.rm.dir.Restore(snapshot)
				return err
			}
			th.Pages = append(th.Pages, p)
			th.NextSlot = 0
			th.Occupancy.Grow(len(th.Pages) * th.SlotsPerPage)
		}
		idx = th.AllocatedSlots()
		th.NextSlot++
	}

	if err := t.storeRecord(th, idx, rec, snapshot != nil); err != nil {
		if snapshot != nil {
			t.rm.dir.Restore(snapshot)
		}
		return err
	}
	return nil
}

// storeRecord writes rec into slot idx and persists the headers, setting rec.ID on success. grew reports
// that a data page was added for this record.
func (t *Table) storeRecord(th *catalog.TableHeader, idx int, rec *storage.Record, grew bool) error {
	rid := th.RecordIDAt(idx)
	if err := t.withDataPage(th, rid, true, func(dp storage.DataPage, slot int) {
		dp.WriteRecord(slot, rec.Data)
	}); err != nil {
		return err
	}
	th.Occupancy.SetBit(idx, true)
	th.NumTuples++

	if grew {
		// The database header records the page taken from the free list or the end of the file.
		if err := t.rm.dir.WriteDatabaseHeader(); err != nil {
			return err
		}
		t.log.WithField("page", th.Pages[len(th.Pages)-1]).Debug("added data page")
	}
	if err := t.rm.dir.WriteTableHeader(th); err != nil {
		return err
	}
	rec.ID = rid
	return nil
}

// GetRecord copies the record stored at rid into rec and sets rec.ID. rec.Data is reallocated if it does
// not have the table's record size.
func (t *Table) GetRecord(rid common.RecordID, rec *storage.Record) error {
	t.rm.latch.Lock()
	defer t.rm.latch.Unlock()
	th, err := t.header()
	if err != nil {
		return err
	}
	return t.readRecord(th, rid, rec)
}

func (t *Table) readRecord(th *catalog.TableHeader, rid common.RecordID, rec *storage.Record) error {
	if err := checkActive(th, rid); err != nil {
		return err
	}
	if len(rec.Data) != th.RecordSize {
		rec.Data = make([]byte, th.RecordSize)
	}
	if err := t.withDataPage(th, rid, false, func(dp storage.DataPage, slot int) {
		dp.ReadRecord(slot, rec.Data)
	}); err != nil {
		return err
	}
	rec.ID = rid
	return nil
}

// UpdateRecord overwrites the live record rec.ID with rec.Data.
func (t *Table) UpdateRecord(rec *storage.Record) error {
	t.rm.latch.Lock()
	defer t.rm.latch.Unlock()
	th, err := t.header()
	if err != nil {
		return err
	}
	if err := checkActive(th, rec.ID); err != nil {
		return err
	}
	if err := t.checkSize(th, rec); err != nil {
		return err
	}
	return t.withDataPage(th, rec.ID, true, func(dp storage.DataPage, slot int) {
		dp.WriteRecord(slot, rec.Data)
	})
}

// DeleteRecord frees the slot of the live record rid by clearing its occupancy bit. The record bytes stay
// on the data page until a later insert reuses the slot.
func (t *Table) DeleteRecord(rid common.RecordID) error {
	t.rm.latch.Lock()
	defer t.rm.latch.Unlock()
	th, err := t.header()
	if err != nil {
		return err
	}
	if err := checkActive(th, rid); err != nil {
		return err
	}
	th.Occupancy.SetBit(th.SlotIndex(rid), false)
	th.NumTuples--
	return t.rm.dir.WriteTableHeader(th)
}
