package catalog

import (
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/sirupsen/logrus"
	"github.com/woqer/Database-from-Scratch/common"
	"github.com/woqer/Database-from-Scratch/logger"
	"github.com/woqer/Database-from-Scratch/storage"
)

// Directory manages the database header and the table headers it points to. Every structure lives in
// pages of the database file and is read and written through the buffer pool, so the directory of a
// database can be reloaded from the file alone.
//
// Directory is not safe for concurrent use; the record manager serializes every call.
type Directory struct {
	bp     *storage.BufferPool
	header *DatabaseHeader
	names  mapset.Set[string]
	log    *logrus.Entry
}

func newDirectory(bp *storage.BufferPool, header *DatabaseHeader) *Directory {
	d := &Directory{
		bp:     bp,
		header: header,
		names:  mapset.NewThreadUnsafeSet[string](),
		log:    logger.WithComponent("directory"),
	}
	for _, e := range header.Tables {
		d.names.Add(e.Name)
	}
	return d
}

// FormatDirectory writes the header of an empty database to page 0, discarding whatever was there.
func FormatDirectory(bp *storage.BufferPool) (*Directory, error) {
	d := newDirectory(bp, NewDatabaseHeader())
	if err := d.WriteDatabaseHeader(); err != nil {
		return nil, err
	}
	d.log.Info("formatted empty database")
	return d, nil
}

// LoadDirectory reads the database header starting at page 0.
func LoadDirectory(bp *storage.BufferPool) (*Directory, error) {
	payload, chain, err := readChain(bp, DatabaseHeaderPage)
	if err != nil {
		return nil, err
	}
	header, err := DecodeDatabaseHeader(payload)
	if err != nil {
		return nil, err
	}
	header.chain = chain
	return newDirectory(bp, header), nil
}

// LoadOrFormatDirectory loads the directory, formatting page 0 first when the file has never held one.
func LoadOrFormatDirectory(bp *storage.BufferPool) (*Directory, error) {
	blank, err := isBlankPage(bp, DatabaseHeaderPage)
	if err != nil {
		return nil, err
	}
	if blank {
		return FormatDirectory(bp)
	}
	return LoadDirectory(bp)
}

// Header returns the in-memory database header. Callers must not modify it.
func (d *Directory) Header() *DatabaseHeader {
	return d.header
}

// TableNames lists the tables in directory order.
func (d *Directory) TableNames() []string {
	names := make([]string, len(d.header.Tables))
	for i, e := range d.header.Tables {
		names[i] = e.Name
	}
	return names
}

// AllocPage reserves a page, reusing a released page before extending the file, and zero-fills it. The
// change to the database header is only in memory until the next header write.
func (d *Directory) AllocPage() (common.PageNum, error) {
	var p common.PageNum
	if n := len(d.header.FreePages); n > 0 {
		p = d.header.FreePages[n-1]
		d.header.FreePages = d.header.FreePages[:n-1]
	} else {
		if int(d.header.NextAvailPage) >= storage.MaxPages {
			return common.NoPage, common.NewError(common.CapacityExceededError,
				"database file is limited to %d pages", storage.MaxPages)
		}
		p = d.header.NextAvailPage
		d.header.NextAvailPage++
	}

	h, err := d.bp.PinPage(p)
	if err != nil {
		return common.NoPage, err
	}
	common.ZeroBytes(h.Data)
	if err := d.bp.MarkDirty(h); err != nil {
		_ = d.bp.UnpinPage(h)
		return common.NoPage, err
	}
	return p, d.bp.UnpinPage(h)
}

// WriteDatabaseHeader persists the database header, growing its chain as needed. Growing the chain
// allocates pages, which changes the header itself, so the size is recomputed until it fits.
func (d *Directory) WriteDatabaseHeader() error {
	for {
		payload := d.header.Encode()
		if chainPagesNeeded(len(payload)) <= len(d.header.chain) {
			chain, err := writeChain(d.bp, d.header.chain, payload, d.AllocPage)
			d.header.chain = chain
			return err
		}
		p, err := d.AllocPage()
		if err != nil {
			return err
		}
		d.header.chain = append(d.header.chain, p)
	}
}

// WriteTableHeader persists th. Pages allocated to extend its chain are recorded in the database header,
// which is written too in that case.
func (d *Directory) WriteTableHeader(th *TableHeader) error {
	before := len(th.chain)
	chain, err := writeChain(d.bp, th.chain, th.Encode(), d.AllocPage)
	th.chain = chain
	if err != nil {
		return err
	}
	if len(chain) != before {
		return d.WriteDatabaseHeader()
	}
	return nil
}

// ReadTableHeader loads the table header whose chain starts at headerPage.
func (d *Directory) ReadTableHeader(headerPage common.PageNum) (*TableHeader, error) {
	payload, chain, err := readChain(d.bp, headerPage)
	if err != nil {
		return nil, err
	}
	th, err := DecodeTableHeader(payload)
	if err != nil {
		return nil, err
	}
	th.chain = chain
	return th, nil
}

// CreateTable registers a new table and writes its header and first, empty, data page. On failure the
// directory is left as it was.
func (d *Directory) CreateTable(name string, schema *Schema) (*TableHeader, error) {
	switch {
	case name == "":
		return nil, common.NewError(common.InvalidSchemaError, "table name is empty")
	case len(name) > MaxTableNameLength:
		return nil, common.NewError(common.TableNameTooLongError,
			"table name %q is longer than %d bytes", name, MaxTableNameLength)
	case d.names.Contains(name):
		return nil, common.NewError(common.DuplicateObjectError, "table '%s' already exists", name)
	case len(d.header.Tables) >= MaxTables:
		return nil, common.NewError(common.CapacityExceededError, "database already holds %d tables", MaxTables)
	}

	snapshot := d.Snapshot()
	th, err := d.createTable(name, schema)
	if err != nil {
		d.Restore(snapshot)
		return nil, err
	}
	d.names.Add(name)
	d.log.WithField("table", name).WithField("schema", schema.String()).Info("created table")
	return th, nil
}

func (d *Directory) createTable(name string, schema *Schema) (*TableHeader, error) {
	headerPage, err := d.AllocPage()
	if err != nil {
		return nil, err
	}
	dataPage, err := d.AllocPage()
	if err != nil {
		return nil, err
	}
	th := NewTableHeader(name, schema, headerPage, dataPage)
	th.ID = d.header.NextTableID
	d.header.NextTableID++
	chain, err := writeChain(d.bp, th.chain, th.Encode(), d.AllocPage)
	if err != nil {
		return nil, err
	}
	th.chain = chain
	d.header.Tables = append(d.header.Tables, TableEntry{Name: name, ID: th.ID, HeaderPage: headerPage})
	if err := d.WriteDatabaseHeader(); err != nil {
		return nil, err
	}
	return th, nil
}

// Snapshot copies the in-memory database header so a multi-step change can be undone with Restore.
func (d *Directory) Snapshot() *DatabaseHeader {
	return d.header.clone()
}

// Restore replaces the in-memory header with snapshot and tries to persist it again. Pages allocated
// since the snapshot go back to the free list or the end of the file.
func (d *Directory) Restore(snapshot *DatabaseHeader) {
	d.header = snapshot
	if err := d.WriteDatabaseHeader(); err != nil {
		d.log.WithError(err).Warn("failed to restore database header after a failed change")
	}
}

// HasTable reports whether the table called name is registered under id.
func (d *Directory) HasTable(name string, id TableID) bool {
	i, ok := d.header.FindTable(name)
	return ok && d.header.Tables[i].ID == id
}

// FindTable looks up a table by name and loads its header.
func (d *Directory) FindTable(name string) (*TableHeader, error) {
	i, ok := d.header.FindTable(name)
	if !ok {
		return nil, common.NewError(common.TableNotFoundError, "table '%s' does not exist", name)
	}
	th, err := d.ReadTableHeader(d.header.Tables[i].HeaderPage)
	if err != nil {
		return nil, err
	}
	if th.Name != name || th.ID != d.header.Tables[i].ID {
		return nil, common.NewError(common.CorruptHeaderError,
			"directory entry %q points at the header of %q", name, th.Name)
	}
	return th, nil
}

// DeleteTable removes a table from the directory and releases its header and data pages for reuse. The
// first header page is wiped so it no longer reads as a table header.
func (d *Directory) DeleteTable(name string) error {
	th, err := d.FindTable(name)
	if err != nil {
		return err
	}
	i, _ := d.header.FindTable(name)

	snapshot := d.Snapshot()
	d.header.Tables = append(d.header.Tables[:i], d.header.Tables[i+1:]...)
	d.header.FreePages = append(d.header.FreePages, th.chain...)
	d.header.FreePages = append(d.header.FreePages, th.Pages...)

	if err := d.wipePage(th.HeaderPage()); err != nil {
		d.Restore(snapshot)
		return err
	}
	if err := d.WriteDatabaseHeader(); err != nil {
		d.Restore(snapshot)
		return err
	}
	d.names.Remove(name)
	d.log.WithField("table", name).WithField("released", len(th.chain)+len(th.Pages)).Info("deleted table")
	return nil
}

func (d *Directory) wipePage(p common.PageNum) error {
	h, err := d.bp.PinPage(p)
	if err != nil {
		return err
	}
	common.ZeroBytes(h.Data)
	if err := d.bp.MarkDirty(h); err != nil {
		_ = d.bp.UnpinPage(h)
		return err
	}
	return d.bp.UnpinPage(h)
}
