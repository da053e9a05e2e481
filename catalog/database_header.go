package catalog

import (
	"github.com/woqer/Database-from-Scratch/common"
)

const (
	databaseHeaderMagic   = "RMDB"
	databaseHeaderVersion = 2
	// DatabaseHeaderPage is the first page of the database header chain.
	DatabaseHeaderPage common.PageNum = 0
	// MaxTableNameLength is the longest table name the directory stores.
	MaxTableNameLength = 64
	// MaxTables bounds the number of tables in one database.
	MaxTables = 1024
)

// TableID identifies a table for the lifetime of the database file. Ids are never reused, so a handle to
// a dropped table cannot mistake a later table of the same name for its own.
type TableID uint32

// TableEntry is one row of the table directory.
type TableEntry struct {
	Name       string
	ID         TableID
	HeaderPage common.PageNum
}

// DatabaseHeader is the root of the database: the next never-used page, the table directory, and pages
// released by dropped tables that can be handed out again.
//
// Layout:
// Magic (4) | Version (4) | NextAvailPage (4) | NextTableID (4) | NumTables (4) |
// NumTables * [NameLen (1) | Name | ID (4) | HeaderPage (4)] | NumFree (4) | NumFree * Page (4)
type DatabaseHeader struct {
	NextAvailPage common.PageNum
	NextTableID   TableID
	Tables        []TableEntry
	FreePages     []common.PageNum

	// chain lists the pages holding this header, starting with DatabaseHeaderPage.
	chain []common.PageNum
}

// NewDatabaseHeader returns the header of an empty database whose header occupies page 0 alone.
func NewDatabaseHeader() *DatabaseHeader {
	return &DatabaseHeader{
		NextAvailPage: DatabaseHeaderPage + 1,
		NextTableID:   1,
		Tables:        make([]TableEntry, 0),
		FreePages:     make([]common.PageNum, 0),
		chain:         []common.PageNum{DatabaseHeaderPage},
	}
}

// Chain returns the pages holding the header.
func (h *DatabaseHeader) Chain() []common.PageNum {
	return h.chain
}

// FindTable returns the directory position of the table called name.
func (h *DatabaseHeader) FindTable(name string) (int, bool) {
	for i, e := range h.Tables {
		if e.Name == name {
			return i, true
		}
	}
	return -1, false
}

// Encode serializes the header.
func (h *DatabaseHeader) Encode() []byte {
	w := writer{}
	w.buf = append(w.buf, databaseHeaderMagic...)
	w.uint32(databaseHeaderVersion)
	w.pageNum(h.NextAvailPage)
	w.uint32(uint32(h.NextTableID))
	w.uint32(uint32(len(h.Tables)))
	for _, e := range h.Tables {
		w.string8(e.Name)
		w.uint32(uint32(e.ID))
		w.pageNum(e.HeaderPage)
	}
	w.uint32(uint32(len(h.FreePages)))
	for _, p := range h.FreePages {
		w.pageNum(p)
	}
	return w.buf
}

// DecodeDatabaseHeader deserializes a header written by Encode.
func DecodeDatabaseHeader(data []byte) (*DatabaseHeader, error) {
	r := reader{buf: data}
	if magic := string(r.bytes(len(databaseHeaderMagic))); r.err == nil && magic != databaseHeaderMagic {
		return nil, common.NewError(common.CorruptHeaderError, "bad database header magic %q", magic)
	}
	if v := r.uint32(); r.err == nil && v != databaseHeaderVersion {
		return nil, common.NewError(common.CorruptHeaderError, "unsupported database header version %d", v)
	}
	h := &DatabaseHeader{NextAvailPage: r.pageNum(), NextTableID: TableID(r.uint32())}

	numTables := int(r.uint32())
	if r.err == nil && numTables > MaxTables {
		return nil, common.NewError(common.CorruptHeaderError, "database header claims %d tables", numTables)
	}
	h.Tables = make([]TableEntry, 0, numTables)
	for i := 0; i < numTables && r.err == nil; i++ {
		e := TableEntry{Name: r.string8(), ID: TableID(r.uint32())}
		e.HeaderPage = r.pageNum()
		h.Tables = append(h.Tables, e)
	}

	numFree := int(r.uint32())
	if r.err == nil && numFree*4 > len(data) {
		return nil, common.NewError(common.CorruptHeaderError, "database header claims %d free pages", numFree)
	}
	h.FreePages = make([]common.PageNum, 0, numFree)
	for i := 0; i < numFree && r.err == nil; i++ {
		h.FreePages = append(h.FreePages, r.pageNum())
	}
	if r.err != nil {
		return nil, r.err
	}
	return h, nil
}

// clone returns a deep copy, used to roll back a failed directory change.
func (h *DatabaseHeader) clone() *DatabaseHeader {
	return &DatabaseHeader{
		NextAvailPage: h.NextAvailPage,
		NextTableID:   h.NextTableID,
		Tables:        append([]TableEntry(nil), h.Tables...),
		FreePages:     append([]common.PageNum(nil), h.FreePages...),
		chain:         append([]common.PageNum(nil), h.chain...),
	}
}
