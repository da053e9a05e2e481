package execution

import (
	"github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"
	"github.com/woqer/Database-from-Scratch/catalog"
	"github.com/woqer/Database-from-Scratch/common"
	"github.com/woqer/Database-from-Scratch/config"
	"github.com/woqer/Database-from-Scratch/logger"
	"github.com/woqer/Database-from-Scratch/storage"
)

// RecordManager owns one database file: its buffer pool and its table directory. Tables are reached
// through handles returned by OpenTable.
//
// Every operation that reads or modifies a header holds latch for its whole read-modify-write cycle, so
// a RecordManager and its handles may be shared between goroutines. This serializes access; it is not
// concurrency control.
type RecordManager struct {
	bp  *storage.BufferPool
	dir *catalog.Directory

	latch deadlock.Mutex
	log   *logrus.Entry
}

// InitRecordManager opens the page file named by cfg, creating it when it does not exist, and loads the
// directory. A fresh file is formatted with an empty database header.
func InitRecordManager(cfg *config.Cfg) (*RecordManager, error) {
	return openRecordManager(cfg, true)
}

// OpenRecordManager opens an existing database without creating or formatting anything. It fails with
// FileNotFoundError when the page file is missing and CorruptHeaderError when it holds no directory.
// Only operations that modify the database write to the file.
func OpenRecordManager(cfg *config.Cfg) (*RecordManager, error) {
	return openRecordManager(cfg, false)
}

func openRecordManager(cfg *config.Cfg, create bool) (*RecordManager, error) {
	strategy, err := storage.ParseReplacementStrategy(cfg.Strategy)
	if err != nil {
		return nil, err
	}

	var file storage.PageFile
	switch {
	case cfg.PageFile == config.MemoryPageFile:
		file = storage.NewMemPageFile()
	case create:
		diskFile, created, err := storage.OpenOrCreatePageFile(cfg.PageFile)
		if err != nil {
			return nil, err
		}
		if created {
			logger.WithComponent("recordmanager").WithField("file", cfg.PageFile).Info("created page file")
		}
		file = diskFile
	default:
		diskFile, err := storage.OpenPageFile(cfg.PageFile)
		if err != nil {
			return nil, err
		}
		file = diskFile
	}

	bp, err := storage.NewBufferPool(file, cfg.PoolSize, strategy)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	load := catalog.LoadDirectory
	if create {
		load = catalog.LoadOrFormatDirectory
	}
	dir, err := load(bp)
	if err != nil {
		_ = bp.Shutdown()
		return nil, err
	}
	return newRecordManager(bp, dir), nil
}

// NewRecordManager loads the directory of the database cached by bp, formatting it if page 0 is blank.
func NewRecordManager(bp *storage.BufferPool) (*RecordManager, error) {
	dir, err := catalog.LoadOrFormatDirectory(bp)
	if err != nil {
		return nil, err
	}
	return newRecordManager(bp, dir), nil
}

func newRecordManager(bp *storage.BufferPool, dir *catalog.Directory) *RecordManager {
	rm := &RecordManager{
		bp:  bp,
		dir: dir,
		log: logger.WithComponent("recordmanager"),
	}
	rm.log.WithField("tables", len(dir.Header().Tables)).WithField("strategy", bp.Strategy()).Debug("record manager ready")
	return rm
}

// BufferPool returns the pool the record manager works through.
func (rm *RecordManager) BufferPool() *storage.BufferPool {
	return rm.bp
}

// Shutdown writes back every dirty page and closes the page file. It fails with PinnedPagesError if
// an open scan still holds a page.
func (rm *RecordManager) Shutdown() error {
	rm.latch.Lock()
	defer rm.latch.Unlock()
	return rm.bp.Shutdown()
}

// TableNames lists the tables of the database.
func (rm *RecordManager) TableNames() []string {
	rm.latch.Lock()
	defer rm.latch.Unlock()
	return rm.dir.TableNames()
}

// CreateTable creates an empty table called name.
func (rm *RecordManager) CreateTable(name string, schema *catalog.Schema) error {
	if schema == nil {
		return common.NewError(common.InvalidSchemaError, "table '%s' needs a schema", name)
	}
	rm.latch.Lock()
	defer rm.latch.Unlock()
	_, err := rm.dir.CreateTable(name, schema)
	return err
}

// OpenTable returns a handle to the table called name.
func (rm *RecordManager) OpenTable(name string) (*Table, error) {
	rm.latch.Lock()
	defer rm.latch.Unlock()
	th, err := rm.dir.FindTable(name)
	if err != nil {
		return nil, err
	}
	return newTable(rm, th), nil
}

// CloseTable writes back the dirty pages of the pool and invalidates the handle.
func (rm *RecordManager) CloseTable(t *Table) error {
	rm.latch.Lock()
	defer rm.latch.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return rm.bp.ForceFlushPool()
}

// DeleteTable drops the table called name and releases its pages. Handles still open on the table fail
// with TableNotFoundError from then on.
func (rm *RecordManager) DeleteTable(name string) error {
	rm.latch.Lock()
	defer rm.latch.Unlock()
	return rm.dir.DeleteTable(name)
}
