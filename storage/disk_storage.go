package storage

import (
	"os"

	"github.com/dsnet/golib/memfile"
	"github.com/pkg/errors"
	"github.com/woqer/Database-from-Scratch/common"
)

// DiskPageFile implements PageFile using a standard OS file.
type DiskPageFile struct {
	pagedFile
	file *os.File
}

// CreatePageFile creates (or truncates) the file at path and formats it with a single zero page.
func CreatePageFile(path string) (*DiskPageFile, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return nil, ioError(common.WriteFailedError, err, "create page file %s", path)
	}
	f := &DiskPageFile{pagedFile: pagedFile{name: path, store: file}, file: file}
	if err := f.format(); err != nil {
		_ = file.Close()
		return nil, err
	}
	return f, nil
}

// OpenPageFile opens an existing page file and reads its page count.
func OpenPageFile(path string) (*DiskPageFile, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0666)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ioError(common.FileNotFoundError, err, "open page file %s", path)
		}
		return nil, ioError(common.WriteFailedError, err, "open page file %s", path)
	}
	f := &DiskPageFile{pagedFile: pagedFile{name: path, store: file}, file: file}
	if err := f.load(); err != nil {
		_ = file.Close()
		return nil, err
	}
	return f, nil
}

// OpenOrCreatePageFile opens path, creating it first when it does not exist. The boolean result reports
// whether the file was created.
func OpenOrCreatePageFile(path string) (*DiskPageFile, bool, error) {
	f, err := OpenPageFile(path)
	if err == nil {
		return f, false, nil
	}
	if !common.IsErrorCode(err, common.FileNotFoundError) {
		return nil, false, err
	}
	f, err = CreatePageFile(path)
	return f, err == nil, err
}

// DestroyPageFile removes the file at path.
func DestroyPageFile(path string) error {
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ioError(common.FileNotFoundError, err, "destroy page file %s", path)
		}
		return ioError(common.WriteFailedError, err, "destroy page file %s", path)
	}
	return nil
}

// Sync flushes writes to stable storage.
func (f *DiskPageFile) Sync() error {
	return errors.Wrapf(f.file.Sync(), "sync %s", f.name)
}

// Close closes the underlying OS file.
func (f *DiskPageFile) Close() error {
	return errors.Wrapf(f.file.Close(), "close %s", f.name)
}

// MemPageFile implements PageFile over an in-memory buffer. Its contents disappear on Close.
type MemPageFile struct {
	pagedFile
	file *memfile.File
}

// NewMemPageFile returns a formatted in-memory page file holding a single zero page.
func NewMemPageFile() *MemPageFile {
	file := memfile.New(make([]byte, 0))
	f := &MemPageFile{pagedFile: pagedFile{name: ":memory:", store: file}, file: file}
	// Writes into a memfile cannot fail.
	common.Assert(f.format() == nil, "formatting an in-memory page file failed")
	return f
}

// Bytes returns the raw file image, header included.
func (f *MemPageFile) Bytes() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.file.Bytes()...)
}

func (f *MemPageFile) Sync() error {
	return nil
}

func (f *MemPageFile) Close() error {
	return nil
}
