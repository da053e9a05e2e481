package storage

import (
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"github.com/woqer/Database-from-Scratch/common"
)

const (
	// fileHeaderSize is the width of the ASCII page count at the start of every page file.
	fileHeaderSize = 4
	// MaxPages is the largest page count the file header can express.
	MaxPages = 9999
)

// PageFile abstracts the single file that holds every page of a database. Pages are PageSize bytes and
// are numbered from 0. The file starts with a fileHeaderSize-byte ASCII decimal page count, so page n
// lives at offset fileHeaderSize + n*PageSize.
//
// Implementations are safe for concurrent use, although the buffer pool already serializes its I/O.
type PageFile interface {
	// ReadPage reads page pageNum into buf. buf must be exactly PageSize bytes.
	ReadPage(pageNum common.PageNum, buf []byte) error
	// WritePage writes buf to page pageNum, which must already exist. This method cannot extend the file;
	// use AppendEmptyPage or EnsureCapacity instead.
	WritePage(pageNum common.PageNum, buf []byte) error
	// AppendEmptyPage grows the file by one zero-filled page.
	AppendEmptyPage() error
	// EnsureCapacity grows the file with zero-filled pages until it holds at least numPages pages.
	EnsureCapacity(numPages int) error
	// NumPages returns the number of pages in the file.
	NumPages() int
	// Sync forces buffered writes to stable storage.
	Sync() error
	// Close releases the underlying handle.
	Close() error
}

// pageStore is the byte-addressed backing of a page file.
type pageStore interface {
	io.ReaderAt
	io.WriterAt
}

// pagedFile implements the page layout over any pageStore. It is embedded by the disk and in-memory
// page files.
type pagedFile struct {
	name     string
	store    pageStore
	numPages int
	mu       sync.Mutex
}

func pageOffset(pageNum common.PageNum) int64 {
	return int64(fileHeaderSize) + int64(pageNum)*int64(common.PageSize)
}

func ioError(code common.GoDBErrorCode, cause error, format string, args ...any) error {
	msg := errors.Wrapf(cause, format, args...).Error()
	return errors.WithStack(common.GoDBError{Code: code, ErrString: msg})
}

// format writes the header and a single zero page, the state of a freshly created file.
func (f *pagedFile) format() error {
	f.numPages = 0
	return f.appendLocked()
}

// load reads the page count from the header.
func (f *pagedFile) load() error {
	var header [fileHeaderSize]byte
	if _, err := f.store.ReadAt(header[:], 0); err != nil {
		return ioError(common.CorruptHeaderError, err, "read header of %s", f.name)
	}
	n, err := strconv.Atoi(string(header[:]))
	if err != nil || n < 0 {
		return common.NewError(common.CorruptHeaderError, "%s: invalid page count %q", f.name, string(header[:]))
	}
	f.numPages = n
	return nil
}

func (f *pagedFile) writeHeader(numPages int) error {
	header := fmt.Sprintf("%0*d", fileHeaderSize, numPages)
	if _, err := f.store.WriteAt([]byte(header), 0); err != nil {
		return ioError(common.WriteFailedError, err, "write header of %s", f.name)
	}
	return nil
}

func (f *pagedFile) ReadPage(pageNum common.PageNum, buf []byte) error {
	common.Assert(len(buf) == common.PageSize, "buffer size must match PageSize")
	f.mu.Lock()
	defer f.mu.Unlock()

	if pageNum < 0 || int(pageNum) >= f.numPages {
		return common.NewError(common.ReadNonExistingPageError,
			"%s: page %d does not exist (file has %d pages)", f.name, pageNum, f.numPages)
	}
	if _, err := f.store.ReadAt(buf, pageOffset(pageNum)); err != nil {
		return ioError(common.ReadNonExistingPageError, err, "read page %d of %s", pageNum, f.name)
	}
	return nil
}

func (f *pagedFile) WritePage(pageNum common.PageNum, buf []byte) error {
	common.Assert(len(buf) == common.PageSize, "buffer size must match PageSize")
	f.mu.Lock()
	defer f.mu.Unlock()

	if pageNum < 0 || int(pageNum) >= f.numPages {
		return common.NewError(common.WriteFailedError, "%s: page %d does not exist", f.name, pageNum)
	}
	if _, err := f.store.WriteAt(buf, pageOffset(pageNum)); err != nil {
		return ioError(common.WriteFailedError, err, "write page %d of %s", pageNum, f.name)
	}
	return nil
}

func (f *pagedFile) AppendEmptyPage() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.appendLocked()
}

func (f *pagedFile) appendLocked() error {
	if f.numPages >= MaxPages {
		return common.NewError(common.CapacityExceededError, "%s: page file is limited to %d pages", f.name, MaxPages)
	}
	var zero [common.PageSize]byte
	if _, err := f.store.WriteAt(zero[:], pageOffset(common.PageNum(f.numPages))); err != nil {
		return ioError(common.WriteFailedError, err, "append page %d to %s", f.numPages, f.name)
	}
	if err := f.writeHeader(f.numPages + 1); err != nil {
		return err
	}
	f.numPages++
	return nil
}

func (f *pagedFile) EnsureCapacity(numPages int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if numPages > MaxPages {
		return common.NewError(common.CapacityExceededError,
			"%s: cannot grow to %d pages, limit is %d", f.name, numPages, MaxPages)
	}
	for f.numPages < numPages {
		if err := f.appendLocked(); err != nil {
			return err
		}
	}
	return nil
}

func (f *pagedFile) NumPages() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.numPages
}
