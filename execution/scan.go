package execution

import (
	"github.com/woqer/Database-from-Scratch/catalog"
	"github.com/woqer/Database-from-Scratch/common"
	"github.com/woqer/Database-from-Scratch/expr"
	"github.com/woqer/Database-from-Scratch/storage"
)

// Scan iterates the live records of a table in record id order, returning those that satisfy its
// condition. The scan works from a copy of the table header taken when it starts and on every Reset:
// records inserted or deleted after that are not reflected until the next Reset, while updates to
// records it has not reached yet are.
type Scan struct {
	table  *Table
	cond   expr.Expr
	th     *catalog.TableHeader // nil until loaded
	cursor int                  // slot index to examine next
	closed bool
}

// StartScan opens a scan over t. A nil condition matches every record.
func (t *Table) StartScan(cond expr.Expr) (*Scan, error) {
	t.rm.latch.Lock()
	defer t.rm.latch.Unlock()
	th, err := t.header()
	if err != nil {
		return nil, err
	}
	return &Scan{table: t, cond: cond, th: th}, nil
}

// Next copies the next matching record into rec. It returns NoMoreTuplesError once the table is
// exhausted, and the same error on every later call until Reset.
func (s *Scan) Next(rec *storage.Record) error {
	if s.closed {
		return common.NewError(common.NoMoreTuplesError, "scan of '%s' is closed", s.table.name)
	}
	t := s.table
	t.rm.latch.Lock()
	defer t.rm.latch.Unlock()
	if err := t.check(); err != nil {
		return err
	}
	if s.th == nil {
		th, err := t.header()
		if err != nil {
			return err
		}
		s.th = th
	}
	th := s.th

	for {
		idx := th.Occupancy.FindNextSet(s.cursor)
		if idx < 0 || idx >= th.AllocatedSlots() {
			s.cursor = th.AllocatedSlots()
			return common.NewError(common.NoMoreTuplesError, "scan of '%s' is exhausted", t.name)
		}
		s.cursor = idx + 1

		if err := t.readRecord(th, th.RecordIDAt(idx), rec); err != nil {
			return err
		}
		ok, err := expr.Evaluate(rec, th.Schema, s.cond)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
}

// Reset rewinds the scan to the first record. The table header is reloaded by the next call to Next. A
// closed scan stays closed.
func (s *Scan) Reset() {
	s.cursor = 0
	s.th = nil
}

// Close ends the scan. Scans hold no pins between calls, so closing never fails.
func (s *Scan) Close() error {
	s.closed = true
	s.th = nil
	return nil
}
