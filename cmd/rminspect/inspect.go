package main

import (
	"fmt"
	"io"
	"strings"

	rmdb "github.com/woqer/Database-from-Scratch"
	"github.com/woqer/Database-from-Scratch/common"
	"github.com/woqer/Database-from-Scratch/execution"
)

func inspect(w io.Writer, db *rmdb.DB, scan bool) error {
	rm := db.Records
	bp := rm.BufferPool()
	fmt.Fprintf(w, "file %s: %d pages, pool of %d frames (%s)\n",
		db.Config.PageFile, bp.File().NumPages(), bp.NumFrames(), bp.Strategy())

	names := rm.TableNames()
	fmt.Fprintf(w, "%d table(s)\n", len(names))
	for _, name := range names {
		table, err := rm.OpenTable(name)
		if err != nil {
			return err
		}
		stats, err := table.Stats()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "\n%s %s\n", name, table.Schema())
		fmt.Fprintf(w, "  tuples %d, slots %d of %d, header pages %v, data pages %v\n",
			stats.NumTuples, stats.AllocatedSlots, len(stats.DataPages)*stats.SlotsPerPage,
			stats.HeaderPages, stats.DataPages)
		if scan {
			if err := dumpRecords(w, table); err != nil {
				return err
			}
		}
		if err := rm.CloseTable(table); err != nil {
			return err
		}
	}

	fmt.Fprintf(w, "\npool: %d reads, %d writes, frames %v\n", bp.NumReadIO(), bp.NumWriteIO(), bp.FrameContents())
	return nil
}

func dumpRecords(w io.Writer, table *execution.Table) error {
	scan, err := table.StartScan(nil)
	if err != nil {
		return err
	}
	defer scan.Close()

	schema := table.Schema()
	rec := schema.CreateRecord()
	fields := make([]string, schema.NumAttrs())
	for {
		err := scan.Next(rec)
		if common.IsErrorCode(err, common.NoMoreTuplesError) {
			return nil
		}
		if err != nil {
			return err
		}
		for i := range fields {
			v, err := schema.GetAttr(rec, i)
			if err != nil {
				return err
			}
			fields[i] = schema.Columns[i].Name + "=" + v.String()
		}
		fmt.Fprintf(w, "  %s %s\n", rec.ID, strings.Join(fields, " "))
	}
}
