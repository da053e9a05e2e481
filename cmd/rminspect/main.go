// Inspect a record manager database file: its tables, their sizes and the buffer pool traffic needed to
// read them. The file is opened as is and never formatted.
// Usage: go run ./cmd/rminspect [-config rm.ini] [-file records.db] [-scan]
package main

import (
	"flag"
	"fmt"
	"os"

	rmdb "github.com/woqer/Database-from-Scratch"
	"github.com/woqer/Database-from-Scratch/config"
)

func main() {
	var configPath, pageFile string
	var scan bool
	flag.StringVar(&configPath, "config", "", "ini file with [storage] and [logs] sections")
	flag.StringVar(&pageFile, "file", "", "page file to inspect, overriding the config")
	flag.BoolVar(&scan, "scan", false, "scan every table and print its records")
	flag.Parse()

	cfg := config.NewCfg()
	if configPath != "" {
		if _, err := cfg.Load(configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	if pageFile != "" {
		cfg.PageFile = pageFile
	}
	db, err := rmdb.OpenExisting(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	err = inspect(os.Stdout, db, scan)
	if closeErr := db.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
