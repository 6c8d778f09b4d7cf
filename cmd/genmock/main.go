// Command genmock writes a small provincial data archive for local runs and
// smoke tests: boundaries, every raster source, the population and station
// workbooks, and a catalog.yaml matching the archive grids.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock
//	DATA_ROOT=data/mock BOUNDARY_FILE=data/mock/shapefiles/provinces.geojson \
//	  CATALOG_FILE=data/mock/catalog.yaml SQLITE_PATH=data/mock/summaries.db \
//	  go run ./cmd/geodata-etl -provinces istanbul,ankara
package main

import (
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/couchcryptid/geodata-etl/internal/mockdata"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output directory for the mock archive")
	force := flag.Bool("force", false, "write into a non-empty directory")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}
	if !*force {
		entries, err := os.ReadDir(*out)
		if err == nil && len(entries) > 0 {
			return fmt.Errorf("%s is not empty; pass -force to overwrite", *out)
		}
	}

	layout, err := mockdata.Write(*out)
	if err != nil {
		return fmt.Errorf("writing archive: %w", err)
	}

	files, err := listFiles(layout.Root)
	if err != nil {
		return err
	}
	for _, f := range files {
		log.Printf("wrote %s", f)
	}
	log.Printf("total: %d files", len(files))
	log.Printf("DATA_ROOT=%s BOUNDARY_FILE=%s CATALOG_FILE=%s", layout.Root, layout.BoundaryFile, layout.CatalogFile)
	return nil
}

func listFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list archive: %w", err)
	}
	sort.Strings(files)
	return files, nil
}
