package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// CatalogDiskUsage sums the local footprint of a catalog: the SQLite file
// with its WAL companions, the trigram index and the local object store.
// Empty paths are skipped, so a Postgres deployment reports only objects.
func CatalogDiskUsage(dbPath, indexPath, objectsDir string) (int64, error) {
	paths := []string{indexPath, objectsDir}
	if dbPath != "" {
		paths = append(paths, dbPath, dbPath+"-wal", dbPath+"-shm")
	}
	return DiskUsageBytes(paths...)
}

// DiskUsageBytes returns the total size of the given files and directory
// trees. Missing paths count as zero and a path listed twice is counted once.
func DiskUsageBytes(paths ...string) (int64, error) {
	seen := make(map[string]bool, len(paths))
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		p = filepath.Clean(p)
		if seen[p] {
			continue
		}
		seen[p] = true

		err := filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.Type().IsRegular() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
			return nil
		})
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}

// DiskUsage reports the bytes used by this store's database and index.
func (s *SQLiteStorage) DiskUsage() (int64, error) {
	return CatalogDiskUsage(s.dbPath, s.indexPath, "")
}
