package plotfile

import (
	"bytes"
	"encoding/gob"
	"os"
	"time"

	"go.etcd.io/bbolt"

	"github.com/hashplot/pocminer/internal/pocerr"
)

var listingBucket = []byte("listings")

// cachedListing is what Index stores per directory: the directory's mtime
// at the time of the scan, plus the records RestoreFromDir produced for it.
// If the directory's mtime has moved on, the entry is stale and Restore
// falls back to a fresh scan.
type cachedListing struct {
	DirModUnixNano int64
	Files          []PlotFile
}

// Index is a bbolt-backed cache of directory listings in front of
// RestoreFromDir, so a CLI invocation that restores the same plot
// directory repeatedly (e.g. a seek loop re-checking for new files) does
// not re-stat and re-parse every entry in a large directory each time.
//
// The cache is entirely best-effort: any failure to open, read, or write
// it is swallowed and Index falls back to calling RestoreFromDir directly.
// A corrupt or missing cache file is never a fatal condition.
type Index struct {
	db *bbolt.DB
}

// OpenIndex opens (creating if necessary) a bbolt database at cachePath to
// back directory listing lookups. If the database cannot be opened for any
// reason, OpenIndex returns a non-nil *Index backed by no database; its
// Restore method degrades to a plain RestoreFromDir call.
func OpenIndex(cachePath string) *Index {
	db, err := bbolt.Open(cachePath, 0o644, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return &Index{}
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(listingBucket)
		return err
	})
	if err != nil {
		db.Close()
		return &Index{}
	}
	return &Index{db: db}
}

// Close releases the underlying database, if one is open.
func (idx *Index) Close() error {
	if idx.db == nil {
		return nil
	}
	return idx.db.Close()
}

// Restore returns dir's plot files, consulting the cache first. A cache
// hit requires the stored entry's directory mtime to exactly match the
// directory's current mtime; any mismatch, and a miss, is resolved with a
// live RestoreFromDir call whose result is then written back to the cache.
func (idx *Index) Restore(dir string) ([]PlotFile, error) {
	info, statErr := os.Stat(dir)
	if idx.db == nil || statErr != nil {
		return RestoreFromDir(dir)
	}

	if cached, ok := idx.lookup(dir, info.ModTime()); ok {
		return cached, nil
	}

	files, err := RestoreFromDir(dir)
	if err != nil {
		return nil, err
	}
	idx.store(dir, info.ModTime(), files)
	return files, nil
}

func (idx *Index) lookup(dir string, modTime time.Time) ([]PlotFile, bool) {
	var listing cachedListing
	err := idx.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(listingBucket)
		raw := b.Get([]byte(dir))
		if raw == nil {
			return pocerr.New(pocerr.NotFound, "index_lookup", nil)
		}
		return gob.NewDecoder(bytes.NewReader(raw)).Decode(&listing)
	})
	if err != nil || listing.DirModUnixNano != modTime.UnixNano() {
		return nil, false
	}
	return listing.Files, true
}

func (idx *Index) store(dir string, modTime time.Time, files []PlotFile) {
	var buf bytes.Buffer
	listing := cachedListing{DirModUnixNano: modTime.UnixNano(), Files: files}
	if err := gob.NewEncoder(&buf).Encode(listing); err != nil {
		return
	}
	_ = idx.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(listingBucket)
		return b.Put([]byte(dir), buf.Bytes())
	})
}
