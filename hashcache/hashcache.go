/*
The content hash cache: a durable mapping from a source blob's object id
to the sha256 and size of its content.

Every blob extracted to LFS is hashed once; the result is written here
and fsynced before the extraction proceeds, so an interrupted migration
can be resumed without reading the same content twice.  The file is a
bbolt database.
*/
package hashcache

import (
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/polydawn/refmt"
	"github.com/polydawn/refmt/cbor"
	"github.com/polydawn/refmt/obj/atlas"
	"github.com/warpfork/go-errcat"
	bolt "go.etcd.io/bbolt"

	"github.com/polydawn/lfsmigrate"
)

// Entry is the cached hash of one blob's content.
type Entry struct {
	Oid  string `refmt:"oid"`
	Size int64  `refmt:"size"`
}

var entryAtlas = atlas.MustBuild(
	atlas.BuildEntry(Entry{}).StructMap().Autogenerate().Complete(),
)

var bucketName = []byte("blobs")

type Cache struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the cache file at path.
func Open(path string) (_ *Cache, err error) {
	defer errcat.RequireErrorHasCategory(&err, lfsmigrate.ErrorCategory(""))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errcat.Errorf(lfsmigrate.ErrCacheIO, "cannot create hash cache dir: %s", err)
	}
	db, err := bolt.Open(path, 0644, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, errcat.ErrorDetailed(lfsmigrate.ErrCacheIO, "cannot open hash cache: "+err.Error(),
			map[string]string{"path": path})
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		db.Close()
		return nil, errcat.Errorf(lfsmigrate.ErrCacheIO, "cannot initialize hash cache: %s", err)
	}
	return &Cache{db: db}, nil
}

// Get looks up the entry for a blob id.  A miss is not an error.
func (c *Cache) Get(id plumbing.Hash) (Entry, bool, error) {
	var raw []byte
	err := c.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketName).Get(id[:]); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return Entry{}, false, errcat.ErrorDetailed(lfsmigrate.ErrCacheIO, "hash cache read failed: "+err.Error(),
			map[string]string{"blob": id.String()})
	}
	if raw == nil {
		return Entry{}, false, nil
	}
	var e Entry
	if err := refmt.UnmarshalAtlased(cbor.DecodeOptions{}, raw, &e, entryAtlas); err != nil {
		// A corrupt record is treated as a miss; it'll be rewritten.
		return Entry{}, false, nil
	}
	return e, true, nil
}

/*
Put records the entry for a blob id.

Returns only after the write transaction is committed and synced to disk.
*/
func (c *Cache) Put(id plumbing.Hash, e Entry) error {
	raw, err := refmt.MarshalAtlased(cbor.EncodeOptions{}, e, entryAtlas)
	if err != nil {
		return errcat.Errorf(lfsmigrate.ErrCacheIO, "hash cache encode failed: %s", err)
	}
	err = c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put(id[:], raw)
	})
	if err != nil {
		return errcat.ErrorDetailed(lfsmigrate.ErrCacheIO, "hash cache write failed: "+err.Error(),
			map[string]string{"blob": id.String()})
	}
	return nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}
