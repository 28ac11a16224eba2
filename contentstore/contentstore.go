/*
Extraction of blob content into LFS storage.

Store.Extract takes one blob's content, makes sure it is hashed (once,
ever, thanks to the hash cache, even across runs that start from an
empty staging area), staged in the local object store, and
queued for upload; and returns the pointer record to put in its place.
*/
package contentstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strconv"

	"github.com/go-git/go-git/v5/plumbing"
	. "github.com/warpfork/go-errcat"

	"github.com/polydawn/lfsmigrate"
	"github.com/polydawn/lfsmigrate/hashcache"
	"github.com/polydawn/lfsmigrate/metrics"
	"github.com/polydawn/lfsmigrate/pointer"
	"github.com/polydawn/lfsmigrate/warehouse"
)

// Satisfied by *uploadq.Queue.
type UploadQueue interface {
	Submit(obj warehouse.Object, open func() (io.ReadCloser, error)) error
}

type Store struct {
	local   warehouse.BlobstoreController
	cache   *hashcache.Cache
	uploads UploadQueue // may be nil: stage locally only.
	metrics *metrics.Metrics
}

func New(local warehouse.BlobstoreController, cache *hashcache.Cache, uploads UploadQueue, m *metrics.Metrics) *Store {
	return &Store{local, cache, uploads, m}
}

/*
Extract moves a blob's content into LFS storage and returns the pointer
record that replaces it.

Returns ok=false, with no error, when the blob must be kept as it is:
it's empty, or it already is a pointer record.

May return errors of category:

  - `lfsmigrate.ErrRepoCorrupt` -- if the content can't be read, or doesn't hash consistently
  - `lfsmigrate.ErrCacheIO` -- if the hash cache fails
  - `lfsmigrate.ErrLocalIO` -- if staging fails
  - `lfsmigrate.ErrUpload` -- if an earlier upload already failed
*/
func (s *Store) Extract(ctx context.Context, blobID plumbing.Hash, size int64, open func() (io.ReadCloser, error)) (ptr []byte, ok bool, err error) {
	defer RequireErrorHasCategory(&err, lfsmigrate.ErrorCategory(""))
	if size == 0 {
		return nil, false, nil
	}
	if size <= pointer.MaxSize {
		head, err := readAll(blobID, open)
		if err != nil {
			return nil, false, err
		}
		if _, isPtr := pointer.Parse(head); isPtr {
			return nil, false, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, false, Errorf(lfsmigrate.ErrCancelled, "extraction cancelled")
	}

	entry, hit, err := s.cache.Get(blobID)
	if err != nil {
		return nil, false, err
	}
	s.metrics.CacheLookup(hit)
	if hit {
		staged, err := s.local.Has(entry.Oid)
		if err != nil {
			return nil, false, err
		}
		if !staged {
			// Cache survived but the staging area didn't.
			if err := s.restage(blobID, entry, open); err != nil {
				return nil, false, err
			}
		}
	} else {
		entry, err = s.stage(blobID, open)
		if err != nil {
			return nil, false, err
		}
	}
	s.metrics.Extracted(entry.Size)

	if s.uploads != nil {
		oid := entry.Oid
		if err := s.uploads.Submit(warehouse.Object{Oid: oid, Size: entry.Size}, func() (io.ReadCloser, error) {
			return s.local.OpenReader(oid)
		}); err != nil {
			return nil, false, err
		}
	}
	return pointer.Encode(entry.Oid, entry.Size), true, nil
}

/*
Streams the content once through sha256 into the staging area,
records the hash in the cache (durably), then commits the staged file.
*/
func (s *Store) stage(blobID plumbing.Hash, open func() (io.ReadCloser, error)) (hashcache.Entry, error) {
	r, err := open()
	if err != nil {
		return hashcache.Entry{}, readError(blobID, err)
	}
	defer r.Close()
	wc, err := s.local.OpenWriter()
	if err != nil {
		return hashcache.Entry{}, err
	}
	hasher := sha256.New()
	n, err := io.Copy(io.MultiWriter(wc, hasher), r)
	if err != nil {
		wc.Close()
		return hashcache.Entry{}, readError(blobID, err)
	}
	entry := hashcache.Entry{Oid: hex.EncodeToString(hasher.Sum(nil)), Size: n}
	if err := s.cache.Put(blobID, entry); err != nil {
		wc.Close()
		return hashcache.Entry{}, err
	}
	if err := wc.Commit(entry.Oid); err != nil {
		return hashcache.Entry{}, err
	}
	return entry, nil
}

/*
Copies content under an oid already known from the cache.  Nothing is
hashed; only the length is checked against the cached size.
*/
func (s *Store) restage(blobID plumbing.Hash, entry hashcache.Entry, open func() (io.ReadCloser, error)) error {
	r, err := open()
	if err != nil {
		return readError(blobID, err)
	}
	defer r.Close()
	wc, err := s.local.OpenWriter()
	if err != nil {
		return err
	}
	n, err := io.Copy(wc, r)
	if err != nil {
		wc.Close()
		return readError(blobID, err)
	}
	if n != entry.Size {
		wc.Close()
		return ErrorDetailed(lfsmigrate.ErrRepoCorrupt, "blob content does not match its cached size",
			map[string]string{"blob": blobID.String(), "cached": strconv.FormatInt(entry.Size, 10), "actual": strconv.FormatInt(n, 10)})
	}
	return wc.Commit(entry.Oid)
}

func readAll(blobID plumbing.Hash, open func() (io.ReadCloser, error)) ([]byte, error) {
	r, err := open()
	if err != nil {
		return nil, readError(blobID, err)
	}
	defer r.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(r, pointer.MaxSize+1)); err != nil {
		return nil, readError(blobID, err)
	}
	return buf.Bytes(), nil
}

func readError(blobID plumbing.Hash, err error) error {
	if lfsmigrate.Categorized(err) {
		return err
	}
	return ErrorDetailed(lfsmigrate.ErrRepoCorrupt, "cannot read blob content: "+err.Error(),
		map[string]string{"blob": blobID.String(), "stage": "extract"})
}
