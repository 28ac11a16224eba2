/*
Content-addressable storage for extracted LFS objects.

Blobstore-style warehouses (local staging, 'kvfs') support opening reads
and writes which return simple binary io.Reader and io.Writer streams,
keyed by the sha256 hex of the content.

Uploaders ('kvhttp' for the Git LFS batch API, 'kvs3' for S3-compatible
buckets) push already-staged content to a remote store.
*/
package warehouse

import (
	"context"
	"io"
)

// Object identifies one LFS object: the sha256 hex of its content, and its length.
type Object struct {
	Oid  string `json:"oid"`
	Size int64  `json:"size"`
}

type BlobstoreController interface {
	OpenReader(oid string) (io.ReadCloser, error)
	OpenWriter() (BlobstoreWriteController, error)
	Has(oid string) (bool, error)
}

/*
Blobstore-style warehouses return a "write controller", which is both
a simple `io.Writer`, and also carries a `Commit` function which must
be called when the write is complete and the hash known.

Using Blobstore.OpenWriter causes temp space to be allocated in the
warehouse to accept the incoming binary data.
Calling `Commit` moves the data into final position and makes it available
for reading, and closes the writer.
Calling `Close` on the write controller before commit aborts the write,
freeing the temp space used.

The oid given to the `Commit` call is assumed to be correct -- warehouses
are a transport layer, and do not rehash.
*/
type BlobstoreWriteController interface {
	io.WriteCloser
	Commit(oid string) error
}

/*
An Uploader pushes one object to a remote store.

Implementations check whether the remote already has the object and skip
the transfer if so.  `open` may be called more than once (retries).
*/
type Uploader interface {
	Upload(ctx context.Context, obj Object, open func() (io.ReadCloser, error)) error
}

/*
Return the first, second, and remaining chunk of an oid.

The first two chunks (two hex chars each) are used as dir prefixes,
the same layout git-lfs uses for its own local object store.
*/
func ChunkifyHash(oid string) (string, string, string) {
	return oid[0:2], oid[2:4], oid[4:]
}
