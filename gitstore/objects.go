package gitstore

import (
	"bytes"
	"errors"
	"io"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	. "github.com/warpfork/go-errcat"

	"github.com/polydawn/lfsmigrate"
)

/*
Reader fetches and decodes objects from a repository.

Errors are of category:

  - `lfsmigrate.ErrMissingObject` -- the object isn't in the store
  - `lfsmigrate.ErrRepoCorrupt` -- the object is there but unreadable, or of the wrong type
*/
type Reader struct {
	s storer.EncodedObjectStorer
}

func (r Reader) Has(id plumbing.Hash) bool {
	return r.s.HasEncodedObject(id) == nil
}

func (r Reader) Object(id plumbing.Hash) (plumbing.EncodedObject, error) {
	obj, err := r.s.EncodedObject(plumbing.AnyObject, id)
	switch {
	case err == nil:
		return obj, nil
	case errors.Is(err, plumbing.ErrObjectNotFound):
		return nil, ErrorDetailed(lfsmigrate.ErrMissingObject, "object not found",
			map[string]string{"object": id.String()})
	default:
		return nil, corrupt(id, err)
	}
}

func (r Reader) Commit(id plumbing.Hash) (*object.Commit, error) {
	obj, err := r.typed(id, plumbing.CommitObject)
	if err != nil {
		return nil, err
	}
	return DecodeCommit(obj)
}

func (r Reader) Tree(id plumbing.Hash) (*object.Tree, error) {
	obj, err := r.typed(id, plumbing.TreeObject)
	if err != nil {
		return nil, err
	}
	return DecodeTree(obj)
}

func (r Reader) Tag(id plumbing.Hash) (*object.Tag, error) {
	obj, err := r.typed(id, plumbing.TagObject)
	if err != nil {
		return nil, err
	}
	return DecodeTag(obj)
}

// Blob reads a whole blob into memory.  Only for small blobs.
func (r Reader) Blob(id plumbing.Hash) ([]byte, error) {
	obj, err := r.typed(id, plumbing.BlobObject)
	if err != nil {
		return nil, err
	}
	return ReadAll(obj)
}

func (r Reader) typed(id plumbing.Hash, t plumbing.ObjectType) (plumbing.EncodedObject, error) {
	obj, err := r.Object(id)
	if err != nil {
		return nil, err
	}
	if obj.Type() != t {
		return nil, ErrorDetailed(lfsmigrate.ErrRepoCorrupt, "unexpected object type",
			map[string]string{"object": id.String(), "expected": t.String(), "actual": obj.Type().String()})
	}
	return obj, nil
}

func DecodeCommit(obj plumbing.EncodedObject) (*object.Commit, error) {
	c := &object.Commit{}
	if err := c.Decode(obj); err != nil {
		return nil, corrupt(obj.Hash(), err)
	}
	return c, nil
}

func DecodeTree(obj plumbing.EncodedObject) (*object.Tree, error) {
	t := &object.Tree{}
	if err := t.Decode(obj); err != nil {
		return nil, corrupt(obj.Hash(), err)
	}
	return t, nil
}

func DecodeTag(obj plumbing.EncodedObject) (*object.Tag, error) {
	t := &object.Tag{}
	if err := t.Decode(obj); err != nil {
		return nil, corrupt(obj.Hash(), err)
	}
	return t, nil
}

// OpenBlob opens the raw content of an object.
func OpenBlob(obj plumbing.EncodedObject) (io.ReadCloser, error) {
	rd, err := obj.Reader()
	if err != nil {
		return nil, corrupt(obj.Hash(), err)
	}
	return rd, nil
}

func ReadAll(obj plumbing.EncodedObject) ([]byte, error) {
	rd, err := OpenBlob(obj)
	if err != nil {
		return nil, err
	}
	defer rd.Close()
	var buf bytes.Buffer
	buf.Grow(int(obj.Size()))
	if _, err := io.Copy(&buf, rd); err != nil {
		return nil, corrupt(obj.Hash(), err)
	}
	return buf.Bytes(), nil
}

func corrupt(id plumbing.Hash, err error) error {
	return ErrorDetailed(lfsmigrate.ErrRepoCorrupt, "cannot read object: "+err.Error(),
		map[string]string{"object": id.String()})
}

/*
Inserter writes objects into a repository.
Writing an object that's already present is a no-op returning its hash.

Errors are of category `lfsmigrate.ErrLocalIO`.
*/
type Inserter struct {
	s storer.EncodedObjectStorer
}

func (w Inserter) Has(id plumbing.Hash) bool {
	return w.s.HasEncodedObject(id) == nil
}

// Encoder is satisfied by go-git's Commit, Tree, Tag, and Blob.
type Encoder interface {
	Encode(plumbing.EncodedObject) error
}

func (w Inserter) Insert(o Encoder) (plumbing.Hash, error) {
	obj := w.s.NewEncodedObject()
	if err := o.Encode(obj); err != nil {
		return plumbing.ZeroHash, Errorf(lfsmigrate.ErrInvariant, "cannot encode object: %s", err)
	}
	return w.store(obj)
}

func (w Inserter) InsertBlob(content []byte) (plumbing.Hash, error) {
	obj := w.s.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	obj.SetSize(int64(len(content)))
	wr, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, Errorf(lfsmigrate.ErrLocalIO, "cannot write object: %s", err)
	}
	if _, err := wr.Write(content); err != nil {
		wr.Close()
		return plumbing.ZeroHash, Errorf(lfsmigrate.ErrLocalIO, "cannot write object: %s", err)
	}
	if err := wr.Close(); err != nil {
		return plumbing.ZeroHash, Errorf(lfsmigrate.ErrLocalIO, "cannot write object: %s", err)
	}
	return w.store(obj)
}

/*
Copy stores an object read from another repository byte for byte.
*/
func (w Inserter) Copy(obj plumbing.EncodedObject) (plumbing.Hash, error) {
	id := obj.Hash()
	if w.Has(id) {
		return id, nil
	}
	got, err := w.s.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, ErrorDetailed(lfsmigrate.ErrLocalIO, "cannot copy object: "+err.Error(),
			map[string]string{"object": id.String()})
	}
	if got != id {
		return plumbing.ZeroHash, ErrorDetailed(lfsmigrate.ErrInvariant, "copied object changed hash",
			map[string]string{"object": id.String(), "stored": got.String()})
	}
	return got, nil
}

func (w Inserter) store(obj plumbing.EncodedObject) (plumbing.Hash, error) {
	id := obj.Hash()
	if w.Has(id) {
		return id, nil
	}
	got, err := w.s.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, ErrorDetailed(lfsmigrate.ErrLocalIO, "cannot write object: "+err.Error(),
			map[string]string{"object": id.String()})
	}
	return got, nil
}
