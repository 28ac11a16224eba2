package convert

import (
	"context"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/polydawn/lfsmigrate/gitstore"
)

type TaskType uint8

const (
	// Rewrite an object and everything below it.
	Simple TaskType = iota
	// Merge our LFS declarations into the root .gitattributes.
	Attribute
	// Move a blob's content into LFS and leave a pointer behind.
	UploadLfs
)

// HasPath reports whether keys of this type are distinguished by path.
func (t TaskType) HasPath() bool {
	return t == Simple
}

func (t TaskType) String() string {
	switch t {
	case Simple:
		return "simple"
	case Attribute:
		return "attribute"
	case UploadLfs:
		return "upload-lfs"
	default:
		return "invalid"
	}
}

/*
TaskKey names one unit of work.  It's a plain value and is used directly
as a map key.

Path conventions for Simple keys: "" for whatever a ref or tag points at,
"/" for a commit's root tree, "/dir/sub/" for a subtree, and
"/dir/sub/name" for anything else in a tree.
Both "" and "/" denote the root tree when the object is a tree.

Construct keys with NewTaskKey, which drops the path for types that
carry none.
*/
type TaskKey struct {
	Type TaskType
	Path string
	ID   plumbing.Hash
}

func NewTaskKey(t TaskType, path string, id plumbing.Hash) TaskKey {
	if !t.HasPath() {
		path = ""
	}
	return TaskKey{t, path, id}
}

func (k TaskKey) String() string {
	if k.Type.HasPath() {
		return k.Type.String() + ":" + k.ID.String() + ":" + k.Path
	}
	return k.Type.String() + ":" + k.ID.String()
}

// Resolver returns the converted id of a task that has already run.
type Resolver interface {
	Resolve(key TaskKey) (plumbing.Hash, error)
}

type ResolverFunc func(key TaskKey) (plumbing.Hash, error)

func (f ResolverFunc) Resolve(key TaskKey) (plumbing.Hash, error) { return f(key) }

// ObjectReader is satisfied by gitstore.Reader.
type ObjectReader interface {
	Object(id plumbing.Hash) (plumbing.EncodedObject, error)
}

// ObjectInserter is satisfied by gitstore.Inserter.
type ObjectInserter interface {
	Has(id plumbing.Hash) bool
	Insert(o gitstore.Encoder) (plumbing.Hash, error)
	InsertBlob(content []byte) (plumbing.Hash, error)
	Copy(obj plumbing.EncodedObject) (plumbing.Hash, error)
}

/*
Task is one conversion, created on demand by Converter.Task.

Dependencies lists the keys whose results Convert will ask the resolver
for.  Convert writes at most one new object into the destination and
returns the id that replaces the task's source object.
*/
type Task interface {
	Dependencies() ([]TaskKey, error)
	Convert(ctx context.Context, w ObjectInserter, r Resolver) (plumbing.Hash, error)
}
