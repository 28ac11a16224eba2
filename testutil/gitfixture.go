package testutil

import (
	"sort"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

var Signature = object.Signature{
	Name:  "A U Thor",
	Email: "author@example.com",
	When:  time.Date(2017, 7, 14, 2, 40, 0, 0, time.UTC),
}

/*
RepoBuilder writes fixture objects straight into a go-git object store.
Every method panics on error; it's only for setting up tests.
*/
type RepoBuilder struct {
	s storer.EncodedObjectStorer
}

func NewRepoBuilder(s storer.EncodedObjectStorer) RepoBuilder {
	return RepoBuilder{s}
}

func (b RepoBuilder) Blob(content string) plumbing.Hash {
	return b.encode(func(obj plumbing.EncodedObject) {
		obj.SetType(plumbing.BlobObject)
		w, err := obj.Writer()
		if err != nil {
			panic(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			panic(err)
		}
		if err := w.Close(); err != nil {
			panic(err)
		}
	})
}

func File(name string, id plumbing.Hash) object.TreeEntry {
	return object.TreeEntry{Name: name, Mode: filemode.Regular, Hash: id}
}

func Dir(name string, id plumbing.Hash) object.TreeEntry {
	return object.TreeEntry{Name: name, Mode: filemode.Dir, Hash: id}
}

// Tree writes the entries in git order, whatever order they're given in.
func (b RepoBuilder) Tree(entries ...object.TreeEntry) plumbing.Hash {
	sortKey := func(e object.TreeEntry) string {
		if e.Mode == filemode.Dir {
			return e.Name + "/"
		}
		return e.Name
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return sortKey(entries[i]) < sortKey(entries[j])
	})
	return b.insert(&object.Tree{Entries: entries})
}

func (b RepoBuilder) Commit(msg string, tree plumbing.Hash, parents ...plumbing.Hash) plumbing.Hash {
	return b.insert(&object.Commit{
		Author:       Signature,
		Committer:    Signature,
		Message:      msg,
		TreeHash:     tree,
		ParentHashes: parents,
	})
}

func (b RepoBuilder) Tag(name string, target plumbing.Hash, targetType plumbing.ObjectType) plumbing.Hash {
	return b.insert(&object.Tag{
		Name:       name,
		Tagger:     Signature,
		Message:    name + "\n",
		TargetType: targetType,
		Target:     target,
	})
}

func (b RepoBuilder) insert(o interface {
	Encode(plumbing.EncodedObject) error
}) plumbing.Hash {
	return b.encode(func(obj plumbing.EncodedObject) {
		if err := o.Encode(obj); err != nil {
			panic(err)
		}
	})
}

func (b RepoBuilder) encode(fill func(plumbing.EncodedObject)) plumbing.Hash {
	obj := b.s.NewEncodedObject()
	fill(obj)
	id, err := b.s.SetEncodedObject(obj)
	if err != nil {
		panic(err)
	}
	return id
}
