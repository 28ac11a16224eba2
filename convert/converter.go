/*
Per-object conversion policy.

The Converter turns a TaskKey into a Task: a small value that knows which
other tasks it depends on and how to produce its rewritten object once
their results are known.  It never schedules anything itself; see the
scheduler package for that.
*/
package convert

import (
	"context"
	"io"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	. "github.com/warpfork/go-errcat"

	"github.com/polydawn/lfsmigrate"
	"github.com/polydawn/lfsmigrate/gitstore"
	"github.com/polydawn/lfsmigrate/pathmatch"
)

const GitAttributes = ".gitattributes"

// Extractor is satisfied by *contentstore.Store.
type Extractor interface {
	Extract(ctx context.Context, blobID plumbing.Hash, size int64, open func() (io.ReadCloser, error)) (ptr []byte, ok bool, err error)
}

type Converter struct {
	verdicts *verdicts
	globs    []string
	store    Extractor
}

/*
New compiles the patterns.  The store may be nil only if there are
no patterns.

May return errors of category:

  - `lfsmigrate.ErrPattern` -- if any pattern doesn't compile
*/
func New(patterns []string, store Extractor) (*Converter, error) {
	m, err := pathmatch.NewMatcher(patterns, true)
	if err != nil {
		return nil, err
	}
	if len(patterns) > 0 && store == nil {
		panic("converter with patterns needs a content store")
	}
	return &Converter{
		verdicts: newVerdicts(m.Match, verdictCacheSize),
		globs:    m.Patterns(),
		store:    store,
	}, nil
}

func (c *Converter) Patterns() []string {
	return c.globs
}

/*
Task builds the task for key, reading the source object if it has to.

A source object that isn't there becomes a keep-missing task: partial
and shallow repositories convert without complaint.

May return errors of category:

  - `lfsmigrate.ErrRepoCorrupt` -- if the source object can't be read
*/
func (c *Converter) Task(r ObjectReader, key TaskKey) (_ Task, err error) {
	defer RequireErrorHasCategory(&err, lfsmigrate.ErrorCategory(""))
	if key.Type == Attribute && key.ID == plumbing.ZeroHash {
		return attributesTask{c.globs, nil}, nil
	}
	obj, err := r.Object(key.ID)
	switch {
	case err == nil:
	case Category(err) == lfsmigrate.ErrMissingObject:
		return keepMissingTask{key.ID}, nil
	default:
		return nil, err
	}
	switch key.Type {
	case Simple:
		switch obj.Type() {
		case plumbing.CommitObject:
			if key.Path != "" {
				// A gitlink: the commit belongs to some other repository's history.
				return keepMissingTask{key.ID}, nil
			}
			commit, err := gitstore.DecodeCommit(obj)
			if err != nil {
				return nil, err
			}
			return commitTask{obj, commit}, nil
		case plumbing.TreeObject:
			tree, err := gitstore.DecodeTree(obj)
			if err != nil {
				return nil, err
			}
			path := key.Path
			if path == "" {
				path = "/"
			}
			return treeTask{c, obj, tree, path}, nil
		case plumbing.BlobObject:
			return copyTask{obj}, nil
		case plumbing.TagObject:
			tag, err := gitstore.DecodeTag(obj)
			if err != nil {
				return nil, err
			}
			return tagTask{obj, tag}, nil
		}
	case Attribute:
		if obj.Type() == plumbing.BlobObject {
			return attributesTask{c.globs, obj}, nil
		}
	case UploadLfs:
		if obj.Type() == plumbing.BlobObject {
			return lfsTask{c.store, obj}, nil
		}
	default:
		return nil, ErrorDetailed(lfsmigrate.ErrInvariant, "unknown task type",
			map[string]string{"task": key.String()})
	}
	return nil, ErrorDetailed(lfsmigrate.ErrRepoCorrupt, "unexpected object type",
		map[string]string{"task": key.String(), "type": obj.Type().String()})
}

// Source object is absent: the id passes through untouched.
type keepMissingTask struct {
	id plumbing.Hash
}

func (t keepMissingTask) Dependencies() ([]TaskKey, error) { return nil, nil }

func (t keepMissingTask) Convert(context.Context, ObjectInserter, Resolver) (plumbing.Hash, error) {
	return t.id, nil
}

// Byte for byte copy, id preserved.
type copyTask struct {
	obj plumbing.EncodedObject
}

func (t copyTask) Dependencies() ([]TaskKey, error) { return nil, nil }

func (t copyTask) Convert(_ context.Context, w ObjectInserter, _ Resolver) (plumbing.Hash, error) {
	return w.Copy(t.obj)
}

type commitTask struct {
	obj    plumbing.EncodedObject
	commit *object.Commit
}

func (t commitTask) Dependencies() ([]TaskKey, error) {
	deps := make([]TaskKey, 0, len(t.commit.ParentHashes)+1)
	for _, parent := range t.commit.ParentHashes {
		deps = append(deps, NewTaskKey(Simple, "", parent))
	}
	deps = append(deps, NewTaskKey(Simple, "/", t.commit.TreeHash))
	return deps, nil
}

/*
Rebuilds the commit on the converted parents and tree.
Author, committer, encoding, message, and any merge tag are kept;
a signature can't survive the rewrite and is dropped.
*/
func (t commitTask) Convert(_ context.Context, w ObjectInserter, r Resolver) (plumbing.Hash, error) {
	changed := false
	parents := make([]plumbing.Hash, len(t.commit.ParentHashes))
	for i, parent := range t.commit.ParentHashes {
		id, err := r.Resolve(NewTaskKey(Simple, "", parent))
		if err != nil {
			return plumbing.ZeroHash, err
		}
		parents[i] = id
		changed = changed || id != parent
	}
	tree, err := r.Resolve(NewTaskKey(Simple, "/", t.commit.TreeHash))
	if err != nil {
		return plumbing.ZeroHash, err
	}
	changed = changed || tree != t.commit.TreeHash
	if !changed {
		return w.Copy(t.obj)
	}
	return w.Insert(&object.Commit{
		Author:       t.commit.Author,
		Committer:    t.commit.Committer,
		MergeTag:     t.commit.MergeTag,
		Message:      t.commit.Message,
		TreeHash:     tree,
		ParentHashes: parents,
		Encoding:     t.commit.Encoding,
	})
}

type tagTask struct {
	obj plumbing.EncodedObject
	tag *object.Tag
}

func (t tagTask) Dependencies() ([]TaskKey, error) {
	return []TaskKey{NewTaskKey(Simple, "", t.tag.Target)}, nil
}

func (t tagTask) Convert(_ context.Context, w ObjectInserter, r Resolver) (plumbing.Hash, error) {
	target, err := r.Resolve(NewTaskKey(Simple, "", t.tag.Target))
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if target == t.tag.Target {
		return w.Copy(t.obj)
	}
	// Conversion never changes an object's kind, so the target type carries over.
	return w.Insert(&object.Tag{
		Name:       t.tag.Name,
		Tagger:     t.tag.Tagger,
		Message:    t.tag.Message,
		TargetType: t.tag.TargetType,
		Target:     target,
	})
}

type treeTask struct {
	c    *Converter
	obj  plumbing.EncodedObject
	tree *object.Tree
	path string // always ends in '/'
}

type plannedEntry struct {
	object.TreeEntry
	key TaskKey
}

/*
Classifies every entry exactly once: the root .gitattributes file gets
an Attribute task, matching files get UploadLfs, and everything else
recurses as Simple.  When the root has no .gitattributes and there are
patterns, a virtual entry is added whose source is the zero hash.
*/
func (t treeTask) entries() []plannedEntry {
	root := t.path == "/"
	needAttributes := root && len(t.c.globs) > 0
	planned := make([]plannedEntry, 0, len(t.tree.Entries)+1)
	for _, e := range t.tree.Entries {
		var key TaskKey
		switch {
		case root && e.Name == GitAttributes && isFile(e.Mode):
			key = NewTaskKey(Attribute, "", e.Hash)
		case isFile(e.Mode) && t.c.verdicts.Match(t.path+e.Name):
			key = NewTaskKey(UploadLfs, "", e.Hash)
		case e.Mode == filemode.Dir:
			key = NewTaskKey(Simple, t.path+e.Name+"/", e.Hash)
		default:
			key = NewTaskKey(Simple, t.path+e.Name, e.Hash)
		}
		if root && e.Name == GitAttributes {
			needAttributes = false
		}
		planned = append(planned, plannedEntry{e, key})
	}
	if needAttributes {
		planned = append(planned, plannedEntry{
			object.TreeEntry{Name: GitAttributes, Mode: filemode.Regular},
			NewTaskKey(Attribute, "", plumbing.ZeroHash),
		})
	}
	return planned
}

func isFile(mode filemode.FileMode) bool {
	return mode == filemode.Regular || mode == filemode.Executable || mode == filemode.Deprecated
}

func (t treeTask) Dependencies() ([]TaskKey, error) {
	planned := t.entries()
	deps := make([]TaskKey, len(planned))
	for i, p := range planned {
		deps[i] = p.key
	}
	return deps, nil
}

func (t treeTask) Convert(_ context.Context, w ObjectInserter, r Resolver) (plumbing.Hash, error) {
	planned := t.entries()
	changed := len(planned) != len(t.tree.Entries)
	entries := make([]object.TreeEntry, len(planned))
	for i, p := range planned {
		id, err := r.Resolve(p.key)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		entries[i] = object.TreeEntry{Name: p.Name, Mode: p.Mode, Hash: id}
		changed = changed || id != p.Hash
	}
	if !changed {
		return w.Copy(t.obj)
	}
	gitstore.SortEntries(entries)
	if err := gitstore.ValidateTree(entries); err != nil {
		e := err.(Error)
		details := map[string]string{"tree": t.obj.Hash().String(), "path": t.path}
		for k, v := range e.Details() {
			details[k] = v
		}
		return plumbing.ZeroHash, ErrorDetailed(e.Category(), e.Message(), details)
	}
	return w.Insert(&object.Tree{Entries: entries})
}

type lfsTask struct {
	store Extractor
	obj   plumbing.EncodedObject
}

func (t lfsTask) Dependencies() ([]TaskKey, error) { return nil, nil }

func (t lfsTask) Convert(ctx context.Context, w ObjectInserter, _ Resolver) (plumbing.Hash, error) {
	ptr, ok, err := t.store.Extract(ctx, t.obj.Hash(), t.obj.Size(), func() (io.ReadCloser, error) {
		return gitstore.OpenBlob(t.obj)
	})
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if !ok {
		return w.Copy(t.obj)
	}
	return w.InsertBlob(ptr)
}
