/*
Access to the source and destination git object stores.

Everything here is a thin layer over go-git storage: it adds error
categories, a fresh-destination policy, and per-worker sessions
(go-git's filesystem storage is not safe for concurrent use, so each
worker opens its own view of the same directory).
*/
package gitstore

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/go-git/go-billy/v5/osfs"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/storage"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/go-git/go-git/v5/storage/memory"
	. "github.com/warpfork/go-errcat"

	"github.com/polydawn/lfsmigrate"
)

/*
Repository is one object store plus its references.

On disk, `gitDir` is the directory holding objects/ and refs/ (the .git
dir, or the repo itself when bare).  In memory, gitDir is empty and all
object access goes through a mutex.
*/
type Repository struct {
	gitDir  string
	storage storage.Storer
	objects storer.EncodedObjectStorer
}

/*
OpenSource opens an existing repository, bare or not.
A path inside a working tree finds the enclosing repository.

May return errors of category:

  - `lfsmigrate.ErrUsage` -- if there is no repository at path
*/
func OpenSource(path string) (*Repository, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, ErrorDetailed(lfsmigrate.ErrUsage, "cannot open source repository: "+err.Error(),
			map[string]string{"path": path})
	}
	fsStorage, ok := repo.Storer.(*filesystem.Storage)
	if !ok {
		panic("plain-opened repository without filesystem storage")
	}
	return &Repository{
		gitDir:  fsStorage.Filesystem().Root(),
		storage: fsStorage,
		objects: fsStorage,
	}, nil
}

/*
CreateDestination makes a fresh bare repository at path.
Anything already at path is removed first: a previous failed run must
never be silently continued.

May return errors of category:

  - `lfsmigrate.ErrLocalIO` -- if the directory can't be cleared or initialized
*/
func CreateDestination(path string) (*Repository, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, Errorf(lfsmigrate.ErrLocalIO, "invalid destination path: %s", err)
	}
	if err := os.RemoveAll(absPath); err != nil {
		return nil, Errorf(lfsmigrate.ErrLocalIO, "cannot clear destination: %s", err)
	}
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, Errorf(lfsmigrate.ErrLocalIO, "cannot create destination: %s", err)
	}
	st := openStorage(absPath)
	if _, err := git.Init(st, nil); err != nil {
		return nil, Errorf(lfsmigrate.ErrLocalIO, "cannot initialize destination repository: %s", err)
	}
	return &Repository{gitDir: absPath, storage: st, objects: st}, nil
}

// NewMemory returns an empty in-memory repository.  Used by tests.
func NewMemory() *Repository {
	return Wrap(memory.NewStorage())
}

/*
Wrap uses an already open go-git storage.  Object access is serialized,
and Session returns the same repository.
*/
func Wrap(st storage.Storer) *Repository {
	return &Repository{storage: st, objects: &lockedStorer{s: st}}
}

func openStorage(gitDir string) *filesystem.Storage {
	return filesystem.NewStorage(osfs.New(gitDir), cache.NewObjectLRUDefault())
}

// GitDir returns the directory holding the object store ("" for in-memory repositories).
func (r *Repository) GitDir() string {
	return r.gitDir
}

/*
Session returns a view of the same repository that is safe to use from
one goroutine while other sessions are used from others.
*/
func (r *Repository) Session() *Repository {
	if r.gitDir == "" {
		return r
	}
	st := openStorage(r.gitDir)
	return &Repository{gitDir: r.gitDir, storage: st, objects: st}
}

func (r *Repository) Reader() Reader {
	return Reader{r.objects}
}

func (r *Repository) Inserter() Inserter {
	return Inserter{r.objects}
}

/*
References lists every reference, including HEAD.
*/
func (r *Repository) References() ([]*plumbing.Reference, error) {
	iter, err := r.storage.IterReferences()
	if err != nil {
		return nil, Errorf(lfsmigrate.ErrRepoCorrupt, "cannot list references: %s", err)
	}
	var refs []*plumbing.Reference
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		refs = append(refs, ref)
		return nil
	})
	if err != nil {
		return nil, Errorf(lfsmigrate.ErrRepoCorrupt, "cannot list references: %s", err)
	}
	return refs, nil
}

func (r *Repository) Reference(name plumbing.ReferenceName) (*plumbing.Reference, error) {
	ref, err := r.storage.Reference(name)
	if err != nil {
		return nil, ErrorDetailed(lfsmigrate.ErrRepoCorrupt, "cannot read reference: "+err.Error(),
			map[string]string{"ref": name.String()})
	}
	return ref, nil
}

func (r *Repository) SetReference(ref *plumbing.Reference) error {
	if err := r.storage.SetReference(ref); err != nil {
		return ErrorDetailed(lfsmigrate.ErrLocalIO, "cannot write reference: "+err.Error(),
			map[string]string{"ref": ref.Name().String()})
	}
	return nil
}

// Serializes access to an object store that has no locking of its own.
type lockedStorer struct {
	mu sync.Mutex
	s  storer.EncodedObjectStorer
}

func (l *lockedStorer) NewEncodedObject() plumbing.EncodedObject {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.s.NewEncodedObject()
}

func (l *lockedStorer) SetEncodedObject(o plumbing.EncodedObject) (plumbing.Hash, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.s.SetEncodedObject(o)
}

func (l *lockedStorer) EncodedObject(t plumbing.ObjectType, h plumbing.Hash) (plumbing.EncodedObject, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.s.EncodedObject(t, h)
}

func (l *lockedStorer) IterEncodedObjects(t plumbing.ObjectType) (storer.EncodedObjectIter, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.s.IterEncodedObjects(t)
}

func (l *lockedStorer) HasEncodedObject(h plumbing.Hash) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.s.HasEncodedObject(h)
}

func (l *lockedStorer) EncodedObjectSize(h plumbing.Hash) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.s.EncodedObjectSize(h)
}

func (l *lockedStorer) AddAlternate(remote string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.s.AddAlternate(remote)
}
