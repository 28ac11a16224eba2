package gitstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/warpfork/go-errcat"

	"github.com/polydawn/lfsmigrate"
	"github.com/polydawn/lfsmigrate/testutil"
)

const helloBlob = "ce013625030ba8dba906f756967f9e9ca394464a" // "hello\n"

func writeSample(repo *Repository) (blob, tree, commit plumbing.Hash) {
	w := repo.Inserter()
	blob, err := w.InsertBlob([]byte("hello\n"))
	So(err, ShouldBeNil)
	tree, err = w.Insert(&object.Tree{Entries: []object.TreeEntry{
		{Name: "hello.txt", Mode: filemode.Regular, Hash: blob},
	}})
	So(err, ShouldBeNil)
	sig := object.Signature{Name: "A U Thor", Email: "author@example.com", When: time.Unix(1500000000, 0).UTC()}
	commit, err = w.Insert(&object.Commit{Author: sig, Committer: sig, Message: "first\n", TreeHash: tree})
	So(err, ShouldBeNil)
	return
}

func TestObjects(t *testing.T) {
	Convey("In-memory object store:", t, func() {
		repo := NewMemory()
		blob, tree, commit := writeSample(repo)
		r := repo.Reader()

		Convey("blobs hash like git does", func() {
			So(blob.String(), ShouldEqual, helloBlob)
			body, err := r.Blob(blob)
			So(err, ShouldBeNil)
			So(string(body), ShouldEqual, "hello\n")
		})
		Convey("commits and trees decode", func() {
			c, err := r.Commit(commit)
			So(err, ShouldBeNil)
			So(c.TreeHash, ShouldEqual, tree)
			So(c.Message, ShouldEqual, "first\n")
			tr, err := r.Tree(c.TreeHash)
			So(err, ShouldBeNil)
			So(tr.Entries, ShouldHaveLength, 1)
			So(tr.Entries[0].Hash, ShouldEqual, blob)
		})
		Convey("missing objects are categorized", func() {
			_, err := r.Object(plumbing.NewHash("0123456789012345678901234567890123456789"))
			So(errcat.Category(err), ShouldEqual, lfsmigrate.ErrMissingObject)
		})
		Convey("asking for the wrong type is corruption", func() {
			_, err := r.Tree(blob)
			So(errcat.Category(err), ShouldEqual, lfsmigrate.ErrRepoCorrupt)
		})
		Convey("copying into another store keeps the hash", func() {
			dst := NewMemory()
			obj, err := r.Object(commit)
			So(err, ShouldBeNil)
			id, err := dst.Inserter().Copy(obj)
			So(err, ShouldBeNil)
			So(id, ShouldEqual, commit)
			So(dst.Reader().Has(commit), ShouldBeTrue)
			So(dst.Reader().Has(tree), ShouldBeFalse)
		})
	})
}

func TestOnDisk(t *testing.T) {
	Convey("On-disk repositories:", t, testutil.WithTmpdir(func(tmpDir string) {
		path := filepath.Join(tmpDir, "dest.git")
		repo, err := CreateDestination(path)
		So(err, ShouldBeNil)
		_, _, commit := writeSample(repo)

		Convey("sessions see each other's writes", func() {
			s := repo.Session()
			So(s.Reader().Has(commit), ShouldBeTrue)
			id, err := s.Inserter().InsertBlob([]byte("more\n"))
			So(err, ShouldBeNil)
			So(repo.Session().Reader().Has(id), ShouldBeTrue)
		})
		Convey("references round trip through reopening", func() {
			So(repo.SetReference(plumbing.NewHashReference("refs/heads/main", commit)), ShouldBeNil)
			So(repo.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, "refs/heads/main")), ShouldBeNil)

			reopened, err := OpenSource(path)
			So(err, ShouldBeNil)
			refs, err := reopened.References()
			So(err, ShouldBeNil)
			byName := map[plumbing.ReferenceName]*plumbing.Reference{}
			for _, ref := range refs {
				byName[ref.Name()] = ref
			}
			So(byName["refs/heads/main"].Hash(), ShouldEqual, commit)
			head, err := reopened.Reference(plumbing.HEAD)
			So(err, ShouldBeNil)
			So(head.Type(), ShouldEqual, plumbing.SymbolicReference)
			So(head.Target(), ShouldEqual, plumbing.ReferenceName("refs/heads/main"))
		})
		Convey("creating again starts from empty", func() {
			again, err := CreateDestination(path)
			So(err, ShouldBeNil)
			So(again.Reader().Has(commit), ShouldBeFalse)
		})
		Convey("opening a non-repository is a usage error", func() {
			_, err := OpenSource(filepath.Join(tmpDir, "nope"))
			So(errcat.Category(err), ShouldEqual, lfsmigrate.ErrUsage)
		})
	}))
}

func TestTrees(t *testing.T) {
	h := plumbing.NewHash(helloBlob)
	Convey("Tree entry order:", t, func() {
		entries := []object.TreeEntry{
			{Name: "foo.txt", Mode: filemode.Regular, Hash: h},
			{Name: "foo", Mode: filemode.Dir, Hash: h},
			{Name: "foo-bar", Mode: filemode.Regular, Hash: h},
			{Name: "Foo", Mode: filemode.Regular, Hash: h},
		}
		SortEntries(entries)
		var names []string
		for _, e := range entries {
			names = append(names, e.Name)
		}
		// "foo/" sorts after "foo-bar" and "foo.txt" because '/' > '-' and '.'.
		So(names, ShouldResemble, []string{"Foo", "foo-bar", "foo.txt", "foo"})
		So(ValidateTree(entries), ShouldBeNil)
	})
	Convey("Tree validation:", t, func() {
		for _, tr := range []struct {
			title   string
			entries []object.TreeEntry
		}{
			{"empty name", []object.TreeEntry{{Name: "", Mode: filemode.Regular, Hash: h}}},
			{"slash in name", []object.TreeEntry{{Name: "a/b", Mode: filemode.Regular, Hash: h}}},
			{"dot-dot", []object.TreeEntry{{Name: "..", Mode: filemode.Dir, Hash: h}}},
			{"dot-git", []object.TreeEntry{{Name: ".GIT", Mode: filemode.Dir, Hash: h}}},
			{"zero hash", []object.TreeEntry{{Name: "a", Mode: filemode.Regular}}},
			{"bad mode", []object.TreeEntry{{Name: "a", Mode: filemode.FileMode(0100600), Hash: h}}},
			{"duplicate", []object.TreeEntry{
				{Name: "a", Mode: filemode.Regular, Hash: h},
				{Name: "a", Mode: filemode.Dir, Hash: h},
			}},
			{"unsorted", []object.TreeEntry{
				{Name: "b", Mode: filemode.Regular, Hash: h},
				{Name: "a", Mode: filemode.Regular, Hash: h},
			}},
		} {
			Convey("rejects "+tr.title, func() {
				So(errcat.Category(ValidateTree(tr.entries)), ShouldEqual, lfsmigrate.ErrInvariant)
			})
		}
	})
}
