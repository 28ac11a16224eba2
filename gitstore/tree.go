package gitstore

import (
	"slices"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	. "github.com/warpfork/go-errcat"

	"github.com/polydawn/lfsmigrate"
)

/*
SortEntries puts tree entries in git's canonical order:
bytewise by name, where a subtree's name sorts as if it had a trailing slash.
*/
func SortEntries(entries []object.TreeEntry) {
	slices.SortStableFunc(entries, func(a, b object.TreeEntry) int {
		return strings.Compare(sortName(a), sortName(b))
	})
}

func sortName(e object.TreeEntry) string {
	if e.Mode == filemode.Dir {
		return e.Name + "/"
	}
	return e.Name
}

/*
ValidateTree checks a tree we're about to write for anything `git fsck`
would reject: bad names, duplicates, misordering, unknown modes, and
entries pointing at the zero hash.

Errors are of category `lfsmigrate.ErrInvariant`.
*/
func ValidateTree(entries []object.TreeEntry) error {
	seen := make(map[string]struct{}, len(entries))
	for i, e := range entries {
		switch {
		case e.Name == "":
			return treeError("empty entry name", e)
		case strings.ContainsAny(e.Name, "/\x00"):
			return treeError("illegal character in entry name", e)
		case e.Name == "." || e.Name == "..":
			return treeError("relative entry name", e)
		case strings.EqualFold(e.Name, ".git"):
			return treeError("reserved entry name", e)
		case e.Hash == plumbing.ZeroHash:
			return treeError("entry has zero hash", e)
		}
		switch e.Mode {
		case filemode.Dir, filemode.Regular, filemode.Deprecated, filemode.Executable, filemode.Symlink, filemode.Submodule:
		default:
			return treeError("unknown entry mode", e)
		}
		if _, dup := seen[e.Name]; dup {
			return treeError("duplicate entry name", e)
		}
		seen[e.Name] = struct{}{}
		if i > 0 && sortName(entries[i-1]) >= sortName(e) {
			return treeError("entries out of order", e)
		}
	}
	return nil
}

func treeError(msg string, e object.TreeEntry) error {
	return ErrorDetailed(lfsmigrate.ErrInvariant, "invalid tree: "+msg,
		map[string]string{"name": e.Name, "mode": e.Mode.String(), "object": e.Hash.String()})
}
