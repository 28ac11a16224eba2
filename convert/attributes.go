package convert

import (
	"bytes"
	"context"
	"slices"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/polydawn/lfsmigrate/gitstore"
)

// AttributeLine is the .gitattributes declaration sending glob to LFS.
func AttributeLine(glob string) string {
	return glob + "\tfilter=lfs diff=lfs merge=lfs -text"
}

/*
MergeAttributes appends the LFS declaration for each glob to existing
.gitattributes content.

Every existing line is kept, in order, and newline terminated.
Declarations already present (ignoring a trailing CR) aren't repeated;
the missing ones follow, sorted.
*/
func MergeAttributes(existing []byte, globs []string) []byte {
	wanted := make(map[string]struct{}, len(globs))
	for _, glob := range globs {
		wanted[AttributeLine(glob)] = struct{}{}
	}
	var buf bytes.Buffer
	if len(existing) > 0 {
		for _, line := range strings.Split(strings.TrimSuffix(string(existing), "\n"), "\n") {
			delete(wanted, strings.TrimSuffix(line, "\r"))
			buf.WriteString(line)
			buf.WriteByte('\n')
		}
	}
	missing := make([]string, 0, len(wanted))
	for line := range wanted {
		missing = append(missing, line)
	}
	slices.Sort(missing)
	for _, line := range missing {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// Source is nil for the virtual root .gitattributes.
type attributesTask struct {
	globs []string
	obj   plumbing.EncodedObject
}

func (t attributesTask) Dependencies() ([]TaskKey, error) { return nil, nil }

func (t attributesTask) Convert(_ context.Context, w ObjectInserter, _ Resolver) (plumbing.Hash, error) {
	var existing []byte
	if t.obj != nil {
		var err error
		existing, err = gitstore.ReadAll(t.obj)
		if err != nil {
			return plumbing.ZeroHash, err
		}
	}
	merged := MergeAttributes(existing, t.globs)
	if t.obj != nil && bytes.Equal(merged, existing) {
		return w.Copy(t.obj)
	}
	return w.InsertBlob(merged)
}
