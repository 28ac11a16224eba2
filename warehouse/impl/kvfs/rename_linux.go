//go:build linux

package kvfs

import (
	"os"

	"golang.org/x/sys/unix"
)

// Atomic rename that fails with EEXIST rather than replacing the destination.
func renameNoReplace(from, to string) error {
	err := unix.Renameat2(unix.AT_FDCWD, from, unix.AT_FDCWD, to, unix.RENAME_NOREPLACE)
	switch err {
	case nil:
		return nil
	case unix.EINVAL, unix.ENOSYS:
		// Filesystem (or kernel) without renameat2 support.
		return linkRename(from, to)
	default:
		return &os.LinkError{Op: "renameat2", Old: from, New: to, Err: err}
	}
}
