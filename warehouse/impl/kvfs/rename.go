package kvfs

import (
	"os"
)

/*
Hardlink into place, then drop the temp name.

link(2) refuses an existing destination, which gives the same
no-replace guarantee as renameat2 where that isn't available.
*/
func linkRename(from, to string) error {
	if err := os.Link(from, to); err != nil {
		return err
	}
	return os.Remove(from)
}
