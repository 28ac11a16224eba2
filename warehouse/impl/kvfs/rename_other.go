//go:build !linux

package kvfs

func renameNoReplace(from, to string) error {
	return linkRename(from, to)
}
