package testutil

import (
	"os"

	"github.com/smartystreets/goconvey/convey"
)

/*
Creates a fresh temp dir, hands its path to the given function, and
removes it after.  Returns a func usable as a Convey body.
*/
func WithTmpdir(fn func(tmpDir string)) func() {
	return func() {
		tmpDir, err := os.MkdirTemp("", "lfsmigrate-test-")
		if err != nil {
			panic(err)
		}
		defer os.RemoveAll(tmpDir)
		fn(tmpDir)
	}
}

// Asserts the file exists and returns its content.
func ShouldReadFile(path string) string {
	body, err := os.ReadFile(path)
	convey.So(err, convey.ShouldBeNil)
	return string(body)
}
