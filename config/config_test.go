package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/warpfork/go-errcat"

	"github.com/polydawn/lfsmigrate"
	"github.com/polydawn/lfsmigrate/testutil"
)

func TestConfig(t *testing.T) {
	Convey("Environment paths:", t, func() {
		t.Setenv("LFSMIGRATE_BASE", "/srv/lfsmigrate")
		t.Setenv("LFSMIGRATE_CACHE", "")
		So(GetBasePath(), ShouldEqual, "/srv/lfsmigrate")
		So(GetCachePath(), ShouldEqual, "/srv/lfsmigrate/hashcache.db")

		t.Setenv("LFSMIGRATE_CACHE", "/tmp/elsewhere.db")
		So(GetCachePath(), ShouldEqual, "/tmp/elsewhere.db")
	})
	Convey("Config files:", t, testutil.WithTmpdir(func(tmpDir string) {
		path := filepath.Join(tmpDir, "lfsmigrate.toml")
		t.Setenv("LFSMIGRATE_CACHE", "/tmp/env.db")
		t.Setenv("LFSMIGRATE_LFS_TOKEN", "from-env")

		Convey("a full file loads", func() {
			os.WriteFile(path, []byte(`
patterns = ["*.bin", "/assets/"]
threads = 3

[lfs]
url = "https://git.example.com/repo.git/info/lfs"
retries = 5

[s3]
endpoint = "localhost:9000"
bucket = "lfs"
use_ssl = true
`), 0644)
			f, err := Load(path)
			So(err, ShouldBeNil)
			f.Defaults()
			So(f.Patterns, ShouldResemble, []string{"*.bin", "/assets/"})
			So(f.Threads, ShouldEqual, 3)
			So(f.Cache, ShouldEqual, "/tmp/env.db")
			So(f.LFS.URL, ShouldEqual, "https://git.example.com/repo.git/info/lfs")
			So(f.LFS.Token, ShouldEqual, "from-env")
			So(f.LFS.Retries, ShouldEqual, 5)
			So(f.LFS.Workers, ShouldEqual, DefaultWorkers)
			So(f.S3.Bucket, ShouldEqual, "lfs")
			So(f.S3.UseSSL, ShouldBeTrue)
		})
		Convey("an empty file gets defaults", func() {
			os.WriteFile(path, nil, 0644)
			f, err := Load(path)
			So(err, ShouldBeNil)
			f.Defaults()
			So(f.Threads, ShouldEqual, runtime.NumCPU())
			So(f.LFS.Retries, ShouldEqual, DefaultRetries)
			So(f.S3, ShouldBeNil)
		})
		Convey("unknown keys are rejected", func() {
			os.WriteFile(path, []byte("treads = 3\n"), 0644)
			_, err := Load(path)
			So(errcat.Category(err), ShouldEqual, lfsmigrate.ErrUsage)
		})
		Convey("a missing file is a usage error", func() {
			_, err := Load(filepath.Join(tmpDir, "nope.toml"))
			So(errcat.Category(err), ShouldEqual, lfsmigrate.ErrUsage)
		})
	}))
}
