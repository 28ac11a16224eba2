package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/polydawn/lfsmigrate"
	"github.com/polydawn/lfsmigrate/pointer"
	"github.com/polydawn/lfsmigrate/testutil"
)

func run(args ...string) (lfsmigrate.ExitCode, string, string) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	stdin := &bytes.Buffer{}
	exitCode := Main(context.Background(), append([]string{"lfsmigrate"}, args...), stdin, stdout, stderr)
	return exitCode, stdout.String(), stderr.String()
}

func TestWithoutArgs(t *testing.T) {
	Convey("lfsmigrate: usage printed to stderr", t, func() {
		args := []string{"lfsmigrate"}
		stdout := &bytes.Buffer{}
		stderr := &bytes.Buffer{}
		stdin := &bytes.Buffer{}
		ctx := context.Background()
		exitCode := Main(ctx, args, stdin, stdout, stderr)
		t.Log(string(stdout.Bytes()))
		t.Log(string(stderr.Bytes()))
		So(string(stdout.Bytes()), ShouldBeBlank)
		So(string(stderr.Bytes()), ShouldNotBeBlank)
		firstLine, err := stderr.ReadString('\n')
		So(err, ShouldBeNil)
		So(string(firstLine), ShouldContainSubstring, "usage: lfsmigrate [<flags>] <command> [<args> ...]")
		So(exitCode, ShouldEqual, lfsmigrate.ExitUsage)
	})
}

func TestCheckPattern(t *testing.T) {
	Convey("check-pattern reports each path", t, func() {
		exitCode, stdout, _ := run("check-pattern", "docs/*.pdf", "docs/a.pdf", "docs/sub/b.pdf", "a.pdf")
		So(exitCode, ShouldEqual, lfsmigrate.ExitSuccess)
		So(stdout, ShouldEqual, "match\tdocs/a.pdf\n-\tdocs/sub/b.pdf\n-\ta.pdf\n")
	})
	Convey("a broken pattern is reported with its own exit code", t, func() {
		exitCode, stdout, stderr := run("check-pattern", "foo[ab", "foo")
		So(exitCode, ShouldEqual, lfsmigrate.ExitPattern)
		So(stdout, ShouldBeBlank)
		So(stderr, ShouldNotBeBlank)
	})
}

func TestPointer(t *testing.T) {
	Convey("pointer inspects files", t, testutil.WithTmpdir(func(tmpDir string) {
		oid := strings.Repeat("ab", 32)
		ptrPath := filepath.Join(tmpDir, "ptr")
		So(os.WriteFile(ptrPath, pointer.Encode(oid, 2048), 0644), ShouldBeNil)
		plainPath := filepath.Join(tmpDir, "plain")
		So(os.WriteFile(plainPath, []byte("hello\n"), 0644), ShouldBeNil)

		Convey("a pointer file shows its oid and size", func() {
			exitCode, stdout, _ := run("pointer", ptrPath)
			So(exitCode, ShouldEqual, lfsmigrate.ExitSuccess)
			So(stdout, ShouldEqual, "pointer: sha256 "+oid+", 2.0 KiB\n")
		})
		Convey("any other file is not a pointer", func() {
			exitCode, stdout, _ := run("pointer", plainPath)
			So(exitCode, ShouldEqual, lfsmigrate.ExitSuccess)
			So(stdout, ShouldEqual, "not a pointer\n")
		})
		Convey("a missing file is a usage error", func() {
			exitCode, _, _ := run("pointer", filepath.Join(tmpDir, "nope"))
			So(exitCode, ShouldEqual, lfsmigrate.ExitUsage)
		})
	}))
}

func TestMigrateCommand(t *testing.T) {
	Convey("lfsmigrate migrate", t, testutil.WithTmpdir(func(tmpDir string) {
		srcPath := filepath.Join(tmpDir, "src")
		repo, err := git.PlainInit(srcPath, false)
		So(err, ShouldBeNil)
		fx := testutil.NewRepoBuilder(repo.Storer)
		root := fx.Tree(testutil.File("big.bin", fx.Blob("big content\n")))
		commit := fx.Commit("init\n", root)
		So(repo.Storer.SetReference(plumbing.NewHashReference("refs/heads/master", commit)), ShouldBeNil)
		destPath := filepath.Join(tmpDir, "dest.git")
		cachePath := filepath.Join(tmpDir, "cache.db")

		Convey("in dumb format prints ref updates and a summary", func() {
			exitCode, stdout, stderr := run("migrate", "--source", srcPath, "--destination", destPath, "--cache", cachePath, "*.bin")
			t.Log(stderr)
			So(exitCode, ShouldEqual, lfsmigrate.ExitSuccess)
			So(stdout, ShouldContainSubstring, "refs/heads/master\t"+commit.String()+" -> ")
			So(stdout, ShouldContainSubstring, "converted ")
			So(stderr, ShouldContainSubstring, "[info] moving matching files to LFS patterns=*.bin")
		})
		Convey("in json format emits events and a result", func() {
			exitCode, stdout, _ := run("--format", "json", "migrate", "--source", srcPath, "--destination", destPath, "--cache", cachePath, "*.bin")
			So(exitCode, ShouldEqual, lfsmigrate.ExitSuccess)
			lines := strings.Split(strings.TrimSpace(stdout), "\n")
			So(len(lines), ShouldBeGreaterThan, 1)
			So(lines[len(lines)-1], ShouldStartWith, `{"result":`)
			So(lines[len(lines)-1], ShouldContainSubstring, `"refs/heads/master"`)
		})
		Convey("patterns may come from a config file", func() {
			cfgPath := filepath.Join(tmpDir, "lfsmigrate.toml")
			So(os.WriteFile(cfgPath, []byte("patterns = [\"*.bin\"]\nthreads = 2\n"), 0644), ShouldBeNil)
			exitCode, _, stderr := run("--config", cfgPath, "migrate", "--source", srcPath, "--destination", destPath, "--cache", cachePath)
			t.Log(stderr)
			So(exitCode, ShouldEqual, lfsmigrate.ExitSuccess)
		})
		Convey("without any patterns it refuses to run", func() {
			exitCode, _, stderr := run("migrate", "--source", srcPath, "--destination", destPath)
			So(exitCode, ShouldEqual, lfsmigrate.ExitUsage)
			So(stderr, ShouldContainSubstring, "no patterns")
			_, err := os.Stat(destPath)
			So(os.IsNotExist(err), ShouldBeTrue)
		})
		Convey("a missing required flag is a usage error", func() {
			exitCode, _, _ := run("migrate", "--source", srcPath, "*.bin")
			So(exitCode, ShouldEqual, lfsmigrate.ExitUsage)
		})
	}))
}
