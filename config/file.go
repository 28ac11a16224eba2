package config

import (
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	. "github.com/warpfork/go-errcat"

	"github.com/polydawn/lfsmigrate"
	"github.com/polydawn/lfsmigrate/warehouse/impl/kvs3"
)

const (
	DefaultRetries = 3
	DefaultWorkers = 4
)

/*
File is the optional TOML config file.  Every field may be left out.

	patterns = ["*.bin", "assets/**"]
	threads = 8
	cache = "/var/cache/lfsmigrate.db"

	[lfs]
	url = "https://git.example.com/org/repo.git/info/lfs"
	retries = 5
	workers = 4

	[s3]
	endpoint = "minio.example.com:9000"
	bucket = "lfs"
*/
type File struct {
	Patterns []string     `toml:"patterns"`
	Threads  int          `toml:"threads"`
	Cache    string       `toml:"cache"`
	LFS      LFS          `toml:"lfs"`
	S3       *kvs3.Config `toml:"s3"`
}

type LFS struct {
	URL     string `toml:"url"`
	Token   string `toml:"token"`
	Retries int    `toml:"retries"`
	Workers int    `toml:"workers"`
}

/*
Load reads a config file.  Unknown keys are an error, so typos don't
silently fall back to defaults.

May return errors of category:

  - `lfsmigrate.ErrUsage` -- if the file can't be read or parsed
*/
func Load(path string) (File, error) {
	var f File
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return File{}, ErrorDetailed(lfsmigrate.ErrUsage, "cannot load config: "+err.Error(),
			map[string]string{"path": path})
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return File{}, ErrorDetailed(lfsmigrate.ErrUsage, "unknown keys in config: "+strings.Join(keys, ", "),
			map[string]string{"path": path})
	}
	return f, nil
}

// Defaults fills every unset field from the environment or built-in defaults.
func (f *File) Defaults() {
	if f.Threads < 1 {
		f.Threads = runtime.NumCPU()
	}
	if f.Cache == "" {
		f.Cache = GetCachePath()
	}
	if f.LFS.Token == "" {
		f.LFS.Token = GetLfsToken()
	}
	if f.LFS.Retries < 1 {
		f.LFS.Retries = DefaultRetries
	}
	if f.LFS.Workers < 1 {
		f.LFS.Workers = DefaultWorkers
	}
}
