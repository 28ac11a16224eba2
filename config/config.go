/*
Helpers for loading contextual config.

Config for lfsmigrate means "things that are the operator's concerns
rather than properties of one particular migration": where caches live,
which LFS server or bucket receives content, and credentials for them.
These come from the environment and an optional TOML file; flags on
the command line override both.
*/
package config

import (
	"os"
	"path/filepath"
)

/*
Return the home-base path prefix that is the default root for all other
lfsmigrate paths.

The default value is `"$HOME/.cache/lfsmigrate"`;
this can be overriden by the `LFSMIGRATE_BASE` environment variable.
*/
func GetBasePath() string {
	pth := os.Getenv("LFSMIGRATE_BASE")
	if pth == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = os.TempDir()
		}
		pth = filepath.Join(home, ".cache", "lfsmigrate")
	}
	return mustAbs(pth)
}

/*
Return the path of the content hash cache shared between runs.

The default value is `"$LFSMIGRATE_BASE/hashcache.db"`;
this can be overriden by the `LFSMIGRATE_CACHE` environment variable.
*/
func GetCachePath() string {
	pth := os.Getenv("LFSMIGRATE_CACHE")
	if pth == "" {
		return filepath.Join(GetBasePath(), "hashcache.db")
	}
	return mustAbs(pth)
}

// Return the bearer token for the LFS server, from `LFSMIGRATE_LFS_TOKEN`.
func GetLfsToken() string {
	return os.Getenv("LFSMIGRATE_LFS_TOKEN")
}

func mustAbs(pth string) string {
	pth, err := filepath.Abs(pth)
	if err != nil {
		panic(err)
	}
	return pth
}
