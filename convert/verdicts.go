package convert

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

const verdictCacheSize = 1 << 16

/*
Remembers which paths the patterns matched.

A path recurs once for every version of its directory in history, so
most lookups during discovery are repeats.
*/
type verdicts struct {
	match func(path string) bool
	seen  *lru.Cache[string, bool]
}

func newVerdicts(match func(path string) bool, size int) *verdicts {
	seen, err := lru.New[string, bool](size)
	if err != nil {
		panic(err)
	}
	return &verdicts{match, seen}
}

func (v *verdicts) Match(path string) bool {
	if hit, ok := v.seen.Get(path); ok {
		return hit
	}
	hit := v.match(path)
	v.seen.Add(path, hit)
	return hit
}
