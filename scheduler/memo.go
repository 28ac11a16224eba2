package scheduler

import (
	"sync"

	"github.com/go-git/go-git/v5/plumbing"
	. "github.com/warpfork/go-errcat"

	"github.com/polydawn/lfsmigrate"
	"github.com/polydawn/lfsmigrate/convert"
)

const memoShards = 64

/*
Memo maps each converted TaskKey to its result.  It's append-only and
safe for concurrent use; writers contend only within a shard.

Memo is a convert.Resolver.
*/
type Memo struct {
	shards [memoShards]memoShard
}

type memoShard struct {
	mu sync.RWMutex
	m  map[convert.TaskKey]plumbing.Hash
}

func NewMemo() *Memo {
	memo := &Memo{}
	for i := range memo.shards {
		memo.shards[i].m = map[convert.TaskKey]plumbing.Hash{}
	}
	return memo
}

func (memo *Memo) shard(key convert.TaskKey) *memoShard {
	return &memo.shards[int(key.ID[0]^key.ID[1])%memoShards]
}

// Put records a result.  Recording the same key twice is an invariant violation.
func (memo *Memo) Put(key convert.TaskKey, id plumbing.Hash) error {
	s := memo.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.m[key]; ok {
		return ErrorDetailed(lfsmigrate.ErrInvariant, "task converted twice",
			map[string]string{"task": key.String(), "first": prev.String(), "second": id.String()})
	}
	s.m[key] = id
	return nil
}

func (memo *Memo) Get(key convert.TaskKey) (plumbing.Hash, bool) {
	s := memo.shard(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.m[key]
	return id, ok
}

func (memo *Memo) Resolve(key convert.TaskKey) (plumbing.Hash, error) {
	id, ok := memo.Get(key)
	if !ok {
		return plumbing.ZeroHash, ErrorDetailed(lfsmigrate.ErrInvariant, "dependency not converted",
			map[string]string{"task": key.String()})
	}
	return id, nil
}

func (memo *Memo) Len() int {
	n := 0
	for i := range memo.shards {
		s := &memo.shards[i]
		s.mu.RLock()
		n += len(s.m)
		s.mu.RUnlock()
	}
	return n
}
