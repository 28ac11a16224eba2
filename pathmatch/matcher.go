package pathmatch

import (
	"hash/fnv"
	"slices"
	"strconv"
	"strings"
)

/*
Matcher runs a set of patterns as one automaton.

The compiled segment matchers of every pattern are concatenated into one
shared, immutable array; `ends[i]` is the exclusive end of the pattern that
position i belongs to.  A State is a sorted set of active positions in that
array.

In exact mode a path matches when some pattern is satisfied by the final
segment of the path.  In prefix mode, satisfying a pattern at any point
matches the whole subtree below it (the state becomes absorbing).
*/
type Matcher struct {
	patterns []*Pattern
	matchers []nameMatcher
	ends     []int
	starts   []int
	exact    bool
	always   bool
}

func NewMatcher(patterns []string, exact bool) (*Matcher, error) {
	m := &Matcher{exact: exact}
	for _, src := range patterns {
		p, err := Compile(src)
		if err != nil {
			return nil, err
		}
		m.patterns = append(m.patterns, p)
		if len(p.matchers) == 0 {
			// The root pattern: nothing in exact mode, everything in prefix mode.
			if !exact {
				m.always = true
			}
			continue
		}
		start := len(m.matchers)
		end := start + len(p.matchers)
		m.starts = append(m.starts, start)
		for _, nm := range p.matchers {
			m.matchers = append(m.matchers, nm)
			m.ends = append(m.ends, end)
		}
	}
	return m, nil
}

// Patterns returns the source strings, in the order given.
func (m *Matcher) Patterns() []string {
	srcs := make([]string, len(m.patterns))
	for i, p := range m.patterns {
		srcs[i] = p.source
	}
	return srcs
}

// Start returns the initial state, or nil if nothing can ever match.
func (m *Matcher) Start() *State {
	if m.always {
		return &State{m: m, always: true}
	}
	if len(m.starts) == 0 {
		return nil
	}
	return &State{m: m, positions: m.starts}
}

// Match runs a full path through the automaton.
func (m *Matcher) Match(path string) bool {
	return m.Walk(path).IsMatch()
}

/*
Walk steps through every segment of path and returns the final state.

Leading and repeated separators are ignored.  Every segment but the last is
a directory; the last is a directory only when the path ends in '/'.
*/
func (m *Matcher) Walk(path string) *State {
	st := m.Start()
	segs := strings.Split(path, "/")
	trailingDir := strings.HasSuffix(path, "/")
	last := len(segs) - 1
	for last >= 0 && segs[last] == "" {
		last--
	}
	for i := 0; i <= last && st != nil; i++ {
		if segs[i] == "" {
			continue
		}
		st = st.Step(segs[i], i < last || trailingDir)
	}
	return st
}

/*
State is an immutable set of active positions.  A nil *State is the
rejecting state; all methods accept it.
*/
type State struct {
	m         *Matcher
	positions []int
	matched   bool
	always    bool
}

// IsMatch reports whether the path consumed so far matches.
func (s *State) IsMatch() bool {
	return s != nil && (s.always || s.matched)
}

// Step consumes one path segment.  Returns nil when no pattern can match any more.
func (s *State) Step(name string, isDir bool) *State {
	if s == nil {
		return nil
	}
	if s.always {
		return s
	}
	ms := s.m.matchers
	accepts := func(q, end int) bool {
		return q == end || (q == end-1 && ms[q].Recursive() && isDir)
	}
	var next []int
	reached := false
	for _, p := range s.positions {
		end := s.m.ends[p]
		if !ms[p].Match(name, isDir) {
			continue
		}
		if !ms[p].Recursive() {
			q := p + 1
			if accepts(q, end) {
				reached = true
			}
			if q < end {
				next = append(next, q)
			}
			continue
		}
		// A recursive segment may swallow this directory and stay active,
		// or match nothing and hand the name to the following segment.
		if isDir {
			next = append(next, p)
		}
		if p == end-1 {
			if isDir {
				reached = true
			}
			continue
		}
		if ms[p+1].Match(name, isDir) {
			q := p + 2
			if accepts(q, end) {
				reached = true
			}
			if q < end {
				next = append(next, q)
			}
		}
	}
	next = sortedUnique(next)

	if !s.m.exact {
		if reached {
			return &State{m: s.m, always: true}
		}
		if !isDir || len(next) == 0 {
			return nil
		}
		return &State{m: s.m, positions: next}
	}
	if !isDir {
		if reached {
			return &State{m: s.m, matched: true}
		}
		return nil
	}
	if len(next) == 0 && !reached {
		return nil
	}
	return &State{m: s.m, positions: next, matched: reached}
}

/*
Equal compares states by what they can still match, not by where their
positions sit in the matcher array: each active position is described by
its offset from the first active position and the segment masks remaining
in its pattern.
*/
func (s *State) Equal(o *State) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.key() == o.key()
}

func (s *State) Hash() uint64 {
	h := fnv.New64a()
	if s != nil {
		h.Write([]byte(s.key()))
	}
	return h.Sum64()
}

func (s *State) key() string {
	var sb strings.Builder
	switch {
	case s.always:
		return "always"
	case s.matched:
		sb.WriteString("matched")
	}
	for _, p := range s.positions {
		sb.WriteByte(';')
		sb.WriteString(strconv.Itoa(p - s.positions[0]))
		for i := p; i < s.m.ends[p]; i++ {
			sb.WriteByte(' ')
			sb.WriteString(s.m.matchers[i].String())
		}
	}
	return sb.String()
}

func sortedUnique(xs []int) []int {
	slices.Sort(xs)
	return slices.Compact(xs)
}
