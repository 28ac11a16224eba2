/*
Path patterns with gitignore/gitattributes semantics.

A pattern is split into segments (keeping their trailing separators),
normalized into a canonical form, and each segment compiled into a
name matcher.  A set of compiled patterns is then run as one
nondeterministic automaton (see `Matcher`) over the segments of a path.
*/
package pathmatch

import (
	"slices"
	"strings"

	"github.com/warpfork/go-errcat"

	"github.com/polydawn/lfsmigrate"
)

// Pattern is one compiled glob.  Immutable after Compile.
type Pattern struct {
	source   string
	matchers []nameMatcher
}

/*
Compile tokenizes, normalizes, and compiles a single pattern.

Invalid glob syntax (unclosed character classes, a dangling escape)
returns an ErrPattern error.
*/
func Compile(pattern string) (*Pattern, error) {
	tokens := NormalizePattern(SplitPattern(pattern))
	p := &Pattern{source: pattern}
	for _, tok := range tokens[1:] {
		m, err := compileSegment(tok)
		if err != nil {
			return nil, errcat.ErrorDetailed(lfsmigrate.ErrPattern,
				"invalid pattern: "+err.Error(),
				map[string]string{"pattern": pattern, "segment": tok})
		}
		p.matchers = append(p.matchers, m)
	}
	return p, nil
}

func (p *Pattern) String() string {
	return p.source
}

// Segments returns the normalized segment masks, without the leading root marker.
func (p *Pattern) Segments() []string {
	segs := make([]string, len(p.matchers))
	for i, m := range p.matchers {
		segs[i] = m.String()
	}
	return segs
}

// SplitPattern splits on '/' while keeping each separator attached to the
// segment before it:
//
//	"/foo/bar/**" -> ["/", "foo/", "bar/", "**"]
func SplitPattern(pattern string) []string {
	var tokens []string
	start := 0
	for {
		next := strings.IndexByte(pattern[start:], '/')
		if next < 0 {
			if start < len(pattern) {
				tokens = append(tokens, pattern[start:])
			}
			return tokens
		}
		tokens = append(tokens, pattern[start:start+next+1])
		start += next + 1
	}
}

// NormalizePattern rewrites split tokens into canonical form.
//
// The result always starts with the root marker "/".
// A lone name with no separator matches at any depth, so it gets a "**/"
// prefix.  Beyond the first token:
//
//   - empty segments ("/") are dropped;
//   - "**/" "**/" collapses into one "**/";
//   - "**x" becomes "**/" followed by "*x";
//   - "**/" "*/" is reordered to "*/" "**/".
//
// The last two rules keep equivalent patterns from compiling into
// different automata.
func NormalizePattern(tokens []string) []string {
	t := slices.Clone(tokens)
	if len(t) == 1 && !strings.HasPrefix(t[0], "/") {
		t = slices.Insert(t, 0, "**/")
	}
	if len(t) == 0 || t[0] != "/" {
		t = slices.Insert(t, 0, "/")
	}
	for i := 1; i < len(t); {
		this, prev := t[i], t[i-1]
		switch {
		case this == "/":
			t = slices.Delete(t, i, i+1)
		case this == "**/" && prev == "**/":
			t = slices.Delete(t, i, i+1)
		case this != "**/" && strings.HasPrefix(this, "**"):
			t = slices.Insert(t, i, "**/")
			t[i+1] = this[1:]
		case this == "*/" && prev == "**/":
			t[i-1], t[i] = "*/", "**/"
			i--
		default:
			i++
		}
	}
	return t
}
