package pathmatch

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/warpfork/go-errcat"

	"github.com/polydawn/lfsmigrate"
)

func TestNormalizePattern(t *testing.T) {
	Convey("Pattern normalization suite:", t, func() {
		for _, tr := range []struct {
			pattern string
			expect  []string
		}{
			{"/", []string{}},
			{"*/", []string{"*/", "**/"}},
			{"*", []string{"**/", "*"}},
			{"**", []string{"**/", "*"}},
			{"**/", []string{"**/"}},
			{"foo", []string{"**/", "foo"}},
			{"foo/", []string{"**/", "foo/"}},
			{"/foo", []string{"foo"}},
			{"foo/**.bar", []string{"foo/", "**/", "*.bar"}},
			{"foo/***.bar", []string{"foo/", "**/", "*.bar"}},
			{"foo/*/bar", []string{"foo/", "*/", "bar"}},
			{"foo/**/bar", []string{"foo/", "**/", "bar"}},
			{"foo/*/*/bar", []string{"foo/", "*/", "*/", "bar"}},
			{"foo/**/*/bar", []string{"foo/", "*/", "**/", "bar"}},
			{"foo/*/**/bar", []string{"foo/", "*/", "**/", "bar"}},
			{"foo/*/**.bar", []string{"foo/", "*/", "**/", "*.bar"}},
			{"foo/**/**/bar", []string{"foo/", "**/", "bar"}},
			{"foo/**/**.bar", []string{"foo/", "**/", "*.bar"}},
			{"foo/**/*/**/*/bar", []string{"foo/", "*/", "*/", "**/", "bar"}},
			{"foo/**/*/**/*/**.bar", []string{"foo/", "*/", "*/", "**/", "*.bar"}},
			{"foo/**", []string{"foo/", "**/", "*"}},
			{"foo/**/*", []string{"foo/", "**/", "*"}},
			{"foo/**/*/*", []string{"foo/", "*/", "**/", "*"}},
			{"foo/**/", []string{"foo/", "**/"}},
			{"foo/**/*/", []string{"foo/", "*/", "**/"}},
			{"foo/**/*/*/", []string{"foo/", "*/", "*/", "**/"}},
		} {
			Convey(tr.pattern, func() {
				tokens := NormalizePattern(SplitPattern(tr.pattern))
				So(tokens[0], ShouldEqual, "/")
				So(tokens[1:], ShouldResemble, tr.expect)

				p, err := Compile(tr.pattern)
				So(err, ShouldBeNil)
				So(p.Segments(), ShouldResemble, tr.expect)
			})
		}
	})
	Convey("Splitting keeps separators", t, func() {
		So(SplitPattern("/foo/bar/**"), ShouldResemble, []string{"/", "foo/", "bar/", "**"})
		So(SplitPattern("foo//bar"), ShouldResemble, []string{"foo/", "/", "bar"})
		So(SplitPattern(""), ShouldBeNil)
	})
}

const (
	rejected = iota
	pending
	matched
)

func outcome(st *State) int {
	switch {
	case st == nil:
		return rejected
	case st.IsMatch():
		return matched
	default:
		return pending
	}
}

func TestMatcherStates(t *testing.T) {
	Convey("Automaton suite:", t, func() {
		for _, tr := range []struct {
			pattern string
			path    string
			prefix  int
			exact   int
		}{
			{"/", "foo/bar", matched, rejected},
			{"*", "foo/bar", matched, matched},
			{"*/", "foo/bar", matched, rejected},
			{"/", "foo/bar/", matched, rejected},
			{"*", "foo/bar/", matched, matched},
			{"*/", "foo/bar/", matched, matched},
			{"**/", "foo/bar/", matched, matched},
			{"foo/**/", "foo/bar/", matched, matched},
			{"foo/**/", "foo/bar/xxx", matched, rejected},
			{"foo/**/", "foo/bar/xxx/", matched, matched},
			{"f*o", "foo/bar", matched, rejected},
			{"/f*o", "foo/bar", matched, rejected},
			{"f*o/", "foo/bar", matched, rejected},
			{"foo/", "foo/bar", matched, rejected},
			{"/foo/", "foo/bar", matched, rejected},
			{"/foo", "foo/", matched, matched},
			{"foo", "foo/", matched, matched},
			{"foo/", "foo/", matched, matched},
			{"foo/", "foo", rejected, rejected},
			{"bar", "foo/bar", matched, matched},
			{"b*r", "foo/bar", matched, matched},
			{"/bar", "foo/bar", rejected, rejected},
			{"bar/", "foo/bar", rejected, rejected},
			{"b*r/", "foo/bar", rejected, rejected},
			{"bar/", "foo/bar/", matched, matched},
			{"b*r/", "foo/bar/", matched, matched},
			{"b[a-z]r", "foo/bar", matched, matched},
			{"b[a-z]r", "foo/b0r", rejected, rejected},
			{"b[a-z]r", "foo/b0r/", pending, pending},
			{"/t*e*t", "test", matched, matched},
			{"foo/*/bar/", "foo/bar/", pending, pending},
			{"foo/*/bar/", "bar/", rejected, rejected},
			{"foo/*/bar/", "foo/a/bar/", matched, matched},
			{"foo/*/bar/", "foo/a/b/bar/", rejected, rejected},
			{"foo/*/*/bar/", "foo/a/b/bar/", matched, matched},
			{"foo/**/bar/a/", "foo/bar/b/bar/a/", matched, matched},
			{"foo/**/bar/a/", "foo/bar/bar/bar/a/", matched, matched},
			{"foo/**/bar/a/", "foo/bar/bar/b/a/", pending, pending},
			{"foo/**/bar/", "foo/bar/", matched, matched},
			{"foo/**/bar/", "bar/", rejected, rejected},
			{"foo/**/bar/", "foo/a/bar/", matched, matched},
			{"foo/**/bar/", "foo/a/b/bar/", matched, matched},
			{"foo/*/**/*/bar/", "foo/a/bar/", pending, pending},
			{"foo/*/**/*/bar/", "foo/a/b/bar/", matched, matched},
			{"foo/*/**/*/bar/", "foo/a/b/c/bar/", matched, matched},
			{"foo/**/xxx/**/bar/", "foo/xxx/bar/", matched, matched},
			{"foo/**/xxx/**/bar/", "foo/xxx/b/c/bar/", matched, matched},
			{"foo/**/xxx/**/bar/", "foo/a/xxx/c/bar/", matched, matched},
			{"foo/**/xxx/**/bar/", "foo/a/c/xxx/bar/", matched, matched},
			{"foo/**/xxx/**/bar/", "foo/bar/xxx/", pending, pending},
			{"foo/**/xxx/**/bar/", "foo/bar/xxx/bar/", matched, matched},
			{"foo/**/xxx/**/bar/", "foo/bar/xxx/xxx/bar/", matched, matched},
		} {
			Convey(tr.pattern+" vs "+tr.path, func() {
				pm, err := NewMatcher([]string{tr.pattern}, false)
				So(err, ShouldBeNil)
				So(outcome(pm.Walk(tr.path)), ShouldEqual, tr.prefix)

				em, err := NewMatcher([]string{tr.pattern}, true)
				So(err, ShouldBeNil)
				So(outcome(em.Walk(tr.path)), ShouldEqual, tr.exact)
			})
		}
	})
}

func TestMatchFilename(t *testing.T) {
	Convey("Given the converter's pattern set", t, func() {
		m, err := NewMatcher([]string{"*.zip", ".*", "LICENSE", "test*", "/root", "some/data"}, true)
		So(err, ShouldBeNil)
		for _, tr := range []struct {
			path   string
			expect bool
		}{
			{"/LICENSE", true},
			{"/foo/bar/LICENSE", true},
			{"/LICENSE/foo/bar", false},
			{"/foo/LICENSE/bar", false},
			{"/dist.zip", true},
			{"/foo/bar/dist.zip", true},
			{"/dist.zip/foo/bar", false},
			{"/foo/dist.zip/bar", false},
			{"/.some", true},
			{"/foo/bar/.some", true},
			{"/.some/foo/bar", false},
			{"/foo/.some/bar", false},
			{"/test_some", true},
			{"/foo/bar/test_some", true},
			{"/test_some/foo/bar", false},
			{"/root", true},
			{"/root/data", false},
			{"/some/data", true},
			{"/some/data/data", false},
			{"/qwerty/some/data", false},
			{"/other/some/data", false},
		} {
			Convey(tr.path, func() {
				So(m.Match(tr.path), ShouldEqual, tr.expect)
			})
		}
	})
}

func TestSegmentMatchers(t *testing.T) {
	Convey("Segment matcher suite:", t, func() {
		Convey("character classes and escapes", func() {
			m, err := NewMatcher([]string{"b[a-z]r", "\\#note", "a?c", "x{y}"}, true)
			So(err, ShouldBeNil)
			So(m.Match("/foo/bar"), ShouldBeTrue)
			So(m.Match("/foo/b0r"), ShouldBeFalse)
			So(m.Match("/#note"), ShouldBeTrue)
			So(m.Match("/abc"), ShouldBeTrue)
			So(m.Match("/abbc"), ShouldBeFalse)
			So(m.Match("/x{y}"), ShouldBeTrue)
			So(m.Match("/xy"), ShouldBeFalse)
		})
		Convey("simple wildcard does not overlap prefix and suffix", func() {
			m, err := NewMatcher([]string{"ab*ba"}, true)
			So(err, ShouldBeNil)
			So(m.Match("/aba"), ShouldBeFalse)
			So(m.Match("/abba"), ShouldBeTrue)
			So(m.Match("/ab-x-ba"), ShouldBeTrue)
		})
		Convey("invalid globs are rejected", func() {
			_, err := NewMatcher([]string{"*.bin", "foo[ab"}, true)
			So(err, ShouldNotBeNil)
			So(errcat.Category(err), ShouldEqual, lfsmigrate.ErrPattern)
		})
		Convey("an empty pattern set never matches", func() {
			m, err := NewMatcher(nil, true)
			So(err, ShouldBeNil)
			So(m.Start(), ShouldBeNil)
			So(m.Match("/anything"), ShouldBeFalse)
		})
	})
}

func TestStateEquality(t *testing.T) {
	Convey("States compare by what they can still match", t, func() {
		a, _ := NewMatcher([]string{"foo/**/bar"}, true)
		b, _ := NewMatcher([]string{"foo/**/**/bar"}, true)
		So(a.Walk("/foo/").Equal(b.Walk("/foo/")), ShouldBeTrue)
		So(a.Walk("/foo/").Hash(), ShouldEqual, b.Walk("/foo/").Hash())

		c, _ := NewMatcher([]string{"foo/**.bar"}, true)
		d, _ := NewMatcher([]string{"foo/**/*.bar"}, true)
		So(c.Walk("/foo/x/").Equal(d.Walk("/foo/x/")), ShouldBeTrue)

		So(a.Walk("/foo/").Equal(a.Start()), ShouldBeFalse)
		So(a.Walk("/nope/").Equal(nil), ShouldBeTrue)
	})
}
