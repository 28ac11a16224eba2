package pathmatch

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// A nameMatcher tests a single path segment (no separators).
type nameMatcher interface {
	Match(name string, isDir bool) bool
	Recursive() bool
	String() string
}

func compileSegment(token string) (nameMatcher, error) {
	if token == "**/" {
		return recursiveMatcher{}, nil
	}
	dirOnly := strings.HasSuffix(token, "/")
	mask := strings.TrimSuffix(token, "/")
	mask = tryRemoveBackslashes(mask)
	if !strings.ContainsAny(mask, "[]\\?") {
		switch strings.Count(mask, "*") {
		case 0:
			return equalsMatcher{mask, dirOnly}, nil
		case 1:
			star := strings.IndexByte(mask, '*')
			return simpleMatcher{mask[:star], mask[star+1:], dirOnly}, nil
		}
	}
	glob := escapeBraces(mask)
	if !doublestar.ValidatePattern(glob) {
		return nil, fmt.Errorf("malformed glob %q", mask)
	}
	return complexMatcher{mask, glob, dirOnly}, nil
}

// Unescapes "\ ", "\#" and "\!".  Any other escape leaves the mask untouched.
func tryRemoveBackslashes(mask string) string {
	if !strings.ContainsRune(mask, '\\') {
		return mask
	}
	var sb strings.Builder
	for i := 0; i < len(mask); i++ {
		c := mask[i]
		if c != '\\' {
			sb.WriteByte(c)
			continue
		}
		if i+1 >= len(mask) {
			return mask
		}
		switch mask[i+1] {
		case ' ', '#', '!':
			sb.WriteByte(mask[i+1])
			i++
		default:
			return mask
		}
	}
	return sb.String()
}

// Git globs have no brace alternation; doublestar does.
func escapeBraces(mask string) string {
	var sb strings.Builder
	for i := 0; i < len(mask); i++ {
		switch c := mask[i]; c {
		case '\\':
			sb.WriteByte(c)
			if i+1 < len(mask) {
				i++
				sb.WriteByte(mask[i])
			}
		case '{', '}':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

type recursiveMatcher struct{}

func (recursiveMatcher) Match(string, bool) bool { return true }
func (recursiveMatcher) Recursive() bool         { return true }
func (recursiveMatcher) String() string          { return "**/" }

type equalsMatcher struct {
	name    string
	dirOnly bool
}

func (m equalsMatcher) Match(name string, isDir bool) bool {
	return (isDir || !m.dirOnly) && name == m.name
}
func (m equalsMatcher) Recursive() bool { return false }
func (m equalsMatcher) String() string  { return maskString(m.name, m.dirOnly) }

// Exactly one '*': a prefix and suffix test.
type simpleMatcher struct {
	prefix  string
	suffix  string
	dirOnly bool
}

func (m simpleMatcher) Match(name string, isDir bool) bool {
	if !isDir && m.dirOnly {
		return false
	}
	return len(name) >= len(m.prefix)+len(m.suffix) &&
		strings.HasPrefix(name, m.prefix) &&
		strings.HasSuffix(name, m.suffix)
}
func (m simpleMatcher) Recursive() bool { return false }
func (m simpleMatcher) String() string  { return maskString(m.prefix+"*"+m.suffix, m.dirOnly) }

// Character classes, '?', escapes, or several '*'.
type complexMatcher struct {
	mask    string
	glob    string
	dirOnly bool
}

func (m complexMatcher) Match(name string, isDir bool) bool {
	if !isDir && m.dirOnly {
		return false
	}
	ok, err := doublestar.Match(m.glob, name)
	return err == nil && ok
}
func (m complexMatcher) Recursive() bool { return false }
func (m complexMatcher) String() string  { return maskString(m.mask, m.dirOnly) }

func maskString(mask string, dirOnly bool) string {
	if dirOnly {
		return mask + "/"
	}
	return mask
}
