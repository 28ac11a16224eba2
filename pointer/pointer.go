/*
Git LFS pointer records.

A pointer is the small text blob that stands in for large content
in a migrated repository:

	version https://git-lfs.github.com/spec/v1
	oid sha256:<hex>
	size <bytes>

Parse is a classification query: content that isn't a well-formed
pointer is simply "not a pointer", never an error.
*/
package pointer

import (
	"bytes"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	VersionURL = "https://git-lfs.github.com/spec/v1"
	HashPrefix = "sha256:"

	// Blobs larger than this are never pointers.
	MaxSize = 1024
)

var versionPrefix = []byte("version ")

type Field struct {
	Key   string
	Value string
}

// Pointer is the decoded key/value lines of a pointer record, in file order.
type Pointer []Field

// Encode renders the pointer record for content with the given sha256 hex hash and size.
func Encode(hash string, size int64) []byte {
	var buf bytes.Buffer
	buf.WriteString("version " + VersionURL + "\n")
	buf.WriteString("oid " + HashPrefix + hash + "\n")
	buf.WriteString("size " + strconv.FormatInt(size, 10) + "\n")
	return buf.Bytes()
}

/*
Parse decodes blob if it is a pointer record.

The rules:
  - the content starts with "version ";
  - every line is "key value\n", final newline included, no empty lines;
  - keys use only [a-z0-9.-];
  - values are valid UTF-8;
  - after the leading version line, keys are strictly increasing
    (which also rules out duplicates);
  - oid and size are present and size is a non-negative integer.
*/
func Parse(blob []byte) (Pointer, bool) {
	if len(blob) > MaxSize || !bytes.HasPrefix(blob, versionPrefix) {
		return nil, false
	}
	var p Pointer
	seen := map[string]bool{}
	rest := blob
	for len(rest) > 0 {
		eol := bytes.IndexByte(rest, '\n')
		if eol < 0 {
			return nil, false
		}
		line := rest[:eol]
		rest = rest[eol+1:]

		sp := bytes.IndexByte(line, ' ')
		if sp <= 0 {
			return nil, false
		}
		key, value := line[:sp], line[sp+1:]
		if !validKey(key) || !utf8.Valid(value) {
			return nil, false
		}
		k := string(key)
		if seen[k] {
			return nil, false
		}
		if len(p) > 1 && k <= p[len(p)-1].Key {
			return nil, false
		}
		seen[k] = true
		p = append(p, Field{k, string(value)})
	}
	if !seen["oid"] || !seen["size"] {
		return nil, false
	}
	size, err := strconv.ParseInt(p.get("size"), 10, 64)
	if err != nil || size < 0 {
		return nil, false
	}
	return p, true
}

func validKey(key []byte) bool {
	for _, c := range key {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '.' || c == '-':
		default:
			return false
		}
	}
	return true
}

func (p Pointer) Get(key string) (string, bool) {
	for _, f := range p {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

func (p Pointer) get(key string) string {
	v, _ := p.Get(key)
	return v
}

// Oid returns the content hash with its "sha256:" prefix removed.
func (p Pointer) Oid() string {
	return strings.TrimPrefix(p.get("oid"), HashPrefix)
}

func (p Pointer) Size() int64 {
	n, _ := strconv.ParseInt(p.get("size"), 10, 64)
	return n
}
