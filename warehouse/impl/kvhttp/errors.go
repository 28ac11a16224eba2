package kvhttp

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/polydawn/lfsmigrate"
)

/*
HTTPError describes a failed exchange with the LFS server, carrying
both sides' headers for diagnosis.  Credentials are never included:
Authorization values are cut down to their scheme.

It is an errcat error of category `lfsmigrate.ErrUpload`.
*/
type HTTPError struct {
	Msg            string
	Method         string
	URL            string
	Status         string
	RequestHeader  http.Header
	ResponseHeader http.Header
}

func newHTTPError(resp *http.Response, msg string) *HTTPError {
	e := &HTTPError{
		Msg:            msg,
		Status:         resp.Status,
		ResponseHeader: resp.Header,
	}
	if req := resp.Request; req != nil {
		e.Method = req.Method
		e.URL = req.URL.Redacted()
		e.RequestHeader = req.Header
	}
	return e
}

func (e *HTTPError) Error() string {
	return "HTTP request error: " + e.Msg + " (" + e.Method + " " + e.URL + ": " + e.Status + ")"
}

func (e *HTTPError) Category() interface{} { return lfsmigrate.ErrUpload }
func (e *HTTPError) Message() string       { return e.Error() }
func (e *HTTPError) Details() map[string]string {
	return map[string]string{
		"method":   e.Method,
		"url":      e.URL,
		"status":   e.Status,
		"request":  DumpHeaders(e.RequestHeader),
		"response": DumpHeaders(e.ResponseHeader),
	}
}

// Dump renders the full exchange, one header per line.
func (e *HTTPError) Dump() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Request:\n  %s %s\n", e.Method, e.URL)
	sb.WriteString(indent(DumpHeaders(e.RequestHeader)))
	fmt.Fprintf(&sb, "Response: %s\n", e.Status)
	sb.WriteString(indent(DumpHeaders(e.ResponseHeader)))
	return sb.String()
}

// DumpHeaders renders headers sorted by name, with credential values masked.
func DumpHeaders(h http.Header) string {
	names := make([]string, 0, len(h))
	for k := range h {
		names = append(names, k)
	}
	sort.Strings(names)
	var sb strings.Builder
	for _, k := range names {
		for _, v := range h[k] {
			sb.WriteString(k + ": " + redact(k, v) + "\n")
		}
	}
	return sb.String()
}

func redact(name, value string) string {
	switch http.CanonicalHeaderKey(name) {
	case "Authorization", "Proxy-Authorization":
		if sp := strings.IndexByte(value, ' '); sp > 0 {
			return value[:sp+1] + "*****"
		}
		return "*****"
	default:
		return value
	}
}

func indent(s string) string {
	if s == "" {
		return ""
	}
	return "  " + strings.ReplaceAll(strings.TrimSuffix(s, "\n"), "\n", "\n  ") + "\n"
}
