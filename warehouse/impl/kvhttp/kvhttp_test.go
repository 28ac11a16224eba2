package kvhttp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/warpfork/go-errcat"

	"github.com/polydawn/lfsmigrate"
	"github.com/polydawn/lfsmigrate/warehouse"
)

const content = "large file content"

// Just enough of an LFS server: remembers uploads, can be told to fail.
type fakeServer struct {
	mu        sync.Mutex
	stored    map[string]string
	batchFail []int // statuses to answer batch requests with, in order, before succeeding
	auths     []string
	puts      int
	verifies  int
}

func (fs *fakeServer) handler(srvURL *string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/repo/info/lfs/objects/batch", func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		fs.auths = append(fs.auths, r.Header.Get("Authorization"))
		if len(fs.batchFail) > 0 {
			status := fs.batchFail[0]
			fs.batchFail = fs.batchFail[1:]
			w.Header().Set("Www-Authenticate", "Basic realm=lfs")
			w.WriteHeader(status)
			return
		}
		var req batchRequest
		json.NewDecoder(r.Body).Decode(&req)
		var resp batchResponse
		for _, obj := range req.Objects {
			bobj := batchObject{Oid: obj.Oid, Size: obj.Size}
			if _, ok := fs.stored[obj.Oid]; !ok {
				bobj.Actions = map[string]action{
					"upload": {Href: *srvURL + "/store/" + obj.Oid, Header: map[string]string{"X-Upload-Token": "t"}},
					"verify": {Href: *srvURL + "/verify"},
				}
			}
			resp.Objects = append(resp.Objects, bobj)
		}
		w.Header().Set("Content-Type", mediaType)
		json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/store/", func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		if r.Header.Get("X-Upload-Token") != "t" {
			w.WriteHeader(403)
			return
		}
		body, _ := io.ReadAll(r.Body)
		fs.stored[strings.TrimPrefix(r.URL.Path, "/store/")] = string(body)
		fs.puts++
	})
	mux.HandleFunc("/verify", func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		fs.verifies++
	})
	return mux
}

func TestUpload(t *testing.T) {
	Convey("Given a fake LFS server", t, func() {
		fs := &fakeServer{stored: map[string]string{}}
		var srvURL string
		srv := httptest.NewServer(fs.handler(&srvURL))
		defer srv.Close()
		srvURL = srv.URL

		obj := warehouse.Object{Oid: "4d7a214614ab2935c943f9e0ff69d22eadbb8f32b1258daaa5e2ca24d17e2393", Size: int64(len(content))}
		open := func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader(content)), nil }
		ctx := context.Background()

		Convey("a new object is uploaded and verified", func() {
			whCtrl, err := NewController(strings.Replace(srvURL, "http://", "http://alice:secret@", 1)+"/repo/info/lfs", Options{})
			So(err, ShouldBeNil)
			So(whCtrl.Upload(ctx, obj, open), ShouldBeNil)
			So(fs.stored[obj.Oid], ShouldEqual, content)
			So(fs.puts, ShouldEqual, 1)
			So(fs.verifies, ShouldEqual, 1)
			So(fs.auths[0], ShouldStartWith, "Basic ")

			Convey("uploading it again transfers nothing", func() {
				So(whCtrl.Upload(ctx, obj, open), ShouldBeNil)
				So(fs.puts, ShouldEqual, 1)
			})
		})
		Convey("server errors are retried", func() {
			fs.batchFail = []int{503, 429}
			whCtrl, err := NewController(srvURL+"/repo/info/lfs", Options{Retries: 3, Backoff: time.Millisecond})
			So(err, ShouldBeNil)
			So(whCtrl.Upload(ctx, obj, open), ShouldBeNil)
			So(fs.puts, ShouldEqual, 1)
		})
		Convey("a refusal carries redacted request context", func() {
			fs.batchFail = []int{403}
			whCtrl, err := NewController(srvURL+"/repo/info/lfs", Options{Token: "hunter2", Retries: 3, Backoff: time.Millisecond})
			So(err, ShouldBeNil)
			err = whCtrl.Upload(ctx, obj, open)
			So(err, ShouldNotBeNil)
			So(errcat.Category(err), ShouldEqual, lfsmigrate.ErrUpload)
			So(len(fs.auths), ShouldEqual, 1)

			httpErr, ok := err.(*HTTPError)
			So(ok, ShouldBeTrue)
			So(httpErr.Status, ShouldStartWith, "403")
			dump := httpErr.Dump()
			So(dump, ShouldContainSubstring, "Authorization: Bearer *****")
			So(dump, ShouldNotContainSubstring, "hunter2")
			So(dump, ShouldContainSubstring, "Www-Authenticate: Basic realm=lfs")
			So(lfsmigrate.ToError(err).Details["request"], ShouldNotContainSubstring, "hunter2")
		})
		Convey("persistent server errors give up after the configured attempts", func() {
			fs.batchFail = []int{500, 500, 500, 500}
			whCtrl, err := NewController(srvURL+"/repo/info/lfs", Options{Retries: 2, Backoff: time.Millisecond})
			So(err, ShouldBeNil)
			err = whCtrl.Upload(ctx, obj, open)
			So(errcat.Category(err), ShouldEqual, lfsmigrate.ErrUpload)
			So(len(fs.auths), ShouldEqual, 2)
		})
	})
	Convey("Unsupported addresses are usage errors", t, func() {
		_, err := NewController("ftp://example.com/lfs", Options{})
		So(errcat.Category(err), ShouldEqual, lfsmigrate.ErrUsage)
	})
}
