package kvfs

import (
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	. "github.com/warpfork/go-errcat"

	"github.com/polydawn/lfsmigrate"
	"github.com/polydawn/lfsmigrate/warehouse"
)

var (
	_ warehouse.BlobstoreController      = Controller{}
	_ warehouse.BlobstoreWriteController = &WriteController{}
)

/*
Controller stages content on the local filesystem:

	<base>/tmp/.tmp.upload.<uuid>         while writing
	<base>/objects/aa/bb/aabbcc...        once committed
*/
type Controller struct {
	basePath string
}

/*
Initialize a warehouse controller rooted at basePath, creating the
directory layout if it doesn't exist yet.

May return errors of category:

  - `lfsmigrate.ErrLocalIO` -- if the layout can't be created
*/
func NewController(basePath string) (Controller, error) {
	absPth, err := filepath.Abs(basePath)
	if err != nil {
		return Controller{}, Errorf(lfsmigrate.ErrLocalIO, "invalid staging path: %s", err)
	}
	whCtrl := Controller{basePath: absPth}
	for _, dir := range []string{whCtrl.tmpDir(), whCtrl.objectsDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return whCtrl, Errorf(lfsmigrate.ErrLocalIO, "cannot create staging area: %s", err)
		}
	}
	return whCtrl, nil
}

func (whCtrl Controller) tmpDir() string     { return filepath.Join(whCtrl.basePath, "tmp") }
func (whCtrl Controller) objectsDir() string { return filepath.Join(whCtrl.basePath, "objects") }

// Path returns where a committed object lives.
func (whCtrl Controller) Path(oid string) string {
	chunkA, chunkB, _ := warehouse.ChunkifyHash(oid)
	return filepath.Join(whCtrl.objectsDir(), chunkA, chunkB, oid)
}

func (whCtrl Controller) Has(oid string) (bool, error) {
	_, err := os.Stat(whCtrl.Path(oid))
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, Errorf(lfsmigrate.ErrLocalIO, "cannot stat staged object %s: %s", oid, err)
	}
}

func (whCtrl Controller) OpenReader(oid string) (io.ReadCloser, error) {
	file, err := os.OpenFile(whCtrl.Path(oid), os.O_RDONLY, 0)
	switch {
	case err == nil:
		return file, nil
	case os.IsNotExist(err):
		return nil, ErrorDetailed(lfsmigrate.ErrLocalIO, "object not staged", map[string]string{"oid": oid})
	default:
		return nil, Errorf(lfsmigrate.ErrLocalIO, "object %s could not be read from staging: %s", oid, err)
	}
}

func (whCtrl Controller) OpenWriter() (warehouse.BlobstoreWriteController, error) {
	wc := &WriteController{whCtrl: whCtrl}
	// Pick a random upload path.
	wc.stagePath = filepath.Join(whCtrl.tmpDir(), ".tmp.upload."+uuid.NewString())
	file, err := os.OpenFile(wc.stagePath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return wc, Errorf(lfsmigrate.ErrLocalIO, "failed to reserve temp space in staging: %s", err)
	}
	wc.stream = file
	return wc, nil
}

type WriteController struct {
	stream    *os.File   // Write to this.
	whCtrl    Controller // Needed for the final move-into-place.
	stagePath string     // Needed for the final move-into-place.
}

func (wc *WriteController) Write(bs []byte) (int, error) {
	return wc.stream.Write(bs)
}

/*
Cancel the current write.  Close the stream, and remove any temporary files.
*/
func (wc *WriteController) Close() error {
	wc.stream.Close()
	return os.Remove(wc.stagePath)
}

/*
Commit the current data as the given hash.
Caller must be an adult and specify the hash truthfully.
Closes the writer and invalidates any future use.

If the object is already present, the staged copy is discarded and the
existing file is left untouched.  The move into place never replaces
an existing file, so concurrent writers of the same object are safe.
*/
func (wc *WriteController) Commit(oid string) error {
	if err := wc.stream.Sync(); err != nil {
		wc.Close()
		return Errorf(lfsmigrate.ErrLocalIO, "failed to flush staged object: %s", err)
	}
	if err := wc.stream.Close(); err != nil {
		os.Remove(wc.stagePath)
		return Errorf(lfsmigrate.ErrLocalIO, "failed to commit to file: %s", err)
	}
	finalPath := wc.whCtrl.Path(oid)
	if err := os.MkdirAll(filepath.Dir(finalPath), 0755); err != nil {
		os.Remove(wc.stagePath)
		return Errorf(lfsmigrate.ErrLocalIO, "failed to commit to file: %s", err)
	}
	switch err := renameNoReplace(wc.stagePath, finalPath); {
	case err == nil:
		return nil
	case os.IsExist(err):
		return os.Remove(wc.stagePath)
	default:
		os.Remove(wc.stagePath)
		return ErrorDetailed(lfsmigrate.ErrLocalIO, "failed to move staged object into place: "+err.Error(),
			map[string]string{"oid": oid})
	}
}
