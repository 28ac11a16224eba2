package lfsmigrate

import (
	"github.com/warpfork/go-errcat"
)

type ErrorCategory string
type ExitCode int

const (
	ExitSuccess                     = ExitCode(0)
	ExitUsage, ErrUsage             = ExitCode(1), ErrorCategory("lfsmigrate-usage-error")     // Some piece of user input was invalid and unrunnable.
	ExitPanic                       = ExitCode(2)                                              // Placeholder.  '2' happens when golang exits due to panic.
	ExitPattern, ErrPattern         = ExitCode(3), ErrorCategory("lfsmigrate-invalid-pattern") // A path pattern failed to compile.  Raised before any conversion starts.
	ExitRepoCorrupt, ErrRepoCorrupt = ExitCode(4), ErrorCategory("lfsmigrate-repo-corrupt")    // An object in the source repository could not be read or decoded.
	ExitUpload, ErrUpload           = ExitCode(5), ErrorCategory("lfsmigrate-upload-failed")   // The remote content store refused or failed an upload.
	ExitInvariant, ErrInvariant     = ExitCode(6), ErrorCategory("lfsmigrate-invariant")       // A structural invariant broke: duplicate task result, node count mismatch, malformed tree, cycle.
	ExitLocalIO, ErrLocalIO         = ExitCode(7), ErrorCategory("lfsmigrate-local-io")        // Disk trouble in the destination repository or the staging area.
	ExitCacheIO, ErrCacheIO         = ExitCode(8), ErrorCategory("lfsmigrate-cache-io")        // The content hash cache could not be read or written.
	ExitCancelled, ErrCancelled     = ExitCode(9), ErrorCategory("lfsmigrate-cancelled")       // The operation timed out or was cancelled.
	ExitTODO                        = ExitCode(254)                                            // This exit code should be replaced with something more specific.
)

/*
Raised (internally) when a source object is absent.

Never surfaced: the converter resolves it by passing the id through.
It's a category so that store helpers can report it without the converter
string-matching go-git sentinel errors.
*/
const ErrMissingObject = ErrorCategory("lfsmigrate-missing-object")

/*
Maps an error's category to the process exit code.
Uncategorized errors map to ExitTODO.
*/
func ExitCodeFor(err error) ExitCode {
	if err == nil {
		return ExitSuccess
	}
	switch errcat.Category(err) {
	case ErrUsage:
		return ExitUsage
	case ErrPattern:
		return ExitPattern
	case ErrRepoCorrupt, ErrMissingObject:
		return ExitRepoCorrupt
	case ErrUpload:
		return ExitUpload
	case ErrInvariant:
		return ExitInvariant
	case ErrLocalIO:
		return ExitLocalIO
	case ErrCacheIO:
		return ExitCacheIO
	case ErrCancelled:
		return ExitCancelled
	default:
		return ExitTODO
	}
}

// Converts any error into its serializable form, keeping category and details if present.
func ToError(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	result := &Error{Message: err.Error()}
	if cat, ok := errcat.Category(err).(ErrorCategory); ok {
		result.Category = cat
	}
	if detailed, ok := err.(interface{ Details() map[string]string }); ok {
		result.Details = detailed.Details()
	}
	return result
}

// Categorized reports whether err already carries an errcat category.
func Categorized(err error) bool {
	_, ok := err.(interface{ Category() interface{} })
	return ok
}
